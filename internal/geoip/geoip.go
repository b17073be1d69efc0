// Package geoip maps client addresses to a country code, used as a locale hint when a
// visitor sends no usable Accept-Language header.
package geoip

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
)

const (
	databaseFile = "GeoLite2-Country.mmdb"
	downloadURL  = "https://cdn.jsdelivr.net/npm/geolite2-country/GeoLite2-Country.mmdb.gz"
)

var (
	mu     sync.RWMutex
	reader *geoip2.Reader
)

// Init opens the country database in dataDir, downloading it first when allowed.
// A missing database is not an error: lookups then return "".
func Init(ctx context.Context, dataDir string, download bool) error {
	if dataDir == "" {
		return nil
	}
	dbPath := filepath.Join(dataDir, databaseFile)
	log := logging.L().With(zap.String("path", dbPath))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if !download {
			log.Info("geoip database not present, locale hints disabled")
			return nil
		}
		log.Info("geoip database not found, downloading")
		if err := downloadDatabase(ctx, dbPath); err != nil {
			log.Warn("geoip download failed, locale hints disabled", zap.Error(err))
			return nil
		}
	}

	r, err := geoip2.Open(dbPath)
	if err != nil {
		log.Warn("could not open geoip database", zap.Error(err))
		return nil
	}

	mu.Lock()
	if reader != nil {
		_ = reader.Close()
	}
	reader = r
	mu.Unlock()

	log.Info("geoip database loaded")
	return nil
}

// CountryCode returns the ISO 3166-1 alpha-2 code for ip, or "" when unknown.
func CountryCode(ipStr string) string {
	mu.RLock()
	defer mu.RUnlock()
	if reader == nil {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return ""
	}
	record, err := reader.Country(ip)
	if err != nil {
		logging.L().Debug("geoip lookup failed", zap.String("ip", ipStr), zap.Error(err))
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if reader == nil {
		return nil
	}
	err := reader.Close()
	reader = nil
	return err
}

func downloadDatabase(ctx context.Context, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	// Write to a temp file so a partial download never replaces a good database.
	tmp := dbPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, gz); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write database: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dbPath)
}
