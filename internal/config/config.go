package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultPort               = "3000"
	DefaultAdminHost          = "app.havenhq.com"
	DefaultTrustedAdminOrigin = "https://app.havenhq.com"
	DefaultLocale             = "en"
	DefaultResolveTimeout     = 5 * time.Second
	DefaultCacheTTL           = time.Minute
)

// Proxy modes decide which header carries the client address.
const (
	ProxyNone       = "none"
	ProxyCloudflare = "cloudflare"
	ProxyXForwarded = "xforwarded"
)

// Config holds application configuration
type Config struct {
	DatabaseURL   string
	RedisURL      string
	Port          string
	DataDir       string
	SecureCookies bool
	JWTSecret     string
	ProxyMode     string

	// Hostname routing
	MarketingHosts     []string
	AdminHost          string
	DevHostSuffixes    []string
	TrustedAdminOrigin string

	ResolveTimeout time.Duration
	CacheTTL       time.Duration
	DefaultLocale  string
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (set via LoadWithOverrides)
// 2. Config file (./haven.toml or $XDG_CONFIG_HOME/haven/haven.toml)
// 3. Environment variables
func Load() (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, "", "", ""), nil
}

// LoadWithOverrides loads config and applies flag overrides
func LoadWithOverrides(databaseURL, port, dataDir string) (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, databaseURL, port, dataDir), nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("haven")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	// XDG lookup done by hand so tests can point HOME/XDG_CONFIG_HOME at a temp dir
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "haven"))
	}

	return v
}

func buildConfig(v *viper.Viper, overrideDatabaseURL, overridePort, overrideDataDir string) *Config {
	cfg := &Config{
		Port:               DefaultPort,
		DataDir:            "./data",
		SecureCookies:      true,
		MarketingHosts:     []string{"havenhq.com", "www.havenhq.com"},
		AdminHost:          DefaultAdminHost,
		DevHostSuffixes:    []string{".preview.havenhq.dev"},
		TrustedAdminOrigin: DefaultTrustedAdminOrigin,
		ResolveTimeout:     DefaultResolveTimeout,
		CacheTTL:           DefaultCacheTTL,
		DefaultLocale:      DefaultLocale,
		ProxyMode:          ProxyNone,
	}

	// Config file
	if v.IsSet("database_url") {
		cfg.DatabaseURL = v.GetString("database_url")
	}
	if v.IsSet("redis_url") {
		cfg.RedisURL = v.GetString("redis_url")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetString("port")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("secure_cookies") {
		cfg.SecureCookies = v.GetBool("secure_cookies")
	}
	if v.IsSet("jwt_secret") {
		cfg.JWTSecret = v.GetString("jwt_secret")
	}
	if v.IsSet("marketing_hosts") {
		cfg.MarketingHosts = parseHostList(v.GetString("marketing_hosts"))
	}
	if v.IsSet("admin_host") {
		cfg.AdminHost = sanitizeOrKeep(v.GetString("admin_host"), cfg.AdminHost)
	}
	if v.IsSet("dev_host_suffixes") {
		cfg.DevHostSuffixes = parseSuffixList(v.GetString("dev_host_suffixes"))
	}
	if v.IsSet("trusted_admin_origin") {
		cfg.TrustedAdminOrigin = strings.TrimSuffix(strings.TrimSpace(v.GetString("trusted_admin_origin")), "/")
	}
	if v.IsSet("resolve_timeout") {
		cfg.ResolveTimeout = v.GetDuration("resolve_timeout")
	}
	if v.IsSet("cache_ttl") {
		cfg.CacheTTL = v.GetDuration("cache_ttl")
	}
	if v.IsSet("default_locale") {
		cfg.DefaultLocale = v.GetString("default_locale")
	}
	if v.IsSet("proxy_mode") {
		cfg.ProxyMode = parseProxyMode(v.GetString("proxy_mode"))
	}

	// Environment fallback (only if not configured)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if !v.IsSet("port") {
		if envPort := os.Getenv("PORT"); envPort != "" {
			cfg.Port = envPort
		}
	}
	if !v.IsSet("data_dir") {
		if envDataDir := os.Getenv("DATA_DIR"); envDataDir != "" {
			cfg.DataDir = envDataDir
		}
	}
	if !v.IsSet("secure_cookies") {
		if envSecure := os.Getenv("SECURE_COOKIES"); envSecure != "" {
			cfg.SecureCookies = envSecure == "true"
		}
	}
	if !v.IsSet("marketing_hosts") {
		if env := os.Getenv("MARKETING_HOSTS"); env != "" {
			cfg.MarketingHosts = parseHostList(env)
		}
	}
	if !v.IsSet("admin_host") {
		if env := os.Getenv("ADMIN_HOST"); env != "" {
			cfg.AdminHost = sanitizeOrKeep(env, cfg.AdminHost)
		}
	}
	if !v.IsSet("dev_host_suffixes") {
		if env, ok := os.LookupEnv("DEV_HOST_SUFFIXES"); ok {
			cfg.DevHostSuffixes = parseSuffixList(env)
		}
	}
	if !v.IsSet("trusted_admin_origin") {
		if env := os.Getenv("TRUSTED_ADMIN_ORIGIN"); env != "" {
			cfg.TrustedAdminOrigin = strings.TrimSuffix(strings.TrimSpace(env), "/")
		}
	}
	if !v.IsSet("resolve_timeout") {
		if d, ok := envDuration("RESOLVE_TIMEOUT"); ok {
			cfg.ResolveTimeout = d
		}
	}
	if !v.IsSet("cache_ttl") {
		if d, ok := envDuration("CACHE_TTL"); ok {
			cfg.CacheTTL = d
		}
	}
	if !v.IsSet("default_locale") {
		if env := os.Getenv("DEFAULT_LOCALE"); env != "" {
			cfg.DefaultLocale = env
		}
	}

	if !v.IsSet("proxy_mode") {
		if env := os.Getenv("PROXY_MODE"); env != "" {
			cfg.ProxyMode = parseProxyMode(env)
		}
	}

	// Flags last
	if overrideDatabaseURL != "" {
		cfg.DatabaseURL = overrideDatabaseURL
	}
	if overridePort != "" {
		cfg.Port = overridePort
	}
	if overrideDataDir != "" {
		cfg.DataDir = overrideDataDir
	}

	return cfg
}

func envDuration(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func sanitizeOrKeep(raw, fallback string) string {
	host, err := SanitizeTrustedDomain(raw)
	if err != nil {
		return fallback
	}
	return host
}

// parseHostList parses a comma-separated string into a slice of sanitized hosts
func parseHostList(hostsStr string) []string {
	if hostsStr == "" {
		return []string{}
	}

	parts := strings.Split(hostsStr, ",")
	hosts := make([]string, 0, len(parts))

	for _, part := range parts {
		host, err := SanitizeTrustedDomain(part)
		if err != nil {
			continue
		}
		hosts = append(hosts, host)
	}

	return hosts
}

// parseSuffixList keeps entries like ".preview.example.dev"; a missing leading dot is added
// so "example.dev" never matches "notexample.dev".
func parseSuffixList(raw string) []string {
	suffixes := []string{}
	for _, part := range strings.Split(raw, ",") {
		s := strings.ToLower(strings.TrimSpace(part))
		if s == "" || strings.ContainsAny(s, "*/ ") {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		suffixes = append(suffixes, s)
	}
	return suffixes
}

func parseProxyMode(raw string) string {
	switch mode := strings.ToLower(strings.TrimSpace(raw)); mode {
	case ProxyCloudflare, ProxyXForwarded:
		return mode
	}
	return ProxyNone
}
