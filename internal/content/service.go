package content

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/metrics"
)

// DefaultTTL is how long a cached value counts as fresh.
const DefaultTTL = time.Minute

const refreshTimeout = 10 * time.Second

// Remote is an optional shared cache tier consulted before the store.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type entry[T any] struct {
	value      T
	fetched    time.Time
	refreshing bool
}

// Service answers copy and flag questions. Cached values are served immediately; once
// stale they are refreshed in the background while the stale value keeps being served.
type Service struct {
	store    Store
	remote   Remote
	defaults *Defaults
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	overrides map[string]*entry[map[string]string]
	flags     map[string]*entry[bool]
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRemote adds a shared cache tier. A nil remote is ignored.
func WithRemote(r Remote) Option {
	return func(s *Service) { s.remote = r }
}

func WithDefaults(d *Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// NewService builds a service. store may be nil, in which case only defaults apply.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		defaults:  BuiltinDefaults(),
		ttl:       DefaultTTL,
		now:       time.Now,
		overrides: make(map[string]*entry[map[string]string]),
		flags:     make(map[string]*entry[bool]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults exposes the static copy registry.
func (s *Service) Defaults() *Defaults {
	return s.defaults
}

// Copy resolves text for key: tenant override, then fallback, then the static default
// for locale, then key itself. The result is never empty for a non-empty key.
func (s *Service) Copy(ctx context.Context, orgID uuid.UUID, locale, key, fallback string) string {
	if v, ok := s.Overrides(ctx, orgID, locale)[key]; ok && v != "" {
		return v
	}
	if fallback != "" {
		return fallback
	}
	if v, ok := s.defaults.Lookup(locale, key); ok {
		return v
	}
	return key
}

// Overrides returns the cached override map. Errors yield an empty map.
func (s *Service) Overrides(ctx context.Context, orgID uuid.UUID, locale string) map[string]string {
	if s.store == nil {
		return nil
	}
	key := "copy:" + orgID.String() + ":" + locale
	return readThrough(ctx, s, s.overrides, "copy", key, func(ctx context.Context) (map[string]string, error) {
		return s.store.FetchOverrides(ctx, orgID, locale)
	})
}

// IsFeatureEnabled is is_active AND default_state. Missing flags and backend errors
// both answer false.
func (s *Service) IsFeatureEnabled(ctx context.Context, key string) bool {
	if s.store == nil {
		return false
	}
	return readThrough(ctx, s, s.flags, "flag", "flag:"+key, func(ctx context.Context) (bool, error) {
		f, err := s.store.FetchFlag(ctx, key)
		if err != nil {
			return false, err
		}
		return f.Enabled(), nil
	})
}

// Flags resolves several flags at once.
func (s *Service) Flags(ctx context.Context, keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = s.IsFeatureEnabled(ctx, k)
	}
	return out
}

// InvalidateFlag drops a cached flag locally and in the shared tier.
func (s *Service) InvalidateFlag(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.flags, "flag:"+key)
	s.mu.Unlock()
	s.dropRemote(ctx, "flag:"+key)
}

// InvalidateOverrides drops every cached override map for orgID.
func (s *Service) InvalidateOverrides(ctx context.Context, orgID uuid.UUID) {
	prefix := "copy:" + orgID.String() + ":"
	var dropped []string
	s.mu.Lock()
	for k := range s.overrides {
		if strings.HasPrefix(k, prefix) {
			delete(s.overrides, k)
			dropped = append(dropped, k)
		}
	}
	s.mu.Unlock()
	s.dropRemote(ctx, dropped...)
}

func (s *Service) dropRemote(ctx context.Context, keys ...string) {
	if s.remote == nil || len(keys) == 0 {
		return
	}
	if err := s.remote.Delete(ctx, keys...); err != nil {
		logging.L().Warn("failed to drop shared cache keys", zap.Strings("keys", keys), zap.Error(err))
	}
}

func readThrough[T any](ctx context.Context, s *Service, m map[string]*entry[T], cache, key string, fetch func(context.Context) (T, error)) T {
	s.mu.Lock()
	e, ok := m[key]
	if ok {
		value := e.value
		stale := s.now().Sub(e.fetched) >= s.ttl
		startRefresh := stale && !e.refreshing
		if startRefresh {
			e.refreshing = true
		}
		s.mu.Unlock()

		if !stale {
			metrics.CacheLookupsTotal.WithLabelValues(cache, "hit").Inc()
			return value
		}
		metrics.CacheLookupsTotal.WithLabelValues(cache, "stale").Inc()
		if startRefresh {
			go refresh(s, m, cache, key, fetch)
		}
		return value
	}
	s.mu.Unlock()

	metrics.CacheLookupsTotal.WithLabelValues(cache, "miss").Inc()
	v, err, _ := s.group.Do(key, func() (any, error) {
		v, err := load(ctx, s, m, key, fetch)
		return v, err
	})
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(cache, "error").Inc()
		logging.L().Warn("content read failed, using defaults", zap.String("key", key), zap.Error(err))
		var zero T
		return zero
	}
	return v.(T)
}

func refresh[T any](s *Service, m map[string]*entry[T], cache, key string, fetch func(context.Context) (T, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	_, err, _ := s.group.Do(key, func() (any, error) {
		v, err := load(ctx, s, m, key, fetch)
		return v, err
	})
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(cache, "error").Inc()
		logging.L().Warn("background refresh failed, keeping stale value", zap.String("key", key), zap.Error(err))
		s.mu.Lock()
		if e, ok := m[key]; ok {
			e.refreshing = false
		}
		s.mu.Unlock()
	}
}

// load fetches from the shared tier or the store and publishes a fresh entry.
func load[T any](ctx context.Context, s *Service, m map[string]*entry[T], key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := remoteGet[T](ctx, s, key); ok {
		publish(s, m, key, v)
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	publish(s, m, key, v)
	remoteSet(ctx, s, key, v)
	return v, nil
}

func publish[T any](s *Service, m map[string]*entry[T], key string, v T) {
	s.mu.Lock()
	m[key] = &entry[T]{value: v, fetched: s.now()}
	s.mu.Unlock()
}

func remoteGet[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var v T
	if s.remote == nil {
		return v, false
	}
	b, found, err := s.remote.Get(ctx, key)
	if err != nil {
		logging.L().Debug("shared cache read failed", zap.String("key", key), zap.Error(err))
		return v, false
	}
	if !found || json.Unmarshal(b, &v) != nil {
		return v, false
	}
	return v, true
}

func remoteSet[T any](ctx context.Context, s *Service, key string, v T) {
	if s.remote == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.remote.Set(ctx, key, b, s.ttl); err != nil {
		logging.L().Debug("shared cache write failed", zap.String("key", key), zap.Error(err))
	}
}
