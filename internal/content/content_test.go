package content

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/haven/internal/models"
)

type stubStore struct {
	mu        sync.Mutex
	overrides map[string]string
	flags     map[string]*models.FeatureFlag
	err       error

	overrideCalls atomic.Int32
	flagCalls     atomic.Int32
}

func (s *stubStore) FetchOverrides(_ context.Context, _ uuid.UUID, _ string) (map[string]string, error) {
	s.overrideCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out, nil
}

func (s *stubStore) FetchFlag(_ context.Context, key string) (*models.FeatureFlag, error) {
	s.flagCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.flags[key], nil
}

func (s *stubStore) set(fn func(*stubStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

var acmeID = uuid.MustParse("6f1c7a52-3f55-4f1e-9d3b-0c6f6b3a8f11")

func TestCopyPrecedence(t *testing.T) {
	store := &stubStore{overrides: map[string]string{"site.hero.title": "Acme homes"}}
	svc := NewService(store)
	ctx := context.Background()

	assert.Equal(t, "Acme homes", svc.Copy(ctx, acmeID, "en", "site.hero.title", "ignored"))
	assert.Equal(t, "Caller text", svc.Copy(ctx, acmeID, "en", "site.hero.subtitle", "Caller text"))
	assert.Equal(t, "Long-term rentals", svc.Copy(ctx, acmeID, "en", "site.services.rentals", ""))
	assert.Equal(t, "Alquiler de larga duración", svc.Copy(ctx, acmeID, "es-MX", "site.services.rentals", ""))
	assert.Equal(t, "Sign in", svc.Copy(ctx, acmeID, "es", "admin.login.title", ""), "missing locale key falls back to en")
	assert.Equal(t, "site.unknown.key", svc.Copy(ctx, acmeID, "en", "site.unknown.key", ""))
}

func TestCopyEmptyOverrideIsIgnored(t *testing.T) {
	store := &stubStore{overrides: map[string]string{"site.hero.title": ""}}
	svc := NewService(store)
	assert.Equal(t, "Find your next home", svc.Copy(context.Background(), acmeID, "en", "site.hero.title", ""))
}

func TestCopyAndFlagsFailClosed(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	svc := NewService(store)
	ctx := context.Background()

	assert.Equal(t, "Find your next home", svc.Copy(ctx, acmeID, "en", "site.hero.title", ""))
	assert.False(t, svc.IsFeatureEnabled(ctx, "pilot_mode"))
}

func TestNilStoreUsesDefaults(t *testing.T) {
	svc := NewService(nil)
	assert.Equal(t, "Haven", svc.Copy(context.Background(), uuid.Nil, "en", "marketing.title", ""))
	assert.False(t, svc.IsFeatureEnabled(context.Background(), "anything"))
}

func TestFeatureFlagEffectiveState(t *testing.T) {
	store := &stubStore{flags: map[string]*models.FeatureFlag{
		"on":     {Key: "on", DefaultState: true, IsActive: true},
		"killed": {Key: "killed", DefaultState: true, IsActive: false},
		"off":    {Key: "off", DefaultState: false, IsActive: true},
	}}
	svc := NewService(store)
	ctx := context.Background()

	assert.True(t, svc.IsFeatureEnabled(ctx, "on"))
	assert.False(t, svc.IsFeatureEnabled(ctx, "killed"))
	assert.False(t, svc.IsFeatureEnabled(ctx, "off"))
	assert.False(t, svc.IsFeatureEnabled(ctx, "missing"))
	assert.Equal(t, map[string]bool{"on": true, "off": false}, svc.Flags(ctx, "on", "off"))
}

func TestCachedValueServedWhileStaleRefreshRuns(t *testing.T) {
	store := &stubStore{flags: map[string]*models.FeatureFlag{
		"pilot_mode": {DefaultState: true, IsActive: true},
	}}
	svc := NewService(store, WithTTL(time.Second))
	now := time.Now()
	var clock sync.Mutex
	svc.now = func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return now
	}
	ctx := context.Background()

	require.True(t, svc.IsFeatureEnabled(ctx, "pilot_mode"))
	assert.True(t, svc.IsFeatureEnabled(ctx, "pilot_mode"))
	assert.EqualValues(t, 1, store.flagCalls.Load(), "fresh value served from cache")

	store.set(func(s *stubStore) { s.flags["pilot_mode"].IsActive = false })
	clock.Lock()
	now = now.Add(2 * time.Second)
	clock.Unlock()

	assert.True(t, svc.IsFeatureEnabled(ctx, "pilot_mode"), "stale value served without waiting")
	assert.Eventually(t, func() bool {
		return !svc.IsFeatureEnabled(ctx, "pilot_mode")
	}, time.Second, 5*time.Millisecond)
}

func TestStaleValueSurvivesFailedRefresh(t *testing.T) {
	store := &stubStore{overrides: map[string]string{"site.hero.title": "Acme homes"}}
	svc := NewService(store, WithTTL(time.Second))
	now := time.Now()
	var clock sync.Mutex
	svc.now = func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return now
	}
	ctx := context.Background()

	require.Equal(t, "Acme homes", svc.Copy(ctx, acmeID, "en", "site.hero.title", ""))

	store.set(func(s *stubStore) { s.err = errors.New("timeout") })
	clock.Lock()
	now = now.Add(2 * time.Second)
	clock.Unlock()

	for i := 0; i < 5; i++ {
		assert.Equal(t, "Acme homes", svc.Copy(ctx, acmeID, "en", "site.hero.title", ""))
	}
	assert.Eventually(t, func() bool { return store.overrideCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestInvalidateFlag(t *testing.T) {
	store := &stubStore{flags: map[string]*models.FeatureFlag{"beta": {DefaultState: true, IsActive: true}}}
	svc := NewService(store)
	ctx := context.Background()

	require.True(t, svc.IsFeatureEnabled(ctx, "beta"))
	store.set(func(s *stubStore) { s.flags["beta"].DefaultState = false })
	assert.True(t, svc.IsFeatureEnabled(ctx, "beta"))

	svc.InvalidateFlag(ctx, "beta")
	assert.False(t, svc.IsFeatureEnabled(ctx, "beta"))
}

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memRemote) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRemoteTierIsSharedBetweenInstances(t *testing.T) {
	remote := &memRemote{data: map[string][]byte{}}
	store := &stubStore{
		overrides: map[string]string{"site.hero.title": "Acme homes"},
		flags:     map[string]*models.FeatureFlag{"beta": {DefaultState: true, IsActive: true}},
	}
	ctx := context.Background()

	first := NewService(store, WithRemote(remote))
	assert.Equal(t, "Acme homes", first.Copy(ctx, acmeID, "en", "site.hero.title", ""))
	assert.True(t, first.IsFeatureEnabled(ctx, "beta"))

	second := NewService(store, WithRemote(remote))
	assert.Equal(t, "Acme homes", second.Copy(ctx, acmeID, "en", "site.hero.title", ""))
	assert.True(t, second.IsFeatureEnabled(ctx, "beta"))

	assert.EqualValues(t, 1, store.overrideCalls.Load())
	assert.EqualValues(t, 1, store.flagCalls.Load())

	second.InvalidateOverrides(ctx, acmeID)
	_, found, _ := remote.Get(ctx, "copy:"+acmeID.String()+":en")
	assert.False(t, found)
}

func TestDefaultsLookup(t *testing.T) {
	d, err := ParseDefaults([]byte("en:\n  a: A\n  b: B\nfr:\n  a: Ah\nfr-ca:\n  a: Allo\n"))
	require.NoError(t, err)

	v, _ := d.Lookup("fr_CA", "a")
	assert.Equal(t, "Allo", v)
	v, _ = d.Lookup("fr-BE", "a")
	assert.Equal(t, "Ah", v)
	v, _ = d.Lookup("fr", "b")
	assert.Equal(t, "B", v)
	_, ok := d.Lookup("fr", "c")
	assert.False(t, ok)

	assert.Equal(t, []string{"en", "fr", "fr-ca"}, d.Locales())

	_, err = ParseDefaults([]byte("en: [not, a, map]"))
	assert.Error(t, err)
}

func TestLocaleMatcher(t *testing.T) {
	m := NewLocaleMatcher([]string{"en", "es", "fr"}, "en")

	assert.Equal(t, "es", m.Match("es-MX,es;q=0.9,en;q=0.5", ""))
	assert.Equal(t, "fr", m.Match("fr-CA", "US"))
	assert.Equal(t, "en", m.Match("en-GB", "ES"))
	assert.Equal(t, "es", m.Match("", "ES"), "country hint used when no header")
	assert.Equal(t, "fr", m.Match("", "FR"))
	assert.Equal(t, "en", m.Match("", ""))
	assert.Equal(t, "en", m.Match("", "JP"))
}
