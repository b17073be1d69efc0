package tenant

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
	"github.com/seuros/haven/internal/sitemode"
)

type fakeStore struct {
	mu       sync.Mutex
	bySlug   map[string]*models.Organization
	byDomain map[string]*models.Organization
	err      error

	slugCalls   atomic.Int32
	domainCalls atomic.Int32

	// gate, when set, holds lookups for the given slug until closed.
	gate map[string]chan struct{}
}

func newFakeStore(orgs ...*models.Organization) *fakeStore {
	s := &fakeStore{
		bySlug:   map[string]*models.Organization{},
		byDomain: map[string]*models.Organization{},
		gate:     map[string]chan struct{}{},
	}
	for _, o := range orgs {
		s.bySlug[o.Slug] = o
		if o.Domain != nil {
			s.byDomain[*o.Domain] = o
		}
	}
	return s
}

func (s *fakeStore) FindBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.slugCalls.Add(1)
	s.mu.Lock()
	gate := s.gate[slug]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if o, ok := s.bySlug[slug]; ok && o.IsActive {
		return o, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) FindByDomain(_ context.Context, domain string) (*models.Organization, error) {
	s.domainCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if o, ok := s.byDomain[domain]; ok && o.IsActive {
		return o, nil
	}
	return nil, ErrNotFound
}

func org(slug, domain string) *models.Organization {
	o := &models.Organization{
		ID:           uuid.New(),
		Slug:         slug,
		BusinessName: slug,
		IsActive:     true,
		Services:     models.PropertyServices{Sales: true},
	}
	if domain != "" {
		o.Domain = &domain
	}
	return o
}

func testClassifier() *sitemode.Classifier {
	return sitemode.NewClassifier([]string{"havenhq.com", "www.havenhq.com"}, "app.havenhq.com", []string{".preview.havenhq.dev"})
}

func TestResolveSlugWinsOverDomain(t *testing.T) {
	acme := org("acme", "acme-realty.com")
	beta := org("beta", "")
	store := newFakeStore(acme, beta)
	r := NewResolver(store, testClassifier())

	res, err := r.Resolve(context.Background(), Request{Host: "acme-realty.com", Slug: "beta"})
	require.NoError(t, err)
	assert.Equal(t, sitemode.OrgPublic, res.Mode)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, SourceSlug, res.Source)
	assert.Equal(t, "beta", res.Org.Slug)
	assert.Zero(t, store.domainCalls.Load())
}

func TestResolveDomainFallback(t *testing.T) {
	store := newFakeStore(org("acme", "acme-realty.com"))
	r := NewResolver(store, testClassifier())

	res, err := r.Resolve(context.Background(), Request{Host: "ACME-realty.com:443"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, SourceDomain, res.Source)
	assert.Equal(t, "acme", res.Org.Slug)
}

func TestResolveAdminWithoutSlugRedirectsToLogin(t *testing.T) {
	store := newFakeStore(org("acme", "app.havenhq.com"))
	r := NewResolver(store, testClassifier())

	for _, host := range []string{"app.havenhq.com", "localhost:3000", "pr-1.preview.havenhq.dev"} {
		res, err := r.Resolve(context.Background(), Request{Host: host})
		require.NoError(t, err)
		assert.Equal(t, sitemode.Admin, res.Mode, host)
		assert.Equal(t, OutcomeLogin, res.Outcome, host)
		assert.Equal(t, LoginPath, res.Redirect)
		assert.Nil(t, res.Org)
	}
	assert.Zero(t, store.domainCalls.Load())
	assert.Zero(t, store.slugCalls.Load())
}

func TestResolveMarketingPerformsNoLookup(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, testClassifier())

	res, err := r.Resolve(context.Background(), Request{Host: "www.havenhq.com"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMarketing, res.Outcome)
	assert.Zero(t, store.domainCalls.Load())
}

func TestResolveNotFoundIsAnOutcome(t *testing.T) {
	inactive := org("gone", "gone.example")
	inactive.IsActive = false
	r := NewResolver(newFakeStore(inactive), testClassifier())

	res, err := r.Resolve(context.Background(), Request{Host: "gone.example"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, NotFoundPath, res.Redirect)

	res, err = r.Resolve(context.Background(), Request{Host: "app.havenhq.com", Slug: "gone"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.NotEqual(t, LoginPath, res.Redirect)

	_, err = r.ResolveBySlug(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveBackendErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	r := NewResolver(store, testClassifier())

	_, err := r.Resolve(context.Background(), Request{Host: "acme-realty.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	acme := org("acme", "acme-realty.com")
	store := newFakeStore(acme)
	r := NewResolver(store, testClassifier(), WithCacheTTL(time.Minute))

	for i := 0; i < 3; i++ {
		_, err := r.ResolveBySlug(context.Background(), "acme")
		require.NoError(t, err)
		_, err = r.ResolveByDomain(context.Background(), "acme-realty.com")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, store.slugCalls.Load())
	assert.EqualValues(t, 1, store.domainCalls.Load())

	r.Invalidate("acme")
	_, err := r.ResolveByDomain(context.Background(), "acme-realty.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.domainCalls.Load())
}

func TestResolveCacheExpires(t *testing.T) {
	store := newFakeStore(org("acme", ""))
	r := NewResolver(store, testClassifier(), WithCacheTTL(time.Second))
	now := time.Now()
	r.now = func() time.Time { return now }

	_, _ = r.ResolveBySlug(context.Background(), "acme")
	now = now.Add(2 * time.Second)
	_, _ = r.ResolveBySlug(context.Background(), "acme")
	assert.EqualValues(t, 2, store.slugCalls.Load())
}

func TestResolveCoalescesConcurrentLookups(t *testing.T) {
	store := newFakeStore(org("acme", ""))
	gate := make(chan struct{})
	store.gate["acme"] = gate
	// Late callers hit the cache instead of starting a second lookup.
	r := NewResolver(store, testClassifier(), WithCacheTTL(time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := r.ResolveBySlug(context.Background(), "acme")
			assert.NoError(t, err)
			assert.Equal(t, "acme", o.Slug)
		}()
	}
	require.Eventually(t, func() bool { return store.slugCalls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.EqualValues(t, 1, store.slugCalls.Load())
}

func TestResolveTimeout(t *testing.T) {
	store := newFakeStore(org("slow", ""))
	store.gate["slow"] = make(chan struct{})
	r := NewResolver(store, testClassifier(), WithTimeout(20*time.Millisecond))

	_, err := r.ResolveBySlug(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidateDuringLookupIsNotCachedOver(t *testing.T) {
	store := newFakeStore(org("acme", ""))
	gate := make(chan struct{})
	store.gate["acme"] = gate
	r := NewResolver(store, testClassifier(), WithCacheTTL(time.Minute))

	done := make(chan error, 1)
	go func() {
		_, err := r.ResolveBySlug(context.Background(), "acme")
		done <- err
	}()
	require.Eventually(t, func() bool { return store.slugCalls.Load() == 1 }, time.Second, time.Millisecond)

	r.Invalidate("acme")
	store.mu.Lock()
	delete(store.gate, "acme")
	store.mu.Unlock()
	close(gate)
	require.NoError(t, <-done)

	_, err := r.ResolveBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.slugCalls.Load(), "the pre-invalidation row must not be cached")

	_, err = r.ResolveBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.slugCalls.Load())
}

func TestSlugLookupIgnoresCase(t *testing.T) {
	store := newFakeStore(org("acme", ""))
	r := NewResolver(store, testClassifier())

	res, err := r.Resolve(context.Background(), Request{Host: "app.havenhq.com", Slug: " ACME "})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	require.NotNil(t, res.Org)
	assert.Equal(t, "acme", res.Org.Slug)
}

func TestNavigatorLastNavigationWins(t *testing.T) {
	store := newFakeStore(org("first", ""), org("second", ""))
	gate := make(chan struct{})
	store.gate["first"] = gate
	nav := NewNavigator(NewResolver(store, testClassifier()))

	firstDone := make(chan error, 1)
	go func() {
		_, err := nav.Navigate(context.Background(), Request{Host: "app.havenhq.com", Slug: "first"})
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return store.slugCalls.Load() == 1 }, time.Second, time.Millisecond)

	res, err := nav.Navigate(context.Background(), Request{Host: "app.havenhq.com", Slug: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Org.Slug)

	close(gate)
	assert.ErrorIs(t, <-firstDone, ErrSuperseded)

	cur, ok := nav.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Org.Slug)
}

func TestNavigatorLeaveDiscardsPending(t *testing.T) {
	store := newFakeStore(org("acme", ""))
	gate := make(chan struct{})
	store.gate["acme"] = gate
	nav := NewNavigator(NewResolver(store, testClassifier()))

	done := make(chan error, 1)
	go func() {
		_, err := nav.Navigate(context.Background(), Request{Slug: "acme"})
		done <- err
	}()
	require.Eventually(t, func() bool { return store.slugCalls.Load() == 1 }, time.Second, time.Millisecond)

	nav.Leave()
	close(gate)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	_, ok := nav.Current()
	assert.False(t, ok)
}

func TestNavigatorOrdersByBegin(t *testing.T) {
	store := newFakeStore(org("first", ""), org("second", ""))
	nav := NewNavigator(NewResolver(store, testClassifier()))

	firstCtx, first := nav.Begin(context.Background())
	secondCtx, second := nav.Begin(context.Background())
	require.ErrorIs(t, firstCtx.Err(), context.Canceled)

	res, err := nav.Resolve(secondCtx, Request{Host: "app.havenhq.com", Slug: "second"})
	require.NoError(t, err)
	_, err = nav.Finish(second, res, nil)
	require.NoError(t, err)

	res, err = nav.Resolve(context.Background(), Request{Host: "app.havenhq.com", Slug: "first"})
	require.NoError(t, err)
	_, err = nav.Finish(first, res, nil)
	assert.ErrorIs(t, err, ErrSuperseded, "a result finishing late still loses to the later Begin")

	cur, ok := nav.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Org.Slug)
}

func TestPublishedHidesOptedOutOrganizations(t *testing.T) {
	hidden := &models.Organization{Slug: "quiet", HidePublicSite: true}
	res := Resolution{Outcome: OutcomeFound, Source: SourceSlug, Org: hidden}.Published()
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, NotFoundPath, res.Redirect)
	assert.Nil(t, res.Org)

	visible := &models.Organization{Slug: "acme"}
	res = Resolution{Outcome: OutcomeFound, Org: visible}.Published()
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Same(t, visible, res.Org)
}
