package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/sitemode"
	"github.com/seuros/haven/internal/tenant"
)

type siteStore struct {
	mu   sync.Mutex
	orgs map[string]*models.Organization
	gate map[string]chan struct{}
}

func newSiteStore() *siteStore {
	primary, favicon := "#1e3a5f", "/acme.ico"
	return &siteStore{
		orgs: map[string]*models.Organization{
			"acme": {
				ID: uuid.New(), Slug: "acme", BusinessName: "Acme", IsActive: true,
				PrimaryColor: &primary, FaviconURL: &favicon,
				Services: models.PropertyServices{Rentals: true},
			},
			"quiet": {ID: uuid.New(), Slug: "quiet", BusinessName: "Quiet", IsActive: true, HidePublicSite: true},
			"slow":  {ID: uuid.New(), Slug: "slow", BusinessName: "Slow", IsActive: true},
		},
		gate: map[string]chan struct{}{},
	}
}

func (s *siteStore) setPrimary(slug, hex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org := *s.orgs[slug]
	org.PrimaryColor = &hex
	s.orgs[slug] = &org
}

func (s *siteStore) hold(slug string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gate[slug] = ch
	return ch
}

func (s *siteStore) FindBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.Lock()
	gate := s.gate[slug]
	org, ok := s.orgs[slug]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return org, nil
}

func (s *siteStore) FindByDomain(context.Context, string) (*models.Organization, error) {
	return nil, tenant.ErrNotFound
}

func newTestResolver(store tenant.Store) *tenant.Resolver {
	classifier := sitemode.NewClassifier([]string{"haven.test"}, "admin.haven.test", nil)
	return tenant.NewResolver(store, classifier, tenant.WithCacheTTL(time.Minute))
}

type replies struct {
	mu   sync.Mutex
	msgs []any
}

func (r *replies) add(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *replies) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *replies) get(i int) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[i]
}

func navigate(slug string) []byte {
	b, _ := json.Marshal(map[string]string{"type": TypeNavigate, "slug": slug})
	return b
}

func TestNavigatePublishesSiteAndTokens(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "")
	out := &replies{}

	site.Handle(t.Context(), "", navigate("acme"), out.add)
	waitForCondition(t, time.Second, func() bool { return out.len() == 2 })

	msg, ok := out.get(0).(SiteMessage)
	require.True(t, ok)
	assert.Equal(t, tenant.OutcomeFound, msg.Outcome)
	assert.Equal(t, sitemode.Marketing, msg.Mode)
	require.NotNil(t, msg.Organization)
	assert.Equal(t, "Acme", msg.Organization.BusinessName)
	assert.Equal(t, []string{"rentals"}, msg.Organization.Services)

	tokens, ok := out.get(1).(TokensMessage)
	require.True(t, ok)
	assert.False(t, tokens.Preview)
	assert.Equal(t, "214 52% 25%", tokens.Tokens["--brand-primary"])
	assert.Equal(t, "/acme.ico", tokens.Tokens["favicon"])
	assert.True(t, site.Showing("acme"))
}

func TestNavigateToHiddenOrUnknownOrganizationClearsBranding(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "")
	out := &replies{}

	site.Handle(t.Context(), "", navigate("acme"), out.add)
	waitForCondition(t, time.Second, func() bool { return out.len() == 2 })

	for i, slug := range []string{"quiet", "ghost"} {
		site.Handle(t.Context(), "", navigate(slug), out.add)
		waitForCondition(t, time.Second, func() bool { return out.len() == 4+2*i })

		msg := out.get(2 + 2*i).(SiteMessage)
		assert.Equal(t, tenant.OutcomeNotFound, msg.Outcome, slug)
		assert.Equal(t, tenant.NotFoundPath, msg.Redirect)
		assert.Nil(t, msg.Organization)
		assert.Empty(t, site.Tokens(), "no tenant tokens may linger")
	}
}

func TestLastNavigationWins(t *testing.T) {
	store := newSiteStore()
	site := NewSiteSession(newTestResolver(store), "haven.test", "http://haven.test", "")
	out := &replies{}
	release := store.hold("slow")

	site.Handle(t.Context(), "", navigate("slow"), out.add)
	site.Handle(t.Context(), "", navigate("acme"), out.add)
	waitForCondition(t, time.Second, func() bool { return out.len() == 2 })
	close(release)
	site.wg.Wait()

	require.Equal(t, 2, out.len(), "the superseded navigation publishes nothing")
	assert.Equal(t, "Acme", out.get(0).(SiteMessage).Organization.BusinessName)
	assert.True(t, site.Showing("acme"))
}

func TestNavigationsApplyInHandleOrder(t *testing.T) {
	resolver := newTestResolver(newSiteStore())
	for i := range 500 {
		site := NewSiteSession(resolver, "haven.test", "http://haven.test", "")
		out := &replies{}

		site.Handle(t.Context(), "", navigate("slow"), out.add)
		site.Handle(t.Context(), "", navigate("acme"), out.add)
		site.wg.Wait()

		require.True(t, site.Showing("acme"), "run %d", i)
		last := out.get(out.len() - 2).(SiteMessage)
		require.Equal(t, "acme", last.Organization.Slug, "run %d", i)
		site.Close()
	}
}

func TestRefreshAfterCloseAppliesNothing(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "")
	out := &replies{}

	site.Handle(t.Context(), "", navigate("acme"), out.add)
	waitForCondition(t, time.Second, func() bool { return out.len() == 2 })
	site.Close()

	site.Refresh(t.Context(), out.add)
	site.Handle(t.Context(), "", navigate("acme"), out.add)
	site.wg.Wait()

	assert.Empty(t, site.Tokens())
	assert.False(t, site.Showing("acme"))
	assert.Equal(t, 2, out.len())
}

func TestPreviewRespectsOrigin(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "https://admin.haven.test")
	out := &replies{}
	payload := []byte(`{"type":"BRANDING_PREVIEW","colors":{"primary":"#ff0000","secondary":"#ffffff"}}`)

	site.Handle(t.Context(), "https://evil.example", payload, out.add)
	assert.Equal(t, 0, out.len())
	assert.Empty(t, site.Tokens())

	site.Handle(t.Context(), "https://admin.haven.test", payload, out.add)
	require.Equal(t, 1, out.len())
	tokens := out.get(0).(TokensMessage)
	assert.True(t, tokens.Preview)
	assert.Equal(t, "0 100% 50%", tokens.Tokens["--brand-primary"])
	assert.Equal(t, "0 0% 0%", tokens.Tokens["--brand-secondary-foreground"])
}

func TestCloseRevertsBranding(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "")
	out := &replies{}

	site.Handle(t.Context(), "", navigate("acme"), out.add)
	waitForCondition(t, time.Second, func() bool { return out.len() == 2 })
	require.NotEmpty(t, site.Tokens())

	site.Close()
	assert.Empty(t, site.Tokens())
	assert.False(t, site.Showing("acme"))
}

func TestMalformedFrameReportsError(t *testing.T) {
	site := NewSiteSession(newTestResolver(newSiteStore()), "haven.test", "http://haven.test", "")
	out := &replies{}

	site.Handle(t.Context(), "", []byte("{"), out.add)
	site.Handle(t.Context(), "", []byte(`{"type":"SOMETHING_ELSE"}`), out.add)

	require.Equal(t, 1, out.len())
	assert.Equal(t, TypeError, out.get(0).(ErrorMessage).Type)
}
