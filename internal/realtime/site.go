package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seuros/haven/internal/branding"
	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
)

// SiteSession is the server side of one live public-site view. It owns a branding
// scope that at most one organization writes at a time, and a navigator that lets
// only the latest navigation publish.
type SiteSession struct {
	navigator     *tenant.Navigator
	scope         *branding.Scope
	host          string
	currentOrigin string
	trustedOrigin string

	mu      sync.Mutex
	handle  *branding.Handle
	preview *branding.PreviewListener
	last    tenant.Request
	slug    string
	closed  bool
	wg      sync.WaitGroup
}

// NewSiteSession starts a session for a page served from host.
func NewSiteSession(resolver *tenant.Resolver, host, currentOrigin, trustedOrigin string) *SiteSession {
	scope := branding.NewScope()
	return &SiteSession{
		navigator:     tenant.NewNavigator(resolver),
		scope:         scope,
		host:          host,
		currentOrigin: currentOrigin,
		trustedOrigin: trustedOrigin,
		preview:       branding.NewPreviewListener(scope, currentOrigin, trustedOrigin, branding.DefaultFavicon),
	}
}

// Handle processes one inbound frame. Navigations run asynchronously so a later
// NAVIGATE can supersede an earlier one; reply may therefore be called after Handle
// returns. Navigations are ordered by the order of Handle calls.
// Replies must not block.
func (s *SiteSession) Handle(ctx context.Context, origin string, payload []byte, reply func(any)) {
	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		reply(ErrorMessage{Type: TypeError, Error: "malformed message"})
		return
	}

	switch in.Type {
	case TypeNavigate:
		host := in.Host
		if host == "" {
			host = s.host
		}
		req := tenant.Request{Host: host, Slug: in.Slug}
		navCtx, gen, _, ok := s.begin(ctx, &req)
		if !ok {
			return
		}
		go s.navigate(navCtx, gen, req, reply)
	case TypePreview:
		s.mu.Lock()
		listener := s.preview
		s.mu.Unlock()
		if _, ok := listener.Receive(origin, payload); ok {
			reply(TokensMessage{Type: TypeTokens, Tokens: s.scope.Snapshot(), Preview: true})
		}
	default:
		// Unknown types are ignored, like any other cross-context message.
	}
}

// Refresh repeats the last navigation, e.g. after the organization changed. It is a
// no-op once the session is closed.
func (s *SiteSession) Refresh(ctx context.Context, reply func(any)) {
	navCtx, gen, req, ok := s.begin(ctx, nil)
	if !ok {
		return
	}
	s.navigate(navCtx, gen, req, reply)
}

// begin registers a navigation with the session's wait group and takes its
// generation. A nil req repeats the last request.
func (s *SiteSession) begin(ctx context.Context, req *tenant.Request) (context.Context, uint64, tenant.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, tenant.Request{}, false
	}
	if req != nil {
		s.last = *req
	}
	s.wg.Add(1)
	navCtx, gen := s.navigator.Begin(ctx)
	return navCtx, gen, s.last, true
}

// Showing reports whether the session currently displays slug.
func (s *SiteSession) Showing(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slug != "" && strings.EqualFold(s.slug, slug)
}

// Tokens returns the session's active presentation tokens.
func (s *SiteSession) Tokens() map[string]string {
	return s.scope.Snapshot()
}

func (s *SiteSession) navigate(ctx context.Context, gen uint64, req tenant.Request, reply func(any)) {
	defer s.wg.Done()
	res, err := s.navigator.Resolve(ctx, req)

	// The generation check and the scope write happen under one lock so a newer
	// navigation cannot apply in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err = s.navigator.Finish(gen, res, err)
	if errors.Is(err, tenant.ErrSuperseded) || s.closed {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			logging.L().Warn("site navigation failed", zap.String("slug", req.Slug), zap.Error(err))
			reply(ErrorMessage{Type: TypeError, Error: "organization lookup failed"})
		}
		return
	}
	res = res.Published()
	s.apply(res.Org)

	reply(siteMessage(res))
	reply(TokensMessage{Type: TypeTokens, Tokens: s.scope.Snapshot()})
}

// apply swaps the scope over to org's branding, or clears it. Callers hold s.mu.
func (s *SiteSession) apply(org *models.Organization) {
	s.preview.Close()
	s.scope.Revert(s.handle)
	s.handle = nil
	s.slug = ""

	favicon := branding.DefaultFavicon
	if org != nil {
		tokens := branding.Derive(models.Deref(org.PrimaryColor), models.Deref(org.SecondaryColor)).
			WithFavicon(models.Deref(org.FaviconURL), models.Deref(org.LogoURL), branding.DefaultFavicon)
		s.handle = s.scope.Apply(tokens)
		s.slug = org.Slug
		favicon = tokens.Favicon
	}
	s.preview = branding.NewPreviewListener(s.scope, s.currentOrigin, s.trustedOrigin, favicon)
}

// Close abandons pending navigations and reverts everything the session applied.
func (s *SiteSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.navigator.Leave()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview.Close()
	s.scope.Revert(s.handle)
	s.handle = nil
	s.slug = ""
}
