package tenant

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/metrics"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/sitemode"
)

// Redirect targets produced by resolution.
const (
	LoginPath    = "/admin/login"
	NotFoundPath = "/not-found"
)

// Outcome is what the caller should do with a resolution.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeLogin
	OutcomeMarketing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeLogin:
		return "login"
	default:
		return "marketing"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Source records which lookup produced the organization.
type Source string

const (
	SourceSlug   Source = "slug"
	SourceDomain Source = "domain"
	SourceNone   Source = "none"
)

// Request is one navigation: the hostname plus an optional slug from the path.
type Request struct {
	Host string
	Slug string
}

// Resolution is the resolved organization context for one request or navigation.
// Org is set only when Outcome is OutcomeFound.
type Resolution struct {
	Mode     sitemode.Mode        `json:"mode"`
	Outcome  Outcome              `json:"outcome"`
	Source   Source               `json:"source"`
	Redirect string               `json:"redirect,omitempty"`
	Org      *models.Organization `json:"-"`
}

// Published hides organizations that opted out of a public site: a found but hidden
// organization becomes a not-found outcome.
func (r Resolution) Published() Resolution {
	if r.Outcome == OutcomeFound && r.Org != nil && r.Org.HidePublicSite {
		r.Outcome = OutcomeNotFound
		r.Redirect = NotFoundPath
		r.Org = nil
	}
	return r
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each backend lookup. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithCacheTTL enables a short-lived lookup cache. Zero disables it.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = d }
}

// Resolver maps requests to organizations. Concurrent lookups for the same key share
// one backend call.
type Resolver struct {
	store      Store
	classifier *sitemode.Classifier
	timeout    time.Duration
	cacheTTL   time.Duration
	group      singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
	epoch uint64 // bumped by every invalidation
	now   func() time.Time
}

type cacheEntry struct {
	org     *models.Organization
	expires time.Time
}

func NewResolver(store Store, classifier *sitemode.Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		classifier: classifier,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify exposes the resolver's classifier.
func (r *Resolver) Classify(host string) sitemode.Mode {
	return r.classifier.Classify(host)
}

// Resolve applies the precedence rules: an explicit slug always wins, admin hosts
// without a slug go to login without any lookup, marketing hosts render marketing, and
// org-public hosts fall back to a domain lookup.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	mode := r.classifier.Classify(req.Host)
	metrics.SiteModeTotal.WithLabelValues(mode.String()).Inc()

	res := Resolution{Mode: mode, Source: SourceNone}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))

	var (
		org *models.Organization
		err error
	)
	switch {
	case slug != "":
		res.Source = SourceSlug
		org, err = r.ResolveBySlug(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
	case mode == sitemode.Admin:
		res.Outcome = OutcomeLogin
		res.Redirect = LoginPath
	case mode == sitemode.Marketing:
		res.Outcome = OutcomeMarketing
	default:
		res.Source = SourceDomain
		org, err = r.ResolveByDomain(ctx, req.Host)
	}
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(string(res.Source), "error").Inc()
		return res, err
	}

	if res.Source != SourceNone {
		if org != nil {
			res.Outcome = OutcomeFound
			res.Org = org
		} else {
			res.Outcome = OutcomeNotFound
			res.Redirect = NotFoundPath
		}
	}

	metrics.ResolutionsTotal.WithLabelValues(string(res.Source), res.Outcome.String()).Inc()
	logging.L().Debug("resolved request",
		zap.String("host", req.Host),
		zap.String("slug", slug),
		zap.Stringer("mode", mode),
		zap.Stringer("outcome", res.Outcome),
	)
	return res, nil
}

// ResolveBySlug returns the active organization with this slug or ErrNotFound.
func (r *Resolver) ResolveBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	org, err := r.lookup(ctx, "slug:"+slug, func(ctx context.Context) (*models.Organization, error) {
		return r.store.FindBySlug(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}
	return org, nil
}

// ResolveByDomain returns the active organization owning host, or nil when none does.
func (r *Resolver) ResolveByDomain(ctx context.Context, host string) (*models.Organization, error) {
	domain := sitemode.NormalizeHost(host)
	if domain == "" {
		return nil, nil
	}
	return r.lookup(ctx, "domain:"+domain, func(ctx context.Context) (*models.Organization, error) {
		return r.store.FindByDomain(ctx, domain)
	})
}

// lookup reads through the cache and coalesces concurrent misses. A not-found result
// is returned as (nil, nil). Each caller may abandon the shared call through its own
// ctx without cancelling it for the others.
func (r *Resolver) lookup(ctx context.Context, key string, find func(context.Context) (*models.Organization, error)) (*models.Organization, error) {
	org, epoch, ok := r.cached(key)
	if ok {
		return org, nil
	}

	// Lookups started before an invalidation are neither joined nor remembered.
	ch := r.group.DoChan(strconv.FormatUint(epoch, 10)+"|"+key, func() (any, error) {
		lookupCtx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(lookupCtx, r.timeout)
			defer cancel()
		}
		org, err := find(lookupCtx)
		if errors.Is(err, ErrNotFound) {
			org, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		r.remember(key, org, epoch)
		return org, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		org, _ := res.Val.(*models.Organization)
		return org, nil
	}
}

func (r *Resolver) cached(key string) (*models.Organization, uint64, bool) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	epoch := r.epoch
	r.mu.RUnlock()
	if r.cacheTTL <= 0 || !ok || r.now().After(entry.expires) {
		return nil, epoch, false
	}
	return entry.org, epoch, true
}

func (r *Resolver) remember(key string, org *models.Organization, epoch uint64) {
	if r.cacheTTL <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return
	}
	r.cache[key] = cacheEntry{org: org, expires: r.now().Add(r.cacheTTL)}
}

// Invalidate drops cached entries for slug, every entry that resolved to it, and all
// cached misses (a changed organization may now own a previously unknown domain).
func (r *Resolver) Invalidate(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	for key, entry := range r.cache {
		if key == "slug:"+slug || entry.org == nil || entry.org.Slug == slug {
			delete(r.cache, key)
		}
	}
}

// InvalidateAll empties the cache.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.epoch++
	r.mu.Unlock()
}
