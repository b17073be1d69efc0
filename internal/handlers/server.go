// Package handlers serves the public sites, the admin portal views and the JSON API.
package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/seuros/haven/internal/content"
	"github.com/seuros/haven/internal/httpx"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
)

// OrgAdmin is the organization write surface used by admin endpoints.
type OrgAdmin interface {
	Get(ctx context.Context, slug string) (*models.Organization, error)
	List(ctx context.Context, includeInactive bool) ([]models.Organization, error)
	UpdateServices(ctx context.Context, slug string, svc models.PropertyService, enabled bool) (*models.Organization, error)
}

// FlagLister lists feature flags for the internal tools.
type FlagLister interface {
	ListFlags(ctx context.Context) ([]models.FeatureFlag, error)
}

// Server holds what the handlers read from. Country may be nil.
type Server struct {
	Resolver      *tenant.Resolver
	Content       *content.Service
	Orgs          OrgAdmin
	Flags         FlagLister
	Locales       *content.LocaleMatcher
	Country       func(ip string) string
	ProxyMode     string
	SecureCookies bool
	Version       string
	// Ping checks the database for /up. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// locale picks the display locale: ?lang=, then Accept-Language, then the caller's
// country.
func (s *Server) locale(c fiber.Ctx) string {
	if s.Locales == nil {
		return content.BaseLocale
	}
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return s.Locales.Match(lang, "")
	}
	country := ""
	if s.Country != nil {
		country = s.Country(httpx.ClientIP(func(k string) string { return c.Get(k) }, c.IP(), s.ProxyMode))
	}
	return s.Locales.Match(c.Get(fiber.HeaderAcceptLanguage), country)
}

func (s *Server) copy(c fiber.Ctx, orgID uuid.UUID, locale, key string) string {
	return s.Content.Copy(c.Context(), orgID, locale, key, "")
}

func wantsJSON(c fiber.Ctx) bool {
	path := c.Path()
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/admin/api/") ||
		strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
