package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/seuros/haven/internal/branding"
	"github.com/seuros/haven/internal/middleware"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/sitemode"
	"github.com/seuros/haven/internal/tenant"
)

// SiteContext is the resolved site as exposed to clients.
type SiteContext struct {
	Mode         sitemode.Mode              `json:"mode"`
	Outcome      tenant.Outcome             `json:"outcome"`
	Source       tenant.Source              `json:"source"`
	Redirect     string                     `json:"redirect,omitempty"`
	Organization *models.PublicOrganization `json:"organization,omitempty"`
	Tokens       *branding.Tokens           `json:"tokens,omitempty"`
}

// HandleSiteContext returns the resolution for the request host and ?slug=.
func (s *Server) HandleSiteContext(c fiber.Ctx) error {
	res := middleware.GetResolution(c)
	if res == nil {
		return fiber.ErrInternalServerError
	}
	published := res.Published()

	out := SiteContext{
		Mode:     published.Mode,
		Outcome:  published.Outcome,
		Source:   published.Source,
		Redirect: published.Redirect,
	}
	if org := published.Org; org != nil {
		pub := org.Public()
		tokens := branding.Derive(models.Deref(org.PrimaryColor), models.Deref(org.SecondaryColor)).
			WithFavicon(models.Deref(org.FaviconURL), models.Deref(org.LogoURL), branding.DefaultFavicon)
		out.Organization = &pub
		out.Tokens = &tokens
	}
	return c.JSON(out)
}

// HandleBrandingTokens derives tokens for ?primary= and ?secondary=. Malformed colors
// fall back to the defaults rather than failing.
func (s *Server) HandleBrandingTokens(c fiber.Ctx) error {
	tokens := branding.Derive(c.Query("primary"), c.Query("secondary")).
		WithFavicon(c.Query("favicon"), branding.DefaultFavicon)
	return c.JSON(tokens)
}

// HandleCopy resolves one copy key for the request's organization.
func (s *Server) HandleCopy(c fiber.Ctx) error {
	key := c.Params("key")
	orgID := uuid.Nil
	if res := middleware.GetResolution(c); res != nil && res.Org != nil {
		orgID = res.Org.ID
	}
	locale := s.locale(c)
	return c.JSON(fiber.Map{
		"key":    key,
		"locale": locale,
		"value":  s.Content.Copy(c.Context(), orgID, locale, key, c.Query("fallback")),
	})
}

// HandleFlag reports a flag's effective state. Unknown flags are simply off.
func (s *Server) HandleFlag(c fiber.Ctx) error {
	key := c.Params("key")
	return c.JSON(fiber.Map{
		"key":     key,
		"enabled": s.Content.IsFeatureEnabled(c.Context(), key),
	})
}
