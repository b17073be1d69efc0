package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/seuros/haven/internal/branding"
	"github.com/seuros/haven/internal/middleware"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
	"github.com/seuros/haven/internal/views"
)

// HandleSite renders whatever the tenant middleware resolved: the organization's
// public site, the marketing page, the not-found page, or a redirect to sign in.
func (s *Server) HandleSite(c fiber.Ctx) error {
	res := middleware.GetResolution(c)
	if res == nil {
		return fiber.ErrInternalServerError
	}
	published := res.Published()

	switch published.Outcome {
	case tenant.OutcomeFound:
		return s.renderSite(c, published.Org)
	case tenant.OutcomeLogin:
		return c.Redirect().Status(fiber.StatusFound).To(published.Redirect)
	case tenant.OutcomeMarketing:
		return s.renderMarketing(c)
	default:
		return s.renderNotFound(c)
	}
}

// HandleNotFound serves the explicit not-found route.
func (s *Server) HandleNotFound(c fiber.Ctx) error {
	return s.renderNotFound(c)
}

func (s *Server) renderSite(c fiber.Ctx, org *models.Organization) error {
	locale := s.locale(c)

	tokens := branding.Derive(models.Deref(org.PrimaryColor), models.Deref(org.SecondaryColor)).
		WithFavicon(models.Deref(org.FaviconURL), models.Deref(org.LogoURL), branding.DefaultFavicon)
	scope := branding.NewScope()
	handle := scope.Apply(tokens)
	css := scope.CSS()
	scope.Revert(handle)

	return c.Render(views.Site, fiber.Map{
		"Title":          org.BusinessName,
		"Locale":         locale,
		"Favicon":        tokens.Favicon,
		"BrandCSS":       css,
		"Org":            org.Public(),
		"HeroTitle":      s.copy(c, org.ID, locale, "site.hero.title"),
		"HeroSubtitle":   s.copy(c, org.ID, locale, "site.hero.subtitle"),
		"Services":       s.serviceLabels(c, org, locale),
		"ContactHeading": s.copy(c, org.ID, locale, "site.contact.heading"),
	}, views.Layout)
}

func (s *Server) renderMarketing(c fiber.Ctx) error {
	locale := s.locale(c)
	title := s.copy(c, uuid.Nil, locale, "marketing.title")
	return c.Render(views.Marketing, fiber.Map{
		"Title":   title,
		"Locale":  locale,
		"Heading": title,
		"Tagline": s.copy(c, uuid.Nil, locale, "marketing.tagline"),
	}, views.Layout)
}

func (s *Server) renderNotFound(c fiber.Ctx) error {
	locale := s.locale(c)
	heading := s.copy(c, uuid.Nil, locale, "site.not_found.title")
	return c.Status(fiber.StatusNotFound).Render(views.NotFound, fiber.Map{
		"Title":   heading,
		"Locale":  locale,
		"Heading": heading,
		"Body":    s.copy(c, uuid.Nil, locale, "site.not_found.body"),
	}, views.Layout)
}
