package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/content"
	"github.com/seuros/haven/internal/guard"
	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/middleware"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
	"github.com/seuros/haven/internal/views"
)

// FlagPilotMode gates the pilot workspace to comped organizations.
const FlagPilotMode = "pilot_mode"

// Protected routes.
var (
	ListingsRoute = guard.Route{Name: "listings"}
	PilotRoute    = guard.Route{
		Name:         "pilot",
		RequireRoles: []guard.Role{guard.RoleSuperAdmin, guard.RoleOrgAdmin, guard.RoleOrgUser},
		FallbackPath: guard.ListingsPath,
		GateFlag:     FlagPilotMode,
	}
	InternalRoute = guard.Route{
		Name:           "internal",
		RequireRoles:   []guard.Role{guard.RoleSuperAdmin, guard.RoleDeveloper},
		SuperAdminOnly: true,
		FallbackPath:   guard.ListingsPath,
	}
	ServicesRoute = guard.Route{
		Name:         "services",
		RequireRoles: []guard.Role{guard.RoleSuperAdmin, guard.RoleOrgAdmin},
		FallbackPath: guard.ListingsPath,
	}
)

// safeReturnURL keeps only same-site absolute paths.
func safeReturnURL(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	return raw
}

// HandleLogin renders the sign-in page. A caller who already holds a ready session is
// sent straight on.
func (s *Server) HandleLogin(c fiber.Ctx) error {
	returnURL := safeReturnURL(c.Query("returnUrl"))
	if sess := middleware.GetSession(c); sess.Authenticated && sess.Ready {
		target := returnURL
		if target == "" {
			target = guard.ListingsPath
		}
		return c.Redirect().Status(fiber.StatusFound).To(target)
	}
	locale := s.locale(c)
	title := s.copy(c, uuid.Nil, locale, "admin.login.title")
	return c.Render(views.Login, fiber.Map{
		"Title":     title,
		"Locale":    locale,
		"Heading":   title,
		"ReturnURL": returnURL,
	}, views.Layout)
}

// HandleLogout expires the session cookies.
func (s *Server) HandleLogout(c fiber.Ctx) error {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			Secure:   s.SecureCookies,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return c.Redirect().Status(fiber.StatusSeeOther).To(guard.LoginPath)
}

// HandleListings renders the signed-in user's organization workspace.
func (s *Server) HandleListings(c fiber.Ctx) error {
	org := middleware.GuardOrg(c)
	locale := s.locale(c)
	orgID := uuid.Nil
	bind := fiber.Map{"Locale": locale}
	if org != nil {
		orgID = org.ID
		bind["Org"] = org.Public()
		bind["Services"] = s.serviceLabels(c, org, locale)
	}
	title := s.copy(c, orgID, locale, "admin.listings.title")
	bind["Title"] = title
	bind["Heading"] = title
	return c.Render(views.Listings, bind, views.Layout)
}

// HandlePilot renders the pilot workspace. The guard has already checked the gate.
func (s *Server) HandlePilot(c fiber.Ctx) error {
	bind := fiber.Map{"Title": "Pilot", "Locale": s.locale(c)}
	if org := middleware.GuardOrg(c); org != nil {
		bind["Org"] = org.Public()
	} else {
		bind["Org"] = models.PublicOrganization{BusinessName: "Haven"}
	}
	return c.Render(views.Pilot, bind, views.Layout)
}

// HandleInternal renders the internal tools landing page, the fallback for users
// without an internal role.
func (s *Server) HandleInternal(c fiber.Ctx) error {
	title := s.copy(c, uuid.Nil, content.BaseLocale, "internal.title")
	return c.Render(views.Internal, fiber.Map{"Title": title, "Heading": title}, views.Layout)
}

// HandleInternalOrganizations lists every organization, active or not.
func (s *Server) HandleInternalOrganizations(c fiber.Ctx) error {
	orgs, err := s.Orgs.List(c.Context(), true)
	if err != nil {
		logging.L().Error("failed to list organizations", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list organizations")
	}
	if wantsJSON(c) {
		out := make([]models.PublicOrganization, 0, len(orgs))
		for i := range orgs {
			out = append(out, orgs[i].Public())
		}
		return c.JSON(out)
	}
	return c.Render(views.InternalOrgs, fiber.Map{"Title": "Organizations", "Orgs": orgs}, views.Layout)
}

// HandleInternalFlags lists feature flags with their effective state.
func (s *Server) HandleInternalFlags(c fiber.Ctx) error {
	flags, err := s.Flags.ListFlags(c.Context())
	if err != nil {
		logging.L().Error("failed to list feature flags", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list feature flags")
	}
	if wantsJSON(c) {
		return c.JSON(flags)
	}
	return c.Render(views.InternalFlags, fiber.Map{"Title": "Feature flags", "Flags": flags}, views.Layout)
}

type servicesRequest struct {
	Service string `json:"service"`
	Enabled *bool  `json:"enabled"`
}

// HandleUpdateServices toggles one property service. Org admins may only touch their
// own organization; the last enabled service cannot be switched off.
func (s *Server) HandleUpdateServices(c fiber.Ctx) error {
	slug := strings.ToLower(c.Params("slug"))
	sess := middleware.GetSession(c)
	if sess.Role != guard.RoleSuperAdmin && !strings.EqualFold(sess.OrgSlug, slug) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not allowed to manage this organization"})
	}

	var req servicesRequest
	if err := c.Bind().JSON(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Body must be {service, enabled}"})
	}
	svc, err := models.ParsePropertyService(req.Service)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	org, err := s.Orgs.UpdateServices(c.Context(), slug, svc, *req.Enabled)
	switch {
	case errors.Is(err, models.ErrLastPropertyService):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, tenant.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Organization not found"})
	case err != nil:
		logging.L().Error("failed to update property services", zap.String("slug", slug), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update services"})
	}

	// The database trigger tells other instances; drop our own copy right away.
	s.Resolver.Invalidate(slug)

	logging.L().Info("property services updated",
		zap.String("slug", slug),
		zap.String("service", string(svc)),
		zap.Bool("enabled", *req.Enabled),
		zap.String("user_id", sess.UserID),
	)
	return c.JSON(fiber.Map{
		"slug":              org.Slug,
		"property_services": org.Services,
	})
}

func (s *Server) serviceLabels(c fiber.Ctx, org *models.Organization, locale string) []string {
	names := org.Services.Names()
	labels := make([]string, 0, len(names))
	for _, name := range names {
		labels = append(labels, s.copy(c, org.ID, locale, "site.services."+name))
	}
	return labels
}
