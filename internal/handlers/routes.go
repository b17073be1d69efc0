package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/haven/internal/middleware"
	"github.com/seuros/haven/internal/realtime"
)

// RouteConfig carries the cross-cutting handlers Mount wires in front of routes.
type RouteConfig struct {
	Session        fiber.Handler
	Guard          middleware.GuardConfig
	Hub            *realtime.Hub
	TrustedOrigins []string
}

// Mount registers every route on app.
func (s *Server) Mount(app *fiber.App, rc RouteConfig) {
	if rc.Session == nil {
		rc.Session = middleware.NewSession(middleware.SessionConfig{})
	}
	tenant := middleware.Tenant(s.Resolver)

	app.Get("/health", s.HandleHealth)
	app.Get("/up", s.HandleUp)
	app.Get("/api/version", s.HandleVersion)

	// Public sites
	app.Get("/", tenant, s.HandleSite)
	app.Get("/site/:slug", tenant, s.HandleSite)
	app.Get("/not-found", s.HandleNotFound)

	// Public API
	app.Get("/api/site", tenant, s.HandleSiteContext)
	app.Get("/api/branding/tokens", s.HandleBrandingTokens)
	app.Get("/api/copy/:key", middleware.TenantOptional(s.Resolver), s.HandleCopy)
	app.Get("/api/flags/:key", s.HandleFlag)

	// Admin portal
	admin := app.Group("/admin", rc.Session)
	admin.Get("/login", s.HandleLogin)
	admin.Post("/logout", middleware.OriginCheck(rc.TrustedOrigins...), s.HandleLogout)
	admin.Get("/listings", middleware.Guard(ListingsRoute, rc.Guard), s.HandleListings)
	admin.Get("/pilot", middleware.Guard(PilotRoute, rc.Guard), s.HandlePilot)
	admin.Put("/api/organizations/:slug/services",
		middleware.OriginCheck(rc.TrustedOrigins...),
		middleware.Guard(ServicesRoute, rc.Guard),
		s.HandleUpdateServices,
	)

	// Internal tools
	internal := app.Group("/internal", rc.Session)
	internal.Get("/", s.HandleInternal)
	internal.Get("/organizations", middleware.Guard(InternalRoute, rc.Guard), s.HandleInternalOrganizations)
	internal.Get("/flags", middleware.Guard(InternalRoute, rc.Guard), s.HandleInternalFlags)

	if rc.Hub != nil {
		app.Get("/ws/site", rc.Hub.Upgrade(), rc.Hub.Handler())
	}
}
