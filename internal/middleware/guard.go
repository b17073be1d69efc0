package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/content"
	"github.com/seuros/haven/internal/guard"
	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
	"github.com/seuros/haven/internal/views"
)

const decisionLocalsKey = "guard_decision"

// FlagSource answers feature flag reads.
type FlagSource interface {
	IsFeatureEnabled(ctx context.Context, key string) bool
}

// OrgSource looks up the organization bound to a session.
type OrgSource interface {
	ResolveBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// CopySource resolves display copy.
type CopySource interface {
	Copy(ctx context.Context, orgID uuid.UUID, locale, key, fallback string) string
}

// GuardConfig wires the guard middleware to its read models. Nil fields degrade to
// "flag off", "no org" and the built-in copy.
type GuardConfig struct {
	Flags FlagSource
	Orgs  OrgSource
	Copy  CopySource
}

// Guard evaluates route for the current session and renders the decision. Only an
// Allow reaches the next handler.
func Guard(route guard.Route, cfg GuardConfig) fiber.Handler {
	if cfg.Copy == nil {
		cfg.Copy = content.NewService(nil)
	}
	return func(c fiber.Ctx) error {
		state, err := guardState(c, route, cfg)
		if err != nil {
			logging.L().Error("guard state lookup failed", zap.String("route", route.Name), zap.Error(err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "organization lookup failed")
		}

		d := guard.Evaluate(route, state)
		switch d.Kind {
		case guard.Allow:
			c.Locals(decisionLocalsKey, d)
			if state.Org != nil {
				c.Locals(guardOrgLocalsKey, state.Org)
			}
			return c.Next()
		case guard.Loading:
			return renderLoading(c, cfg, d)
		case guard.Redirect:
			return renderRedirect(c, d)
		default:
			return renderDeny(c, cfg, state, d)
		}
	}
}

const guardOrgLocalsKey = "guard_org"

// GuardOrg returns the organization the guard evaluated against, if any.
func GuardOrg(c fiber.Ctx) *models.Organization {
	if org, ok := c.Locals(guardOrgLocalsKey).(*models.Organization); ok {
		return org
	}
	return nil
}

func guardState(c fiber.Ctx, route guard.Route, cfg GuardConfig) (guard.State, error) {
	sess := GetSession(c)
	state := guard.State{
		Authenticated: sess.Authenticated,
		SessionReady:  sess.Ready,
		Role:          sess.Role,
		RoleErr:       sess.RoleErr,
		Impersonating: sess.Impersonating,
		Path:          c.Path(),
		Query:         string(c.Request().URI().QueryString()),
	}
	if !sess.Ready {
		// Role is meaningless until the access token is in hand.
		state.Role = guard.RoleUnknown
	}

	if route.GateFlag != "" && cfg.Flags != nil {
		state.Flags = map[string]bool{route.GateFlag: cfg.Flags.IsFeatureEnabled(c.Context(), route.GateFlag)}
	}

	if res := GetResolution(c); res != nil && res.Org != nil {
		state.Org = res.Org
	}
	if state.Org == nil && sess.OrgSlug != "" && cfg.Orgs != nil {
		org, err := cfg.Orgs.ResolveBySlug(c.Context(), sess.OrgSlug)
		switch {
		case errors.Is(err, tenant.ErrNotFound):
		case err != nil:
			return state, err
		default:
			state.Org = org
		}
	}
	return state, nil
}

func wantsJSON(c fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/admin/api/") || strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}

func renderLoading(c fiber.Ctx, cfg GuardConfig, d guard.Decision) error {
	c.Set(fiber.HeaderRetryAfter, "1")
	c.Set(fiber.HeaderCacheControl, "no-store")
	if wantsJSON(c) {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "loading", "reason": d.Reason})
	}
	return c.Status(fiber.StatusAccepted).Render(views.Loading, fiber.Map{
		"Title":   "Haven",
		"Message": cfg.Copy.Copy(c.Context(), uuid.Nil, content.BaseLocale, "admin.loading", ""),
		"Refresh": 1,
	}, views.Layout)
}

func renderRedirect(c fiber.Ctx, d guard.Decision) error {
	if wantsJSON(c) {
		status := fiber.StatusForbidden
		if strings.HasPrefix(d.Location, guard.LoginPath) {
			status = fiber.StatusUnauthorized
		}
		return c.Status(status).JSON(fiber.Map{"error": d.Reason, "redirect": d.Location})
	}
	return c.Redirect().Status(fiber.StatusFound).To(d.Location)
}

func renderDeny(c fiber.Ctx, cfg GuardConfig, state guard.State, d guard.Decision) error {
	if wantsJSON(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": d.Reason, "view": d.View})
	}
	orgID := uuid.Nil
	if state.Org != nil {
		orgID = state.Org.ID
	}
	ctx := c.Context()
	return c.Status(fiber.StatusForbidden).Render(views.PrivateBeta, fiber.Map{
		"Title":   "Haven",
		"Heading": cfg.Copy.Copy(ctx, orgID, content.BaseLocale, "admin.private_beta.title", ""),
		"Body":    cfg.Copy.Copy(ctx, orgID, content.BaseLocale, "admin.private_beta.body", ""),
	}, views.Layout)
}
