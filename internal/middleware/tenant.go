package middleware

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/tenant"
)

const resolutionLocalsKey = "resolution"

// Tenant resolves the request's organization once and stores the *tenant.Resolution
// in locals. The slug comes from the :slug route param, then the ?slug query. A
// backend failure is a blocking error: the page cannot render without its tenant.
func Tenant(resolver *tenant.Resolver) fiber.Handler {
	return tenantHandler(resolver, false)
}

// TenantOptional is Tenant for non-critical reads. A backend failure is logged and
// the request proceeds without a resolution.
func TenantOptional(resolver *tenant.Resolver) fiber.Handler {
	return tenantHandler(resolver, true)
}

func tenantHandler(resolver *tenant.Resolver, failOpen bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			slug = c.Query("slug")
		}
		res, err := resolver.Resolve(c.Context(), tenant.Request{Host: c.Hostname(), Slug: slug})
		if err != nil {
			logging.L().Error("organization resolution failed",
				zap.String("host", c.Hostname()),
				zap.String("slug", slug),
				zap.Bool("fail_open", failOpen),
				zap.Error(err),
			)
			if failOpen {
				return c.Next()
			}
			return fiber.NewError(fiber.StatusServiceUnavailable, "organization lookup failed")
		}
		c.Locals(resolutionLocalsKey, &res)
		return c.Next()
	}
}

// GetResolution returns the resolution stored by Tenant, or nil.
func GetResolution(c fiber.Ctx) *tenant.Resolution {
	if res, ok := c.Locals(resolutionLocalsKey).(*tenant.Resolution); ok {
		return res
	}
	return nil
}
