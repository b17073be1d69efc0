package middleware

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/logging"
)

// OriginCheck rejects state-changing requests whose Origin (or Referer) is neither the
// request's own origin nor one of trusted. Safe methods pass through.
func OriginCheck(trusted ...string) fiber.Handler {
	return func(c fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			origin = c.Get(fiber.HeaderReferer)
		}
		current := c.Scheme() + "://" + c.Host()
		if config.OriginAllowed(origin, current, trusted...) {
			return c.Next()
		}

		logging.L().Debug("rejecting cross-origin request",
			zap.String("origin", origin),
			zap.String("path", c.Path()),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden - untrusted origin",
		})
	}
}
