package cli

import (
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/handlers"
	"github.com/seuros/haven/internal/views"
)

// createFiberConfig returns Fiber configuration. The proxy header follows the
// configured proxy mode; direct connections use the socket address.
func createFiberConfig(appName string, cfg *config.Config) fiber.Config {
	fc := fiber.Config{
		AppName:      appName,
		Views:        views.New(),
		ErrorHandler: handlers.ErrorHandler,
	}
	if cfg == nil {
		return fc
	}

	switch cfg.ProxyMode {
	case config.ProxyCloudflare:
		fc.ProxyHeader = "CF-Connecting-IP"
	case config.ProxyXForwarded:
		fc.ProxyHeader = fiber.HeaderXForwardedFor
	}
	if fc.ProxyHeader != "" {
		fc.TrustProxy = true
		fc.TrustProxyConfig = fiber.TrustProxyConfig{Loopback: true, Private: true}
	}
	return fc
}
