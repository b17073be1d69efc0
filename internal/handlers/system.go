package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/views"
)

func (s *Server) HandleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "haven",
	})
}

// HandleUp is the container health check: 200 while the database answers.
func (s *Server) HandleUp(c fiber.Ctx) error {
	if s.Ping != nil {
		if err := s.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) HandleVersion(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": s.Version,
	})
}

// ErrorHandler renders errors as JSON for API callers and as the error page
// otherwise.
func ErrorHandler(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	} else {
		logging.L().Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
	}

	if wantsJSON(c) {
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	if renderErr := c.Status(status).Render(views.Error, fiber.Map{
		"Title":   message,
		"Status":  status,
		"Message": message,
	}, views.Layout); renderErr != nil {
		return c.Status(status).SendString(message)
	}
	return nil
}
