package middleware

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"

	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
	"github.com/seuros/haven/internal/views"
)

var testSecret = []byte("test-secret-with-enough-entropy")

type orgMap map[string]*models.Organization

func (m orgMap) FindBySlug(_ context.Context, slug string) (*models.Organization, error) {
	if org, ok := m[slug]; ok {
		return org, nil
	}
	return nil, tenant.ErrNotFound
}

func (m orgMap) FindByDomain(_ context.Context, domain string) (*models.Organization, error) {
	for _, org := range m {
		if models.Deref(org.Domain) == domain {
			return org, nil
		}
	}
	return nil, tenant.ErrNotFound
}

func (m orgMap) ResolveBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return m.FindBySlug(ctx, slug)
}

func newViewsApp() *fiber.App {
	return fiber.New(fiber.Config{Views: views.New()})
}

func withSession(s *Session) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(sessionLocalsKey, s)
		return c.Next()
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func strPtr(s string) *string { return &s }
