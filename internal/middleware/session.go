package middleware

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/guard"
	"github.com/seuros/haven/internal/logging"
)

// Cookie names set by the auth provider.
const (
	AccessCookie  = "haven_access"
	RefreshCookie = "haven_refresh"
)

const sessionLocalsKey = "session"

var ErrInvalidToken = errors.New("invalid token")

// Claims are the access-token claims issued by the auth provider.
type Claims struct {
	Role string `json:"role,omitempty"`
	Org  string `json:"org,omitempty"`
	// ImpersonatedBy is the super admin's user id while an impersonation session is active.
	ImpersonatedBy string `json:"impersonated_by,omitempty"`
	jwt.RegisteredClaims
}

// Session is what the guard chain knows about the caller.
type Session struct {
	UserID        string
	OrgSlug       string
	Role          guard.Role
	RoleErr       error
	Authenticated bool
	// Ready is false while the caller holds only a refresh credential and a new
	// access token has not propagated yet.
	Ready         bool
	Impersonating bool
}

// RoleLoader resolves a role when the token carries no role claim.
type RoleLoader interface {
	LoadRole(ctx context.Context, userID string) (guard.Role, error)
}

// SessionConfig configures the Session middleware.
type SessionConfig struct {
	Secret []byte
	Roles  RoleLoader
}

// NewSession parses the caller's credentials into a *Session stored in locals. It
// never rejects a request; the guard chain decides what an anonymous or half-ready
// session may see.
func NewSession(cfg SessionConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(sessionLocalsKey, loadSession(c, cfg))
		return c.Next()
	}
}

func loadSession(c fiber.Ctx, cfg SessionConfig) *Session {
	token := c.Cookies(AccessCookie)
	if authHeader := c.Get(fiber.HeaderAuthorization); token == "" && strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	hasRefresh := c.Cookies(RefreshCookie) != ""

	if token == "" {
		return &Session{Authenticated: hasRefresh, Ready: false}
	}

	claims, err := ParseToken(cfg.Secret, token)
	if err != nil {
		if hasRefresh {
			// Expired access token with a live refresh credential: wait for the refresh.
			return &Session{Authenticated: true, Ready: false}
		}
		logging.L().Debug("rejecting access token", zap.Error(err))
		return &Session{}
	}

	s := &Session{
		UserID:        claims.Subject,
		OrgSlug:       claims.Org,
		Authenticated: true,
		Ready:         true,
		Impersonating: claims.ImpersonatedBy != "",
		Role:          guard.ParseRole(claims.Role),
	}
	if s.Role == guard.RoleUnknown {
		if cfg.Roles == nil {
			s.Role = guard.RoleNone
		} else {
			s.Role, s.RoleErr = cfg.Roles.LoadRole(c.Context(), s.UserID)
		}
	}
	return s
}

// GetSession returns the session stored by NewSession, or an anonymous session.
func GetSession(c fiber.Ctx) *Session {
	if s, ok := c.Locals(sessionLocalsKey).(*Session); ok {
		return s
	}
	return &Session{}
}

// ParseToken validates an HMAC-signed access token.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs claims for ttl. Used by development tooling and tests; production
// tokens come from the auth provider.
func IssueToken(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// SQLRoleLoader reads the most privileged role from user_roles.
type SQLRoleLoader struct {
	DB *sql.DB
}

func (l SQLRoleLoader) LoadRole(ctx context.Context, userID string) (guard.Role, error) {
	var role string
	err := l.DB.QueryRowContext(ctx, `
		SELECT role FROM user_roles
		WHERE user_id = $1
		ORDER BY CASE role
			WHEN 'super_admin' THEN 0
			WHEN 'developer' THEN 1
			WHEN 'org_admin' THEN 2
			ELSE 3
		END
		LIMIT 1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return guard.RoleNone, nil
	}
	if err != nil {
		return guard.RoleUnknown, database.MapError(err)
	}
	return guard.ParseRole(role), nil
}
