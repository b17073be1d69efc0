// Package guard decides whether a protected admin route may render.
//
// Evaluation is a fixed chain of checks. The first check that does not pass decides
// the outcome, so an unsettled read always shows the loading view before any redirect
// can happen.
package guard

import (
	"errors"
	"net/url"
	"slices"

	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/metrics"
	"github.com/seuros/haven/internal/models"
)

// Paths the chain redirects to.
const (
	LoginPath       = "/admin/login"
	ListingsPath    = "/admin/listings"
	DefaultFallback = "/internal"
	MarketingPath   = "/"
)

// ViewPrivateBeta is the terminal denial rendered for gated routes.
const ViewPrivateBeta = "private_beta"

// ErrUnauthorized marks a 401/403 surfaced by a dependent call. It means the role could
// not be verified yet, not that it was checked and refused.
var ErrUnauthorized = errors.New("unauthorized")

// IsTransientAuthError reports whether err is an authorization failure from a
// dependent call rather than a definitive role answer.
func IsTransientAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, database.ErrPermissionDenied)
}

// Role is the resolved account role. RoleUnknown means not determined yet and is never
// the same as RoleNone.
type Role string

const (
	RoleUnknown    Role = ""
	RoleSuperAdmin Role = "super_admin"
	RoleDeveloper  Role = "developer"
	RoleOrgAdmin   Role = "org_admin"
	RoleOrgUser    Role = "org_user"
	RoleNone       Role = "none"
)

// ParseRole maps a claim value to a Role. Unrecognised values resolve to RoleNone.
func ParseRole(raw string) Role {
	switch r := Role(raw); r {
	case RoleSuperAdmin, RoleDeveloper, RoleOrgAdmin, RoleOrgUser, RoleNone:
		return r
	case "org-admin":
		return RoleOrgAdmin
	case "org-user":
		return RoleOrgUser
	case RoleUnknown:
		return RoleUnknown
	}
	return RoleNone
}

// Grant is the tri-state answer to "does the role satisfy the route".
type Grant int

const (
	GrantUnknown Grant = iota
	GrantGranted
	GrantDenied
)

// State is everything the chain reads for one evaluation. The HTTP middleware loads
// auth, flags and org before evaluating, so it never sets the *Loading fields. They
// are for callers that evaluate while those loads are still in flight.
type State struct {
	AuthLoading   bool
	Authenticated bool
	SessionReady  bool
	Role          Role
	RoleErr       error
	FlagsLoading  bool
	Flags         map[string]bool
	Impersonating bool
	OrgLoading    bool
	Org           *models.Organization
	Path          string
	Query         string
}

// Route describes what a protected route requires.
type Route struct {
	Name string
	// RequireRoles lists roles allowed through. Empty means any authenticated user.
	RequireRoles []Role
	// SuperAdminOnly routes are never reachable while impersonating.
	SuperAdminOnly bool
	// FallbackPath receives users whose role is insufficient. Defaults to /internal.
	FallbackPath string
	// GateFlag names a feature flag that, when on, limits the route to comped
	// organizations.
	GateFlag string
}

func (r Route) requiredRoles() []Role {
	if len(r.RequireRoles) == 0 && r.SuperAdminOnly {
		return []Role{RoleSuperAdmin}
	}
	return r.RequireRoles
}

func (r Route) fallback() string {
	if r.FallbackPath != "" {
		return r.FallbackPath
	}
	return DefaultFallback
}

// RoleGrant evaluates the role requirement without collapsing unknown into denied.
func (r Route) RoleGrant(s State) Grant {
	required := r.requiredRoles()
	if len(required) == 0 {
		return GrantGranted
	}
	if s.RoleErr != nil {
		return GrantDenied
	}
	if s.Role == RoleUnknown {
		return GrantUnknown
	}
	if slices.Contains(required, s.Role) {
		return GrantGranted
	}
	return GrantDenied
}

// Kind is the class of decision.
type Kind int

const (
	Loading Kind = iota
	Redirect
	Deny
	Allow
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return "allow"
	}
}

// Decision is the chain's verdict. Location is set for redirects, View for denials.
type Decision struct {
	Kind     Kind
	Location string
	View     string
	Reason   string
}

type check func(Route, State) (Decision, bool)

var chain = []check{
	checkLoading,
	checkAuthenticated,
	checkImpersonation,
	checkRole,
	checkFeatureGate,
}

// Evaluate runs the chain for route against s.
func Evaluate(route Route, s State) Decision {
	d := Decision{Kind: Allow}
	for _, c := range chain {
		if stop, halt := c(route, s); halt {
			d = stop
			break
		}
	}
	metrics.GuardDecisionsTotal.WithLabelValues(route.Name, d.Kind.String()).Inc()
	return d
}

func gateOn(route Route, s State) bool {
	return route.GateFlag != "" && s.Flags[route.GateFlag]
}

func checkLoading(route Route, s State) (Decision, bool) {
	loading := Decision{Kind: Loading}
	if s.AuthLoading {
		loading.Reason = "auth"
		return loading, true
	}
	if !s.Authenticated {
		return Decision{}, false
	}
	switch {
	case !s.SessionReady:
		loading.Reason = "session"
	case route.RoleGrant(s) == GrantUnknown:
		loading.Reason = "role"
	case route.GateFlag != "" && s.FlagsLoading:
		loading.Reason = "flags"
	case gateOn(route, s) && s.RoleErr == nil && s.Role == RoleUnknown:
		loading.Reason = "role"
	case gateOn(route, s) && s.OrgLoading:
		loading.Reason = "organization"
	default:
		return Decision{}, false
	}
	return loading, true
}

func checkAuthenticated(_ Route, s State) (Decision, bool) {
	if s.Authenticated {
		return Decision{}, false
	}
	return Decision{Kind: Redirect, Location: LoginURL(s.Path, s.Query), Reason: "unauthenticated"}, true
}

func checkImpersonation(route Route, s State) (Decision, bool) {
	if !s.Impersonating || !route.SuperAdminOnly {
		return Decision{}, false
	}
	return Decision{Kind: Redirect, Location: ListingsPath, Reason: "impersonating"}, true
}

func checkRole(route Route, s State) (Decision, bool) {
	if route.RoleGrant(s) != GrantDenied {
		return Decision{}, false
	}
	if IsTransientAuthError(s.RoleErr) {
		return Decision{Kind: Redirect, Location: ListingsPath, Reason: "role_unverified"}, true
	}
	return Decision{Kind: Redirect, Location: route.fallback(), Reason: "role"}, true
}

func checkFeatureGate(route Route, s State) (Decision, bool) {
	if !gateOn(route, s) {
		return Decision{}, false
	}
	if s.Role == RoleSuperAdmin || s.Impersonating {
		return Decision{}, false
	}
	if s.Org == nil {
		return Decision{Kind: Redirect, Location: MarketingPath, Reason: "no_organization"}, true
	}
	if !s.Org.IsComped {
		return Decision{Kind: Deny, View: ViewPrivateBeta, Reason: "not_comped"}, true
	}
	return Decision{}, false
}

// LoginURL builds the sign-in redirect that returns to path?query afterwards.
func LoginURL(path, query string) string {
	if path == "" {
		path = "/"
	}
	target := path
	if query != "" {
		target += "?" + query
	}
	return LoginPath + "?returnUrl=" + url.QueryEscape(target)
}
