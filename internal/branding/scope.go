package branding

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
)

// Presentation token names written by Apply.
const (
	TokenBrandPrimary             = "--brand-primary"
	TokenBrandPrimaryForeground   = "--brand-primary-foreground"
	TokenBrandSecondary           = "--brand-secondary"
	TokenBrandSecondaryForeground = "--brand-secondary-foreground"
	TokenPrimary                  = "--primary"
	TokenPrimaryForeground        = "--primary-foreground"
	TokenFavicon                  = "favicon"
)

// DefaultFavicon is served when an organization has neither favicon nor logo.
const DefaultFavicon = "/favicon.ico"

// Tokens is the derived presentation state for one tenant.
type Tokens struct {
	Primary             string `json:"primary"`
	PrimaryForeground   string `json:"primary_foreground"`
	Secondary           string `json:"secondary"`
	SecondaryForeground string `json:"secondary_foreground"`
	Favicon             string `json:"favicon"`
}

// Derive computes tokens from two hex colors. Empty or malformed input falls back to
// the default for that slot.
func Derive(primaryHex, secondaryHex string) Tokens {
	primary := colorOrDefault(primaryHex, DefaultPrimary)
	secondary := colorOrDefault(secondaryHex, DefaultSecondary)

	pc, _ := ParseHex(primary)
	sc, _ := ParseHex(secondary)

	return Tokens{
		Primary:             HSLToken(pc),
		PrimaryForeground:   ForegroundFor(RelativeLuminance(pc)),
		Secondary:           HSLToken(sc),
		SecondaryForeground: ForegroundFor(RelativeLuminance(sc)),
		Favicon:             DefaultFavicon,
	}
}

// WithFavicon returns t with the favicon set to the first non-empty candidate.
func (t Tokens) WithFavicon(candidates ...string) Tokens {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			t.Favicon = c
			return t
		}
	}
	return t
}

func colorOrDefault(hex, fallback string) string {
	if strings.TrimSpace(hex) == "" {
		return fallback
	}
	if _, err := ParseHex(hex); err != nil {
		logging.L().Debug("ignoring malformed brand color", zap.String("color", hex), zap.String("fallback", fallback))
		return fallback
	}
	return hex
}

func (t Tokens) properties() map[string]string {
	return map[string]string{
		TokenBrandPrimary:             t.Primary,
		TokenBrandPrimaryForeground:   t.PrimaryForeground,
		TokenBrandSecondary:           t.Secondary,
		TokenBrandSecondaryForeground: t.SecondaryForeground,
		TokenPrimary:                  t.Primary,
		TokenPrimaryForeground:        t.PrimaryForeground,
		TokenFavicon:                  t.Favicon,
	}
}

// Handle identifies one Apply call. Revert with a handle that is no longer active
// is a no-op.
type Handle struct {
	id   uint64
	keys []string
}

// Scope is the shared presentation scope of one view. At most one tenant's tokens
// are active at a time.
type Scope struct {
	mu     sync.Mutex
	props  map[string]string
	active *Handle
	seq    uint64
}

func NewScope() *Scope {
	return &Scope{props: make(map[string]string)}
}

// Apply writes t into the scope, replacing whatever an earlier handle wrote.
func (s *Scope) Apply(t Tokens) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(s.active)

	s.seq++
	h := &Handle{id: s.seq}
	for k, v := range t.properties() {
		s.props[k] = v
		h.keys = append(h.keys, k)
	}
	sort.Strings(h.keys)
	s.active = h
	return h
}

// ApplyColors derives tokens from hex colors and applies them.
func (s *Scope) ApplyColors(primaryHex, secondaryHex string) (*Handle, Tokens) {
	t := Derive(primaryHex, secondaryHex)
	return s.Apply(t), t
}

// Revert removes every token h wrote, if h is still the active handle.
func (s *Scope) Revert(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != h.id {
		return
	}
	s.removeLocked(h)
	s.active = nil
}

func (s *Scope) removeLocked(h *Handle) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		delete(s.props, k)
	}
}

// Active returns the handle currently owning the scope, or nil.
func (s *Scope) Active() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Get returns a single token value.
func (s *Scope) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.props[name]
	return v, ok
}

// Snapshot copies the current tokens.
func (s *Scope) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.props))
	for k, v := range s.props {
		out[k] = v
	}
	return out
}

// CSS renders the custom properties as a :root rule. Non-CSS tokens (favicon) are
// left out. An empty scope renders "".
func (s *Scope) CSS() string {
	snap := s.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		if strings.HasPrefix(k, "--") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root{")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(snap[k])
		b.WriteString(";")
	}
	b.WriteString("}")
	return b.String()
}
