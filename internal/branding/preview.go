package branding

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/metrics"
)

// MessageTypePreview marks a live branding preview sent by the admin portal.
const MessageTypePreview = "BRANDING_PREVIEW"

// PreviewColors carries the colors being previewed.
type PreviewColors struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// PreviewMessage is the inbound cross-context payload.
type PreviewMessage struct {
	Type   string        `json:"type"`
	Colors PreviewColors `json:"colors"`
}

// PreviewListener re-applies tokens on a scope when a trusted preview arrives.
// Origins other than the current one or the trusted admin origin are dropped.
type PreviewListener struct {
	scope         *Scope
	currentOrigin string
	trustedOrigin string
	favicon       string

	mu     sync.Mutex
	handle *Handle
}

// NewPreviewListener binds a listener to scope. favicon is carried into every
// previewed token set so a preview never drops the tenant's icon.
func NewPreviewListener(scope *Scope, currentOrigin, trustedOrigin, favicon string) *PreviewListener {
	return &PreviewListener{
		scope:         scope,
		currentOrigin: currentOrigin,
		trustedOrigin: trustedOrigin,
		favicon:       favicon,
	}
}

// Receive handles one raw message. It returns the applied tokens and true only when
// the message was a well-formed preview from an allowed origin.
func (l *PreviewListener) Receive(origin string, payload []byte) (Tokens, bool) {
	var msg PreviewMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != MessageTypePreview {
		return Tokens{}, false
	}
	return l.Preview(origin, msg)
}

// Preview applies msg when origin is allowed.
func (l *PreviewListener) Preview(origin string, msg PreviewMessage) (Tokens, bool) {
	if msg.Type != MessageTypePreview {
		return Tokens{}, false
	}
	if !config.OriginAllowed(origin, l.currentOrigin, l.trustedOrigin) {
		metrics.PreviewMessagesTotal.WithLabelValues("rejected").Inc()
		logging.L().Debug("dropping branding preview from untrusted origin",
			zap.String("origin", origin),
			zap.String("current_origin", l.currentOrigin),
		)
		return Tokens{}, false
	}

	tokens := Derive(msg.Colors.Primary, msg.Colors.Secondary).WithFavicon(l.favicon)

	l.mu.Lock()
	l.handle = l.scope.Apply(tokens)
	l.mu.Unlock()

	metrics.PreviewMessagesTotal.WithLabelValues("accepted").Inc()
	return tokens, true
}

// Close reverts whatever the listener last applied.
func (l *PreviewListener) Close() {
	l.mu.Lock()
	h := l.handle
	l.handle = nil
	l.mu.Unlock()
	l.scope.Revert(h)
}
