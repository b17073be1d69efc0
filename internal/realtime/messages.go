package realtime

import (
	"encoding/json"

	"github.com/seuros/haven/internal/branding"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/sitemode"
	"github.com/seuros/haven/internal/tenant"
)

// Message types exchanged on /ws/site.
const (
	TypeNavigate   = "NAVIGATE"
	TypePreview    = branding.MessageTypePreview
	TypeSite       = "SITE"
	TypeTokens     = "TOKENS"
	TypeOrgChanged = "ORG_CHANGED"
	TypeError      = "ERROR"
)

type inbound struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
	Host string `json:"host"`
}

// SiteMessage reports a published navigation.
type SiteMessage struct {
	Type         string                     `json:"type"`
	Mode         sitemode.Mode              `json:"mode"`
	Outcome      tenant.Outcome             `json:"outcome"`
	Redirect     string                     `json:"redirect,omitempty"`
	Organization *models.PublicOrganization `json:"organization,omitempty"`
}

// TokensMessage carries the session's active presentation tokens.
type TokensMessage struct {
	Type    string            `json:"type"`
	Tokens  map[string]string `json:"tokens"`
	Preview bool              `json:"preview,omitempty"`
}

type OrgChangedMessage struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func siteMessage(res tenant.Resolution) SiteMessage {
	msg := SiteMessage{
		Type:     TypeSite,
		Mode:     res.Mode,
		Outcome:  res.Outcome,
		Redirect: res.Redirect,
	}
	if res.Org != nil {
		pub := res.Org.Public()
		msg.Organization = &pub
	}
	return msg
}

func encode(msg any) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		b, _ = json.Marshal(ErrorMessage{Type: TypeError, Error: "encoding failed"})
	}
	return b
}
