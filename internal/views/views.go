// Package views holds the server-rendered HTML templates.
package views

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/html/v2"
)

// Layout wraps every page.
const Layout = "layouts/main"

// Template names.
const (
	Site          = "site"
	Marketing     = "marketing"
	NotFound      = "not_found"
	Loading       = "loading"
	PrivateBeta   = "private_beta"
	Login         = "login"
	Listings      = "listings"
	Pilot         = "pilot"
	Internal      = "internal"
	InternalOrgs  = "internal_orgs"
	InternalFlags = "internal_flags"
	Error         = "error"
)

//go:embed templates
var templatesFS embed.FS

// New returns an engine over the embedded templates.
func New() *html.Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	// css marks pre-rendered brand custom properties as safe for a <style> block.
	engine.AddFunc("css", func(v any) template.CSS {
		switch s := v.(type) {
		case template.CSS:
			return s
		case string:
			return template.CSS(s)
		}
		return ""
	})
	return engine
}
