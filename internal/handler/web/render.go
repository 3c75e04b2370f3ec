package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/hushboard/hushboard/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames lists every page template. Each page file defines a "content"
// block rendered inside the shared layout.
var pageNames = []string{"home", "login", "register", "secrets", "submit"}

// AuthPageData carries the state of the login and register forms.
type AuthPageData struct {
	Error        string
	Success      string
	Username     string
	OAuthEnabled bool
}

// SecretsData carries the public board.
type SecretsData struct {
	Users    []*models.User
	LoggedIn bool
}

// SubmitData carries the submission form, pre-filled with the caller's
// current secret.
type SubmitData struct {
	Secret string
	Error  string
}

// Renderer renders HTML pages from embedded templates.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates. Each page is parsed together
// with the shared layout so pages cannot collide on block names.
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes the named page to the response. Unknown page names are a
// programming error and surface as a 500.
func (r *Renderer) Render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := r.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	// Render into a buffer first so a template failure never sends a
	// half-written page.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
