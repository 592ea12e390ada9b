package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Renderer executes the console templates.
type Renderer struct {
	pages *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	pages, err := template.New("console").Funcs(template.FuncMap{
		"lower": strings.ToLower,
		"total": func(v float64) string { return fmt.Sprintf("%g", v) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse console templates: %w", err)
	}
	return &Renderer{pages: pages}, nil
}

// Render writes the console page.
func (r *Renderer) Render(w io.Writer, page Page) error {
	if page.Accept == "" {
		page.Accept = strings.Join(evaluation.AcceptedExtensions, ",")
	}
	return r.pages.ExecuteTemplate(w, "index.html", page)
}

// Static exposes the embedded assets rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
