package server

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/data"
	"github.com/vasilisp/searchai/pkg/api"
	"github.com/vasilisp/searchai/pkg/search"
	"github.com/yuin/goldmark"
)

const layoutTemplate = "layout.html"

type pageData struct {
	Title         string
	Authenticated bool
	Flash         string
	User          string
}

type resultsPage struct {
	pageData
	Query      string
	Results    template.HTML
	SummaryRaw string
	Summary    *api.Summary
	Domain     string
}

func (p resultsPage) DomainFound() bool {
	return p.Domain != search.NotFound
}

type renderer struct {
	pages    map[string]*template.Template
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// newRenderer parses every page template together with the shared layout.
func newRenderer(templates fs.FS) (*renderer, error) {
	names, err := fs.Glob(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		base := path.Base(name)
		if base == layoutTemplate {
			continue
		}

		tmpl, err := template.ParseFS(templates, path.Join("templates", layoutTemplate), name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", base, err)
		}
		pages[base] = tmpl
	}

	return &renderer{
		pages:    pages,
		markdown: goldmark.New(),
		policy:   bluemonday.UGCPolicy(),
	}, nil
}

func mustRenderer() *renderer {
	r, err := newRenderer(data.Templates)
	if err != nil {
		log.Fatal().Err(err).Str("component", "server").Msg("failed to load templates")
	}
	return r
}

// html converts markdown to sanitized HTML. Conversion failures fall back to
// the escaped source text.
func (r *renderer) html(markdown string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(markdown), &buf); err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("failed to convert markdown")
		return template.HTML(template.HTMLEscapeString(markdown))
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

func (r *renderer) render(w http.ResponseWriter, status int, name string, v any) {
	tmpl, ok := r.pages[name]
	if !ok {
		log.Error().Str("component", "server").Str("template", name).Msg("unknown template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		log.Error().Err(err).Str("component", "server").Str("template", name).Msg("failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
