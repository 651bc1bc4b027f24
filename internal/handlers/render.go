package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"login",
	"home",
	"lessons",
	"lesson",
	"lesson_not_found",
	"lesson_error",
	"lesson_denied",
	"mentor",
}

// Pages holds the parsed HTML views, one template set per page.
type Pages struct {
	views map[string]*template.Template
}

// NewPages parses the embedded templates.
func NewPages() (*Pages, error) {
	funcs := template.FuncMap{
		"deref": func(v any) any {
			switch p := v.(type) {
			case *string:
				if p == nil {
					return ""
				}
				return *p
			case *int:
				if p == nil {
					return ""
				}
				return *p
			default:
				return v
			}
		},
	}

	views := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		views[name] = t
	}
	return &Pages{views: views}, nil
}

type pageData struct {
	SignedIn bool
	User     models.User
	Content  any
}

// Render writes the named page with status. The signed-in user, when known,
// is made available to the header.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name string, content any) {
	ctx := r.Context()
	view, ok := p.views[name]
	if !ok {
		logging.FromContext(ctx).Error("unknown page", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := pageData{Content: content}
	if sess := session.FromContext(ctx); sess != nil {
		data.User, data.SignedIn = sess.User()
	}

	var buf bytes.Buffer
	if err := view.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		logging.FromContext(ctx).Error("render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
