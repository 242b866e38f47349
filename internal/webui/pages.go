package webui

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tobert/microdash/internal/dashboard"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

var funcMap = template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Jan 2 15:04:05")
	},
	"join":      strings.Join,
	"add":       func(a, b int) int { return a + b },
	"tabs":      dashboard.Tabs,
	"pageSizes": func() []int { return []int{5, 10, 20, 50} },
}

// pages holds one parsed template set per page so each page can define its
// own "content" block.
type pages struct {
	byName map[string]*template.Template
}

func loadPages() *pages {
	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range []string{"services", "service"} {
		p.byName[name] = template.Must(template.New(name).Funcs(funcMap).
			ParseFS(templateFiles, "templates/base.html", "templates/"+name+".html"))
	}
	return p
}

// render executes a page into a buffer first so template errors produce a
// 500 instead of a half-written page.
func (p *pages) render(w http.ResponseWriter, name string, data any) {
	t, ok := p.byName[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		log.Printf("webui: template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func staticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

type servicesPage struct {
	Title    string
	Services []dashboard.ServiceSummary
	Error    string
}

// handleServicesPage renders the service list.
func (s *Server) handleServicesPage(w http.ResponseWriter, r *http.Request) {
	data := servicesPage{Title: "Services"}
	services, err := s.client.List(r.Context())
	if err != nil {
		log.Printf("⚠️  webui: list services: %v\n", err)
		data.Error = err.Error()
	}
	data.Services = dashboard.Summarize(services)
	s.pages.render(w, "services", data)
}

type servicePage struct {
	Title string
	State dashboard.State
	Error string
}

// handleServicePage renders the service page from a fresh load. The page
// then keeps itself current over the live-view WebSocket.
func (s *Server) handleServicePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	view := s.newView(name)
	if tab := dashboard.Tab(r.URL.Query().Get("tab")); tab.Valid() {
		view.SetTab(tab)
	}

	data := servicePage{Title: name}
	if err := view.Load(r.Context()); err != nil {
		data.Error = err.Error()
	}
	applyPaging(view, r)
	data.State = view.Snapshot()
	s.pages.render(w, "service", data)
}
