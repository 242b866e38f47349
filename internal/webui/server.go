// Package webui serves the dashboard: server-rendered pages, a JSON API over
// the platform client and a WebSocket live view per service page.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/chart"
	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/poll"
	"github.com/tobert/microdash/internal/series"
	"github.com/tobert/microdash/internal/telemetry"
	"github.com/tobert/microdash/internal/timeline"
)

// maxCallBody bounds the size of a POST /api/call body.
const maxCallBody = 1 << 20

// Options configures the web UI. Zero values pick the defaults.
type Options struct {
	// PollInterval is the stats refresh period of a live view.
	PollInterval time.Duration
	// Window is how far back metric series reach.
	Window time.Duration
	// PageSize is the initial number of trace timelines per page.
	PageSize int
	// Distribution selects how chart x axes space samples.
	Distribution chart.Distribution

	// Metrics, if set, records poll tasks and sessions.
	Metrics *telemetry.Metrics
	// Gatherer, if set, is exposed on GET /metrics.
	Gatherer prometheus.Gatherer
}

// Server serves the dashboard pages, JSON API and WebSocket updates.
type Server struct {
	client backend.Client
	opts   Options
	pages  *pages
}

// New creates a new web UI server over client.
func New(client backend.Client, opts Options) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = poll.DefaultInterval
	}
	return &Server{client: client, opts: opts, pages: loadPages()}
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /services", s.handleServicesPage)
	mux.HandleFunc("GET /service/{name}", s.handleServicePage)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))

	mux.HandleFunc("GET /api/services", s.handleServices)
	mux.HandleFunc("GET /api/service/{name}/logs", s.handleLogs)
	mux.HandleFunc("GET /api/service/{name}/stats", s.handleStats)
	mux.HandleFunc("GET /api/service/{name}/traces", s.handleTraces)
	mux.HandleFunc("POST /api/call", s.handleCall)

	mux.HandleFunc("GET /ws/service/{name}", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", telemetry.Handler(s.opts.Gatherer))
	}
}

// Handler returns a ServeMux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ListenAndServe serves the web UI on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) newView(name string) *dashboard.ServiceView {
	return dashboard.NewServiceView(s.client, name, dashboard.Options{
		Window:       s.opts.Window,
		PageSize:     s.opts.PageSize,
		Distribution: s.opts.Distribution,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/services", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

// handleServices returns every listed service version.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.client.List(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if services == nil {
		services = []backend.Service{}
	}
	writeJSON(w, services)
}

// handleLogs returns the service's log lines ready for display.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	view := s.newView(r.PathValue("name"))
	if err := view.RefreshLogs(r.Context()); err != nil {
		writeBackendError(w, err)
		return
	}
	logs := view.Snapshot().Logs
	if logs == nil {
		logs = []dashboard.LogView{}
	}
	writeJSON(w, logs)
}

type statsResponse struct {
	Series series.Set    `json:"series"`
	Charts []chart.Panel `json:"charts"`
}

// handleStats returns the per-node metric series and their chart options.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	view := s.newView(r.PathValue("name"))
	if err := view.RefreshStats(r.Context()); err != nil {
		writeBackendError(w, err)
		return
	}
	st := view.Snapshot()
	writeJSON(w, statsResponse{Series: st.Series, Charts: st.Charts})
}

type tracesResponse struct {
	Traces     []timeline.Timeline `json:"traces"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	PageCount  int                 `json:"page_count"`
	TraceCount int                 `json:"trace_count"`
}

// handleTraces returns one page of reconstructed timelines.
// Query parameters: page (0-based), size.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	view := s.newView(r.PathValue("name"))
	if err := view.RefreshTraces(r.Context()); err != nil {
		writeBackendError(w, err)
		return
	}
	applyPaging(view, r)

	st := view.Snapshot()
	resp := tracesResponse{
		Traces:     st.Traces,
		Page:       st.Page,
		PageSize:   st.PageSize,
		PageCount:  st.PageCount,
		TraceCount: st.TraceCount,
	}
	if st.Traces == nil {
		resp.Traces = []timeline.Timeline{}
	}
	writeJSON(w, resp)
}

// applyPaging reads ?size= and ?page= into view. Size is applied first
// because changing it resets the page.
func applyPaging(view *dashboard.ServiceView, r *http.Request) {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("size")); err == nil && n > 0 {
		view.SetPageSize(n)
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		view.SetPage(n)
	}
}

// handleCall invokes an endpoint and relays the platform's response body.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req backend.CallRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCallBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid call request: "+err.Error())
		return
	}
	// The payload editor sends its text verbatim as a JSON string.
	var text string
	if json.Unmarshal(req.Request, &text) == nil {
		if !json.Valid([]byte(text)) {
			writeError(w, http.StatusBadRequest, "request payload is not valid JSON")
			return
		}
		req.Request = json.RawMessage(text)
	}

	resp, err := s.client.Call(r.Context(), req)
	if errors.Is(err, backend.ErrInvalidCall) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(resp) == 0 {
		resp = json.RawMessage("{}")
	}
	w.Write(resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeBackendError(w http.ResponseWriter, err error) {
	log.Printf("⚠️  webui: %v\n", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "")
	if err := enc.Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
