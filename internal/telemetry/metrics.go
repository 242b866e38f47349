// Package telemetry exposes Prometheus metrics about the dashboard itself:
// platform API calls, live poll tasks and browser sessions.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tobert/microdash/internal/backend"
)

// Metrics collects Prometheus metrics for the dashboard.
type Metrics struct {
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	activePolls     prometheus.Gauge
	sessions        prometheus.Gauge
	localSpans      prometheus.Counter
}

// NewMetrics registers the dashboard metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		backendRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microdash_backend_requests_total",
				Help: "Platform API requests by operation and outcome",
			},
			[]string{"op", "status"},
		),
		backendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "microdash_backend_request_duration_seconds",
				Help:    "Platform API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		activePolls: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "microdash_active_polls",
				Help: "Number of polling tasks currently running",
			},
		),
		sessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "microdash_ws_sessions",
				Help: "Number of open live-view WebSocket sessions",
			},
		),
		localSpans: f.NewCounter(
			prometheus.CounterOpts{
				Name: "microdash_local_spans_received_total",
				Help: "Spans received over OTLP or read from trace files",
			},
		),
	}
}

// ObserveBackend records one platform API call.
func (m *Metrics) ObserveBackend(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(op, statusLabel(err)).Inc()
	m.backendDuration.WithLabelValues(op).Observe(d.Seconds())
}

// PollStarted and PollStopped track live poll tasks; they match the
// poll.Poller hook signature.
func (m *Metrics) PollStarted(string) {
	if m != nil {
		m.activePolls.Inc()
	}
}

func (m *Metrics) PollStopped(string) {
	if m != nil {
		m.activePolls.Dec()
	}
}

// SessionOpened and SessionClosed track live-view sessions.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// SpansReceived counts locally received spans.
func (m *Metrics) SpansReceived(n int) {
	if m != nil {
		m.localSpans.Add(float64(n))
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// instrumented wraps a backend.Client and records every call.
type instrumented struct {
	next backend.Client
	m    *Metrics
}

// Instrument returns c wrapped so that every call is counted and timed.
// A nil m returns c unchanged.
func Instrument(c backend.Client, m *Metrics) backend.Client {
	if m == nil {
		return c
	}
	return &instrumented{next: c, m: m}
}

func (i *instrumented) List(ctx context.Context) ([]backend.Service, error) {
	start := time.Now()
	out, err := i.next.List(ctx)
	i.m.ObserveBackend("list", time.Since(start), err)
	return out, err
}

func (i *instrumented) Logs(ctx context.Context, service string) ([]backend.LogRecord, error) {
	start := time.Now()
	out, err := i.next.Logs(ctx, service)
	i.m.ObserveBackend("logs", time.Since(start), err)
	return out, err
}

func (i *instrumented) Stats(ctx context.Context, service string) ([]backend.Snapshot, error) {
	start := time.Now()
	out, err := i.next.Stats(ctx, service)
	i.m.ObserveBackend("stats", time.Since(start), err)
	return out, err
}

func (i *instrumented) Trace(ctx context.Context, service string) ([]backend.Span, error) {
	start := time.Now()
	out, err := i.next.Trace(ctx, service)
	i.m.ObserveBackend("trace", time.Since(start), err)
	return out, err
}

func (i *instrumented) Call(ctx context.Context, req backend.CallRequest) (json.RawMessage, error) {
	start := time.Now()
	out, err := i.next.Call(ctx, req)
	i.m.ObserveBackend("call", time.Since(start), err)
	return out, err
}
