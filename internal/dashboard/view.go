// Package dashboard holds the per-service view state: what the service page
// shows, which tab is active, and whether stats are being polled.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/chart"
	"github.com/tobert/microdash/internal/series"
	"github.com/tobert/microdash/internal/timeline"
)

// Tab is a panel of the service page.
type Tab string

const (
	TabNodes     Tab = "nodes"
	TabEndpoints Tab = "endpoints"
	TabLogs      Tab = "logs"
	TabStats     Tab = "stats"
	TabTraces    Tab = "traces"
)

// Tabs returns every tab in display order.
func Tabs() []Tab {
	return []Tab{TabNodes, TabEndpoints, TabLogs, TabStats, TabTraces}
}

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool {
	switch t {
	case TabNodes, TabEndpoints, TabLogs, TabStats, TabTraces:
		return true
	}
	return false
}

// Options tunes a ServiceView. Zero values pick the defaults.
type Options struct {
	Window       time.Duration
	PageSize     int
	Distribution chart.Distribution
	Now          func() time.Time
}

// ServiceView is the state behind one service page. It is safe for
// concurrent use: the poll goroutine refreshes it while handlers read it.
type ServiceView struct {
	name   string
	client backend.Client
	opts   Options

	mu       sync.RWMutex
	services []backend.Service
	logs     []backend.LogRecord
	series   *series.Builder
	traces   timeline.Reconstructor
	tab      Tab
	refresh  bool
	page     int
	pageSize int
	updated  time.Time
}

// NewServiceView creates the view for the service called name.
// The view starts on the nodes tab with refresh enabled.
func NewServiceView(client backend.Client, name string, opts Options) *ServiceView {
	if opts.PageSize <= 0 {
		opts.PageSize = timeline.DefaultPageSize
	}
	if opts.Distribution == "" {
		opts.Distribution = chart.DistributionSeries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ServiceView{
		name:     name,
		client:   client,
		opts:     opts,
		series:   series.NewBuilder(opts.Window, opts.Now),
		tab:      TabNodes,
		refresh:  true,
		pageSize: opts.PageSize,
	}
}

// Name returns the service name the view is bound to.
func (v *ServiceView) Name() string {
	return v.name
}

// Load fetches everything the page shows. The four requests run
// concurrently and each one that succeeds is applied on its own; failures
// are logged, joined and returned while the previous state stays in place.
func (v *ServiceView) Load(ctx context.Context) error {
	var g errgroup.Group
	errs := make([]error, 4)

	g.Go(func() error { errs[0] = v.RefreshServices(ctx); return nil })
	g.Go(func() error { errs[1] = v.RefreshLogs(ctx); return nil })
	g.Go(func() error { errs[2] = v.RefreshStats(ctx); return nil })
	g.Go(func() error { errs[3] = v.RefreshTraces(ctx); return nil })
	_ = g.Wait()

	return errors.Join(errs...)
}

// RefreshServices re-lists the platform and keeps the versions of this service.
func (v *ServiceView) RefreshServices(ctx context.Context) error {
	all, err := v.client.List(ctx)
	if err != nil {
		return v.fail("list", err)
	}

	var matched []backend.Service
	for _, svc := range all {
		if svc.Name == v.name {
			matched = append(matched, svc)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.services = matched
	v.touch()
	return nil
}

// RefreshLogs replaces the log lines with the latest ones.
func (v *ServiceView) RefreshLogs(ctx context.Context) error {
	logs, err := v.client.Logs(ctx, v.name)
	if err != nil {
		return v.fail("logs", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(logs) > 0 {
		v.logs = logs
		v.touch()
	}
	return nil
}

// RefreshStats runs one stats poll and rebuilds the metric series.
// An empty response leaves the previous series in place.
func (v *ServiceView) RefreshStats(ctx context.Context) error {
	snaps, err := v.client.Stats(ctx, v.name)
	if err != nil {
		return v.fail("stats", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.series.Update(snaps) {
		v.touch()
	}
	return nil
}

// RefreshTraces fetches spans and rebuilds the trace timelines.
// An empty response leaves the previous timelines in place.
func (v *ServiceView) RefreshTraces(ctx context.Context) error {
	spans, err := v.client.Trace(ctx, v.name)
	if err != nil {
		return v.fail("trace", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.traces.Update(spans) {
		v.page = clampPage(v.page, len(v.traces.Timelines()), v.pageSize)
		v.touch()
	}
	return nil
}

func (v *ServiceView) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("⚠️  %s %s: %v\n", op, v.name, err)
	return fmt.Errorf("%s %s: %w", op, v.name, err)
}

// touch must be called with mu held.
func (v *ServiceView) touch() {
	v.updated = v.opts.Now()
}

// SetTab selects the active tab.
func (v *ServiceView) SetTab(tab Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("unknown tab %q", tab)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tab = tab
	return nil
}

// SetRefresh turns stats auto-refresh on or off.
func (v *ServiceView) SetRefresh(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh = on
}

// ShouldPoll reports whether stats should be polled: only while the stats
// tab is showing and auto-refresh is on.
func (v *ServiceView) ShouldPoll() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tab == TabStats && v.refresh
}

// SetPage selects the trace page (0-based), clamped to the pages available.
func (v *ServiceView) SetPage(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page = clampPage(index, len(v.traces.Timelines()), v.pageSize)
}

// SetPageSize changes how many timelines a page holds and returns to the
// first page. Non-positive sizes select timeline.DefaultPageSize.
func (v *ServiceView) SetPageSize(size int) {
	if size <= 0 {
		size = timeline.DefaultPageSize
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pageSize = size
	v.page = 0
}

func clampPage(index, n, size int) int {
	last := timeline.PageCount(n, size) - 1
	if index > last {
		index = last
	}
	return max(index, 0)
}

// Nodes returns the nodes of every version of the service, flattened in
// listing order.
func (v *ServiceView) Nodes() []backend.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return flattenNodes(v.services)
}

func flattenNodes(services []backend.Service) []backend.Node {
	var nodes []backend.Node
	for _, svc := range services {
		nodes = append(nodes, svc.Nodes...)
	}
	return nodes
}
