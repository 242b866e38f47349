// Package series turns a flat list of debug snapshots into per-node time
// series ready for plotting. It is a pure transformation package.
package series

import (
	"time"

	"github.com/tobert/microdash/internal/backend"
)

// DefaultWindow is how far back snapshots are kept for plotting.
const DefaultWindow = 8 * time.Minute

// bytesToMB scales memory gauges for display.
const bytesToMB = 1e-6

// Point is one plotted sample.
type Point struct {
	Time  time.Time `json:"x"`
	Value float64   `json:"y"`
}

// Series is the sequence of points for a single node.
type Series struct {
	Node   string  `json:"label"`
	Points []Point `json:"data"`
}

// Set holds one series per node for every plotted metric. All slices are
// keyed by node in first-appearance order, so Requests[i].Node ==
// Memory[i].Node for every i.
type Set struct {
	Requests    []Series `json:"requests"`
	Errors      []Series `json:"errors"`
	Memory      []Series `json:"memory"`
	Concurrency []Series `json:"concurrency"`
	GC          []Series `json:"gc"`
	Uptime      []Series `json:"uptime"`
}

// Empty reports whether the set has no nodes.
func (s Set) Empty() bool {
	return len(s.Requests) == 0
}

// Get returns the series for one metric.
func (s Set) Get(m Metric) []Series {
	switch m {
	case Requests:
		return s.Requests
	case Errors:
		return s.Errors
	case Memory:
		return s.Memory
	case Concurrency:
		return s.Concurrency
	case GC:
		return s.GC
	case Uptime:
		return s.Uptime
	default:
		return nil
	}
}

// FilterRecent keeps the snapshots whose timestamp falls within window of
// now. Order is preserved.
func FilterRecent(snaps []backend.Snapshot, now time.Time, window time.Duration) []backend.Snapshot {
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := now.Add(-window).Unix()

	out := make([]backend.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Timestamp >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

// Nodes returns the distinct node ids in order of first appearance.
func Nodes(snaps []backend.Snapshot) []string {
	seen := make(map[string]struct{})
	var nodes []string
	for _, s := range snaps {
		id := s.NodeID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		nodes = append(nodes, id)
	}
	return nodes
}

// Build computes every series for the given snapshots. Snapshots are split
// per node; within a node they keep their input order.
func Build(snaps []backend.Snapshot) Set {
	nodes := Nodes(snaps)

	byNode := make(map[string][]backend.Snapshot, len(nodes))
	for _, s := range snaps {
		byNode[s.NodeID()] = append(byNode[s.NodeID()], s)
	}

	var set Set
	for _, node := range nodes {
		ns := byNode[node]
		times := make([]time.Time, len(ns))
		for i, s := range ns {
			times[i] = time.Unix(s.Timestamp, 0)
		}

		set.Requests = append(set.Requests, newSeries(node, times, Deltas(counter(ns, func(s backend.Snapshot) backend.Number { return s.Requests }))))
		set.Errors = append(set.Errors, newSeries(node, times, Deltas(counter(ns, func(s backend.Snapshot) backend.Number { return s.Errors }))))
		set.GC = append(set.GC, newSeries(node, times, Deltas(counter(ns, func(s backend.Snapshot) backend.Number { return s.GC }))))

		memory := counter(ns, func(s backend.Snapshot) backend.Number { return s.Memory })
		for i := range memory {
			memory[i] *= bytesToMB
		}
		set.Memory = append(set.Memory, newSeries(node, times, memory))
		set.Concurrency = append(set.Concurrency, newSeries(node, times, counter(ns, func(s backend.Snapshot) backend.Number { return s.Threads })))
		set.Uptime = append(set.Uptime, newSeries(node, times, counter(ns, func(s backend.Snapshot) backend.Number { return s.Uptime })))
	}
	return set
}

// Deltas converts cumulative counter samples into per-interval increments.
// value[i] = c[i] - c[i-1] for i > 0. The first point has no predecessor
// and reuses the first increment, c[1] - c[0]; a lone sample yields 0.
func Deltas(counters []float64) []float64 {
	out := make([]float64, len(counters))
	for i := range counters {
		switch {
		case i > 0:
			out[i] = counters[i] - counters[i-1]
		case len(counters) > 1:
			out[i] = counters[1] - counters[0]
		}
	}
	return out
}

func counter(snaps []backend.Snapshot, field func(backend.Snapshot) backend.Number) []float64 {
	out := make([]float64, len(snaps))
	for i, s := range snaps {
		out[i] = float64(field(s))
	}
	return out
}

func newSeries(node string, times []time.Time, values []float64) Series {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Time: times[i], Value: v}
	}
	return Series{Node: node, Points: points}
}

// Builder keeps the last built Set so an empty poll leaves the previous
// series on screen. Not safe for concurrent use.
type Builder struct {
	window time.Duration
	now    func() time.Time
	set    Set
}

// NewBuilder creates a Builder that filters to window (DefaultWindow if
// zero) relative to now (time.Now if nil).
func NewBuilder(window time.Duration, now func() time.Time) *Builder {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{window: window, now: now}
}

// Update rebuilds the series from the snaps inside the window. If none are
// recent the previous series stay and Update reports false.
func (b *Builder) Update(snaps []backend.Snapshot) bool {
	recent := FilterRecent(snaps, b.now(), b.window)
	if len(recent) == 0 {
		return false
	}
	b.set = Build(recent)
	return true
}

// Set returns the most recently built series.
func (b *Builder) Set() Set {
	return b.set
}
