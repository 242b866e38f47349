// Package timeline rebuilds per-trace timeline rows from a flat span list.
package timeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/tobert/microdash/internal/backend"
)

const (
	// DefaultPageSize is the number of timelines shown per page.
	DefaultPageSize = 10

	// minWindowMs is the narrowest time window a timeline is drawn with.
	minWindowMs = 1000.0
	// edgePadMs pads wider traces so the first and last bars don't touch the frame.
	edgePadMs = 1.0

	rowHeight = 40
	// ContainerMargin is added around the chart for the surrounding panel.
	ContainerMargin = 50
)

// Row is one span drawn as a bar. It encodes as the
// [label, name, start, end] tuple timeline charts consume.
type Row struct {
	Label string  // sequential row index
	Name  string  // direction, span name and duration
	Start float64 // ms since epoch
	End   float64 // ms since epoch
}

// MarshalJSON encodes the row as a positional tuple.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Label, r.Name, r.Start, r.End})
}

// UnmarshalJSON decodes the positional tuple written by MarshalJSON.
func (r *Row) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 4 {
		return fmt.Errorf("timeline row: expected 4 elements, got %d", len(tuple))
	}
	for i, dst := range []any{&r.Label, &r.Name, &r.Start, &r.End} {
		if err := json.Unmarshal(tuple[i], dst); err != nil {
			return fmt.Errorf("timeline row element %d: %w", i, err)
		}
	}
	return nil
}

// Timeline is the drawable form of one trace.
type Timeline struct {
	TraceID         string  `json:"trace"`
	Rows            []Row   `json:"rows"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Height          int     `json:"height"`
	ContainerHeight int     `json:"container_height"`
}

// Dedup drops spans whose id was already seen. The first occurrence wins
// and input order is kept.
func Dedup(spans []backend.Span) []backend.Span {
	seen := make(map[string]struct{}, len(spans))
	out := make([]backend.Span, 0, len(spans))
	for _, s := range spans {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Reconstruct groups spans into timelines, one per trace id, largest trace
// first. Traces with equal span counts keep first-appearance order.
func Reconstruct(spans []backend.Span) []Timeline {
	if len(spans) == 0 {
		return nil
	}

	spans = Dedup(spans)

	var order []string
	byTrace := make(map[string][]backend.Span)
	for _, s := range spans {
		if _, ok := byTrace[s.Trace]; !ok {
			order = append(order, s.Trace)
		}
		byTrace[s.Trace] = append(byTrace[s.Trace], s)
	}

	timelines := make([]Timeline, 0, len(order))
	for _, id := range order {
		timelines = append(timelines, build(id, byTrace[id]))
	}

	sort.SliceStable(timelines, func(i, j int) bool {
		return len(timelines[i].Rows) > len(timelines[j].Rows)
	})
	return timelines
}

func build(traceID string, spans []backend.Span) Timeline {
	rows := make([]Row, 0, len(spans))
	for _, s := range spans {
		rows = append(rows, Row{
			Name:  fmt.Sprintf("%s: %s %s", s.Type, s.Name, FormatDuration(float64(s.Duration)/1e6)),
			Start: float64(s.Started) / 1e6,
			End:   float64(s.Started+s.Duration) / 1e6,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Start < rows[j].Start
	})
	for i := range rows {
		rows[i].Label = strconv.Itoa(i)
	}

	lo, hi := Bounds(rows)
	height := (len(rows)+1)*rowHeight + rowHeight
	return Timeline{
		TraceID:         traceID,
		Rows:            rows,
		Min:             lo,
		Max:             hi,
		Height:          height,
		ContainerHeight: height + ContainerMargin,
	}
}

// Bounds returns the padded axis range for rows sorted by start time.
// The range starts at the first row's start and ends at the last row's end.
// Windows narrower than one second are widened symmetrically to exactly one
// second; wider ones get a millisecond of padding on each side.
func Bounds(rows []Row) (lo, hi float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	lo = rows[0].Start
	hi = rows[len(rows)-1].End

	if width := hi - lo; width < minWindowMs {
		pad := (minWindowMs - width) / 2
		return lo - pad, hi + pad
	}
	return lo - edgePadMs, hi + edgePadMs
}

// FormatDuration renders a millisecond duration: whole milliseconds below
// one second ("250ms"), seconds with three decimals otherwise ("1.500s").
func FormatDuration(ms float64) string {
	if ms < 1000 {
		return strconv.FormatInt(int64(ms), 10) + "ms"
	}
	return strconv.FormatFloat(ms/1000, 'f', 3, 64) + "s"
}

// Page returns page index (0-based) of size timelines. A non-positive size
// uses DefaultPageSize; out-of-range pages are empty.
func Page(timelines []Timeline, index, size int) []Timeline {
	if size <= 0 {
		size = DefaultPageSize
	}
	if index < 0 {
		index = 0
	}
	if index >= PageCount(len(timelines), size) {
		return nil
	}
	start := index * size
	return timelines[start : start+min(size, len(timelines)-start)]
}

// PageCount returns how many pages n timelines span.
func PageCount(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := n / size
	if n%size != 0 {
		pages++
	}
	return pages
}

// Reconstructor keeps the last reconstruction so an empty poll leaves the
// previous timelines in place. Not safe for concurrent use.
type Reconstructor struct {
	timelines []Timeline
	spans     int
}

// Update rebuilds the timelines. Empty input is a no-op and reports false.
func (r *Reconstructor) Update(spans []backend.Span) bool {
	if len(spans) == 0 {
		return false
	}
	r.timelines = Reconstruct(spans)
	r.spans = 0
	for _, t := range r.timelines {
		r.spans += len(t.Rows)
	}
	return true
}

// Timelines returns the most recent reconstruction.
func (r *Reconstructor) Timelines() []Timeline {
	return r.timelines
}

// SpanCount returns the number of unique spans in the current timelines.
func (r *Reconstructor) SpanCount() int {
	return r.spans
}
