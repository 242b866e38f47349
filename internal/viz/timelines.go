// Package viz renders dashboard views as plain text for terminals and MCP
// tool results.
package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/microdash/internal/timeline"
)

const (
	maxRowsPerTrace = 50
	defaultBarWidth = 20
	defaultWidth    = 80
)

// Timelines renders each reconstructed trace as rows of ASCII bars spanning
// the timeline's padded window. Width controls the total line width; 0 uses
// a sensible default (80).
func Timelines(timelines []timeline.Timeline, width int) string {
	if len(timelines) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	for i, t := range timelines {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderTimeline(&b, t, width)
	}
	return b.String()
}

func renderTimeline(b *strings.Builder, t timeline.Timeline, width int) {
	shortID := t.TraceID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	var dur float64
	if len(t.Rows) > 0 {
		lo, hi := t.Rows[0].Start, t.Rows[0].End
		for _, r := range t.Rows[1:] {
			lo = min(lo, r.Start)
			hi = max(hi, r.End)
		}
		dur = hi - lo
	}
	fmt.Fprintf(b, "Trace %s (%d spans, %s)\n", shortID, len(t.Rows), timeline.FormatDuration(dur))

	rows := t.Rows
	overflow := 0
	if len(rows) > maxRowsPerTrace {
		overflow = len(rows) - maxRowsPerTrace
		rows = rows[:maxRowsPerTrace]
	}

	labelCols := 0
	for _, r := range rows {
		labelCols = max(labelCols, len(r.Label))
	}

	// Layout: " " + label + " " + name + " [" + bar + "]"
	nameBudget := max(width-1-labelCols-1-2-defaultBarWidth-1, 8)
	for _, r := range rows {
		name := r.Name
		if len(name) > nameBudget {
			name = name[:nameBudget-1] + "…"
		}
		bar := buildBar(r.Start, r.End, t.Min, t.Max, defaultBarWidth)
		fmt.Fprintf(b, " %*s %-*s [%s]\n", labelCols, r.Label, nameBudget, name, bar)
	}

	if overflow > 0 {
		fmt.Fprintf(b, "  ... +%d more spans\n", overflow)
	}
}

// buildBar marks the cells of a barWidth-wide window [lo, hi] covered by
// [start, end]. At least one cell is always marked.
func buildBar(start, end, lo, hi float64, barWidth int) string {
	total := hi - lo
	if total <= 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int((start - lo) * float64(barWidth) / total)
	endPos := int((end - lo) * float64(barWidth) / total)

	startPos = min(max(startPos, 0), barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}
