package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/storage"
)

// Services renders a horizontal bar chart of node counts per service.
// Width controls total line width; 0 uses default (80).
func Services(services []dashboard.ServiceSummary, width int) string {
	if len(services) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	totalNodes := 0
	maxCount := 0
	maxNameLen := 0
	for _, s := range services {
		totalNodes += s.Nodes
		maxCount = max(maxCount, s.Nodes)
		maxNameLen = max(maxNameLen, len(s.Name))
	}
	maxNameLen = min(maxNameLen, 24)

	var b strings.Builder
	fmt.Fprintf(&b, "Services (%d registered, %d nodes)\n", len(services), totalNodes)

	barBudget := 20
	for _, s := range services {
		name := s.Name
		if len(name) > maxNameLen {
			name = name[:maxNameLen-1] + "…"
		}

		barLen := 0
		if maxCount > 0 {
			barLen = s.Nodes * barBudget / maxCount
		}
		if barLen < 1 && s.Nodes > 0 {
			barLen = 1
		}
		bar := strings.Repeat("#", barLen) + strings.Repeat(" ", barBudget-barLen)

		line := fmt.Sprintf("  %-*s  %s  %d nodes", maxNameLen, name, bar, s.Nodes)
		if len(s.Versions) > 0 {
			line += "  " + strings.Join(s.Versions, ", ")
		}
		if len(line) > width {
			line = line[:width-1] + "…"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return b.String()
}

// SpanStore renders the local span store's fill level.
func SpanStore(stats storage.Stats) string {
	var b strings.Builder
	b.WriteString("Local Spans\n")
	writeBar(&b, "Stored", stats.Spans, stats.Capacity)
	fmt.Fprintf(&b, "  Received: %s\n", formatCount(int(stats.Received)))
	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	filled = min(filled, barWidth)

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(b, "  %-8s [%s]  %s / %s\n", label, bar, formatCount(count), formatCount(capacity))
}

func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}
