package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/microdash/internal/series"
)

// LatestMetrics renders the most recent value of every metric for every
// node. An empty set renders as "".
func LatestMetrics(set series.Set) string {
	if set.Empty() {
		return ""
	}

	nodeCols := 0
	for _, s := range set.Requests {
		nodeCols = max(nodeCols, len(s.Node))
	}

	var b strings.Builder
	for i, m := range series.Metrics() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s)\n", m.Title(), m.Unit())
		for _, s := range set.Get(m) {
			if len(s.Points) == 0 {
				fmt.Fprintf(&b, "  %-*s  -\n", nodeCols, s.Node)
				continue
			}
			last := s.Points[len(s.Points)-1]
			fmt.Fprintf(&b, "  %-*s  %10.2f  @ %s\n", nodeCols, s.Node, last.Value, last.Time.Format("15:04:05"))
		}
	}
	return b.String()
}
