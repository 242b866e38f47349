package series

// Metric names one plotted panel.
type Metric int

const (
	Requests Metric = iota
	Errors
	Memory
	Concurrency
	GC
	Uptime
)

// Metrics lists every panel in display order.
func Metrics() []Metric {
	return []Metric{Requests, Errors, Memory, Concurrency, GC, Uptime}
}

func (m Metric) String() string {
	switch m {
	case Requests:
		return "requests"
	case Errors:
		return "errors"
	case Memory:
		return "memory"
	case Concurrency:
		return "concurrency"
	case GC:
		return "gc"
	case Uptime:
		return "uptime"
	default:
		return "unknown"
	}
}

// Title is the human readable panel name.
func (m Metric) Title() string {
	switch m {
	case Requests:
		return "Request Rate"
	case Errors:
		return "Error Rate"
	case Memory:
		return "Memory Usage"
	case Concurrency:
		return "Concurrency"
	case GC:
		return "GC Time"
	case Uptime:
		return "Uptime"
	default:
		return "Unknown"
	}
}

// Unit is the y axis label for the panel.
func (m Metric) Unit() string {
	switch m {
	case Requests:
		return "req/s"
	case Errors:
		return "errors/s"
	case Memory:
		return "MB"
	case Concurrency:
		return "goroutines"
	case GC:
		return "gc time"
	case Uptime:
		return "seconds"
	default:
		return ""
	}
}

// Counter reports whether the panel plots deltas of a cumulative counter.
func (m Metric) Counter() bool {
	return m == Requests || m == Errors || m == GC
}
