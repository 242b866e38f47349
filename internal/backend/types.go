// Package backend is the access client for the platform API that the
// dashboard renders. Everything it returns is plain data; the dashboard never
// mutates what it receives and rebuilds its views wholesale on every poll.
package backend

import (
	"context"
	"encoding/json"
	"strconv"
)

// Client is the contract the dashboard consumes. Implementations must be safe
// for concurrent use.
type Client interface {
	List(ctx context.Context) ([]Service, error)
	Logs(ctx context.Context, service string) ([]LogRecord, error)
	Stats(ctx context.Context, service string) ([]Snapshot, error)
	Trace(ctx context.Context, service string) ([]Span, error)
	Call(ctx context.Context, req CallRequest) (json.RawMessage, error)
}

// Service is one version of a registered service.
type Service struct {
	Name      string     `json:"name"`
	Version   string     `json:"version,omitempty"`
	Metadata  Metadata   `json:"metadata,omitzero"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
	Nodes     []Node     `json:"nodes,omitempty"`
}

// Node is a running instance of a service.
type Node struct {
	ID       string   `json:"id"`
	Address  string   `json:"address,omitempty"`
	Metadata Metadata `json:"metadata,omitzero"`
}

// Endpoint describes a callable handler method and its message shapes.
type Endpoint struct {
	Name     string   `json:"name"`
	Request  *Value   `json:"request,omitempty"`
	Response *Value   `json:"response,omitempty"`
	Metadata Metadata `json:"metadata,omitzero"`
}

// Value is a (possibly nested) message field description.
type Value struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []*Value `json:"values,omitempty"`
}

// LogRecord is one log line emitted by a service.
type LogRecord struct {
	Timestamp int64           `json:"timestamp"`
	Metadata  Metadata        `json:"metadata,omitzero"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// Text returns the message as display text. String messages are unquoted,
// anything else is returned as raw JSON.
func (r LogRecord) Text() string {
	if len(r.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	return string(r.Message)
}

// SnapshotNode identifies the node a snapshot was collected from.
type SnapshotNode struct {
	ID      string `json:"id"`
	Address string `json:"address,omitempty"`
}

// SnapshotService identifies the service instance a snapshot belongs to.
type SnapshotService struct {
	Name    string       `json:"name"`
	Version string       `json:"version,omitempty"`
	Node    SnapshotNode `json:"node"`
}

// Snapshot is one periodic debug stats sample for a single node.
// Counters (Requests, Errors, GC) are cumulative since process start;
// Memory is in bytes, Threads and Uptime are gauges. Values that are missing
// or not numeric count as 0.
type Snapshot struct {
	Service   SnapshotService `json:"service"`
	Started   int64           `json:"started,omitempty"`
	Uptime    Number          `json:"uptime,omitempty"`
	Memory    Number          `json:"memory,omitempty"`
	Threads   Number          `json:"threads,omitempty"`
	GC        Number          `json:"gc,omitempty"`
	Requests  Number          `json:"requests,omitempty"`
	Errors    Number          `json:"errors,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NodeID is the identity used to split snapshots into per-node series.
func (s Snapshot) NodeID() string {
	return s.Service.Node.ID
}

// SpanType tells whether a span was an inbound handler or an outbound call.
type SpanType int

const (
	SpanHandle SpanType = 0
	SpanCall   SpanType = 1
)

func (t SpanType) String() string {
	switch t {
	case SpanHandle:
		return "Handle"
	case SpanCall:
		return "Call"
	default:
		return "SpanType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Span is one timed operation within a distributed trace.
// Started and Duration are nanoseconds.
type Span struct {
	Trace    string   `json:"trace"`
	ID       string   `json:"id"`
	Parent   string   `json:"parent,omitempty"`
	Name     string   `json:"name"`
	Started  uint64   `json:"started"`
	Duration uint64   `json:"duration"`
	Metadata Metadata `json:"metadata,omitzero"`
	Type     SpanType `json:"type"`
}

// CallRequest asks the platform to invoke Endpoint on Service.
// Request carries the user-edited JSON payload verbatim.
type CallRequest struct {
	Endpoint string          `json:"endpoint"`
	Service  string          `json:"service"`
	Address  string          `json:"address,omitempty"`
	Method   string          `json:"method,omitempty"`
	Request  json.RawMessage `json:"request"`
}
