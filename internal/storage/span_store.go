// Package storage keeps spans received locally (over OTLP gRPC or from
// OTLP JSONL files) so they can be merged into the platform's trace results.
package storage

import (
	"context"
	"encoding/hex"
	"sort"
	"strconv"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/microdash/internal/backend"
)

// DefaultCapacity is the number of spans kept when no size is configured.
const DefaultCapacity = 10_000

// unknownService is used when a resource carries no service.name.
const unknownService = "unknown"

// StoredSpan is a converted span tagged with the service that emitted it.
type StoredSpan struct {
	Service string
	Span    backend.Span
}

// SpanStore is a bounded, thread-safe store of locally received spans.
// It implements backend.SpanSource.
type SpanStore struct {
	spans *RingBuffer[StoredSpan]
}

// NewSpanStore creates a store holding up to capacity spans
// (DefaultCapacity if capacity is not positive).
func NewSpanStore(capacity int) *SpanStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SpanStore{spans: NewRingBuffer[StoredSpan](capacity)}
}

// ReceiveSpans converts and stores OTLP spans. The resource's service.name
// attribute decides which service the spans are listed under.
func (s *SpanStore) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	for _, rs := range resourceSpans {
		service := serviceName(rs.GetResource())
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				if err := ctx.Err(); err != nil {
					return err
				}
				s.spans.Push(StoredSpan{Service: service, Span: ConvertSpan(span)})
			}
		}
	}
	return nil
}

// SpansForService returns stored spans emitted by service, oldest first.
func (s *SpanStore) SpansForService(service string) []backend.Span {
	stored := s.spans.Filter(func(st StoredSpan) bool { return st.Service == service })
	if len(stored) == 0 {
		return nil
	}
	out := make([]backend.Span, len(stored))
	for i, st := range stored {
		out[i] = st.Span
	}
	return out
}

// Services returns the distinct service names currently held, sorted.
func (s *SpanStore) Services() []string {
	seen := make(map[string]struct{})
	for _, st := range s.spans.Items() {
		seen[st.Service] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats describes the store's fill level.
type Stats struct {
	Spans    int    `json:"spans"`
	Capacity int    `json:"capacity"`
	Received uint64 `json:"received"`
}

// Stats returns current fill statistics.
func (s *SpanStore) Stats() Stats {
	return Stats{
		Spans:    s.spans.Len(),
		Capacity: s.spans.Cap(),
		Received: s.spans.Total(),
	}
}

// Clear drops every stored span.
func (s *SpanStore) Clear() {
	s.spans.Reset()
}

// ConvertSpan maps an OTLP span onto the dashboard's span record.
// Server, consumer and internal spans are handles; client and producer
// spans are calls. Attributes become metadata in their original order.
func ConvertSpan(span *tracepb.Span) backend.Span {
	start := span.GetStartTimeUnixNano()
	end := span.GetEndTimeUnixNano()
	var dur uint64
	if end > start {
		dur = end - start
	}

	out := backend.Span{
		Trace:    hex.EncodeToString(span.GetTraceId()),
		ID:       hex.EncodeToString(span.GetSpanId()),
		Parent:   hex.EncodeToString(span.GetParentSpanId()),
		Name:     span.GetName(),
		Started:  start,
		Duration: dur,
		Type:     spanType(span.GetKind()),
	}
	for _, kv := range span.GetAttributes() {
		out.Metadata.Set(kv.GetKey(), attributeString(kv.GetValue()))
	}
	return out
}

func spanType(kind tracepb.Span_SpanKind) backend.SpanType {
	switch kind {
	case tracepb.Span_SPAN_KIND_CLIENT, tracepb.Span_SPAN_KIND_PRODUCER:
		return backend.SpanCall
	default:
		return backend.SpanHandle
	}
}

func serviceName(resource *resourcepb.Resource) string {
	for _, attr := range resource.GetAttributes() {
		if attr.GetKey() == "service.name" {
			if sv := attr.GetValue().GetStringValue(); sv != "" {
				return sv
			}
		}
	}
	return unknownService
}

func attributeString(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	default:
		return ""
	}
}
