package otlpreceiver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/storage"
)

// failingReceiver rejects every export.
type failingReceiver struct{}

func (failingReceiver) ReceiveSpans(context.Context, []*tracepb.ResourceSpans) error {
	return errors.New("store closed")
}

func startServer(t *testing.T, cfg Config, receiver SpanReceiver) (*Server, collectortrace.TraceServiceClient) {
	t.Helper()

	server, err := NewServer(cfg, receiver)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not stop in time")
		}
	})

	conn, err := grpc.NewClient(server.Endpoint(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create grpc client: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return server, collectortrace.NewTraceServiceClient(conn)
}

func exportRequest(service string, spans ...*tracepb.Span) *collectortrace.ExportTraceServiceRequest {
	return &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{
					Key:   "service.name",
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: service}},
				}},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
		}},
	}
}

// TestNewServerNilReceiver verifies that NewServer rejects nil receivers.
func TestNewServerNilReceiver(t *testing.T) {
	_, err := NewServer(Config{Host: "127.0.0.1", Port: 0}, nil)
	if err == nil {
		t.Fatal("expected error for nil receiver, got nil")
	}
}

// TestServeStopsOnCancel verifies Serve returns nil once its context ends.
func TestServeStopsOnCancel(t *testing.T) {
	server, err := NewServer(Config{Host: "127.0.0.1", Port: 0}, storage.NewSpanStore(10))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if server.Endpoint() == "" {
		t.Fatal("endpoint is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop in time")
	}
	server.Stop()
}

// TestStopWithoutServeReleasesListener covers a server created but never
// served, as when a later startup step fails.
func TestStopWithoutServeReleasesListener(t *testing.T) {
	server, err := NewServer(Config{Host: "127.0.0.1"}, storage.NewSpanStore(10))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	endpoint := server.Endpoint()
	server.Stop()
	server.Stop()

	l, err := net.Listen("tcp", endpoint)
	if err != nil {
		t.Fatalf("listener still held on %s: %v", endpoint, err)
	}
	l.Close()
}

// TestExportFeedsSpanStore sends spans over gRPC and reads them back as
// dashboard spans.
func TestExportFeedsSpanStore(t *testing.T) {
	store := storage.NewSpanStore(100)
	var received atomic.Int64
	_, client := startServer(t, Config{
		Host:      "127.0.0.1",
		OnReceive: func(n int) { received.Add(int64(n)) },
	}, store)

	traceID := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	req := exportRequest("greeter",
		&tracepb.Span{
			TraceId:           traceID,
			SpanId:            []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18},
			Name:              "Greeter.Hello",
			Kind:              tracepb.Span_SPAN_KIND_SERVER,
			StartTimeUnixNano: 1_000_000_000,
			EndTimeUnixNano:   1_500_000_000,
		},
		&tracepb.Span{
			TraceId:           traceID,
			SpanId:            []byte{0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28},
			ParentSpanId:      []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18},
			Name:              "Store.Read",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: 1_100_000_000,
			EndTimeUnixNano:   1_300_000_000,
		},
	)

	if _, err := client.Export(context.Background(), req); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	spans := store.SpansForService("greeter")
	if len(spans) != 2 {
		t.Fatalf("expected 2 stored spans, got %d", len(spans))
	}
	if spans[0].Trace != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("unexpected trace id %q", spans[0].Trace)
	}
	if spans[0].Type != backend.SpanHandle || spans[1].Type != backend.SpanCall {
		t.Errorf("unexpected span types %v, %v", spans[0].Type, spans[1].Type)
	}
	if spans[1].Parent != spans[0].ID {
		t.Errorf("expected child to reference parent %q, got %q", spans[0].ID, spans[1].Parent)
	}
	if received.Load() != 2 {
		t.Errorf("expected OnReceive to count 2 spans, got %d", received.Load())
	}
}

func TestExportReceiverError(t *testing.T) {
	_, client := startServer(t, Config{Host: "127.0.0.1"}, failingReceiver{})

	_, err := client.Export(context.Background(), exportRequest("greeter", &tracepb.Span{Name: "x"}))
	if err == nil {
		t.Fatal("expected export to fail")
	}
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", status.Code(err))
	}
}

func TestCountSpans(t *testing.T) {
	req := exportRequest("a", &tracepb.Span{}, &tracepb.Span{})
	req.ResourceSpans = append(req.ResourceSpans, exportRequest("b", &tracepb.Span{}).ResourceSpans...)
	if got := countSpans(req.ResourceSpans); got != 3 {
		t.Errorf("expected 3 spans, got %d", got)
	}
}
