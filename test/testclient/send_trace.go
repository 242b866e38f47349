package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Sends a handler span with one outbound call to 'microdash serve --otlp'.
// Usage: go run send_trace.go <endpoint> [service]
// Example: go run send_trace.go 127.0.0.1:4317 greeter
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <endpoint> [service]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 127.0.0.1:4317 greeter\n", os.Args[0])
		os.Exit(1)
	}

	endpoint := os.Args[1]
	service := "greeter"
	if len(os.Args) > 2 {
		service = os.Args[2]
	}
	fmt.Printf("📡 Connecting to OTLP endpoint: %s\n", endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create grpc client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)

	now := time.Now()
	traceID := randomID(16)
	rootID := randomID(8)

	spans := []*tracepb.Span{
		{
			TraceId:           traceID,
			SpanId:            rootID,
			Name:              "Greeter.Hello",
			Kind:              tracepb.Span_SPAN_KIND_SERVER,
			StartTimeUnixNano: uint64(now.UnixNano()),
			EndTimeUnixNano:   uint64(now.Add(150 * time.Millisecond).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				stringAttr("rpc.method", "Hello"),
				stringAttr("peer.address", "10.0.0.7:51234"),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		},
		{
			TraceId:           traceID,
			SpanId:            randomID(8),
			ParentSpanId:      rootID,
			Name:              "Store.Read",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: uint64(now.Add(10 * time.Millisecond).UnixNano()),
			EndTimeUnixNano:   uint64(now.Add(100 * time.Millisecond).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				stringAttr("rpc.service", "store"),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		},
	}

	fmt.Printf("🚀 Sending trace with %d spans for %s...\n", len(spans), service)
	_, err = client.Export(context.Background(), &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringAttr("service.name", service),
						stringAttr("service.version", "1.0.0"),
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export spans: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Trace exported successfully!")
	fmt.Printf("📊 Trace ID: %x\n", traceID)
	fmt.Printf("   - Handle: Greeter.Hello (150ms)\n")
	fmt.Printf("   - Call: Store.Read (90ms)\n")
	fmt.Printf("💡 View it at http://127.0.0.1:8082/service/%s\n", service)
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func randomID(n int) []byte {
	id := make([]byte, n)
	rand.Read(id)
	return id
}
