// Package otlpreceiver accepts OTLP trace exports over gRPC so services that
// ship spans straight to the dashboard show up next to the platform's traces.
package otlpreceiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SpanReceiver stores received spans. Implementations must be safe for
// concurrent use as Export may be called concurrently.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for ephemeral port assignment

	// OnReceive, if set, is called with the number of spans in every
	// accepted export.
	OnReceive func(spans int)
	// Verbose logs every export.
	Verbose bool
}

// Server is the OTLP gRPC server that receives trace data.
type Server struct {
	cfg        Config
	listener   net.Listener
	grpcServer *grpc.Server
	stopOnce   sync.Once
}

// NewServer binds the configured address and registers the trace service.
// Nothing is served until Serve is called.
func NewServer(cfg Config, receiver SpanReceiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		cfg:        cfg,
		listener:   listener,
		grpcServer: grpc.NewServer(),
	}
	collectortrace.RegisterTraceServiceServer(s.grpcServer, &traceService{cfg: cfg, receiver: receiver})
	return s, nil
}

// Serve handles OTLP requests until ctx is cancelled or Stop is called.
// A graceful stop is not an error.
func (s *Server) Serve(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()

	err := s.grpcServer.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down and releases the listener, even if
// Serve was never called. Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		_ = s.listener.Close()
	})
}

// Endpoint returns the actual listening address ("host:port"), which is
// useful when the configured port was 0.
func (s *Server) Endpoint() string {
	return s.listener.Addr().String()
}

// traceService implements the OTLP TraceService gRPC interface.
type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	cfg      Config
	receiver SpanReceiver
}

// Export hands the resource spans to the receiver unchanged.
func (t *traceService) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}

	if err := t.receiver.ReceiveSpans(ctx, req.GetResourceSpans()); err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed to receive spans: %v", err)
	}

	n := countSpans(req.GetResourceSpans())
	if t.cfg.OnReceive != nil {
		t.cfg.OnReceive(n)
	}
	if t.cfg.Verbose {
		log.Printf("📥 OTLP export: %d spans\n", n)
	}
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

func countSpans(resourceSpans []*tracepb.ResourceSpans) int {
	n := 0
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			n += len(ss.GetSpans())
		}
	}
	return n
}
