// Package mcpserver exposes the dashboard's service views to agents as MCP
// tools and resources.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/storage"
)

// Version is reported in the MCP implementation metadata.
const Version = "0.1.0"

// Server wraps the MCP server with the platform client the tools query.
type Server struct {
	mcpServer *mcp.Server
	client    backend.Client
	opts      Options
}

// Options configures the MCP server.
type Options struct {
	Window   time.Duration // stats window, 0 for the default
	PageSize int           // traces per page, 0 for the default
	Width    int           // ASCII rendering width, 0 for the default

	// Spans, if set, is reported by the local-spans resource.
	Spans *storage.SpanStore
}

// NewServer creates an MCP server whose tools read from client.
func NewServer(client backend.Client, opts Options) (*Server, error) {
	if client == nil {
		return nil, fmt.Errorf("backend client cannot be nil")
	}

	s := &Server{client: client, opts: opts}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "microdash",
		Title:   "Microservice Platform Dashboard",
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: `Dashboard for a microservice platform. Lists registered services and shows their logs, stats and traces.

Workflow: list_services -> get_service_stats / get_service_logs / get_service_traces -> call_endpoint to exercise a handler.

Resources: microdash://services, microdash://services/{service}, microdash://local-spans.`,
	})

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for use with other transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// view builds a fresh service view for one tool call. Tools are stateless;
// nothing is shared between calls.
func (s *Server) view(service string) *dashboard.ServiceView {
	return dashboard.NewServiceView(s.client, service, dashboard.Options{
		Window:   s.opts.Window,
		PageSize: s.opts.PageSize,
	})
}
