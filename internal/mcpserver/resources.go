package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/viz"
)

const servicePrefix = "microdash://services/"

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "microdash://services",
		Name:        "services",
		Description: "Registered services with versions and node counts.",
		MIMEType:    "text/plain",
	}, s.handleServicesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "microdash://local-spans",
		Name:        "local-spans",
		Description: "Spans received locally over OTLP or from trace files: buffer usage and services seen.",
		MIMEType:    "text/plain",
	}, s.handleLocalSpansResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: servicePrefix + "{service}",
		Name:        "service-detail",
		Description: "Nodes, metadata and endpoints of one service, with request/response shapes and example payloads.",
		MIMEType:    "text/plain",
	}, s.handleServiceDetailResource)
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleServicesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	list, err := s.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	text := viz.Services(dashboard.Summarize(list), s.opts.Width)
	if text == "" {
		text = "No services registered.\n"
	}
	return textResult(req.Params.URI, text), nil
}

func (s *Server) handleLocalSpansResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.opts.Spans == nil {
		return textResult(req.Params.URI, "Local span source disabled.\n"), nil
	}

	var b strings.Builder
	b.WriteString(viz.SpanStore(s.opts.Spans.Stats()))
	if services := s.opts.Spans.Services(); len(services) > 0 {
		b.WriteString("\nServices:\n")
		for _, name := range services {
			fmt.Fprintf(&b, "  • %s\n", name)
		}
	}
	return textResult(req.Params.URI, b.String()), nil
}

// ─── Template resource handlers ─────────────────────────────────────────

func (s *Server) handleServiceDetailResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name, err := extractURIParam(req.Params.URI, servicePrefix)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	view := s.view(name)
	if err := view.RefreshServices(ctx); err != nil {
		return nil, err
	}
	st := view.Snapshot()
	if len(st.Versions) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", st.Name)
	b.WriteString(strings.Repeat("═", len("Service: ")+len(st.Name)) + "\n")
	fmt.Fprintf(&b, "  Versions: %s\n", strings.Join(st.Versions, ", "))

	fmt.Fprintf(&b, "\nNodes (%d)\n", len(st.Nodes))
	for _, n := range st.Nodes {
		fmt.Fprintf(&b, "  %s  %s  v%s\n", n.ID, n.Address, n.Version)
		writeIndented(&b, n.Metadata, "      ")
	}

	fmt.Fprintf(&b, "\nEndpoints (%d)\n", len(st.Endpoints))
	for _, ep := range st.Endpoints {
		fmt.Fprintf(&b, "\n  %s\n", ep.Name)
		b.WriteString("    Request:\n")
		writeIndented(&b, ep.Request, "      ")
		b.WriteString("    Response:\n")
		writeIndented(&b, ep.Response, "      ")
		b.WriteString("    Example:\n")
		writeIndented(&b, ep.Example, "      ")
		b.WriteString("    Metadata:\n")
		writeIndented(&b, ep.Metadata, "      ")
	}

	return textResult(req.Params.URI, b.String()), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// writeIndented writes every line of text with the given prefix.
func writeIndented(b *strings.Builder, text, prefix string) {
	for line := range strings.SplitSeq(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// extractURIParam extracts the parameter value from a URI by stripping the prefix
// and URL-decoding the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}
}
