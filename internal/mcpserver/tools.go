package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/series"
	"github.com/tobert/microdash/internal/timeline"
	"github.com/tobert/microdash/internal/viz"
)

// ═══════════════════════════════════════════════════════════════════════════
// DASHBOARD TOOLS
//
// One tool per dashboard view:
// 1. list_services - Registered services with versions and node counts
// 2. get_service_logs - Recent log lines of a service
// 3. get_service_stats - Latest debug stats per node
// 4. get_service_traces - A page of reconstructed trace timelines
// 5. call_endpoint - Invoke a handler through the platform
// ═══════════════════════════════════════════════════════════════════════════

// Tool 1: list_services

type ListServicesInput struct{}

type ServiceEntry struct {
	Name     string   `json:"name" jsonschema:"Service name"`
	Versions []string `json:"versions,omitempty" jsonschema:"Registered versions in listing order"`
	Nodes    int      `json:"nodes" jsonschema:"Running nodes across all versions"`
}

type ListServicesOutput struct {
	Services []ServiceEntry `json:"services,omitempty" jsonschema:"Services sorted by name"`
	Count    int            `json:"count" jsonschema:"Number of distinct services"`
	Rendered string         `json:"rendered,omitempty" jsonschema:"Node-count bar chart"`
}

func (s *Server) handleListServices(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListServicesInput,
) (*mcp.CallToolResult, ListServicesOutput, error) {
	list, err := s.client.List(ctx)
	if err != nil {
		return nil, ListServicesOutput{}, fmt.Errorf("failed to list services: %w", err)
	}

	summaries := dashboard.Summarize(list)
	out := ListServicesOutput{
		Count:    len(summaries),
		Rendered: viz.Services(summaries, s.opts.Width),
	}
	for _, sum := range summaries {
		out.Services = append(out.Services, ServiceEntry{Name: sum.Name, Versions: sum.Versions, Nodes: sum.Nodes})
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 2: get_service_logs

type GetServiceLogsInput struct {
	Service string `json:"service" jsonschema:"Service name"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Return only the newest N lines (0 = all)"`
}

type LogEntry struct {
	Timestamp int64  `json:"timestamp" jsonschema:"Unix seconds"`
	Message   string `json:"message" jsonschema:"Log message"`
	Metadata  string `json:"metadata" jsonschema:"Metadata as key: value lines"`
}

type GetServiceLogsOutput struct {
	Service string     `json:"service" jsonschema:"Service name"`
	Logs    []LogEntry `json:"logs,omitempty" jsonschema:"Log lines, oldest first"`
	Count   int        `json:"count" jsonschema:"Number of lines returned"`
}

func (s *Server) handleGetServiceLogs(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetServiceLogsInput,
) (*mcp.CallToolResult, GetServiceLogsOutput, error) {
	if input.Service == "" {
		return nil, GetServiceLogsOutput{}, fmt.Errorf("service cannot be empty")
	}

	records, err := s.client.Logs(ctx, input.Service)
	if err != nil {
		return nil, GetServiceLogsOutput{}, fmt.Errorf("failed to get logs: %w", err)
	}
	if input.Limit > 0 && len(records) > input.Limit {
		records = records[len(records)-input.Limit:]
	}

	out := GetServiceLogsOutput{Service: input.Service, Count: len(records)}
	for _, rec := range records {
		out.Logs = append(out.Logs, LogEntry{
			Timestamp: rec.Timestamp,
			Message:   rec.Text(),
			Metadata:  rec.Metadata.String(),
		})
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 3: get_service_stats

type GetServiceStatsInput struct {
	Service string `json:"service" jsonschema:"Service name"`
}

type MetricLatest struct {
	Metric    string  `json:"metric" jsonschema:"Metric key (requests, errors, memory, concurrency, gc, uptime)"`
	Unit      string  `json:"unit" jsonschema:"Display unit"`
	Node      string  `json:"node" jsonschema:"Node id"`
	Value     float64 `json:"value" jsonschema:"Most recent value"`
	Timestamp int64   `json:"timestamp" jsonschema:"Unix seconds of the most recent sample"`
	Points    int     `json:"points" jsonschema:"Number of samples in the window"`
}

type GetServiceStatsOutput struct {
	Service  string         `json:"service" jsonschema:"Service name"`
	Nodes    []string       `json:"nodes,omitempty" jsonschema:"Nodes with samples in the window"`
	Latest   []MetricLatest `json:"latest,omitempty" jsonschema:"Latest value per metric per node"`
	Rendered string         `json:"rendered,omitempty" jsonschema:"Text table of the latest values"`
}

func (s *Server) handleGetServiceStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetServiceStatsInput,
) (*mcp.CallToolResult, GetServiceStatsOutput, error) {
	if input.Service == "" {
		return nil, GetServiceStatsOutput{}, fmt.Errorf("service cannot be empty")
	}

	view := s.view(input.Service)
	if err := view.RefreshStats(ctx); err != nil {
		return nil, GetServiceStatsOutput{}, err
	}
	set := view.Snapshot().Series

	out := GetServiceStatsOutput{Service: input.Service, Latest: latestValues(set)}
	for _, sr := range set.Requests {
		out.Nodes = append(out.Nodes, sr.Node)
	}
	out.Rendered = viz.LatestMetrics(set)
	return &mcp.CallToolResult{}, out, nil
}

func latestValues(set series.Set) []MetricLatest {
	var out []MetricLatest
	for _, m := range series.Metrics() {
		for _, sr := range set.Get(m) {
			if len(sr.Points) == 0 {
				continue
			}
			last := sr.Points[len(sr.Points)-1]
			out = append(out, MetricLatest{
				Metric:    m.String(),
				Unit:      m.Unit(),
				Node:      sr.Node,
				Value:     last.Value,
				Timestamp: last.Time.Unix(),
				Points:    len(sr.Points),
			})
		}
	}
	return out
}

// Tool 4: get_service_traces

type GetServiceTracesInput struct {
	Service  string `json:"service" jsonschema:"Service name"`
	Page     int    `json:"page,omitempty" jsonschema:"Page index, 0-based"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"Traces per page (0 = default 10)"`
}

type TraceSummary struct {
	TraceID  string   `json:"trace_id" jsonschema:"Trace id"`
	Spans    int      `json:"spans" jsonschema:"Number of spans"`
	Duration string   `json:"duration" jsonschema:"Time from first start to last end"`
	Rows     []string `json:"rows,omitempty" jsonschema:"Row labels (direction, span name and duration)"`
}

type GetServiceTracesOutput struct {
	Service    string         `json:"service" jsonschema:"Service name"`
	Traces     []TraceSummary `json:"traces,omitempty" jsonschema:"Traces on this page"`
	Page       int            `json:"page" jsonschema:"Page index returned"`
	PageSize   int            `json:"page_size" jsonschema:"Traces per page"`
	PageCount  int            `json:"page_count" jsonschema:"Number of pages"`
	TraceCount int            `json:"trace_count" jsonschema:"Total traces"`
	SpanCount  int            `json:"span_count" jsonschema:"Total distinct spans"`
	Rendered   string         `json:"rendered,omitempty" jsonschema:"ASCII timelines of this page"`
}

func (s *Server) handleGetServiceTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetServiceTracesInput,
) (*mcp.CallToolResult, GetServiceTracesOutput, error) {
	if input.Service == "" {
		return nil, GetServiceTracesOutput{}, fmt.Errorf("service cannot be empty")
	}

	view := s.view(input.Service)
	if err := view.RefreshTraces(ctx); err != nil {
		return nil, GetServiceTracesOutput{}, err
	}
	if input.PageSize > 0 {
		view.SetPageSize(input.PageSize)
	}
	view.SetPage(input.Page)
	st := view.Snapshot()

	out := GetServiceTracesOutput{
		Service:    input.Service,
		Page:       st.Page,
		PageSize:   st.PageSize,
		PageCount:  st.PageCount,
		TraceCount: st.TraceCount,
		SpanCount:  st.SpanCount,
		Rendered:   viz.Timelines(st.Traces, s.opts.Width),
	}
	for _, tl := range st.Traces {
		out.Traces = append(out.Traces, traceSummary(tl))
	}
	return &mcp.CallToolResult{}, out, nil
}

func traceSummary(tl timeline.Timeline) TraceSummary {
	sum := TraceSummary{TraceID: tl.TraceID, Spans: len(tl.Rows)}
	if len(tl.Rows) == 0 {
		sum.Duration = timeline.FormatDuration(0)
		return sum
	}
	lo, hi := tl.Rows[0].Start, tl.Rows[0].End
	for _, r := range tl.Rows {
		lo = min(lo, r.Start)
		hi = max(hi, r.End)
		sum.Rows = append(sum.Rows, r.Name)
	}
	sum.Duration = timeline.FormatDuration(hi - lo)
	return sum
}

// Tool 5: call_endpoint

type CallEndpointInput struct {
	Service  string `json:"service" jsonschema:"Service name"`
	Endpoint string `json:"endpoint" jsonschema:"Endpoint name, e.g. Greeter.Hello"`
	Address  string `json:"address,omitempty" jsonschema:"Call a specific node address instead of any node"`
	Method   string `json:"method,omitempty" jsonschema:"Transport method override"`
	Request  string `json:"request,omitempty" jsonschema:"JSON request payload (default {})"`
}

type CallEndpointOutput struct {
	Service  string `json:"service" jsonschema:"Service name"`
	Endpoint string `json:"endpoint" jsonschema:"Endpoint name"`
	Response string `json:"response" jsonschema:"Raw response body"`
}

func (s *Server) handleCallEndpoint(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CallEndpointInput,
) (*mcp.CallToolResult, CallEndpointOutput, error) {
	payload := input.Request
	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return nil, CallEndpointOutput{}, fmt.Errorf("request is not valid JSON")
	}

	resp, err := s.client.Call(ctx, backend.CallRequest{
		Service:  input.Service,
		Endpoint: input.Endpoint,
		Address:  input.Address,
		Method:   input.Method,
		Request:  json.RawMessage(payload),
	})
	if err != nil {
		return nil, CallEndpointOutput{}, fmt.Errorf("call failed: %w", err)
	}

	return &mcp.CallToolResult{}, CallEndpointOutput{
		Service:  input.Service,
		Endpoint: input.Endpoint,
		Response: string(resp),
	}, nil
}

// Register all tools

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_services",
		Description: "START HERE: List every service registered with the platform, with its versions and running node count. Use the names returned here with the other tools.",
	}, s.handleListServices)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_service_logs",
		Description: "Recent log lines of a service, oldest first, each with its metadata rendered as key: value lines. Use limit to keep only the newest N lines.",
	}, s.handleGetServiceLogs)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_service_stats",
		Description: "Latest debug stats per node over the recent window: request and error rates (deltas of cumulative counters between samples), memory in MB, concurrency, GC and uptime. Includes a text table.",
	}, s.handleGetServiceStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_service_traces",
		Description: "Reconstructed distributed traces of a service, one page at a time, largest trace first. Each trace lists its spans as Handle/Call rows with durations plus an ASCII timeline.",
	}, s.handleGetServiceTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "call_endpoint",
		Description: "Invoke a service endpoint through the platform with a JSON request payload and return the raw response. Read the microdash://services/{service} resource to see available endpoints and example payloads.",
	}, s.handleCallEndpoint)

	return nil
}
