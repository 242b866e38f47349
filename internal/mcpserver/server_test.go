package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/microdash/internal/backend"
)

var errDown = errors.New("backend down")

// fakeClient serves canned data; a non-nil err fails every call.
type fakeClient struct {
	mu       sync.Mutex
	services []backend.Service
	logs     []backend.LogRecord
	stats    []backend.Snapshot
	spans    []backend.Span
	calls    []backend.CallRequest
	err      error
}

func (f *fakeClient) List(context.Context) ([]backend.Service, error) {
	return f.services, f.err
}

func (f *fakeClient) Logs(context.Context, string) ([]backend.LogRecord, error) {
	return f.logs, f.err
}

func (f *fakeClient) Stats(context.Context, string) ([]backend.Snapshot, error) {
	return f.stats, f.err
}

func (f *fakeClient) Trace(context.Context, string) ([]backend.Span, error) {
	return f.spans, f.err
}

func (f *fakeClient) Call(_ context.Context, req backend.CallRequest) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"msg":"hello ` + req.Service + `"}`), nil
}

func fixture() *fakeClient {
	ts := time.Now().Unix()
	node := backend.SnapshotService{Name: "greeter", Version: "1.0", Node: backend.SnapshotNode{ID: "greeter-1"}}
	return &fakeClient{
		services: []backend.Service{
			{
				Name:    "greeter",
				Version: "1.0",
				Nodes: []backend.Node{
					{ID: "greeter-1", Address: "10.0.0.1:8080", Metadata: backend.NewMetadata("zone", "a")},
					{ID: "greeter-2", Address: "10.0.0.2:8080"},
				},
				Endpoints: []backend.Endpoint{{
					Name: "Greeter.Hello",
					Request: &backend.Value{Name: "Request", Type: "Request", Values: []*backend.Value{
						{Name: "name", Type: "string"},
					}},
					Response: &backend.Value{Name: "Response", Type: "Response", Values: []*backend.Value{
						{Name: "msg", Type: "string"},
					}},
				}},
			},
			{Name: "store", Version: "2.0", Nodes: []backend.Node{{ID: "store-1"}}},
		},
		logs: []backend.LogRecord{
			{Timestamp: ts - 20, Message: json.RawMessage(`"starting"`)},
			{Timestamp: ts - 10, Message: json.RawMessage(`"listening"`), Metadata: backend.NewMetadata("port", "8080")},
		},
		stats: []backend.Snapshot{
			{Service: node, Requests: 100, Memory: 2_000_000, Threads: 4, Timestamp: ts - 10},
			{Service: node, Requests: 130, Memory: 3_000_000, Threads: 5, Timestamp: ts - 5},
		},
		spans: []backend.Span{
			{Trace: "t1", ID: "a", Name: "Greeter.Hello", Started: 1_000_000_000, Duration: 500_000_000},
			{Trace: "t1", ID: "b", Parent: "a", Name: "Store.Read", Started: 1_100_000_000, Duration: 200_000_000, Type: backend.SpanCall},
			{Trace: "t2", ID: "c", Name: "Greeter.Hello", Started: 2_000_000_000, Duration: 100_000_000},
		},
	}
}

func newTestServer(t *testing.T, client backend.Client) *Server {
	t.Helper()
	srv, err := NewServer(client, Options{})
	require.NoError(t, err)
	return srv
}

// TestServerCreation verifies basic server initialization.
func TestServerCreation(t *testing.T) {
	client := fixture()
	srv := newTestServer(t, client)

	assert.NotNil(t, srv.MCPServer())
	assert.Same(t, client, srv.client)
}

// TestServerCreationNilClient verifies that NewServer rejects a nil client.
func TestServerCreationNilClient(t *testing.T) {
	_, err := NewServer(nil, Options{})
	assert.Error(t, err)
}

func TestListServices(t *testing.T) {
	srv := newTestServer(t, fixture())

	_, out, err := srv.handleListServices(context.Background(), nil, ListServicesInput{})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Services, 2)
	assert.Equal(t, ServiceEntry{Name: "greeter", Versions: []string{"1.0"}, Nodes: 2}, out.Services[0])
	assert.Equal(t, "store", out.Services[1].Name)
	assert.Contains(t, out.Rendered, "Services (2 registered, 3 nodes)")
}

func TestListServicesBackendError(t *testing.T) {
	srv := newTestServer(t, &fakeClient{err: errDown})

	_, _, err := srv.handleListServices(context.Background(), nil, ListServicesInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
}

func TestGetServiceLogs(t *testing.T) {
	srv := newTestServer(t, fixture())

	_, out, err := srv.handleGetServiceLogs(context.Background(), nil, GetServiceLogsInput{Service: "greeter"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "starting", out.Logs[0].Message)
	assert.Equal(t, backend.NoMetadata, out.Logs[0].Metadata)
	assert.Equal(t, "port: 8080\n", out.Logs[1].Metadata)

	_, out, err = srv.handleGetServiceLogs(context.Background(), nil, GetServiceLogsInput{Service: "greeter", Limit: 1})
	require.NoError(t, err)
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "listening", out.Logs[0].Message)

	_, _, err = srv.handleGetServiceLogs(context.Background(), nil, GetServiceLogsInput{})
	assert.Error(t, err, "empty service")
}

func TestGetServiceStats(t *testing.T) {
	srv := newTestServer(t, fixture())

	_, out, err := srv.handleGetServiceStats(context.Background(), nil, GetServiceStatsInput{Service: "greeter"})
	require.NoError(t, err)

	assert.Equal(t, []string{"greeter-1"}, out.Nodes)
	byMetric := make(map[string]MetricLatest)
	for _, l := range out.Latest {
		byMetric[l.Metric] = l
	}
	require.Contains(t, byMetric, "requests")
	assert.InDelta(t, 30, byMetric["requests"].Value, 1e-9)
	assert.Equal(t, 2, byMetric["requests"].Points)
	assert.InDelta(t, 3.0, byMetric["memory"].Value, 1e-9)
	assert.InDelta(t, 5, byMetric["concurrency"].Value, 1e-9)
	assert.Contains(t, out.Rendered, "greeter-1")
}

func TestGetServiceStatsBackendError(t *testing.T) {
	srv := newTestServer(t, &fakeClient{err: errDown})

	_, _, err := srv.handleGetServiceStats(context.Background(), nil, GetServiceStatsInput{Service: "greeter"})
	assert.ErrorIs(t, err, errDown)
}

func TestGetServiceTraces(t *testing.T) {
	srv := newTestServer(t, fixture())

	_, out, err := srv.handleGetServiceTraces(context.Background(), nil, GetServiceTracesInput{Service: "greeter"})
	require.NoError(t, err)

	assert.Equal(t, 2, out.TraceCount)
	assert.Equal(t, 3, out.SpanCount)
	assert.Equal(t, 1, out.PageCount)
	require.Len(t, out.Traces, 2)
	assert.Equal(t, "t1", out.Traces[0].TraceID, "largest trace first")
	assert.Equal(t, 2, out.Traces[0].Spans)
	assert.Equal(t, "500ms", out.Traces[0].Duration)
	assert.Contains(t, out.Rendered, "Trace t1 (2 spans, 500ms)")
}

func TestGetServiceTracesPaging(t *testing.T) {
	client := &fakeClient{}
	for i := range 25 {
		client.spans = append(client.spans, backend.Span{
			Trace: fmt.Sprintf("trace-%02d", i), ID: fmt.Sprintf("span-%02d", i), Name: "op",
			Started: uint64(i) * 1_000_000, Duration: 1_000_000,
		})
	}
	srv := newTestServer(t, client)

	_, out, err := srv.handleGetServiceTraces(context.Background(), nil, GetServiceTracesInput{Service: "greeter", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Page)
	assert.Equal(t, 3, out.PageCount)
	require.Len(t, out.Traces, 5)
	assert.Equal(t, "trace-20", out.Traces[0].TraceID)

	// Past the end clamps to the last page.
	_, out, err = srv.handleGetServiceTraces(context.Background(), nil, GetServiceTracesInput{Service: "greeter", Page: 9, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Page)
}

func TestCallEndpoint(t *testing.T) {
	client := fixture()
	srv := newTestServer(t, client)

	_, out, err := srv.handleCallEndpoint(context.Background(), nil, CallEndpointInput{
		Service: "greeter", Endpoint: "Greeter.Hello", Request: `{"name":"Ada"}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"hello greeter"}`, out.Response)

	require.Len(t, client.calls, 1)
	assert.JSONEq(t, `{"name":"Ada"}`, string(client.calls[0].Request))

	// An empty payload is sent as an empty object.
	_, _, err = srv.handleCallEndpoint(context.Background(), nil, CallEndpointInput{Service: "greeter", Endpoint: "Greeter.Hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(client.calls[1].Request))
}

func TestCallEndpointInvalidPayload(t *testing.T) {
	client := fixture()
	srv := newTestServer(t, client)

	_, _, err := srv.handleCallEndpoint(context.Background(), nil, CallEndpointInput{
		Service: "greeter", Endpoint: "Greeter.Hello", Request: `{"name":`,
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not valid JSON"))
	assert.Empty(t, client.calls, "invalid payloads never reach the backend")
}

func TestCallEndpointBackendError(t *testing.T) {
	srv := newTestServer(t, &fakeClient{err: errDown})

	_, _, err := srv.handleCallEndpoint(context.Background(), nil, CallEndpointInput{Service: "greeter", Endpoint: "Greeter.Hello"})
	assert.ErrorIs(t, err, errDown)
}
