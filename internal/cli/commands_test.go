package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/dashboard"
)

// fakeClient serves canned data; a non-nil err fails every call.
type fakeClient struct {
	mu       sync.Mutex
	services []backend.Service
	stats    []backend.Snapshot
	spans    []backend.Span
	calls    []backend.CallRequest
	response json.RawMessage
	err      error
}

func (f *fakeClient) List(context.Context) ([]backend.Service, error) {
	return f.services, f.err
}

func (f *fakeClient) Logs(context.Context, string) ([]backend.LogRecord, error) {
	return nil, f.err
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
	return f.response, nil
}

func fixture() *fakeClient {
	ts := time.Now().Unix()
	node := backend.SnapshotService{Name: "greeter", Version: "1.0", Node: backend.SnapshotNode{ID: "greeter-1"}}
	return &fakeClient{
		services: []backend.Service{
			{Name: "greeter", Version: "1.0", Nodes: []backend.Node{{ID: "greeter-1"}, {ID: "greeter-2"}}},
			{Name: "store", Version: "2.0", Nodes: []backend.Node{{ID: "store-1"}}},
		},
		stats: []backend.Snapshot{
			{Service: node, Requests: 100, Memory: 2_000_000, Threads: 4, Timestamp: ts - 10},
			{Service: node, Requests: 130, Memory: 3_000_000, Threads: 5, Timestamp: ts - 5},
		},
		spans: []backend.Span{
			{Trace: "t1", ID: "a", Name: "Greeter.Hello", Started: 1_000_000_000, Duration: 500_000_000},
			{Trace: "t1", ID: "b", Parent: "a", Name: "Store.Read", Started: 1_100_000_000, Duration: 200_000_000},
			{Trace: "t2", ID: "c", Name: "Greeter.Hello", Started: 2_000_000_000, Duration: 100_000_000},
		},
		response: json.RawMessage(`{"msg":"hello"}`),
	}
}

func TestRunServices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runServices(context.Background(), &buf, fixture(), false))
	assert.Contains(t, buf.String(), "Services (2 registered, 3 nodes)")
	assert.Contains(t, buf.String(), "greeter")

	buf.Reset()
	require.NoError(t, runServices(context.Background(), &buf, fixture(), true))
	var summaries []dashboard.ServiceSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "greeter", summaries[0].Name)
	assert.Equal(t, 2, summaries[0].Nodes)

	buf.Reset()
	require.NoError(t, runServices(context.Background(), &buf, &fakeClient{}, false))
	assert.Equal(t, "No services registered.\n", buf.String())
}

func TestRunServicesError(t *testing.T) {
	errDown := errors.New("platform down")
	var buf bytes.Buffer
	err := runServices(context.Background(), &buf, &fakeClient{err: errDown}, false)
	assert.ErrorIs(t, err, errDown)
}

func TestRunTraces(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runTraces(context.Background(), &buf, fixture(), "greeter", 0, 10, 80))
	out := buf.String()
	assert.Contains(t, out, "greeter: 2 traces, 3 spans (page 1 of 1)")
	assert.Contains(t, out, "Trace t1")
	assert.Contains(t, out, "Trace t2")

	buf.Reset()
	require.NoError(t, runTraces(context.Background(), &buf, fixture(), "greeter", 1, 1, 80))
	assert.Contains(t, buf.String(), "(page 2 of 2)")

	buf.Reset()
	require.NoError(t, runTraces(context.Background(), &buf, &fakeClient{}, "greeter", 0, 10, 80))
	assert.Equal(t, "No traces for greeter.\n", buf.String())
}

func TestRunStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runStats(context.Background(), &buf, fixture(), "greeter", dashboard.Options{Window: 8 * time.Minute}))
	assert.Contains(t, buf.String(), "Request Rate")
	assert.Contains(t, buf.String(), "greeter-1")

	buf.Reset()
	require.NoError(t, runStats(context.Background(), &buf, &fakeClient{}, "greeter", dashboard.Options{}))
	assert.Equal(t, "No recent stats for greeter.\n", buf.String())
}

func TestRunCall(t *testing.T) {
	client := fixture()
	var buf bytes.Buffer
	req := backend.CallRequest{Service: "greeter", Endpoint: "Greeter.Hello"}

	require.NoError(t, runCall(context.Background(), &buf, client, req, `{"name": "bob"}`))
	assert.Equal(t, "{\n  \"msg\": \"hello\"\n}\n", buf.String())
	require.Len(t, client.calls, 1)
	assert.JSONEq(t, `{"name":"bob"}`, string(client.calls[0].Request))

	// Empty payload defaults to an empty object
	buf.Reset()
	require.NoError(t, runCall(context.Background(), &buf, client, req, "  "))
	assert.JSONEq(t, `{}`, string(client.calls[1].Request))

	err := runCall(context.Background(), &buf, client, req, `{nope`)
	assert.Error(t, err)
	assert.Len(t, client.calls, 2, "invalid JSON is not sent")
}

func TestRunCallNonJSONResponse(t *testing.T) {
	client := &fakeClient{response: json.RawMessage("plain text")}
	var buf bytes.Buffer
	require.NoError(t, runCall(context.Background(), &buf, client, backend.CallRequest{Service: "s", Endpoint: "e"}, ""))
	assert.Equal(t, "plain text\n", buf.String())
}

func TestTraceDirsDedup(t *testing.T) {
	dirs, err := traceDirs(&Config{TraceDirs: []string{"/a", "/b", "/a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, dirs)
}
