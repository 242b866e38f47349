package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	err      error
}

func (f *fakeClient) set(fn func(f *fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeClient) List(context.Context) ([]backend.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services, f.err
}

func (f *fakeClient) Logs(context.Context, string) ([]backend.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, f.err
}

func (f *fakeClient) Stats(context.Context, string) ([]backend.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.err
}

func (f *fakeClient) Trace(context.Context, string) ([]backend.Span, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spans, f.err
}

func (f *fakeClient) Call(context.Context, backend.CallRequest) (json.RawMessage, error) {
	return json.RawMessage(`{}`), f.err
}

var now = time.Unix(1_700_000_000, 0)

func fixture() *fakeClient {
	ts := now.Unix()
	return &fakeClient{
		services: []backend.Service{
			{
				Name:    "greeter",
				Version: "1.0",
				Nodes: []backend.Node{
					{ID: "greeter-1", Address: "10.0.0.1:8080", Metadata: backend.NewMetadata("zone", "a", "build", "42")},
				},
				Endpoints: []backend.Endpoint{{
					Name: "Greeter.Hello",
					Request: &backend.Value{Name: "Request", Type: "Request", Values: []*backend.Value{
						{Name: "name", Type: "string"},
					}},
					Response: &backend.Value{Name: "Response", Type: "Response"},
				}},
			},
			{Name: "store", Version: "2.0", Nodes: []backend.Node{{ID: "store-1"}}},
			{
				Name:    "greeter",
				Version: "1.1",
				Nodes:   []backend.Node{{ID: "greeter-2"}},
			},
		},
		logs: []backend.LogRecord{{Timestamp: ts, Message: json.RawMessage(`"started"`)}},
		stats: []backend.Snapshot{
			{Service: backend.SnapshotService{Node: backend.SnapshotNode{ID: "greeter-1"}}, Requests: 10, Timestamp: ts - 10},
			{Service: backend.SnapshotService{Node: backend.SnapshotNode{ID: "greeter-1"}}, Requests: 15, Timestamp: ts},
		},
		spans: []backend.Span{
			{Trace: "t1", ID: "a", Name: "Greeter.Hello", Started: 1_000_000_000, Duration: 500_000_000},
			{Trace: "t1", ID: "b", Name: "Store.Read", Started: 1_100_000_000, Duration: 200_000_000, Type: backend.SpanCall},
		},
	}
}

func newView(c backend.Client) *ServiceView {
	return NewServiceView(c, "greeter", Options{Now: func() time.Time { return now }})
}

func TestLoadBuildsState(t *testing.T) {
	v := newView(fixture())
	require.NoError(t, v.Load(context.Background()))

	st := v.Snapshot()
	assert.Equal(t, "greeter", st.Name)
	assert.Equal(t, []string{"1.0", "1.1"}, st.Versions)

	require.Len(t, st.Nodes, 2)
	assert.Equal(t, "greeter-1", st.Nodes[0].ID)
	assert.Equal(t, "zone: a\nbuild: 42\n", st.Nodes[0].Metadata)
	assert.Equal(t, backend.NoMetadata, st.Nodes[1].Metadata)

	require.Len(t, st.Endpoints, 1)
	assert.Equal(t, "Request Request {\nstring name\n}", st.Endpoints[0].Request)
	assert.Equal(t, "Response Response", st.Endpoints[0].Response)

	require.Len(t, st.Logs, 1)
	assert.Equal(t, "started", st.Logs[0].Message)

	require.Len(t, st.Series.Requests, 1)
	assert.Equal(t, "greeter-1", st.Series.Requests[0].Node)
	assert.Len(t, st.Charts, 6)

	require.Len(t, st.Traces, 1)
	assert.Equal(t, 1, st.TraceCount)
	assert.Equal(t, 2, st.SpanCount)
	assert.Equal(t, 1, st.PageCount)
	assert.Equal(t, now, st.Updated)
}

func TestNodesFlattenMatchingVersions(t *testing.T) {
	v := newView(fixture())
	require.NoError(t, v.RefreshServices(context.Background()))

	nodes := v.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "greeter-1", nodes[0].ID)
	assert.Equal(t, "greeter-2", nodes[1].ID)
}

// TestBackendFailureKeepsPreviousState verifies a failed poll behaves like
// "no data yet" instead of clearing what is on screen.
func TestBackendFailureKeepsPreviousState(t *testing.T) {
	fc := fixture()
	v := newView(fc)
	require.NoError(t, v.Load(context.Background()))
	before := v.Snapshot()

	fc.set(func(f *fakeClient) { f.err = errDown })
	err := v.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)

	after := v.Snapshot()
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.Equal(t, before.Series, after.Series)
	assert.Equal(t, before.Traces, after.Traces)
}

func TestEmptyResponsesAreNoOps(t *testing.T) {
	fc := fixture()
	v := newView(fc)
	require.NoError(t, v.Load(context.Background()))

	fc.set(func(f *fakeClient) {
		f.stats = nil
		f.spans = nil
		f.logs = nil
	})
	require.NoError(t, v.Load(context.Background()))

	st := v.Snapshot()
	assert.Len(t, st.Series.Requests, 1)
	assert.Len(t, st.Traces, 1)
	assert.Len(t, st.Logs, 1)
}

func TestShouldPoll(t *testing.T) {
	v := newView(fixture())
	assert.False(t, v.ShouldPoll(), "nodes tab is the default")

	require.NoError(t, v.SetTab(TabStats))
	assert.True(t, v.ShouldPoll())

	v.SetRefresh(false)
	assert.False(t, v.ShouldPoll())

	v.SetRefresh(true)
	require.NoError(t, v.SetTab(TabLogs))
	assert.False(t, v.ShouldPoll())

	assert.Error(t, v.SetTab("bogus"))
	assert.Equal(t, TabLogs, v.Snapshot().Tab)
}

func TestPagination(t *testing.T) {
	fc := fixture()
	var spans []backend.Span
	for i := range 25 {
		spans = append(spans, backend.Span{
			Trace: fmt.Sprintf("t%02d", i), ID: fmt.Sprintf("s%02d", i), Name: "op", Duration: 1_000_000,
		})
	}
	fc.spans = spans
	v := newView(fc)
	require.NoError(t, v.RefreshTraces(context.Background()))

	st := v.Snapshot()
	assert.Equal(t, 25, st.TraceCount)
	assert.Equal(t, 3, st.PageCount)
	assert.Len(t, st.Traces, 10)

	v.SetPage(2)
	assert.Len(t, v.Snapshot().Traces, 5)

	v.SetPage(99)
	assert.Equal(t, 2, v.Snapshot().Page, "page is clamped to the last page")

	v.SetPageSize(20)
	st = v.Snapshot()
	assert.Equal(t, 0, st.Page, "changing size returns to the first page")
	assert.Equal(t, 2, st.PageCount)
	assert.Len(t, st.Traces, 20)

	v.SetPageSize(0)
	assert.Equal(t, 10, v.Snapshot().PageSize)
}

func TestSummarize(t *testing.T) {
	got := Summarize(fixture().services)
	require.Len(t, got, 2)
	assert.Equal(t, ServiceSummary{Name: "greeter", Versions: []string{"1.0", "1.1"}, Nodes: 2}, got[0])
	assert.Equal(t, ServiceSummary{Name: "store", Versions: []string{"2.0"}, Nodes: 1}, got[1])

	assert.Empty(t, Summarize(nil))
}
