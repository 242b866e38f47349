package mcpserver

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/microdash/internal/storage"
)

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readText(t *testing.T, result *mcp.ReadResourceResult) string {
	t.Helper()
	require.Len(t, result.Contents, 1)
	return result.Contents[0].Text
}

func makeResourceSpan(service, spanName string) *tracepb.ResourceSpans {
	return &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{{
				Key:   "service.name",
				Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: service}},
			}},
		},
		ScopeSpans: []*tracepb.ScopeSpans{{
			Spans: []*tracepb.Span{{
				TraceId: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
				SpanId:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
				Name:    spanName,
			}},
		}},
	}
}

func TestServicesResource(t *testing.T) {
	srv := newTestServer(t, fixture())
	result, err := srv.handleServicesResource(context.Background(), readReq("microdash://services"))
	require.NoError(t, err)

	text := readText(t, result)
	assert.Contains(t, text, "Services (2 registered, 3 nodes)")
	assert.Contains(t, text, "greeter")
	assert.Contains(t, text, "store")
}

func TestServicesResourceEmpty(t *testing.T) {
	srv := newTestServer(t, &fakeClient{})
	result, err := srv.handleServicesResource(context.Background(), readReq("microdash://services"))
	require.NoError(t, err)
	assert.Equal(t, "No services registered.\n", readText(t, result))
}

func TestServicesResourceBackendError(t *testing.T) {
	srv := newTestServer(t, &fakeClient{err: errDown})
	_, err := srv.handleServicesResource(context.Background(), readReq("microdash://services"))
	assert.ErrorIs(t, err, errDown)
}

func TestServiceDetailResource(t *testing.T) {
	srv := newTestServer(t, fixture())
	result, err := srv.handleServiceDetailResource(context.Background(), readReq("microdash://services/greeter"))
	require.NoError(t, err)

	text := readText(t, result)
	assert.Contains(t, text, "Service: greeter")
	assert.Contains(t, text, "Versions: 1.0")
	assert.Contains(t, text, "Nodes (2)")
	assert.Contains(t, text, "greeter-1  10.0.0.1:8080  v1.0")
	assert.Contains(t, text, "      zone: a\n")
	assert.Contains(t, text, "      No metadata.\n")
	assert.Contains(t, text, "Endpoints (1)")
	assert.Contains(t, text, "  Greeter.Hello\n")
	assert.Contains(t, text, "      Request Request {\n")
	assert.Contains(t, text, "string name")
}

func TestServiceDetailResourceNotFound(t *testing.T) {
	srv := newTestServer(t, fixture())

	_, err := srv.handleServiceDetailResource(context.Background(), readReq("microdash://services/missing"))
	assert.Error(t, err)

	_, err = srv.handleServiceDetailResource(context.Background(), readReq("microdash://services/"))
	assert.Error(t, err)
}

func TestServiceDetailResourceEscapedName(t *testing.T) {
	client := fixture()
	client.services[0].Name = "go.micro.greeter v2"
	srv := newTestServer(t, client)

	result, err := srv.handleServiceDetailResource(context.Background(), readReq("microdash://services/go.micro.greeter%20v2"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, result), "Service: go.micro.greeter v2")
}

func TestLocalSpansResource(t *testing.T) {
	srv := newTestServer(t, fixture())
	result, err := srv.handleLocalSpansResource(context.Background(), readReq("microdash://local-spans"))
	require.NoError(t, err)
	assert.Equal(t, "Local span source disabled.\n", readText(t, result))

	store := storage.NewSpanStore(100)
	require.NoError(t, store.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{
		makeResourceSpan("svc-alpha", "op1"),
		makeResourceSpan("svc-beta", "op2"),
	}))
	srv, err = NewServer(fixture(), Options{Spans: store})
	require.NoError(t, err)

	result, err = srv.handleLocalSpansResource(context.Background(), readReq("microdash://local-spans"))
	require.NoError(t, err)
	text := readText(t, result)
	assert.Contains(t, text, "Local Spans")
	assert.Contains(t, text, "• svc-alpha")
	assert.Contains(t, text, "• svc-beta")
}

func TestExtractURIParam(t *testing.T) {
	got, err := extractURIParam("microdash://services/a%2Fb", servicePrefix)
	require.NoError(t, err)
	assert.Equal(t, "a/b", got)

	_, err = extractURIParam("other://services/a", servicePrefix)
	assert.Error(t, err)
}
