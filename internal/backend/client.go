package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidCall is returned by Call when the request is rejected before
// reaching the platform.
var ErrInvalidCall = errors.New("invalid call request")

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// StatusError is returned when the platform API answers with a non-2xx status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: platform API returned %d %s", e.Op, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: platform API returned %d: %s", e.Op, e.Code, e.Body)
}

// HTTPClient talks to the platform API over HTTP/JSON.
// No request timeout is applied; callers bound requests through ctx.
type HTTPClient struct {
	base *url.URL
	http *http.Client
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewHTTPClient creates a client for the platform API rooted at baseURL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("platform API URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid platform API URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid platform API URL %q: scheme must be http or https", baseURL)
	}

	c := &HTTPClient{base: u, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root this client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.base.String()
}

// List returns every registered service version with its nodes.
func (c *HTTPClient) List(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.getJSON(ctx, "list", "/v1/services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logs returns recent log records for a service.
func (c *HTTPClient) Logs(ctx context.Context, service string) ([]LogRecord, error) {
	var out []LogRecord
	if err := c.getJSON(ctx, "logs", "/v1/logs", serviceQuery(service), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns recent debug snapshots for every node of a service.
func (c *HTTPClient) Stats(ctx context.Context, service string) ([]Snapshot, error) {
	var out []Snapshot
	if err := c.getJSON(ctx, "stats", "/v1/stats", serviceQuery(service), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trace returns recently recorded spans that touched a service.
func (c *HTTPClient) Trace(ctx context.Context, service string) ([]Span, error) {
	var out []Span
	if err := c.getJSON(ctx, "trace", "/v1/trace", serviceQuery(service), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Call invokes an endpoint and returns the raw response body.
// The request payload must be valid JSON.
func (c *HTTPClient) Call(ctx context.Context, req CallRequest) (json.RawMessage, error) {
	if req.Service == "" || req.Endpoint == "" {
		return nil, fmt.Errorf("call: service and endpoint are required: %w", ErrInvalidCall)
	}
	if len(bytes.TrimSpace(req.Request)) == 0 {
		req.Request = json.RawMessage("{}")
	}
	if !json.Valid(req.Request) {
		return nil, fmt.Errorf("call: request payload is not valid JSON: %w", ErrInvalidCall)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("call: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/call", nil), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	data, err := c.do(httpReq, "call")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(data), nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req, op)
	if err != nil {
		return err
	}

	// An empty body or JSON null means "nothing yet", not a failure.
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := strings.TrimSpace(string(data))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody] + "..."
		}
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: body}
	}
	return data, nil
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func serviceQuery(service string) url.Values {
	return url.Values{"service": []string{service}}
}
