package backend

import (
	"context"
	"log"
)

// SpanSource provides spans recorded locally (e.g. received over OTLP) for a
// service. Implementations must be safe for concurrent use.
type SpanSource interface {
	SpansForService(service string) []Span
}

// localSpansClient appends locally recorded spans to the platform's trace
// results. Everything else passes straight through.
type localSpansClient struct {
	Client
	source SpanSource
}

// WithLocalSpans wraps c so that Trace also returns spans from source.
// If the platform call fails but local spans exist, the local spans are
// returned and the failure is logged. A nil source returns c unchanged.
func WithLocalSpans(c Client, source SpanSource) Client {
	if source == nil {
		return c
	}
	return &localSpansClient{Client: c, source: source}
}

func (l *localSpansClient) Trace(ctx context.Context, service string) ([]Span, error) {
	local := l.source.SpansForService(service)

	remote, err := l.Client.Trace(ctx, service)
	if err != nil {
		if len(local) == 0 {
			return nil, err
		}
		log.Printf("⚠️  trace %s: platform API failed, showing %d local spans: %v\n", service, len(local), err)
		return local, nil
	}

	if len(local) == 0 {
		return remote, nil
	}
	out := make([]Span, 0, len(remote)+len(local))
	out = append(out, remote...)
	out = append(out, local...)
	return out, nil
}
