package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper with upstream fetch metrics.
// The endpoint label is taken from the request context (see WithEndpoint).
// Each request is labeled with its status code and an outcome of success,
// 4xx, 5xx, timeout, canceled or error.
type InstrumentedTransport struct {
	base http.RoundTripper
}

// NewInstrumentedTransport creates a new instrumented transport.
// If base is nil, http.DefaultTransport is used.
func NewInstrumentedTransport(base http.RoundTripper) *InstrumentedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &InstrumentedTransport{base: base}
}

// RoundTrip implements http.RoundTripper with metrics recording.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := EndpointFromContext(req.Context())

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		RecordUpstreamFetch(req.Context(), endpoint, 0, duration, 0, errorOutcome(req.Context(), err))
		return nil, err
	}

	resp.Body = &instrumentedBody{
		ReadCloser: resp.Body,
		ctx:        req.Context(),
		endpoint:   endpoint,
		status:     resp.StatusCode,
		start:      start,
		outcome:    statusOutcome(resp.StatusCode),
	}

	return resp, nil
}

func statusOutcome(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "success"
	}
}

// errorOutcome classifies a failed round trip. A per-request timeout set on
// the http.Client surfaces as a deadline on the request context.
func errorOutcome(ctx context.Context, err error) string {
	var ne net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case ctx.Err() != nil:
		return "canceled"
	default:
		return "error"
	}
}

// instrumentedBody wraps a response body to record bytes read on close.
type instrumentedBody struct {
	io.ReadCloser
	ctx      context.Context
	endpoint string
	status   int
	start    time.Time
	bytes    int64
	outcome  string
	recorded bool
}

func (b *instrumentedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.bytes += int64(n)
	return n, err
}

func (b *instrumentedBody) Close() error {
	if !b.recorded {
		b.recorded = true
		RecordUpstreamFetch(b.ctx, b.endpoint, b.status, time.Since(b.start), b.bytes, b.outcome)
	}
	return b.ReadCloser.Close()
}
