// Package telemetry provides metrics for the pad cache and the pad API client.
package telemetry

import "context"

type contextKey string

// endpointKey is the context key for the API endpoint a request targets.
const endpointKey contextKey = "endpoint"

// CacheResult represents the outcome of a cache lookup.
type CacheResult string

const (
	CacheHit    CacheResult = "hit"
	CacheMiss   CacheResult = "miss"
	CacheBypass CacheResult = "bypass"
)

// WithEndpoint returns a context tagged with the API endpoint name so the
// instrumented transport can label upstream metrics.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey, endpoint)
}

// EndpointFromContext returns the endpoint set by WithEndpoint, or "unknown".
func EndpointFromContext(ctx context.Context) string {
	if e, ok := ctx.Value(endpointKey).(string); ok && e != "" {
		return e
	}
	return "unknown"
}
