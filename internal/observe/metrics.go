// Package observe provides application-wide observability primitives for
// cortexkg: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all cortexkg metrics.
const meterName = "github.com/cortexkg/cortexkg"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Hybrid search ---

	// SearchDuration tracks end-to-end hybrid search latency. Use with
	// attribute.String("mode", ...) for vector/lexical/symbolic/hybrid.
	SearchDuration metric.Float64Histogram

	// SearchPhaseDuration tracks latency of an individual search phase. Use
	// with attribute.String("phase", ...) for semantic/lexical/symbolic/fusion.
	SearchPhaseDuration metric.Float64Histogram

	// SearchEarlyTerminations counts searches that stopped before exhausting
	// every phase because an adequacy threshold was already met.
	SearchEarlyTerminations metric.Int64Counter

	// --- Transaction manager ---

	// TransactionDuration tracks commit latency for a graph transaction.
	// Use with attribute.String("outcome", ...) for committed/rolled_back.
	TransactionDuration metric.Float64Histogram

	// TransactionConflicts counts optimistic-concurrency conflicts detected
	// during commit.
	TransactionConflicts metric.Int64Counter

	// --- Agent memory layer ---

	// DecaySweepEntities counts entities visited by a forget/archive sweep.
	// Use with attribute.String("outcome", ...) for forgotten/retained.
	DecaySweepEntities metric.Int64Counter

	// ContextPackTokensUsed tracks the token budget consumed by a single
	// context-window pack operation.
	ContextPackTokensUsed metric.Int64Histogram

	// --- Caches ---

	// CacheRequests counts cache lookups. Use with attributes:
	//   attribute.String("cache", ...), attribute.String("result", ...) for hit/miss
	CacheRequests metric.Int64Counter

	// --- Embedding provider ---

	// EmbeddingRequests counts embedding provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	EmbeddingRequests metric.Int64Counter

	// EmbeddingErrors counts embedding provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	EmbeddingErrors metric.Int64Counter

	// --- MCP tool surface ---

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Gauges ---

	// GraphEntities tracks the current number of entities in the store.
	GraphEntities metric.Int64UpDownCounter

	// ActiveMCPSessions tracks the number of connected MCP client sessions.
	ActiveMCPSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// in-process query and commit latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SearchDuration, err = m.Float64Histogram("cortexkg.search.duration",
		metric.WithDescription("Latency of a hybrid search query."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchPhaseDuration, err = m.Float64Histogram("cortexkg.search.phase.duration",
		metric.WithDescription("Latency of a single hybrid search phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchEarlyTerminations, err = m.Int64Counter("cortexkg.search.early_terminations",
		metric.WithDescription("Searches that stopped early after meeting an adequacy threshold."),
	); err != nil {
		return nil, err
	}
	if met.TransactionDuration, err = m.Float64Histogram("cortexkg.transaction.duration",
		metric.WithDescription("Latency of a graph transaction commit."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransactionConflicts, err = m.Int64Counter("cortexkg.transaction.conflicts",
		metric.WithDescription("Optimistic-concurrency conflicts detected at commit."),
	); err != nil {
		return nil, err
	}
	if met.DecaySweepEntities, err = m.Int64Counter("cortexkg.decay.sweep_entities",
		metric.WithDescription("Entities visited by a forget/archive sweep, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ContextPackTokensUsed, err = m.Int64Histogram("cortexkg.context_pack.tokens_used",
		metric.WithDescription("Token budget consumed by a context-window pack operation."),
	); err != nil {
		return nil, err
	}
	if met.CacheRequests, err = m.Int64Counter("cortexkg.cache.requests",
		metric.WithDescription("Cache lookups by cache name and hit/miss result."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingRequests, err = m.Int64Counter("cortexkg.embedding.requests",
		metric.WithDescription("Total embedding provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingErrors, err = m.Int64Counter("cortexkg.embedding.errors",
		metric.WithDescription("Total embedding provider errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("cortexkg.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("cortexkg.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphEntities, err = m.Int64UpDownCounter("cortexkg.graph.entities",
		metric.WithDescription("Current number of entities in the store."),
	); err != nil {
		return nil, err
	}
	if met.ActiveMCPSessions, err = m.Int64UpDownCounter("cortexkg.mcp.active_sessions",
		metric.WithDescription("Number of connected MCP client sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cortexkg.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSearchPhase is a convenience method that records a search phase
// duration with the standard attribute set.
func (m *Metrics) RecordSearchPhase(ctx context.Context, phase string, seconds float64) {
	m.SearchPhaseDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordCacheResult is a convenience method that records a cache lookup with
// the standard attribute set.
func (m *Metrics) RecordCacheResult(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("cache", cache),
			attribute.String("result", result),
		),
	)
}

// RecordEmbeddingRequest is a convenience method that records an embedding
// provider request counter increment with the standard attribute set.
func (m *Metrics) RecordEmbeddingRequest(ctx context.Context, provider, status string) {
	m.EmbeddingRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordEmbeddingError is a convenience method that records an embedding
// provider error counter increment.
func (m *Metrics) RecordEmbeddingError(ctx context.Context, provider string) {
	m.EmbeddingErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
