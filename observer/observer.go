// Package observer provides OTEL-based observability for the knowledge
// base: embedding traffic, cache effectiveness, ingestion volume, and
// retrieval latency. It wraps the embedding provider, the cache store,
// and the retriever with instrumented versions that emit metrics via
// OpenTelemetry; export is configured through standard OTEL env vars.
package observer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scopeName = "github.com/maretho/lore/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Meter metric.Meter

	// Counters
	EmbedRequests     metric.Int64Counter
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	DocumentsIngested metric.Int64Counter

	// Histograms
	EmbedDuration     metric.Float64Histogram
	RetrievalDuration metric.Float64Histogram
}

// Init sets up an OTEL metric provider with an OTLP HTTP exporter.
// Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that
// must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("lore")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := NewInstruments(otel.Meter(scopeName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	return inst, mp.Shutdown, nil
}

// NewInstruments creates the instrument set on an existing meter. Init
// calls this; tests pass a meter backed by a manual reader.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	embedRequests, err := meter.Int64Counter("embedding.requests",
		metric.WithDescription("Embedding provider request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("embedding.cache.hits",
		metric.WithDescription("Embedding cache hit count"),
		metric.WithUnit("{key}"))
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("embedding.cache.misses",
		metric.WithDescription("Embedding cache miss count"),
		metric.WithUnit("{key}"))
	if err != nil {
		return nil, err
	}
	documentsIngested, err := meter.Int64Counter("ingest.documents",
		metric.WithDescription("Documents run through the ingestion pipeline"),
		metric.WithUnit("{document}"))
	if err != nil {
		return nil, err
	}
	embedDuration, err := meter.Float64Histogram("embedding.duration",
		metric.WithDescription("Embedding call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	retrievalDuration, err := meter.Float64Histogram("retrieval.duration",
		metric.WithDescription("Hybrid retrieval duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Meter:             meter,
		EmbedRequests:     embedRequests,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMisses,
		DocumentsIngested: documentsIngested,
		EmbedDuration:     embedDuration,
		RetrievalDuration: retrievalDuration,
	}, nil
}
