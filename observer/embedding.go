package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	lore "github.com/maretho/lore"
)

// ObservedEmbedding wraps a lore.EmbeddingProvider with request and
// latency metrics.
type ObservedEmbedding struct {
	inner lore.EmbeddingProvider
	inst  *Instruments
	model string
}

var _ lore.EmbeddingProvider = (*ObservedEmbedding)(nil)

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner lore.EmbeddingProvider, model string, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst, model: model}
}

func (o *ObservedEmbedding) Name() string    { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

func (o *ObservedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	result, err := o.inner.Embed(ctx, texts)
	durationMs := float64(time.Since(start).Milliseconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
		AttrStatus.String(status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
	))
	return result, err
}
