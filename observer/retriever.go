package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	lore "github.com/maretho/lore"
)

// ObservedRetriever wraps a lore.Retriever with latency metrics.
type ObservedRetriever struct {
	inner lore.Retriever
	inst  *Instruments
}

var _ lore.Retriever = (*ObservedRetriever)(nil)

// WrapRetriever returns an instrumented retriever.
func WrapRetriever(inner lore.Retriever, inst *Instruments) *ObservedRetriever {
	return &ObservedRetriever{inner: inner, inst: inst}
}

func (o *ObservedRetriever) Retrieve(ctx context.Context, query string, topK int) (lore.RetrievalResult, error) {
	start := time.Now()
	result, err := o.inner.Retrieve(ctx, query, topK)
	durationMs := float64(time.Since(start).Milliseconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	o.inst.RetrievalDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrStatus.String(status)))
	return result, err
}
