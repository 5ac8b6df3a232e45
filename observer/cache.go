package observer

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	lore "github.com/maretho/lore"
)

// ObservedCacheStore wraps a lore.CacheStore with hit/miss counters.
// Wrap the store handed to the embedding orchestrator to see cache
// effectiveness per model and purpose.
type ObservedCacheStore struct {
	lore.CacheStore
	inst *Instruments
}

var _ lore.CacheStore = (*ObservedCacheStore)(nil)

// WrapCacheStore returns an instrumented cache store.
func WrapCacheStore(inner lore.CacheStore, inst *Instruments) *ObservedCacheStore {
	return &ObservedCacheStore{CacheStore: inner, inst: inst}
}

func (o *ObservedCacheStore) GetCachedEmbeddings(ctx context.Context, keys []lore.CacheKey) (map[lore.CacheKey][]float32, error) {
	found, err := o.CacheStore.GetCachedEmbeddings(ctx, keys)
	if err != nil {
		return nil, err
	}

	// Group hit/miss counts by (model, purpose) so mixed-key batches
	// attribute correctly.
	type group struct{ model, purpose string }
	hits := make(map[group]int64)
	misses := make(map[group]int64)
	for _, k := range keys {
		g := group{k.Model, string(k.Purpose)}
		if _, ok := found[k]; ok {
			hits[g]++
		} else {
			misses[g]++
		}
	}
	for g, n := range hits {
		o.inst.CacheHits.Add(ctx, n, metric.WithAttributes(
			AttrModel.String(g.model), AttrPurpose.String(g.purpose)))
	}
	for g, n := range misses {
		o.inst.CacheMisses.Add(ctx, n, metric.WithAttributes(
			AttrModel.String(g.model), AttrPurpose.String(g.purpose)))
	}
	return found, nil
}
