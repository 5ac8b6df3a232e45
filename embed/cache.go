package embed

import (
	"context"
	"fmt"
	"log/slog"

	lore "github.com/maretho/lore"
)

// ComputeFunc computes embeddings for texts that missed the cache.
// It is called at most once per GetOrCreate call, with one entry per
// distinct missing fingerprint, in first-appearance order.
type ComputeFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Result carries the vectors for a GetOrCreate call in the caller's
// original input order, plus hit/miss counts for observability.
type Result struct {
	Vectors [][]float32
	Hits    int
	Misses  int
}

// Cache is the content-addressed embedding cache over a CacheStore.
// Identical text embedded for the same (model, purpose) is computed once,
// across documents and across re-runs.
type Cache struct {
	store  lore.CacheStore
	logger *slog.Logger
}

// NewCache creates a Cache. logger may be nil.
func NewCache(store lore.CacheStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{store: store, logger: logger}
}

// GetOrCreate returns one vector per input text, consulting the cache by
// (fingerprint, model, purpose) and invoking compute exactly once for the
// distinct missing texts. Duplicate missing texts within the call share
// one computed vector. Newly computed vectors are persisted with
// insert-if-absent semantics, so concurrent callers racing on the same
// key never error.
//
// If compute fails, the whole call fails: the caller decides whether to
// persist items without embeddings and retry later.
func (c *Cache) GetOrCreate(ctx context.Context, texts []string, model string, purpose lore.Purpose, compute ComputeFunc) (Result, error) {
	if len(texts) == 0 {
		return Result{}, nil
	}

	keys := make([]lore.CacheKey, len(texts))
	for i, t := range texts {
		keys[i] = lore.CacheKey{ContentHash: lore.Fingerprint(t), Model: model, Purpose: purpose}
	}

	cached, err := c.store.GetCachedEmbeddings(ctx, keys)
	if err != nil {
		return Result{}, fmt.Errorf("cache lookup: %w", err)
	}

	// Distinct missing fingerprints, in first-appearance order.
	var missTexts []string
	missIndex := make(map[lore.CacheKey]int)
	for i, k := range keys {
		if _, ok := cached[k]; ok {
			continue
		}
		if _, ok := missIndex[k]; ok {
			continue
		}
		missIndex[k] = len(missTexts)
		missTexts = append(missTexts, texts[i])
	}

	computed := make(map[lore.CacheKey][]float32, len(missTexts))
	if len(missTexts) > 0 {
		vectors, err := compute(ctx, missTexts)
		if err != nil {
			return Result{}, fmt.Errorf("compute embeddings: %w", err)
		}
		if len(vectors) != len(missTexts) {
			return Result{}, fmt.Errorf("compute embeddings: got %d vectors for %d texts", len(vectors), len(missTexts))
		}

		entries := make([]lore.CacheEntry, 0, len(missTexts))
		for k, i := range missIndex {
			computed[k] = vectors[i]
			entries = append(entries, lore.CacheEntry{CacheKey: k, Vector: vectors[i]})
		}
		if err := c.store.PutCachedEmbeddings(ctx, entries); err != nil {
			return Result{}, fmt.Errorf("cache insert: %w", err)
		}
	}

	res := Result{Vectors: make([][]float32, len(texts))}
	for i, k := range keys {
		if v, ok := cached[k]; ok {
			res.Vectors[i] = v
			res.Hits++
		} else {
			res.Vectors[i] = computed[k]
			res.Misses++
		}
	}

	c.logger.Debug("embedding cache", "model", model, "purpose", purpose,
		"texts", len(texts), "hits", res.Hits, "misses", res.Misses)
	return res, nil
}
