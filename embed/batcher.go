package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	lore "github.com/maretho/lore"
)

const (
	defaultBatchSize   = 16
	defaultConcurrency = 2
)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize sets how many texts go into one provider call. Default 16.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithConcurrency sets how many provider calls may be in flight at once.
// Local inference backends are resource-constrained; keep this small.
// Default 2.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator wraps the embedding cache with batching and bounded
// concurrency against the provider. It is the sole concurrency boundary
// of the pipeline: callers must not assume ordering across in-flight
// batches beyond the final result being reassembled into input order.
type Orchestrator struct {
	cache       *Cache
	provider    lore.EmbeddingProvider
	model       string
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

var _ lore.Embedder = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator over the given cache store and
// provider. model is the embedding-model identifier recorded on documents
// and cache entries; changing it invalidates nothing in the cache, it
// simply keys new entries.
func NewOrchestrator(store lore.CacheStore, provider lore.EmbeddingProvider, model string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		model:       model,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cache = NewCache(store, o.logger)
	return o
}

// Model returns the embedding-model identifier this orchestrator embeds with.
func (o *Orchestrator) Model() string { return o.model }

// Cache returns the underlying embedding cache.
func (o *Orchestrator) Cache() *Cache { return o.cache }

// EmbedTexts embeds texts for the given purpose, cache first. Duplicate
// input texts are collapsed before batching so a text is computed at most
// once per call. Batches run with bounded concurrency; a provider failure
// fails only its batch.
//
// The returned slice always has one entry per input text, in input order.
// Texts whose batch failed have a nil vector, and the joined batch errors
// are returned alongside the partial result — callers that tolerate gaps
// log the error and continue.
func (o *Orchestrator) EmbedTexts(ctx context.Context, texts []string, purpose lore.Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Collapse duplicates, keeping first-appearance order.
	var distinct []string
	pos := make(map[string]int, len(texts))
	for _, t := range texts {
		if _, ok := pos[t]; !ok {
			pos[t] = len(distinct)
			distinct = append(distinct, t)
		}
	}

	vectors := make([][]float32, len(distinct))
	var (
		mu        sync.Mutex
		batchErrs []error
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for start := 0; start < len(distinct); start += o.batchSize {
		end := min(start+o.batchSize, len(distinct))
		batch := distinct[start:end]
		g.Go(func() error {
			res, err := o.cache.GetOrCreate(ctx, batch, o.model, purpose, o.provider.Embed)
			if err != nil {
				o.logger.Warn("embed batch failed", "model", o.model, "purpose", purpose,
					"batch_size", len(batch), "err", err)
				mu.Lock()
				batchErrs = append(batchErrs, fmt.Errorf("batch %d-%d: %w", start, end, err))
				mu.Unlock()
				return nil // other batches proceed
			}
			copy(vectors[start:end], res.Vectors)
			return nil
		})
	}
	_ = g.Wait() // closures never return errors; failures are collected

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectors[pos[t]]
	}
	return out, errors.Join(batchErrs...)
}

// EmbedAll is the all-or-nothing variant of EmbedTexts: any batch failure
// fails the whole call. Vectors already written to the cache by succeeded
// batches stay cached, so a retry recomputes only the failed texts.
func (o *Orchestrator) EmbedAll(ctx context.Context, texts []string, purpose lore.Purpose) ([][]float32, error) {
	vectors, err := o.EmbedTexts(ctx, texts, purpose)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
