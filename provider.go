package lore

import "context"

// Provider is an LLM chat backend used for summarization and extraction.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string
}

// EmbeddingProvider abstracts text embedding. A single call may fail as a
// whole; callers batch and degrade per batch.
type EmbeddingProvider interface {
	// Embed returns embedding vectors for the given texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// Embedder produces cache-aware embeddings for a given purpose. The
// embed.Orchestrator is the canonical implementation: it consults the
// embedding cache, batches misses, and bounds provider concurrency.
// A nil vector in the result means that text's batch failed; callers
// decide whether to tolerate the gap.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error)
}

// Summarizer condenses document text. Best-effort: ingestion treats a
// failure as "no summary", never as a pipeline error.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Extractor pulls entities and relationships out of text. Best-effort:
// ingestion substitutes an empty Extraction on failure.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}
