// Package lore is the ingestion and retrieval core of a personal knowledge
// base: it turns raw text into a searchable, deduplicated, entity-linked
// knowledge graph and answers queries by combining vector similarity with
// graph traversal.
//
// # Quick Start
//
//	store := sqlite.New("lore.db")
//	embedding := openaicompat.NewEmbeddingProvider(apiKey, "nomic-embed-text", baseURL, 768)
//	chat := openaicompat.NewProvider(apiKey, "llama3.1", baseURL)
//
//	orch := embed.NewOrchestrator(store, embedding, "nomic-embed-text")
//	ing := ingest.NewIngestor(store, orch, "nomic-embed-text",
//		ingest.WithSummarizer(extract.NewSummarizer(chat)),
//		ingest.WithExtractor(extract.NewExtractor(chat)),
//	)
//
//	doc, err := ing.Ingest(ctx, "Notes", "notes.md", content)
//
//	retriever := lore.NewGraphRetriever(store, orch)
//	result, err := retriever.Retrieve(ctx, "what builds beta?", 5)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Store] — relational persistence with vector search and the
//     content-addressed embedding cache
//   - [EmbeddingProvider] — text-to-vector embedding backend
//   - [Embedder] — cache-aware batched embedding (embed.Orchestrator)
//   - [Provider] — LLM chat backend for summarization and extraction
//   - [Summarizer], [Extractor] — best-effort AI stages of ingestion
//
// # Included Implementations
//
// Storage: store/sqlite (pure Go, local), store/postgres (pgvector).
// Providers: provider/openaicompat (OpenAI-compatible APIs, including
// local inference servers). Content acquisition: fetch (URL readability,
// PDF, markdown). See cmd/lore for a complete wiring example.
package lore
