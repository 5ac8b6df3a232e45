// Package ingest turns raw document text into the persisted knowledge
// graph: chunking, change detection, best-effort summarization and
// extraction, cache-aware embedding, and entity/relationship upsert.
// Ingestion of one document is sequential request-scoped work; the only
// internal concurrency lives in the embedding orchestrator it calls.
package ingest
