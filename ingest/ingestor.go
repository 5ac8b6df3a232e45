package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lore "github.com/maretho/lore"
)

// extractPrefixChars bounds how much raw content is handed to the
// extractor when no summary is available.
const extractPrefixChars = 6000

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithSummarizer enables best-effort document summarization.
func WithSummarizer(s lore.Summarizer) IngestOption {
	return func(ing *Ingestor) { ing.summarizer = s }
}

// WithExtractor enables best-effort entity/relationship extraction.
func WithExtractor(e lore.Extractor) IngestOption {
	return func(ing *Ingestor) { ing.extractor = e }
}

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) IngestOption {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithIngestLogger sets the logger. Default discards.
func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// Ingestor drives one document through the pipeline: change detection,
// chunking, best-effort summary and extraction, cache-aware embedding,
// persistence, and graph upsert. Documents move pending -> processing ->
// completed | failed; failed is re-enterable by ingesting again, never
// auto-retried.
type Ingestor struct {
	store      lore.Store
	embedder   lore.Embedder
	model      string
	chunker    *Chunker
	resolver   *Resolver
	summarizer lore.Summarizer
	extractor  lore.Extractor
	logger     *slog.Logger
}

// NewIngestor creates an Ingestor. model is the embedding model identifier
// recorded on documents; it feeds change detection, so pass the same value
// the embedder uses.
func NewIngestor(store lore.Store, embedder lore.Embedder, model string, opts ...IngestOption) *Ingestor {
	ing := &Ingestor{
		store:    store,
		embedder: embedder,
		model:    model,
		chunker:  NewChunker(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(ing)
	}
	ing.resolver = NewResolver(store, embedder, ing.logger)
	return ing
}

// Ingest runs the full pipeline for one document. If a document with the
// same source already exists it is re-ingested: unchanged completed
// documents short-circuit as a no-op, changed ones get a full replace of
// their chunks, mentions, and document-sourced relationships.
//
// Fetch and persistence failures fail the document; summarization,
// extraction, and embedding failures degrade (null summary, empty graph,
// chunks left pending) and the document still completes.
func (ing *Ingestor) Ingest(ctx context.Context, title, source, content string) (lore.Document, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return lore.Document{}, errors.New("ingest: empty content")
	}

	doc, fresh, err := ing.prepare(ctx, title, source, content)
	if err != nil {
		return lore.Document{}, err
	}
	if !fresh {
		// Unchanged and already completed: nothing to do.
		ing.logger.Debug("document unchanged", "document", doc.ID, "source", source)
		return doc, nil
	}
	return ing.run(ctx, doc)
}

// Reingest re-runs the pipeline for a stored document using its stored
// content. A completed document whose embedding model is still current is
// a no-op; anything else (failed, or model changed) gets a full replace.
func (ing *Ingestor) Reingest(ctx context.Context, id string) (lore.Document, error) {
	doc, err := ing.store.GetDocument(ctx, id)
	if err != nil {
		return lore.Document{}, err
	}
	changed := NeedsReprocessing(doc.Content, doc.ContentHash, doc.EmbeddingModel, ing.model)
	if !changed && doc.Status == lore.DocCompleted {
		return doc, nil
	}
	if err := ing.store.ClearDocumentData(ctx, doc.ID); err != nil {
		return lore.Document{}, fmt.Errorf("clear prior data: %w", err)
	}
	doc.ContentHash = lore.Fingerprint(doc.Content)
	doc.Summary = ""
	doc.EmbeddingModel = ing.model
	return ing.run(ctx, doc)
}

// run drives a prepared document through processing to a terminal state.
func (ing *Ingestor) run(ctx context.Context, doc lore.Document) (lore.Document, error) {
	doc.Status = lore.DocProcessing
	doc.UpdatedAt = lore.NowUnix()
	if err := ing.store.PutDocument(ctx, doc); err != nil {
		return lore.Document{}, fmt.Errorf("mark processing: %w", err)
	}

	if err := ing.process(ctx, &doc); err != nil {
		doc.Status = lore.DocFailed
		doc.UpdatedAt = lore.NowUnix()
		if putErr := ing.store.PutDocument(ctx, doc); putErr != nil {
			ing.logger.Error("mark failed", "document", doc.ID, "err", putErr)
		}
		return doc, fmt.Errorf("ingest %s: %w", doc.ID, err)
	}

	doc.Status = lore.DocCompleted
	doc.UpdatedAt = lore.NowUnix()
	if err := ing.store.PutDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("mark completed: %w", err)
	}
	ing.logger.Info("document ingested", "document", doc.ID, "title", doc.Title, "status", doc.Status)
	return doc, nil
}

// prepare resolves the document row to work on. fresh is false when the
// existing document is completed and neither content nor model changed.
// A changed or previously failed document has its derived data cleared
// for a full replace.
func (ing *Ingestor) prepare(ctx context.Context, title, source, content string) (doc lore.Document, fresh bool, err error) {
	if source != "" {
		existing, err := ing.store.GetDocumentBySource(ctx, source)
		switch {
		case err == nil:
			changed := NeedsReprocessing(content, existing.ContentHash, existing.EmbeddingModel, ing.model)
			if !changed && existing.Status == lore.DocCompleted {
				return existing, false, nil
			}
			// Full replace: stale chunks, mentions, and edges from the
			// previous run would otherwise survive alongside the new ones.
			if err := ing.store.ClearDocumentData(ctx, existing.ID); err != nil {
				return lore.Document{}, false, fmt.Errorf("clear prior data: %w", err)
			}
			existing.Title = title
			existing.Content = content
			existing.ContentHash = lore.Fingerprint(content)
			existing.Summary = ""
			existing.EmbeddingModel = ing.model
			existing.Status = lore.DocPending
			return existing, true, nil
		case err != lore.ErrNotFound:
			return lore.Document{}, false, fmt.Errorf("lookup by source: %w", err)
		}
	}

	now := lore.NowUnix()
	doc = lore.Document{
		ID:             lore.NewID(),
		Title:          title,
		Source:         source,
		Content:        content,
		ContentHash:    lore.Fingerprint(content),
		Status:         lore.DocPending,
		EmbeddingModel: ing.model,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ing.store.PutDocument(ctx, doc); err != nil {
		return lore.Document{}, false, fmt.Errorf("create document: %w", err)
	}
	return doc, true, nil
}

// process runs chunk -> summarize -> extract -> embed -> persist -> graph
// for a document already marked processing. Errors returned here fail the
// document.
func (ing *Ingestor) process(ctx context.Context, doc *lore.Document) error {
	segs := ing.chunker.Split(doc.Content)
	segs, dropped := DedupeSegments(segs)
	if dropped > 0 {
		ing.logger.Debug("duplicate segments collapsed", "document", doc.ID, "dropped", dropped)
	}

	doc.Summary = ing.summarize(ctx, doc)
	ext := ing.extract(ctx, doc)

	chunks, err := ing.embedAndBuild(ctx, doc.ID, segs)
	if err != nil {
		return err
	}
	if len(chunks) > 0 {
		if err := ing.store.PutChunks(ctx, chunks); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}

	stats, err := ing.resolver.Apply(ctx, *doc, chunks, ext)
	if err != nil {
		return fmt.Errorf("graph upsert: %w", err)
	}
	ing.logger.Debug("graph applied",
		"document", doc.ID,
		"created", stats.EntitiesCreated,
		"reused", stats.EntitiesReused,
		"relationships", stats.Relationships,
		"dropped_edges", stats.DroppedEdges)
	return nil
}

// summarize is best-effort: a provider failure logs and yields no summary.
func (ing *Ingestor) summarize(ctx context.Context, doc *lore.Document) string {
	if ing.summarizer == nil {
		return ""
	}
	summary, err := ing.summarizer.Summarize(ctx, doc.Content)
	if err != nil {
		ing.logger.Warn("summarization skipped", "document", doc.ID, "err", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// extract is best-effort: a provider failure logs and yields an empty
// extraction. It prefers the summary and falls back to a content prefix.
func (ing *Ingestor) extract(ctx context.Context, doc *lore.Document) lore.Extraction {
	if ing.extractor == nil {
		return lore.Extraction{}
	}
	text := doc.Summary
	if text == "" {
		text = doc.Content
		if len(text) > extractPrefixChars {
			text = text[:extractPrefixChars]
		}
	}
	ext, err := ing.extractor.Extract(ctx, text)
	if err != nil {
		ing.logger.Warn("extraction skipped", "document", doc.ID, "err", err)
		return lore.Extraction{}
	}
	return ext
}

// embedAndBuild embeds segment texts for retrieval and builds chunk rows.
// Embedding is partial-tolerant: a chunk whose batch failed is persisted
// without a vector and marked pending.
func (ing *Ingestor) embedAndBuild(ctx context.Context, docID string, segs []Segment) ([]lore.Chunk, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
	}
	vectors, err := ing.embedder.EmbedTexts(ctx, texts, lore.PurposeRetrieval)
	if err != nil {
		ing.logger.Warn("chunk embedding degraded", "document", docID, "err", err)
	}

	chunks := make([]lore.Chunk, len(segs))
	pending := 0
	for i, s := range segs {
		c := lore.Chunk{
			ID:          lore.NewID(),
			DocumentID:  docID,
			ChunkIndex:  s.Index,
			Content:     s.Text,
			ContentHash: s.Hash,
			TokenCount:  s.Tokens,
			EmbedStatus: lore.EmbedPending,
		}
		if vectors != nil && vectors[i] != nil {
			c.Embedding = vectors[i]
			c.EmbedStatus = lore.Embedded
		} else {
			pending++
		}
		chunks[i] = c
	}
	if pending > 0 {
		ing.logger.Warn("chunks left pending embedding", "document", docID, "pending", pending)
	}
	return chunks, nil
}

// Status returns the document's coarse pipeline state.
func (ing *Ingestor) Status(ctx context.Context, id string) (lore.DocStatus, error) {
	doc, err := ing.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// ReingestAll re-runs the pipeline over every stored document using its
// stored content. Unchanged completed documents are no-ops; each failure
// is collected and the rest continue.
func (ing *Ingestor) ReingestAll(ctx context.Context) error {
	docs, err := ing.store.ListDocuments(ctx, 0)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	var errs []error
	for _, doc := range docs {
		if _, err := ing.Reingest(ctx, doc.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
