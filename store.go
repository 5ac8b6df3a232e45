package lore

import "context"

// CacheKey identifies one embedding-cache entry. Entries are immutable:
// written once, never updated.
type CacheKey struct {
	ContentHash string
	Model       string
	Purpose     Purpose
}

// CacheEntry is a cached embedding vector under its content-addressed key.
type CacheEntry struct {
	CacheKey
	Vector []float32
}

// DocumentStore persists documents and their ingestion state.
type DocumentStore interface {
	// PutDocument inserts or replaces a document row.
	PutDocument(ctx context.Context, doc Document) error
	// GetDocument returns a document by ID, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (Document, error)
	// GetDocumentBySource returns a document by its source locator, or ErrNotFound.
	GetDocumentBySource(ctx context.Context, source string) (Document, error)
	// ListDocuments returns documents ordered by most recently created first.
	// limit <= 0 means no limit.
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	// DeleteDocument removes a document and everything it owns: chunks,
	// mentions, and document-sourced relationships. Entities survive.
	DeleteDocument(ctx context.Context, id string) error
	// ClearDocumentData removes a document's chunks, mentions, and
	// document-sourced relationships but keeps the document row. Used by
	// re-ingestion full replace.
	ClearDocumentData(ctx context.Context, id string) error
}

// ChunkStore persists chunks and serves vector search.
type ChunkStore interface {
	// PutChunks inserts a document's chunks in one transaction.
	PutChunks(ctx context.Context, chunks []Chunk) error
	// GetChunksByDocument returns a document's chunks ordered by index.
	GetChunksByDocument(ctx context.Context, docID string) ([]Chunk, error)
	// SearchChunks ranks chunks with a non-null embedding by cosine
	// similarity to the query vector, descending, and returns the top K.
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error)
}

// EntityStore persists knowledge-graph nodes, mention links, and edges.
type EntityStore interface {
	// GetEntityByNameType returns the entity with the exact (name, type)
	// natural key, or ErrNotFound.
	GetEntityByNameType(ctx context.Context, name, typ string) (Entity, error)
	// InsertEntityIfAbsent inserts the entity unless one with the same
	// (name, type) already exists, in which case the existing row is
	// returned. Safe under concurrent writers racing on the same key.
	InsertEntityIfAbsent(ctx context.Context, e Entity) (Entity, error)
	// GetEntitiesByIDs returns entities for the given IDs; missing IDs are
	// skipped, not errors.
	GetEntitiesByIDs(ctx context.Context, ids []string) ([]Entity, error)
	// PutMentions inserts chunk-to-entity mention links.
	PutMentions(ctx context.Context, mentions []EntityMention) error
	// PutRelationships inserts relationship edges.
	PutRelationships(ctx context.Context, rels []Relationship) error
}

// GraphStore serves graph traversal for retrieval.
type GraphStore interface {
	// MatchEntities returns entities whose name appears as a
	// case-insensitive substring of the query text.
	MatchEntities(ctx context.Context, query string) ([]Entity, error)
	// GetNeighborEdges returns up to perDirection outgoing and perDirection
	// incoming relationship edges for the entity, outgoing first.
	GetNeighborEdges(ctx context.Context, entityID string, perDirection int) ([]Relationship, error)
	// GetRelationshipsAmong returns edges whose source and target are both
	// in the given ID set.
	GetRelationshipsAmong(ctx context.Context, entityIDs []string) ([]Relationship, error)
}

// CacheStore is the content-addressed embedding cache. It is shared across
// concurrent ingestions; inserts are insert-if-absent so writers racing on
// the same key never error.
type CacheStore interface {
	// GetCachedEmbeddings returns the subset of keys present in the cache.
	GetCachedEmbeddings(ctx context.Context, keys []CacheKey) (map[CacheKey][]float32, error)
	// PutCachedEmbeddings inserts entries, skipping keys that already exist.
	PutCachedEmbeddings(ctx context.Context, entries []CacheEntry) error
}

// Store aggregates all persistence capabilities the core needs. Backends
// live under store/ (sqlite, postgres).
type Store interface {
	DocumentStore
	ChunkStore
	EntityStore
	GraphStore
	CacheStore

	// Init creates tables and indexes. Safe to call multiple times.
	Init(ctx context.Context) error
	Close() error
}
