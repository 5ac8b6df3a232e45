// Package postgres implements lore.Store using PostgreSQL with pgvector
// for native vector similarity search. Vector search uses HNSW indexes
// with cosine distance; the graph tables ride on ordinary B-tree indexes.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	lore "github.com/maretho/lore"
)

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 768,
// 1536). When set, CREATE TABLE uses vector(N) instead of untyped
// vector, catching dimension mismatches at insert time. Only affects new
// table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter. Higher
// values improve index quality at the cost of slower builds.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// Store implements lore.Store backed by PostgreSQL with pgvector.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

var _ lore.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool. The caller owns
// the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, tables, and indexes. All
// statements are idempotent.
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_source_idx ON documents(source)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding %s,
			embed_status TEXT NOT NULL DEFAULT 'pending',
			UNIQUE(document_id, chunk_index)
		)`, vtype),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			embedding %s,
			UNIQUE(name, type)
		)`, vtype),

		`CREATE TABLE IF NOT EXISTS entity_mentions (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS mentions_document_idx ON entity_mentions(document_id)`,

		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			target_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			rel_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			weight REAL NOT NULL DEFAULT 1,
			document_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS rels_source_idx ON relationships(source_id)`,
		`CREATE INDEX IF NOT EXISTS rels_target_idx ON relationships(target_id)`,
		`CREATE INDEX IF NOT EXISTS rels_document_idx ON relationships(document_id)`,

		`CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT NOT NULL,
			model TEXT NOT NULL,
			purpose TEXT NOT NULL,
			embedding TEXT NOT NULL,
			PRIMARY KEY (content_hash, model, purpose)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// --- DocumentStore ---

func (s *Store) PutDocument(ctx context.Context, doc lore.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, source, content, content_hash, summary, status, embedding_model, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, source = EXCLUDED.source, content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash, summary = EXCLUDED.summary,
			status = EXCLUDED.status, embedding_model = EXCLUDED.embedding_model,
			updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Title, doc.Source, doc.Content, doc.ContentHash,
		doc.Summary, string(doc.Status), doc.EmbeddingModel, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put document: %w", err)
	}
	return nil
}

const documentCols = `id, title, source, content, content_hash, summary, status, embedding_model, created_at, updated_at`

func scanDocument(row pgx.Row) (lore.Document, error) {
	var d lore.Document
	var status string
	err := row.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &d.ContentHash,
		&d.Summary, &status, &d.EmbeddingModel, &d.CreatedAt, &d.UpdatedAt)
	d.Status = lore.DocStatus(status)
	return d, err
}

func (s *Store) GetDocument(ctx context.Context, id string) (lore.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return lore.Document{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	return doc, nil
}

func (s *Store) GetDocumentBySource(ctx context.Context, source string) (lore.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE source = $1 ORDER BY created_at DESC LIMIT 1`, source))
	if err == pgx.ErrNoRows {
		return lore.Document{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Document{}, fmt.Errorf("postgres: get document by source: %w", err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, limit int) ([]lore.Document, error) {
	query := `SELECT ` + documentCols + ` FROM documents ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []lore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document row; chunks and mentions cascade.
// Document-sourced relationships carry no FK and are deleted explicitly.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete relationships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) ClearDocumentData(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM entity_mentions WHERE document_id = $1`,
		`DELETE FROM chunks WHERE document_id = $1`,
		`DELETE FROM relationships WHERE document_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("postgres: clear document data: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// --- ChunkStore ---

func (s *Store) PutChunks(ctx context.Context, chunks []lore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range chunks {
		var embStr *string
		if len(c.Embedding) > 0 {
			v := serializeEmbedding(c.Embedding)
			embStr = &v
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, content_hash, token_count, embedding, embed_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content, content_hash = EXCLUDED.content_hash,
				token_count = EXCLUDED.token_count, embedding = EXCLUDED.embedding,
				embed_status = EXCLUDED.embed_status`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ContentHash,
			c.TokenCount, embStr, string(c.EmbedStatus))
		if err != nil {
			return fmt.Errorf("postgres: put chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetChunksByDocument(ctx context.Context, docID string) ([]lore.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, token_count, embedding::text, embed_status
		 FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []lore.Chunk
	for rows.Next() {
		var c lore.Chunk
		var embStr *string
		var status string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.ContentHash, &c.TokenCount, &embStr, &status); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		c.EmbedStatus = lore.EmbedStatus(status)
		if embStr != nil {
			c.Embedding = parseVector(*embStr)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchChunks uses pgvector's cosine distance operator with the HNSW
// index; score is 1 - distance.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]lore.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, token_count, embed_status,
		        1 - (embedding <=> $1::vector) AS score
		 FROM chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		serializeEmbedding(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search chunks: %w", err)
	}
	defer rows.Close()

	var results []lore.ScoredChunk
	for rows.Next() {
		var c lore.Chunk
		var status string
		var score float32
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.ContentHash, &c.TokenCount, &status, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		c.EmbedStatus = lore.EmbedStatus(status)
		results = append(results, lore.ScoredChunk{Chunk: c, Score: score})
	}
	return results, rows.Err()
}

// --- EntityStore ---

const entityCols = `id, name, type, description, embedding::text`

func scanEntity(row pgx.Row) (lore.Entity, error) {
	var e lore.Entity
	var embStr *string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &embStr); err != nil {
		return lore.Entity{}, err
	}
	if embStr != nil {
		e.Embedding = parseVector(*embStr)
	}
	return e, nil
}

func (s *Store) GetEntityByNameType(ctx context.Context, name, typ string) (lore.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx,
		`SELECT `+entityCols+` FROM entities WHERE name = $1 AND type = $2`, name, typ))
	if err == pgx.ErrNoRows {
		return lore.Entity{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Entity{}, fmt.Errorf("postgres: get entity: %w", err)
	}
	return e, nil
}

// InsertEntityIfAbsent resolves duplicate-key races with ON CONFLICT DO
// NOTHING followed by a re-read of the winning row.
func (s *Store) InsertEntityIfAbsent(ctx context.Context, e lore.Entity) (lore.Entity, error) {
	var embStr *string
	if len(e.Embedding) > 0 {
		v := serializeEmbedding(e.Embedding)
		embStr = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, name, type, description, embedding)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name, type) DO NOTHING`,
		e.ID, e.Name, e.Type, e.Description, embStr)
	if err != nil {
		return lore.Entity{}, fmt.Errorf("postgres: insert entity: %w", err)
	}
	canonical, err := s.GetEntityByNameType(ctx, e.Name, e.Type)
	if err != nil {
		return lore.Entity{}, fmt.Errorf("postgres: reread entity %q: %w", e.Name, err)
	}
	return canonical, nil
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, ids []string) ([]lore.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get entities: %w", err)
	}
	defer rows.Close()

	var entities []lore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) PutMentions(ctx context.Context, mentions []lore.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, m := range mentions {
		_, err := tx.Exec(ctx,
			`INSERT INTO entity_mentions (id, chunk_id, document_id, entity_id)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
			m.ID, m.ChunkID, m.DocumentID, m.EntityID)
		if err != nil {
			return fmt.Errorf("postgres: put mention: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) PutRelationships(ctx context.Context, rels []lore.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rels {
		_, err := tx.Exec(ctx,
			`INSERT INTO relationships (id, source_id, target_id, rel_type, description, weight, document_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			r.ID, r.SourceID, r.TargetID, r.RelType, r.Description, r.Weight, r.DocumentID)
		if err != nil {
			return fmt.Errorf("postgres: put relationship: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// --- GraphStore ---

func (s *Store) MatchEntities(ctx context.Context, query string) ([]lore.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityCols+` FROM entities
		 WHERE name <> '' AND position(lower(name) in lower($1)) > 0
		 ORDER BY name`, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: match entities: %w", err)
	}
	defer rows.Close()

	var entities []lore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) GetNeighborEdges(ctx context.Context, entityID string, perDirection int) ([]lore.Relationship, error) {
	out, err := s.queryRelationships(ctx,
		`SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE source_id = $1 ORDER BY weight DESC, id LIMIT $2`,
		entityID, perDirection)
	if err != nil {
		return nil, err
	}
	in, err := s.queryRelationships(ctx,
		`SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE target_id = $1 ORDER BY weight DESC, id LIMIT $2`,
		entityID, perDirection)
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

func (s *Store) GetRelationshipsAmong(ctx context.Context, entityIDs []string) ([]lore.Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	return s.queryRelationships(ctx,
		`SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE source_id = ANY($1) AND target_id = ANY($1) ORDER BY id`,
		entityIDs)
}

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]lore.Relationship, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query relationships: %w", err)
	}
	defer rows.Close()

	var rels []lore.Relationship
	for rows.Next() {
		var r lore.Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelType,
			&r.Description, &r.Weight, &r.DocumentID); err != nil {
			return nil, fmt.Errorf("postgres: scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// --- CacheStore ---

func (s *Store) GetCachedEmbeddings(ctx context.Context, keys []lore.CacheKey) (map[lore.CacheKey][]float32, error) {
	found := make(map[lore.CacheKey][]float32, len(keys))
	for _, k := range keys {
		var embStr string
		err := s.pool.QueryRow(ctx,
			`SELECT embedding FROM embedding_cache WHERE content_hash = $1 AND model = $2 AND purpose = $3`,
			k.ContentHash, k.Model, string(k.Purpose)).Scan(&embStr)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("postgres: get cached embedding: %w", err)
		}
		if v := parseVector(embStr); v != nil {
			found[k] = v
		}
	}
	return found, nil
}

func (s *Store) PutCachedEmbeddings(ctx context.Context, entries []lore.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO embedding_cache (content_hash, model, purpose, embedding)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (content_hash, model, purpose) DO NOTHING`,
			e.ContentHash, e.Model, string(e.Purpose), serializeEmbedding(e.Vector))
		if err != nil {
			return fmt.Errorf("postgres: put cached embedding: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// --- helpers ---

// serializeEmbedding renders a vector in pgvector's text format: [1,2,3].
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector parses pgvector's text format back into a slice. Malformed
// input yields nil.
func parseVector(s string) []float32 {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		out[i] = float32(f)
	}
	return out
}
