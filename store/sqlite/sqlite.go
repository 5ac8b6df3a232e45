// Package sqlite implements lore.Store using pure-Go SQLite with
// in-process brute-force vector search. Zero CGO required; suited for a
// single-user knowledge base up to tens of thousands of chunks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	lore "github.com/maretho/lore"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger. When set, the store emits debug
// logs with timing and row counts. Default discards.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements lore.Store backed by a local SQLite file. Embeddings
// are stored as JSON text and vector search runs in-process with
// brute-force cosine similarity.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ lore.Store = (*Store)(nil)

// New creates a Store at dbPath. The pool is capped at one connection so
// concurrent writers serialize instead of hitting SQLITE_BUSY.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all tables and indexes. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding TEXT,
			embed_status TEXT NOT NULL DEFAULT 'pending',
			UNIQUE(document_id, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			embedding TEXT,
			UNIQUE(name, type)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_mentions (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			entity_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_document ON entity_mentions(document_id)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			rel_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			weight REAL NOT NULL DEFAULT 1,
			document_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rels_source ON relationships(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rels_target ON relationships(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rels_document ON relationships(document_id)`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT NOT NULL,
			model TEXT NOT NULL,
			purpose TEXT NOT NULL,
			embedding TEXT NOT NULL,
			PRIMARY KEY (content_hash, model, purpose)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	s.logger.Debug("sqlite: schema ready")
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// --- DocumentStore ---

func (s *Store) PutDocument(ctx context.Context, doc lore.Document) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents
		 (id, title, source, content, content_hash, summary, status, embedding_model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, doc.Content, doc.ContentHash,
		doc.Summary, string(doc.Status), doc.EmbeddingModel, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: put document failed", "id", doc.ID, "error", err)
		return fmt.Errorf("put document: %w", err)
	}
	s.logger.Debug("sqlite: put document", "id", doc.ID, "status", doc.Status, "duration", time.Since(start))
	return nil
}

const documentCols = `id, title, source, content, content_hash, summary, status, embedding_model, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (lore.Document, error) {
	var d lore.Document
	var status string
	err := row.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &d.ContentHash,
		&d.Summary, &status, &d.EmbeddingModel, &d.CreatedAt, &d.UpdatedAt)
	d.Status = lore.DocStatus(status)
	return d, err
}

func (s *Store) GetDocument(ctx context.Context, id string) (lore.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return lore.Document{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *Store) GetDocumentBySource(ctx context.Context, source string) (lore.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE source = ?
		 ORDER BY created_at DESC LIMIT 1`, source)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return lore.Document{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Document{}, fmt.Errorf("get document by source: %w", err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, limit int) ([]lore.Document, error) {
	query := `SELECT ` + documentCols + ` FROM documents ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []lore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := clearDerived(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.logger.Debug("sqlite: document deleted", "id", id)
	return nil
}

func (s *Store) ClearDocumentData(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := clearDerived(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	s.logger.Debug("sqlite: document data cleared", "id", id)
	return nil
}

// clearDerived deletes everything a document owns. Entities are shared
// across documents and stay.
func clearDerived(ctx context.Context, tx *sql.Tx, docID string) error {
	for _, stmt := range []string{
		`DELETE FROM chunks WHERE document_id = ?`,
		`DELETE FROM entity_mentions WHERE document_id = ?`,
		`DELETE FROM relationships WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, docID); err != nil {
			return fmt.Errorf("clear document data: %w", err)
		}
	}
	return nil
}

// --- ChunkStore ---

func (s *Store) PutChunks(ctx context.Context, chunks []lore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range chunks {
		var embJSON *string
		if len(c.Embedding) > 0 {
			v := serializeEmbedding(c.Embedding)
			embJSON = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks
			 (id, document_id, chunk_index, content, content_hash, token_count, embedding, embed_status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ContentHash,
			c.TokenCount, embJSON, string(c.EmbedStatus),
		)
		if err != nil {
			s.logger.Error("sqlite: put chunk failed", "id", c.ID, "error", err)
			return fmt.Errorf("put chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	s.logger.Debug("sqlite: put chunks", "count", len(chunks), "duration", time.Since(start))
	return nil
}

func (s *Store) GetChunksByDocument(ctx context.Context, docID string) ([]lore.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, token_count, embedding, embed_status
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []lore.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(rows *sql.Rows) (lore.Chunk, error) {
	var c lore.Chunk
	var embJSON sql.NullString
	var status string
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
		&c.ContentHash, &c.TokenCount, &embJSON, &status); err != nil {
		return lore.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	c.EmbedStatus = lore.EmbedStatus(status)
	if embJSON.Valid {
		c.Embedding, _ = deserializeEmbedding(embJSON.String)
	}
	return c, nil
}

// SearchChunks is a brute-force scan over every embedded chunk. Fine for
// a personal corpus; switch to the postgres store past that.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]lore.ScoredChunk, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, token_count, embedding, embed_status
		 FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []lore.ScoredChunk
	scanned := 0
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		scanned++
		if c.Embedding == nil {
			continue
		}
		results = append(results, lore.ScoredChunk{Chunk: c, Score: cosineSimilarity(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search chunks", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// --- EntityStore ---

func (s *Store) GetEntityByNameType(ctx context.Context, name, typ string) (lore.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, description, embedding FROM entities WHERE name = ? AND type = ?`,
		name, typ)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return lore.Entity{}, lore.ErrNotFound
	}
	if err != nil {
		return lore.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func scanEntity(row interface{ Scan(...any) error }) (lore.Entity, error) {
	var e lore.Entity
	var embJSON sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &embJSON); err != nil {
		return lore.Entity{}, err
	}
	if embJSON.Valid {
		e.Embedding, _ = deserializeEmbedding(embJSON.String)
	}
	return e, nil
}

// InsertEntityIfAbsent resolves duplicate-key races by inserting with OR
// IGNORE and re-reading the winning row.
func (s *Store) InsertEntityIfAbsent(ctx context.Context, e lore.Entity) (lore.Entity, error) {
	var embJSON *string
	if len(e.Embedding) > 0 {
		v := serializeEmbedding(e.Embedding)
		embJSON = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (id, name, type, description, embedding)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Type, e.Description, embJSON)
	if err != nil {
		return lore.Entity{}, fmt.Errorf("insert entity: %w", err)
	}
	canonical, err := s.GetEntityByNameType(ctx, e.Name, e.Type)
	if err != nil {
		return lore.Entity{}, fmt.Errorf("reread entity %q: %w", e.Name, err)
	}
	return canonical, nil
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, ids []string) ([]lore.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, name, type, description, embedding FROM entities WHERE id IN (` +
		placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, toAny(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	defer rows.Close()

	var entities []lore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func (s *Store) PutMentions(ctx context.Context, mentions []lore.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range mentions {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO entity_mentions (id, chunk_id, document_id, entity_id)
			 VALUES (?, ?, ?, ?)`,
			m.ID, m.ChunkID, m.DocumentID, m.EntityID)
		if err != nil {
			return fmt.Errorf("put mention: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) PutRelationships(ctx context.Context, rels []lore.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rels {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO relationships (id, source_id, target_id, rel_type, description, weight, document_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SourceID, r.TargetID, r.RelType, r.Description, r.Weight, r.DocumentID)
		if err != nil {
			return fmt.Errorf("put relationship: %w", err)
		}
	}
	return tx.Commit()
}

// --- GraphStore ---

// MatchEntities finds entities whose name occurs in the query text,
// case-insensitively.
func (s *Store) MatchEntities(ctx context.Context, query string) ([]lore.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, description, embedding FROM entities
		 WHERE name != '' AND instr(lower(?), lower(name)) > 0
		 ORDER BY name`, query)
	if err != nil {
		return nil, fmt.Errorf("match entities: %w", err)
	}
	defer rows.Close()

	var entities []lore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func (s *Store) GetNeighborEdges(ctx context.Context, entityID string, perDirection int) ([]lore.Relationship, error) {
	out, err := s.queryRelationships(ctx,
		`SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE source_id = ? ORDER BY weight DESC, id LIMIT ?`,
		entityID, perDirection)
	if err != nil {
		return nil, err
	}
	in, err := s.queryRelationships(ctx,
		`SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE target_id = ? ORDER BY weight DESC, id LIMIT ?`,
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
	ph := placeholders(len(entityIDs))
	query := `SELECT id, source_id, target_id, rel_type, description, weight, document_id
		 FROM relationships WHERE source_id IN (` + ph + `) AND target_id IN (` + ph + `) ORDER BY id`
	args := append(toAny(entityIDs), toAny(entityIDs)...)
	return s.queryRelationships(ctx, query, args...)
}

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]lore.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []lore.Relationship
	for rows.Next() {
		var r lore.Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelType,
			&r.Description, &r.Weight, &r.DocumentID); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return rels, nil
}

// --- CacheStore ---

func (s *Store) GetCachedEmbeddings(ctx context.Context, keys []lore.CacheKey) (map[lore.CacheKey][]float32, error) {
	found := make(map[lore.CacheKey][]float32, len(keys))
	for _, k := range keys {
		var embJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT embedding FROM embedding_cache WHERE content_hash = ? AND model = ? AND purpose = ?`,
			k.ContentHash, k.Model, string(k.Purpose)).Scan(&embJSON)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get cached embedding: %w", err)
		}
		v, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		found[k] = v
	}
	return found, nil
}

func (s *Store) PutCachedEmbeddings(ctx context.Context, entries []lore.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO embedding_cache (content_hash, model, purpose, embedding)
			 VALUES (?, ?, ?, ?)`,
			e.ContentHash, e.Model, string(e.Purpose), serializeEmbedding(e.Vector))
		if err != nil {
			return fmt.Errorf("put cached embedding: %w", err)
		}
	}
	return tx.Commit()
}

// --- helpers ---

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
