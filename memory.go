package lore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store. It backs tests and throwaway
// sessions; data is gone when the process exits. All methods are safe for
// concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]Document
	chunks    map[string]Chunk
	entities  map[string]Entity
	mentions  map[string]EntityMention
	rels      map[string]Relationship
	cache     map[CacheKey][]float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]Document),
		chunks:    make(map[string]Chunk),
		entities:  make(map[string]Entity),
		mentions:  make(map[string]EntityMention),
		rels:      make(map[string]Relationship),
		cache:     make(map[CacheKey][]float32),
	}
}

func (s *MemoryStore) Init(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

// StoreStats are row counts across the store's tables.
type StoreStats struct {
	Documents     int
	Chunks        int
	Entities      int
	Mentions      int
	Relationships int
	CacheEntries  int
}

// Stats reports current row counts.
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		Documents:     len(s.documents),
		Chunks:        len(s.chunks),
		Entities:      len(s.entities),
		Mentions:      len(s.mentions),
		Relationships: len(s.rels),
		CacheEntries:  len(s.cache),
	}
}

// --- DocumentStore ---

func (s *MemoryStore) PutDocument(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) GetDocumentBySource(ctx context.Context, source string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.Source == source {
			return doc, nil
		}
	}
	return Document{}, ErrNotFound
}

func (s *MemoryStore) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt != docs[j].CreatedAt {
			return docs[i].CreatedAt > docs[j].CreatedAt
		}
		return docs[i].ID > docs[j].ID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	s.clearDerived(id)
	return nil
}

func (s *MemoryStore) ClearDocumentData(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDerived(id)
	return nil
}

// clearDerived removes chunks, mentions, and document-sourced
// relationships. Caller holds the write lock.
func (s *MemoryStore) clearDerived(docID string) {
	for id, c := range s.chunks {
		if c.DocumentID == docID {
			delete(s.chunks, id)
		}
	}
	for id, m := range s.mentions {
		if m.DocumentID == docID {
			delete(s.mentions, id)
		}
	}
	for id, r := range s.rels {
		if r.DocumentID == docID {
			delete(s.rels, id)
		}
	}
}

// --- ChunkStore ---

func (s *MemoryStore) PutChunks(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) GetChunksByDocument(ctx context.Context, docID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chunk
	for _, c := range s.chunks {
		if c.DocumentID == docID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *MemoryStore) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scored []ScoredChunk
	for _, c := range s.chunks {
		if c.Embedding == nil {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: cosineSimilarity(embedding, c.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// --- EntityStore ---

func (s *MemoryStore) GetEntityByNameType(ctx context.Context, name, typ string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.Name == name && e.Type == typ {
			return e, nil
		}
	}
	return Entity{}, ErrNotFound
}

func (s *MemoryStore) InsertEntityIfAbsent(ctx context.Context, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entities {
		if existing.Name == e.Name && existing.Type == e.Type {
			return existing, nil
		}
	}
	s.entities[e.ID] = e
	return e, nil
}

func (s *MemoryStore) GetEntitiesByIDs(ctx context.Context, ids []string) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entity
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutMentions(ctx context.Context, mentions []EntityMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mentions {
		s.mentions[m.ID] = m
	}
	return nil
}

func (s *MemoryStore) PutRelationships(ctx context.Context, rels []Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rels {
		s.rels[r.ID] = r
	}
	return nil
}

// --- GraphStore ---

func (s *MemoryStore) MatchEntities(ctx context.Context, query string) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(query)
	var out []Entity
	for _, e := range s.entities {
		if e.Name != "" && strings.Contains(lower, strings.ToLower(e.Name)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetNeighborEdges(ctx context.Context, entityID string, perDirection int) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Relationship, 0, len(s.rels))
	for _, r := range s.rels {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var out, in []Relationship
	for _, r := range all {
		switch {
		case r.SourceID == entityID && len(out) < perDirection:
			out = append(out, r)
		case r.TargetID == entityID && len(in) < perDirection:
			in = append(in, r)
		}
	}
	return append(out, in...), nil
}

func (s *MemoryStore) GetRelationshipsAmong(ctx context.Context, entityIDs []string) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inSet := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		inSet[id] = true
	}
	var out []Relationship
	for _, r := range s.rels {
		if inSet[r.SourceID] && inSet[r.TargetID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- CacheStore ---

func (s *MemoryStore) GetCachedEmbeddings(ctx context.Context, keys []CacheKey) (map[CacheKey][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[CacheKey][]float32)
	for _, k := range keys {
		if v, ok := s.cache[k]; ok {
			found[k] = v
		}
	}
	return found, nil
}

func (s *MemoryStore) PutCachedEmbeddings(ctx context.Context, entries []CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if _, ok := s.cache[e.CacheKey]; !ok {
			s.cache[e.CacheKey] = e.Vector
		}
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero magnitude or the lengths differ.
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
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
