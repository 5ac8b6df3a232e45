package lore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// queryEmbedder maps known texts to fixed vectors.
type queryEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (e *queryEmbedder) EmbedTexts(_ context.Context, texts []string, _ Purpose) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectors[t]
	}
	return out, nil
}

func seedChunks(t *testing.T, store *MemoryStore) {
	t.Helper()
	chunks := []Chunk{
		{ID: "c-high", DocumentID: "d1", ChunkIndex: 0, Content: "high", Embedding: []float32{1, 0}, EmbedStatus: Embedded},
		{ID: "c-mid", DocumentID: "d1", ChunkIndex: 1, Content: "mid", Embedding: []float32{1, 0.75}, EmbedStatus: Embedded},
		{ID: "c-low", DocumentID: "d1", ChunkIndex: 2, Content: "low", Embedding: []float32{0, 1}, EmbedStatus: Embedded},
		{ID: "c-pending", DocumentID: "d1", ChunkIndex: 3, Content: "pending", EmbedStatus: EmbedPending},
	}
	if err := store.PutChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
}

func seedGraph(t *testing.T, store *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []Entity{
		{ID: "e-alpha", Name: "Alpha", Type: "technology"},
		{ID: "e-beta", Name: "Beta", Type: "technology"},
		{ID: "e-gamma", Name: "Gamma", Type: "concept"},
	} {
		if _, err := store.InsertEntityIfAbsent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	rels := []Relationship{
		{ID: "r1", SourceID: "e-alpha", TargetID: "e-beta", RelType: "built_with", DocumentID: "d1"},
		{ID: "r2", SourceID: "e-gamma", TargetID: "e-alpha", RelType: "describes", DocumentID: "d1"},
	}
	if err := store.PutRelationships(ctx, rels); err != nil {
		t.Fatal(err)
	}
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	store := NewMemoryStore()
	seedChunks(t, store)
	embedder := &queryEmbedder{vectors: map[string][]float32{"find high": {1, 0}}}
	r := NewGraphRetriever(store, embedder)

	res, err := r.Retrieve(context.Background(), "find high", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(res.Chunks))
	}
	if res.Chunks[0].ID != "c-high" || res.Chunks[1].ID != "c-mid" {
		t.Errorf("order = [%s, %s], want [c-high, c-mid]", res.Chunks[0].ID, res.Chunks[1].ID)
	}
	if res.Chunks[0].Score < res.Chunks[1].Score {
		t.Error("scores not descending")
	}
}

func TestRetrieveSkipsPendingChunks(t *testing.T) {
	store := NewMemoryStore()
	seedChunks(t, store)
	embedder := &queryEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	r := NewGraphRetriever(store, embedder)

	res, err := r.Retrieve(context.Background(), "q", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range res.Chunks {
		if c.ID == "c-pending" {
			t.Error("chunk without embedding surfaced in search results")
		}
	}
}

func TestRetrieveExpandsGraph(t *testing.T) {
	store := NewMemoryStore()
	seedChunks(t, store)
	seedGraph(t, store)
	query := "what is Alpha built with"
	embedder := &queryEmbedder{vectors: map[string][]float32{query: {1, 0}}}
	r := NewGraphRetriever(store, embedder)

	res, err := r.Retrieve(context.Background(), query, 3)
	if err != nil {
		t.Fatal(err)
	}

	names := make(map[string]bool)
	for _, e := range res.Entities {
		names[e.Name] = true
	}
	// Alpha matches the query text; Beta and Gamma arrive as neighbors.
	for _, want := range []string{"Alpha", "Beta", "Gamma"} {
		if !names[want] {
			t.Errorf("entity %s missing from expansion: %v", want, res.Entities)
		}
	}
	if res.Entities[0].Name != "Alpha" {
		t.Errorf("seed should come first, got %s", res.Entities[0].Name)
	}
	if !strings.Contains(res.GraphContext, "Alpha --[built_with]--> Beta") {
		t.Errorf("graph context missing edge: %q", res.GraphContext)
	}
	if !strings.Contains(res.GraphContext, "Gamma --[describes]--> Alpha") {
		t.Errorf("graph context missing incoming edge: %q", res.GraphContext)
	}
}

func TestRetrieveNoEntityMatch(t *testing.T) {
	store := NewMemoryStore()
	seedChunks(t, store)
	seedGraph(t, store)
	embedder := &queryEmbedder{vectors: map[string][]float32{"nothing relevant": {0, 1}}}
	r := NewGraphRetriever(store, embedder)

	res, err := r.Retrieve(context.Background(), "nothing relevant", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 0 || res.GraphContext != "" {
		t.Errorf("expected empty graph side, got %d entities, context %q", len(res.Entities), res.GraphContext)
	}
	if len(res.Chunks) != 1 {
		t.Errorf("vector side should still return chunks, got %d", len(res.Chunks))
	}
}

func TestRetrieveEmbeddingFailureReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	seedChunks(t, store)
	r := NewGraphRetriever(store, &queryEmbedder{fail: true})

	res, err := r.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("query embedding failure must not propagate, got %v", err)
	}
	if len(res.Chunks) != 0 || len(res.Entities) != 0 || res.GraphContext != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRetrieveFanOutBound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.InsertEntityIfAbsent(ctx, Entity{ID: "e-hub", Name: "Hub", Type: "concept"}); err != nil {
		t.Fatal(err)
	}
	var rels []Relationship
	for i := 0; i < 10; i++ {
		id := NewID()
		if _, err := store.InsertEntityIfAbsent(ctx, Entity{ID: id, Name: "spoke" + id, Type: "concept"}); err != nil {
			t.Fatal(err)
		}
		rels = append(rels, Relationship{ID: NewID(), SourceID: "e-hub", TargetID: id, RelType: "links"})
	}
	if err := store.PutRelationships(ctx, rels); err != nil {
		t.Fatal(err)
	}

	embedder := &queryEmbedder{vectors: map[string][]float32{"about Hub": {1}}}
	r := NewGraphRetriever(store, embedder, WithNeighborFanOut(2))

	res, err := r.Retrieve(ctx, "about Hub", 5)
	if err != nil {
		t.Fatal(err)
	}
	// Hub plus at most 2 outgoing neighbors.
	if len(res.Entities) != 3 {
		t.Errorf("got %d entities, want 3 with fan-out 2", len(res.Entities))
	}
}

func TestRenderGraphContextSkipsUnknownEndpoints(t *testing.T) {
	entities := []Entity{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	edges := []Relationship{
		{SourceID: "a", TargetID: "b", RelType: "knows"},
		{SourceID: "a", TargetID: "ghost", RelType: "haunts"},
	}
	got := renderGraphContext(entities, edges)
	if got != "A --[knows]--> B" {
		t.Errorf("got %q", got)
	}
}
