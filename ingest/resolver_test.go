package ingest

import (
	"context"
	"errors"
	"testing"

	lore "github.com/maretho/lore"
)

// stubEmbedder returns one-element vectors, or all-nil plus an error when
// failing, matching the partial-result contract of the orchestrator.
type stubEmbedder struct {
	fail  bool
	calls int
}

func (e *stubEmbedder) EmbedTexts(_ context.Context, texts []string, _ lore.Purpose) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	if e.fail {
		return out, errors.New("embedding backend down")
	}
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func testDocChunks() (lore.Document, []lore.Chunk) {
	doc := lore.Document{ID: lore.NewID(), Title: "t"}
	chunks := []lore.Chunk{
		{ID: lore.NewID(), DocumentID: doc.ID, ChunkIndex: 0, Content: "first"},
		{ID: lore.NewID(), DocumentID: doc.ID, ChunkIndex: 1, Content: "second"},
	}
	return doc, chunks
}

func TestResolverCreatesAndLinks(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{}, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{
			{Name: "Alpha", Type: "technology", Description: "a tool"},
			{Name: "Beta", Type: "technology", Description: "a library"},
		},
		Relationships: []lore.ExtractedRelationship{
			{Source: "Alpha", Target: "Beta", Type: "built_with"},
		},
	}

	stats, err := r.Apply(context.Background(), doc, chunks, ext)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntitiesCreated != 2 || stats.EntitiesReused != 0 {
		t.Errorf("created=%d reused=%d, want 2/0", stats.EntitiesCreated, stats.EntitiesReused)
	}
	if stats.Relationships != 1 || stats.DroppedEdges != 0 {
		t.Errorf("relationships=%d dropped=%d, want 1/0", stats.Relationships, stats.DroppedEdges)
	}
	if stats.Mentions != 2 {
		t.Errorf("mentions=%d, want 2", stats.Mentions)
	}

	alpha, err := store.GetEntityByNameType(context.Background(), "Alpha", "technology")
	if err != nil {
		t.Fatal(err)
	}
	if alpha.Embedding == nil {
		t.Error("created entity has no embedding")
	}
}

func TestResolverReusesExisting(t *testing.T) {
	store := lore.NewMemoryStore()
	existing := lore.Entity{ID: lore.NewID(), Name: "Alpha", Type: "technology"}
	if _, err := store.InsertEntityIfAbsent(context.Background(), existing); err != nil {
		t.Fatal(err)
	}

	embedder := &stubEmbedder{}
	r := NewResolver(store, embedder, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{{Name: "Alpha", Type: "technology"}},
	}
	stats, err := r.Apply(context.Background(), doc, chunks, ext)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntitiesCreated != 0 || stats.EntitiesReused != 1 {
		t.Errorf("created=%d reused=%d, want 0/1", stats.EntitiesCreated, stats.EntitiesReused)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times for an existing entity, want 0", embedder.calls)
	}
	if store.Stats().Entities != 1 {
		t.Errorf("entity rows = %d, want 1", store.Stats().Entities)
	}
}

func TestResolverSameNameDifferentType(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{}, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{
			{Name: "Python", Type: "technology"},
			{Name: "Python", Type: "concept"},
		},
	}
	stats, err := r.Apply(context.Background(), doc, chunks, ext)
	if err != nil {
		t.Fatal(err)
	}
	if store.Stats().Entities != 2 {
		t.Errorf("entity rows = %d, want 2 (distinct natural keys)", store.Stats().Entities)
	}
	// Both rows are mentioned entities; neither may be born orphaned.
	if stats.Mentions != 2 {
		t.Errorf("mentions = %d, want 2 (one per natural key)", stats.Mentions)
	}
	if got := store.Stats().Mentions; got != 2 {
		t.Errorf("mention rows = %d, want 2", got)
	}
}

func TestResolverToleratesEmbeddingFailure(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{fail: true}, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{{Name: "Alpha", Type: "technology"}},
	}
	stats, err := r.Apply(context.Background(), doc, chunks, ext)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntitiesCreated != 1 {
		t.Errorf("created=%d, want 1 despite embedding failure", stats.EntitiesCreated)
	}
	alpha, err := store.GetEntityByNameType(context.Background(), "Alpha", "technology")
	if err != nil {
		t.Fatal(err)
	}
	if alpha.Embedding != nil {
		t.Error("entity should have no embedding after a failed batch")
	}
}

func TestResolverDropsUnresolvableEdges(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{}, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{{Name: "Alpha", Type: "technology"}},
		Relationships: []lore.ExtractedRelationship{
			{Source: "Alpha", Target: "Ghost", Type: "uses"},
			{Source: "Ghost", Target: "Alpha", Type: "used_by"},
		},
	}
	stats, err := r.Apply(context.Background(), doc, chunks, ext)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DroppedEdges != 2 || stats.Relationships != 0 {
		t.Errorf("dropped=%d relationships=%d, want 2/0", stats.DroppedEdges, stats.Relationships)
	}
	if store.Stats().Relationships != 0 {
		t.Errorf("relationship rows = %d, want 0", store.Stats().Relationships)
	}
}

func TestResolverMentionsAnchorFirstChunk(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{}, nil)
	doc, chunks := testDocChunks()

	ext := lore.Extraction{
		Entities: []lore.ExtractedEntity{{Name: "Alpha", Type: "technology"}},
	}
	if _, err := r.Apply(context.Background(), doc, chunks, ext); err != nil {
		t.Fatal(err)
	}
	// Mentions are cleared with the document's data; verify they belong to it.
	if err := store.ClearDocumentData(context.Background(), doc.ID); err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().Mentions; got != 0 {
		t.Errorf("mentions after clear = %d, want 0", got)
	}
}

func TestResolverEmptyExtraction(t *testing.T) {
	store := lore.NewMemoryStore()
	r := NewResolver(store, &stubEmbedder{}, nil)
	doc, chunks := testDocChunks()

	stats, err := r.Apply(context.Background(), doc, chunks, lore.Extraction{})
	if err != nil {
		t.Fatal(err)
	}
	if stats != (ResolveStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}
