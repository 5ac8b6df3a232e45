package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	lore "github.com/maretho/lore"
)

// fakeProvider embeds each text as [index-encoded] vectors and can fail
// for texts containing a marker substring.
type fakeProvider struct {
	mu         sync.Mutex
	calls      int
	maxInFlight int64
	inFlight   int64
	failMarker string
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	cur := atomic.AddInt64(&p.inFlight, 1)
	defer atomic.AddInt64(&p.inFlight, -1)
	for {
		old := atomic.LoadInt64(&p.maxInFlight)
		if cur <= old || atomic.CompareAndSwapInt64(&p.maxInFlight, old, cur) {
			break
		}
	}

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if p.failMarker != "" && strings.Contains(t, p.failMarker) {
			return nil, errors.New("backend overloaded")
		}
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (p *fakeProvider) Dimensions() int { return 1 }
func (p *fakeProvider) Name() string    { return "fake" }

func TestEmbedTextsOrderAcrossBatches(t *testing.T) {
	provider := &fakeProvider{}
	orch := NewOrchestrator(newMemCacheStore(), provider, "m1", WithBatchSize(4), WithConcurrency(2))

	texts := make([]string, 37)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	vectors, err := orch.EmbedTexts(context.Background(), texts, lore.PurposeRetrieval)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if v == nil || v[0] != float32(i+1) {
			t.Errorf("vector %d = %v, want [%d]", i, v, i+1)
		}
	}
}

func TestEmbedTextsBoundsConcurrency(t *testing.T) {
	provider := &fakeProvider{}
	orch := NewOrchestrator(newMemCacheStore(), provider, "m1", WithBatchSize(1), WithConcurrency(2))

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	if _, err := orch.EmbedTexts(context.Background(), texts, lore.PurposeRetrieval); err != nil {
		t.Fatal(err)
	}
	if provider.maxInFlight > 2 {
		t.Errorf("observed %d concurrent provider calls, limit is 2", provider.maxInFlight)
	}
}

func TestEmbedTextsPartialFailure(t *testing.T) {
	provider := &fakeProvider{failMarker: "poison"}
	orch := NewOrchestrator(newMemCacheStore(), provider, "m1", WithBatchSize(2), WithConcurrency(1))

	texts := []string{"ok one", "ok two", "poison pill", "poison again", "ok three", "ok four"}
	vectors, err := orch.EmbedTexts(context.Background(), texts, lore.PurposeRetrieval)
	if err == nil {
		t.Fatal("expected joined batch error")
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		poisoned := strings.Contains(texts[i], "poison")
		if poisoned && v != nil {
			t.Errorf("vector %d should be nil for failed batch", i)
		}
		if !poisoned && v == nil {
			t.Errorf("vector %d missing for succeeded batch", i)
		}
	}
}

func TestEmbedTextsDuplicatesComputedOnce(t *testing.T) {
	provider := &fakeProvider{}
	orch := NewOrchestrator(newMemCacheStore(), provider, "m1", WithBatchSize(2), WithConcurrency(2))

	texts := []string{"dup", "dup", "dup", "dup", "dup"}
	vectors, err := orch.EmbedTexts(context.Background(), texts, lore.PurposeRetrieval)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
	for i, v := range vectors {
		if v == nil {
			t.Errorf("vector %d is nil", i)
		}
	}
}

func TestEmbedTextsCacheHitSkipsProvider(t *testing.T) {
	store := newMemCacheStore()
	provider := &fakeProvider{}
	orch := NewOrchestrator(store, provider, "m1")

	ctx := context.Background()
	if _, err := orch.EmbedTexts(ctx, []string{"warm"}, lore.PurposeRetrieval); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.EmbedTexts(ctx, []string{"warm"}, lore.PurposeRetrieval); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestEmbedAllFailsWhole(t *testing.T) {
	provider := &fakeProvider{failMarker: "poison"}
	orch := NewOrchestrator(newMemCacheStore(), provider, "m1", WithBatchSize(1))

	vectors, err := orch.EmbedAll(context.Background(), []string{"fine", "poison"}, lore.PurposeRetrieval)
	if err == nil {
		t.Fatal("expected error")
	}
	if vectors != nil {
		t.Error("expected no partial result from EmbedAll")
	}
}

func TestEmbedTextsEmpty(t *testing.T) {
	orch := NewOrchestrator(newMemCacheStore(), &fakeProvider{}, "m1")
	vectors, err := orch.EmbedTexts(context.Background(), nil, lore.PurposeRetrieval)
	if err != nil || vectors != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", vectors, err)
	}
}
