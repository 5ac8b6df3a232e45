package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	lore "github.com/maretho/lore"
)

// scriptProvider returns canned responses in order.
type scriptProvider struct {
	responses []string
	err       error
	prompts   []string
}

func (p *scriptProvider) Chat(_ context.Context, req lore.ChatRequest) (lore.ChatResponse, error) {
	p.prompts = append(p.prompts, req.Messages[len(req.Messages)-1].Content)
	if p.err != nil {
		return lore.ChatResponse{}, p.err
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return lore.ChatResponse{Content: resp}, nil
}

func (p *scriptProvider) Name() string { return "script" }

func TestExtractParsesEntitiesAndRelationships(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		`{"entities":[{"name":"Alpha","type":"technology","description":"a build tool"},{"name":"Beta","type":"technology","description":"a library"}],"relationships":[{"source":"Alpha","target":"Beta","type":"built_with","description":"Alpha uses Beta"}]}`,
	}}
	ext, err := NewExtractor(provider).Extract(context.Background(), "Alpha builds Beta.")
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Entities) != 2 || len(ext.Relationships) != 1 {
		t.Fatalf("got %d entities, %d relationships", len(ext.Entities), len(ext.Relationships))
	}
	if ext.Entities[0].Name != "Alpha" || ext.Entities[0].Type != "technology" {
		t.Errorf("entity = %+v", ext.Entities[0])
	}
	if ext.Relationships[0].Type != "built_with" {
		t.Errorf("relationship type = %q", ext.Relationships[0].Type)
	}
}

func TestExtractStripsMarkdownFence(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		"```json\n{\"entities\":[{\"name\":\"Alpha\",\"type\":\"technology\"}],\"relationships\":[]}\n```",
	}}
	ext, err := NewExtractor(provider).Extract(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(ext.Entities))
	}
}

func TestExtractNormalizesUnknownType(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		`{"entities":[{"name":"Alpha","type":"Framework"}],"relationships":[]}`,
	}}
	ext, err := NewExtractor(provider).Extract(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if ext.Entities[0].Type != "concept" {
		t.Errorf("type = %q, want concept", ext.Entities[0].Type)
	}
}

func TestExtractDropsInvalidRows(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		`{"entities":[{"name":"  ","type":"person"},{"name":"Alpha","type":"technology"}],` +
			`"relationships":[{"source":"Alpha","target":"Alpha","type":"self"},{"source":"","target":"Alpha","type":"x"}]}`,
	}}
	ext, err := NewExtractor(provider).Extract(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Entities) != 1 {
		t.Errorf("got %d entities, want 1", len(ext.Entities))
	}
	if len(ext.Relationships) != 0 {
		t.Errorf("got %d relationships, want 0", len(ext.Relationships))
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	provider := &scriptProvider{responses: []string{"I could not find any entities, sorry!"}}
	if _, err := NewExtractor(provider).Extract(context.Background(), "text"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExtractProviderError(t *testing.T) {
	provider := &scriptProvider{err: errors.New("rate limited")}
	if _, err := NewExtractor(provider).Extract(context.Background(), "text"); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestExtractEmptyText(t *testing.T) {
	provider := &scriptProvider{responses: []string{"unused"}}
	ext, err := NewExtractor(provider).Extract(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Entities) != 0 || len(provider.prompts) != 0 {
		t.Error("empty text should not reach the provider")
	}
}

func TestSummarize(t *testing.T) {
	provider := &scriptProvider{responses: []string{"  A short summary.\n"}}
	got, err := NewSummarizer(provider).Summarize(context.Background(), "Long document text.")
	if err != nil {
		t.Fatal(err)
	}
	if got != "A short summary." {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(provider.prompts[0], "Long document text.") {
		t.Error("prompt missing document text")
	}
}

func TestSummarizeEmptyResponse(t *testing.T) {
	provider := &scriptProvider{responses: []string{"   "}}
	if _, err := NewSummarizer(provider).Summarize(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty summary")
	}
}

func TestSummarizeTruncatesInput(t *testing.T) {
	provider := &scriptProvider{responses: []string{"ok"}}
	long := strings.Repeat("a", summaryInputChars+500)
	if _, err := NewSummarizer(provider).Summarize(context.Background(), long); err != nil {
		t.Fatal(err)
	}
	if len(provider.prompts[0]) > len(summaryPrompt)+summaryInputChars {
		t.Errorf("prompt not truncated: %d chars", len(provider.prompts[0]))
	}
}
