package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	lore "github.com/maretho/lore"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("auth header = %q", got)
		}
		var body chatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Model != "gpt-test" || len(body.Messages) != 1 {
			t.Errorf("body = %+v", body)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewProvider("key123", "gpt-test", srv.URL)
	resp, err := p.Chat(context.Background(), lore.ChatRequest{Messages: []lore.ChatMessage{lore.UserMessage("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), lore.ChatRequest{Messages: []lore.ChatMessage{lore.UserMessage("hi")}})
	var httpErr *lore.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *lore.ErrHTTP", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), lore.ChatRequest{Messages: []lore.ChatMessage{lore.UserMessage("hi")}})
	var llmErr *lore.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("err = %v, want *lore.ErrLLM", err)
	}
}

func TestChatTemperatureOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["temperature"] != 0.2 {
			t.Errorf("temperature = %v, want 0.2", body["temperature"])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithTemperature(0.2))
	if _, err := p.Chat(context.Background(), lore.ChatRequest{Messages: []lore.ChatMessage{lore.UserMessage("hi")}}); err != nil {
		t.Fatal(err)
	}
}

func TestEmbedReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body embedBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if len(body.Input) != 2 {
			t.Errorf("input = %v", body.Input)
		}
		// Deliberately out of order.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	p := NewEmbeddingProvider("", "embed-test", srv.URL, 1)
	got, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("vectors = %v, want input order", got)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	p := NewEmbeddingProvider("", "m", srv.URL, 1)
	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	p := NewEmbeddingProvider("", "m", "http://unused", 1)
	got, err := p.Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestEmbedDimensions(t *testing.T) {
	p := NewEmbeddingProvider("", "m", "http://unused", 768, WithName("ollama"))
	if p.Dimensions() != 768 || p.Name() != "ollama" {
		t.Errorf("got %d, %s", p.Dimensions(), p.Name())
	}
}
