// Package openaicompat implements chat and embedding providers for any
// OpenAI-compatible API: OpenAI itself, OpenRouter, Groq, Mistral,
// Ollama, vLLM, LM Studio, and the rest of the ecosystem that speaks the
// /chat/completions and /embeddings wire format.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	lore "github.com/maretho/lore"
)

// ProviderOption configures a Provider or EmbeddingProvider.
type ProviderOption func(*settings)

type settings struct {
	name        string
	client      *http.Client
	temperature *float64
}

// WithName sets the name returned by Name() (default "openai"). Use it to
// distinguish backends in logs.
func WithName(name string) ProviderOption {
	return func(s *settings) { s.name = name }
}

// WithHTTPClient sets a custom HTTP client (timeouts, proxies).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(s *settings) { s.client = c }
}

// WithTemperature sets the sampling temperature on every chat request.
func WithTemperature(t float64) ProviderOption {
	return func(s *settings) { s.temperature = &t }
}

// Provider implements lore.Provider over the chat completions API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	settings
}

var _ lore.Provider = (*Provider)(nil)

// NewProvider creates a chat provider. baseURL is the API base (e.g.
// "https://api.openai.com/v1", "http://localhost:11434/v1"); the
// /chat/completions path is appended automatically.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{apiKey: apiKey, model: model, baseURL: baseURL}
	p.settings = applyOptions(opts)
	return p
}

func applyOptions(opts []ProviderOption) settings {
	s := settings{name: "openai", client: &http.Client{}}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

type chatBody struct {
	Model       string             `json:"model"`
	Messages    []lore.ChatMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type chatWire struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a non-streaming chat request and returns the complete
// response. Non-200 statuses come back as *lore.ErrHTTP.
func (p *Provider) Chat(ctx context.Context, req lore.ChatRequest) (lore.ChatResponse, error) {
	body := chatBody{Model: p.model, Messages: req.Messages, Temperature: p.temperature}

	var wire chatWire
	if err := postJSON(ctx, p.settings, p.apiKey, p.baseURL+"/chat/completions", body, &wire); err != nil {
		return lore.ChatResponse{}, err
	}
	if len(wire.Choices) == 0 {
		return lore.ChatResponse{}, &lore.ErrLLM{Provider: p.name, Message: "response has no choices"}
	}
	return lore.ChatResponse{
		Content: wire.Choices[0].Message.Content,
		Usage: lore.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		},
	}, nil
}

// postJSON sends body to url and decodes the JSON response into out.
func postJSON(ctx context.Context, s settings, apiKey, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &lore.ErrLLM{Provider: s.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &lore.ErrLLM{Provider: s.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &lore.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &lore.ErrLLM{Provider: s.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
