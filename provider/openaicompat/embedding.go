package openaicompat

import (
	"context"
	"fmt"

	lore "github.com/maretho/lore"
)

// EmbeddingProvider implements lore.EmbeddingProvider over the
// /embeddings endpoint.
type EmbeddingProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	settings
}

var _ lore.EmbeddingProvider = (*EmbeddingProvider)(nil)

// NewEmbeddingProvider creates an embedding provider. dimensions is the
// vector size the model produces (e.g. 768 for nomic-embed-text).
func NewEmbeddingProvider(apiKey, model, baseURL string, dimensions int, opts ...ProviderOption) *EmbeddingProvider {
	p := &EmbeddingProvider{apiKey: apiKey, model: model, baseURL: baseURL, dimensions: dimensions}
	p.settings = applyOptions(opts)
	return p
}

// Name returns the provider name.
func (p *EmbeddingProvider) Name() string { return p.name }

// Dimensions returns the embedding vector size.
func (p *EmbeddingProvider) Dimensions() int { return p.dimensions }

type embedBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedWire struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order. The wire
// format carries an index per vector; the response is reordered by it
// since providers are not required to preserve input order.
func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := embedBody{Model: p.model, Input: texts}

	var wire embedWire
	if err := postJSON(ctx, p.settings, p.apiKey, p.baseURL+"/embeddings", body, &wire); err != nil {
		return nil, err
	}
	if len(wire.Data) != len(texts) {
		return nil, &lore.ErrLLM{
			Provider: p.name,
			Message:  fmt.Sprintf("got %d embeddings for %d inputs", len(wire.Data), len(texts)),
		}
	}

	out := make([][]float32, len(texts))
	for _, d := range wire.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &lore.ErrLLM{Provider: p.name, Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, &lore.ErrLLM{Provider: p.name, Message: fmt.Sprintf("missing embedding for input %d", i)}
		}
	}
	return out, nil
}
