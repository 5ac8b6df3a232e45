package extract

import (
	"context"
	"fmt"
	"strings"

	lore "github.com/maretho/lore"
)

const summaryPrompt = `Summarize the following document in 3-5 sentences. Capture the main topic, the key claims or facts, and any named people, projects, or technologies. Output only the summary text, no preamble.

Document:
`

// summaryInputChars bounds how much document text goes into the prompt.
const summaryInputChars = 24000

// Summarizer produces a short document summary through a chat provider.
type Summarizer struct {
	provider lore.Provider
}

var _ lore.Summarizer = (*Summarizer)(nil)

// NewSummarizer creates a Summarizer over the given provider.
func NewSummarizer(provider lore.Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Summarize condenses text into a few sentences. Long input is truncated
// before prompting.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if len(text) > summaryInputChars {
		text = text[:summaryInputChars]
	}

	resp, err := s.provider.Chat(ctx, lore.ChatRequest{
		Messages: []lore.ChatMessage{lore.UserMessage(summaryPrompt + text)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize: provider %s returned empty content", s.provider.Name())
	}
	return summary, nil
}
