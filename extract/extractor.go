package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lore "github.com/maretho/lore"
)

const extractionPrompt = `You are a knowledge graph extractor. Identify the entities mentioned in the following text and the relationships between them.

For each entity, output:
- "name": the canonical name, as written in the text
- "type": one of: person, organization, technology, concept, place, event
- "description": one sentence describing the entity in this text's context

For each relationship, output:
- "source": the name of an entity from the entities list
- "target": the name of an entity from the entities list
- "type": a short snake_case verb phrase, e.g. "built_with", "works_at", "part_of"
- "description": one sentence describing the relationship

Output ONLY valid JSON in this format:
{"entities":[{"name":"","type":"","description":""}],"relationships":[{"source":"","target":"","type":"","description":""}]}

If the text mentions no entities, output: {"entities":[],"relationships":[]}

Text:
`

// entityTypes an extracted entity may carry. Anything else is normalized
// to "concept" rather than dropped; type drift loses a label, not a node.
var entityTypes = map[string]bool{
	"person":       true,
	"organization": true,
	"technology":   true,
	"concept":      true,
	"place":        true,
	"event":        true,
}

// Extractor pulls entities and relationships out of text through a chat
// provider and validates the JSON it returns.
type Extractor struct {
	provider lore.Provider
}

var _ lore.Extractor = (*Extractor)(nil)

// NewExtractor creates an Extractor over the given provider.
func NewExtractor(provider lore.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract runs the extraction prompt and parses the response. An empty
// extraction is a legitimate result; malformed JSON is an error the
// caller is expected to degrade on.
func (e *Extractor) Extract(ctx context.Context, text string) (lore.Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return lore.Extraction{}, nil
	}

	resp, err := e.provider.Chat(ctx, lore.ChatRequest{
		Messages: []lore.ChatMessage{lore.UserMessage(extractionPrompt + text)},
	})
	if err != nil {
		return lore.Extraction{}, fmt.Errorf("extract: %w", err)
	}
	ext, err := parseExtraction(resp.Content)
	if err != nil {
		return lore.Extraction{}, fmt.Errorf("extract: provider %s: %w", e.provider.Name(), err)
	}
	return ext, nil
}

// parseExtraction validates raw model output. Models routinely wrap JSON
// in markdown fences or prose; jsonPayload cuts those off. Entities
// without a name and relationships without both endpoints are dropped.
func parseExtraction(raw string) (lore.Extraction, error) {
	payload := jsonPayload(raw)
	if payload == "" {
		return lore.Extraction{}, fmt.Errorf("no JSON object in response")
	}

	var parsed lore.Extraction
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return lore.Extraction{}, fmt.Errorf("parse response: %w", err)
	}

	var ext lore.Extraction
	for _, ent := range parsed.Entities {
		ent.Name = strings.TrimSpace(ent.Name)
		if ent.Name == "" {
			continue
		}
		ent.Type = strings.ToLower(strings.TrimSpace(ent.Type))
		if !entityTypes[ent.Type] {
			ent.Type = "concept"
		}
		ext.Entities = append(ext.Entities, ent)
	}
	for _, rel := range parsed.Relationships {
		rel.Source = strings.TrimSpace(rel.Source)
		rel.Target = strings.TrimSpace(rel.Target)
		if rel.Source == "" || rel.Target == "" || rel.Source == rel.Target {
			continue
		}
		rel.Type = strings.ToLower(strings.TrimSpace(rel.Type))
		if rel.Type == "" {
			rel.Type = "related_to"
		}
		ext.Relationships = append(ext.Relationships, rel)
	}
	return ext, nil
}

// jsonPayload returns the outermost {...} span of raw, or "" when raw
// contains no object.
func jsonPayload(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
