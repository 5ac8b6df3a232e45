package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	lore "github.com/maretho/lore"
)

// Segment is one chunk-to-be: ordered text with a token estimate and a
// content fingerprint of the segment text alone.
type Segment struct {
	Index  int
	Text   string
	Tokens int
	Hash   string
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithTargetTokens sets the token budget segments are merged toward.
func WithTargetTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.targetTokens = n }
}

// WithMinTokens sets the budget below which adjacent segments are merged.
func WithMinTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.minTokens = n }
}

// WithMaxTokens sets the hard ceiling; oversize segments are split at the
// nearest sentence boundary.
func WithMaxTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.maxTokens = n }
}

// Chunker splits document text into bounded, semantically coherent
// segments. It splits on structural boundaries first (blank lines and
// markdown headings), merges small neighbors up to the target budget,
// and sentence-splits anything over the max budget.
//
// Token counts are estimated with a fixed 4-chars-per-token ratio; no
// external tokenizer is involved.
type Chunker struct {
	targetTokens int
	minTokens    int
	maxTokens    int
}

// NewChunker creates a Chunker with default budgets 320/64/512
// (target/min/max tokens).
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{targetTokens: 320, minTokens: 64, maxTokens: 512}
	for _, o := range opts {
		o(c)
	}
	return c
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s`)

// estimateTokens approximates the token count of text at 4 chars/token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Split returns ordered segments for the text. Empty or whitespace-only
// input yields no segments. A single segment below the minimum budget is
// accepted as-is when it is the only one.
func (c *Chunker) Split(text string) []Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	blocks := c.structuralBlocks(text)
	merged := c.mergeSmall(blocks)

	var out []Segment
	for _, block := range merged {
		if estimateTokens(block) > c.maxTokens {
			out = appendSegments(out, c.splitOversize(block))
			continue
		}
		out = appendSegments(out, []string{block})
	}
	return out
}

func appendSegments(segs []Segment, texts []string) []Segment {
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		segs = append(segs, Segment{
			Index:  len(segs),
			Text:   t,
			Tokens: estimateTokens(t),
			Hash:   lore.Fingerprint(t),
		})
	}
	return segs
}

// structuralBlocks splits on blank lines, additionally breaking before
// markdown headings so a heading starts its own block.
func (c *Chunker) structuralBlocks(text string) []string {
	var blocks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		locs := headingRe.FindAllStringIndex(para, -1)
		prev := 0
		for _, loc := range locs {
			if loc[0] == prev {
				continue
			}
			if piece := strings.TrimSpace(para[prev:loc[0]]); piece != "" {
				blocks = append(blocks, piece)
			}
			prev = loc[0]
		}
		if piece := strings.TrimSpace(para[prev:]); piece != "" {
			blocks = append(blocks, piece)
		}
	}
	return blocks
}

// mergeSmall merges adjacent blocks until they approach the target
// budget. A block at or above minTokens on its own is kept once adding
// the next block would overshoot the target.
func (c *Chunker) mergeSmall(blocks []string) []string {
	var merged []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			merged = append(merged, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, block := range blocks {
		bt := estimateTokens(block)
		// A buffer still under the minimum absorbs the next block even
		// when that overshoots the target; once past the minimum it only
		// grows while staying within the target.
		if currentTokens >= c.minTokens && currentTokens+bt > c.targetTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
		currentTokens += bt
		if currentTokens >= c.targetTokens {
			flush()
		}
	}
	flush()
	return merged
}

// splitOversize splits a block exceeding the max budget at sentence
// boundaries, packing sentences up to the max.
func (c *Chunker) splitOversize(block string) []string {
	maxChars := c.maxTokens * 4
	sentences := splitSentences(block)
	if len(sentences) <= 1 {
		return hardSplit(block, maxChars)
	}

	var out []string
	var current strings.Builder
	for _, s := range sentences {
		if len(s) > maxChars {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, hardSplit(s, maxChars)...)
			continue
		}
		needed := len(s)
		if current.Len() > 0 {
			needed += current.Len() + 1
		}
		if needed > maxChars {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// hardSplit cuts text at word boundaries when no sentence boundary helps.
func hardSplit(text string, maxChars int) []string {
	words := strings.Fields(text)
	var out []string
	var current strings.Builder
	for _, w := range words {
		if len(w) > maxChars {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			for i := 0; i < len(w); i += maxChars {
				out = append(out, w[i:min(i+maxChars, len(w))])
			}
			continue
		}
		needed := len(w)
		if current.Len() > 0 {
			needed += current.Len() + 1
		}
		if needed > maxChars {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// abbreviations that should NOT be treated as sentence boundaries.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"prof": true, "sr": true, "jr": true,
	"vs": true, "etc": true, "inc": true, "ltd": true,
	"e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "fig": true, "no": true, "vol": true,
}

func isAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

func isDecimalDot(text string, dotPos int) bool {
	if dotPos == 0 || dotPos+1 >= len(text) {
		return false
	}
	return text[dotPos-1] >= '0' && text[dotPos-1] <= '9' &&
		text[dotPos+1] >= '0' && text[dotPos+1] <= '9'
}

// splitSentences splits text at sentence-ending punctuation, skipping
// abbreviations, decimal numbers, and handling CJK terminators.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	bytePos := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		size := utf8.RuneLen(r)

		switch {
		case r == '。' || r == '！' || r == '？':
			if s := strings.TrimSpace(text[start : bytePos+size]); s != "" {
				sentences = append(sentences, s)
			}
			start = bytePos + size
		case r == '.' || r == '!' || r == '?':
			end := bytePos + size
			boundary := i+1 >= len(runes) ||
				(i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n'))
			if r == '.' && (isDecimalDot(text, bytePos) || isAbbreviation(text, bytePos)) {
				boundary = false
			}
			if boundary {
				if s := strings.TrimSpace(text[start:end]); s != "" {
					sentences = append(sentences, s)
				}
				start = end
			}
		}
		bytePos += size
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// DedupeSegments collapses segments with equal fingerprints to the first
// occurrence, reindexes survivors, and reports how many duplicates were
// dropped.
func DedupeSegments(segs []Segment) ([]Segment, int) {
	seen := make(map[string]bool, len(segs))
	var out []Segment
	dropped := 0
	for _, s := range segs {
		if seen[s.Hash] {
			dropped++
			continue
		}
		seen[s.Hash] = true
		s.Index = len(out)
		out = append(out, s)
	}
	return out, dropped
}
