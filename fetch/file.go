package fetch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	lore "github.com/maretho/lore"
)

// FromFile reads a local file and returns its text content. PDF and
// markdown get format-aware handling; everything else is treated as
// plain text. The title defaults to the file name and, for markdown,
// is replaced by the document's first heading when present.
func FromFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err := pdfText(data)
		if err != nil {
			return Result{}, fmt.Errorf("extract %s: %w", path, err)
		}
		return Result{Title: title, Content: content}, nil
	case ".md", ".markdown":
		content := strings.TrimSpace(string(data))
		if h := markdownTitle(data); h != "" {
			title = h
		}
		return Result{Title: title, Content: content}, nil
	default:
		content := strings.TrimSpace(string(data))
		if content == "" {
			return Result{}, fmt.Errorf("empty file: %s", path)
		}
		return Result{Title: title, Content: content}, nil
	}
}

// FromRaw wraps pasted text as a fetch result.
func FromRaw(title, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("empty text")
	}
	if title == "" {
		title = lore.Fingerprint(text)[:12]
	}
	return Result{Title: title, Content: text}, nil
}

// pdfText extracts plain text from a PDF, page by page. Unreadable pages
// are skipped; a wholly unreadable document is an error.
func pdfText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text")
	}
	return b.String(), nil
}

// markdownTitle returns the text of the document's first heading, or "".
func markdownTitle(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(source))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			var b strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(source))
				}
			}
			title = strings.TrimSpace(b.String())
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}
