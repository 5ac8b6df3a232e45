package fetch

import (
	"strings"
)

// stripHTML removes tags from HTML and returns the remaining text with
// collapsed whitespace. script and style bodies are dropped entirely.
// Last-resort extraction for pages readability cannot parse.
func stripHTML(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	lower := strings.ToLower(content)
	i := 0
	for i < len(content) {
		if content[i] != '<' {
			out.WriteByte(content[i])
			i++
			continue
		}
		// Skip script/style elements including their bodies.
		if rest := lower[i:]; strings.HasPrefix(rest, "<script") || strings.HasPrefix(rest, "<style") {
			closeTag := "</script>"
			if strings.HasPrefix(rest, "<style") {
				closeTag = "</style>"
			}
			end := strings.Index(rest, closeTag)
			if end < 0 {
				break
			}
			i += end + len(closeTag)
			continue
		}
		end := strings.IndexByte(content[i:], '>')
		if end < 0 {
			break
		}
		// Block-level close tags separate words.
		out.WriteByte(' ')
		i += end + 1
	}
	return strings.Join(strings.Fields(out.String()), " ")
}
