package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lore "github.com/maretho/lore"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Test Article</title></head>
<body><article>
<h1>Test Article</h1>
<p>Alpha is a build system. It was created to build Beta, a library for
parsing configuration files. This paragraph exists to give the extractor
enough prose to consider the page an article worth keeping.</p>
<p>Beta itself depends on nothing and is maintained by one person.</p>
</article></body></html>`

func TestFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	res, err := NewFetcher().FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "Alpha is a build system") {
		t.Errorf("content missing article text: %q", res.Content)
	}
	if strings.Contains(res.Content, "<p>") {
		t.Error("content still contains HTML tags")
	}
	if res.Title == "" {
		t.Error("title should never be empty")
	}
}

func TestFromURLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher().FromURL(context.Background(), srv.URL)
	var httpErr *lore.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *lore.ErrHTTP", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", httpErr.Status)
	}
}

func TestFromURLUnreachable(t *testing.T) {
	if _, err := NewFetcher().FromURL(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestFromFileMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	content := "# Build Systems\n\nAlpha builds Beta.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "Build Systems" {
		t.Errorf("title = %q, want first heading", res.Title)
	}
	if !strings.Contains(res.Content, "Alpha builds Beta.") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestFromFileMarkdownNoHeading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.md")
	if err := os.WriteFile(path, []byte("no headings here"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "plain" {
		t.Errorf("title = %q, want file name", res.Title)
	}
}

func TestFromFilePlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todo.txt")
	if err := os.WriteFile(path, []byte("buy milk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "todo" || res.Content != "buy milk" {
		t.Errorf("got %+v", res)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromFileBadPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Fatal("expected error for malformed PDF")
	}
}

func TestFromRaw(t *testing.T) {
	res, err := FromRaw("", "  pasted note  ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "pasted note" || res.Title == "" {
		t.Errorf("got %+v", res)
	}

	if _, err := FromRaw("t", "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>body{color:red}</style><script>alert(1)</script></head>` +
		`<body><p>Hello</p><p>world</p></body></html>`
	got := stripHTML(html)
	if got != "Hello world" {
		t.Errorf("got %q, want %q", got, "Hello world")
	}
}
