package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	lore "github.com/maretho/lore"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Result is acquired content ready for ingestion.
type Result struct {
	Title   string
	Content string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// Fetcher downloads web pages and extracts their readable text.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: "Mozilla/5.0 (compatible; lore/1.0)",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FromURL downloads rawURL and extracts its readable article text. The
// title comes from readability, falling back to the URL host when the
// page offers none. Non-2xx responses return *lore.ErrHTTP.
func (f *Fetcher) FromURL(ctx context.Context, rawURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &lore.ErrHTTP{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	parsedURL, _ := url.Parse(rawURL)
	res := Result{}
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		res.Title = strings.TrimSpace(article.Title)
		res.Content = strings.TrimSpace(article.TextContent)
	} else {
		// Readability gives up on sparse pages; fall back to tag stripping.
		res.Content = stripHTML(string(body))
	}
	if res.Content == "" {
		return Result{}, fmt.Errorf("no readable content at %s", rawURL)
	}
	if res.Title == "" && parsedURL != nil {
		res.Title = parsedURL.Host
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
