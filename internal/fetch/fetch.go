package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

// Result is the readable text of a page.
type Result struct {
	Text   string
	Title  string
	Status brief.FetchStatus
}

// Options tune a Client.
type Options struct {
	Timeout   time.Duration
	MaxBytes  int
	MaxChars  int
	UserAgent string
}

// Client fetches pages over HTTP and extracts their main text.
type Client struct {
	opts   Options
	client *http.Client
}

// New creates a fetch client.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "briefgen/1.0 (research assistant)"
	}
	return &Client{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch retrieves pageURL. Bodies over MaxBytes and text over MaxChars are
// cut and reported as truncated.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, failure.NewCallError(failure.Fatal, "fetch", fmt.Errorf("invalid url %q", pageURL))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, failure.NewCallError(failure.Fatal, "fetch", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, failure.FromTransport("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, failure.FromStatus("fetch", resp.StatusCode, resp.Header.Get("Retry-After"), string(snippet))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.HasPrefix(contentType, "text/") {
		return nil, failure.NewCallError(failure.Fatal, "fetch", fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.opts.MaxBytes)+1))
	if err != nil {
		return nil, failure.FromTransport("fetch", err)
	}
	status := brief.FetchOK
	if len(body) > c.opts.MaxBytes {
		body = body[:c.opts.MaxBytes]
		status = brief.FetchTruncated
	}

	var text, title string
	if strings.HasPrefix(contentType, "text/plain") {
		text = string(body)
	} else {
		text, title = extract(body, parsedURL)
	}

	text = strings.TrimSpace(text)
	if c.opts.MaxChars > 0 && utf8.RuneCountInString(text) > c.opts.MaxChars {
		text = string([]rune(text)[:c.opts.MaxChars])
		status = brief.FetchTruncated
	}

	return &Result{Text: text, Title: title, Status: status}, nil
}

// extract prefers readability and falls back to the visible body text.
func extract(body []byte, pageURL *url.URL) (string, string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); len(text) > 100 {
			return normalizeSpace(text), article.Title
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()
	return normalizeSpace(doc.Find("body").Text()), strings.TrimSpace(doc.Find("title").First().Text())
}

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
