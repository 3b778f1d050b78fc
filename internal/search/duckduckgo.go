package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

const duckDuckGoLiteURL = "https://lite.duckduckgo.com/lite/"

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface.
type DuckDuckGo struct {
	Endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewDuckDuckGo creates a searcher limited to qps queries per second.
func NewDuckDuckGo(timeout time.Duration, qps float64) *DuckDuckGo {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if qps <= 0 {
		qps = 1
	}
	return &DuckDuckGo{
		Endpoint: duckDuckGoLiteURL,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(qps), 1),
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query to the lite endpoint and parses the result table.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, failure.NewCallError(failure.Fatal, "duckduckgo", errors.New("query is empty"))
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, failure.FromTransport("duckduckgo", err)
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, failure.NewCallError(failure.Fatal, "duckduckgo", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, failure.FromTransport("duckduckgo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, failure.FromStatus("duckduckgo", resp.StatusCode, resp.Header.Get("Retry-After"), string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, failure.NewCallError(failure.Transient, "duckduckgo", fmt.Errorf("parsing results: %w", err))
	}
	return parseLiteResults(doc, maxResults), nil
}

func parseLiteResults(doc *goquery.Document, maxResults int) []brief.SourceCandidate {
	snippets := doc.Find("td.result-snippet").Map(func(_ int, s *goquery.Selection) string {
		return strings.Join(strings.Fields(s.Text()), " ")
	})

	var results []brief.SourceCandidate
	doc.Find("a.result-link").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		target := resolveRedirect(href)
		title := strings.TrimSpace(s.Text())
		if target == "" || title == "" {
			return true
		}
		c := brief.SourceCandidate{URL: target, Title: title}
		if i < len(snippets) {
			c.Snippet = snippets[i]
		}
		results = append(results, c)
		return maxResults <= 0 || len(results) < maxResults
	})
	return rank(results)
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
