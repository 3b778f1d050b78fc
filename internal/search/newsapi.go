package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIClient searches articles through NewsAPI.
type NewsAPIClient struct {
	BaseURL  string
	apiKey   string
	daysBack int
	client   *http.Client
	now      func() time.Time
}

// NewNewsAPIClient creates a new NewsAPI client.
func NewNewsAPIClient(apiKeyEnv string, daysBack int, timeout time.Duration) *NewsAPIClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if daysBack <= 0 {
		daysBack = 30
	}
	return &NewsAPIClient{
		BaseURL:  newsAPIBaseURL,
		apiKey:   os.Getenv(apiKeyEnv),
		daysBack: daysBack,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Search searches for articles matching a query, most relevant first.
func (c *NewsAPIClient) Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error) {
	if c.apiKey == "" {
		return nil, failure.NewCallError(failure.Fatal, "newsapi", fmt.Errorf("NewsAPI key not configured"))
	}

	pageSize := maxResults
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{
		"q":        {query},
		"from":     {c.now().AddDate(0, 0, -c.daysBack).Format("2006-01-02")},
		"language": {"en"},
		"pageSize": {fmt.Sprintf("%d", pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, failure.NewCallError(failure.Fatal, "newsapi", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, failure.FromTransport("newsapi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, failure.FromStatus("newsapi", resp.StatusCode, resp.Header.Get("Retry-After"), string(body))
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"articles"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, failure.NewCallError(failure.Transient, "newsapi", fmt.Errorf("decoding response: %w", err))
	}

	if result.Status != "ok" {
		return nil, failure.NewCallError(failure.Fatal, "newsapi", fmt.Errorf("status %s: %s", result.Status, result.Message))
	}

	var candidates []brief.SourceCandidate
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		candidates = append(candidates, brief.SourceCandidate{
			URL:     a.URL,
			Title:   strings.TrimSpace(a.Title),
			Snippet: strings.TrimSpace(a.Description),
		})
		if maxResults > 0 && len(candidates) >= maxResults {
			break
		}
	}

	return rank(candidates), nil
}
