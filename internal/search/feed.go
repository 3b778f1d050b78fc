package search

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

// FeedSearch queries an RSS or Atom endpoint that accepts a search term,
// such as a news search feed. The template contains a {query} placeholder.
type FeedSearch struct {
	template string
	parser   *gofeed.Parser
}

// NewFeedSearch creates a feed-backed searcher.
func NewFeedSearch(urlTemplate string, timeout time.Duration) *FeedSearch {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "briefgen/1.0 (research assistant)"
	return &FeedSearch{template: urlTemplate, parser: parser}
}

func (f *FeedSearch) Name() string { return "feed" }

// Search fetches the feed for query and returns its items in feed order.
func (f *FeedSearch) Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error) {
	feedURL := strings.ReplaceAll(f.template, "{query}", url.QueryEscape(query))

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, failure.FromStatus("feed", httpErr.StatusCode, "", httpErr.Status)
		}
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, failure.NewCallError(failure.Fatal, "feed", err)
		}
		return nil, failure.FromTransport("feed", err)
	}

	var candidates []brief.SourceCandidate
	for _, item := range feed.Items {
		if maxResults > 0 && len(candidates) >= maxResults {
			break
		}
		c, ok := parseItem(item)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return rank(candidates), nil
}

func parseItem(item *gofeed.Item) (brief.SourceCandidate, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return brief.SourceCandidate{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return brief.SourceCandidate{}, false
	}

	var snippet string
	if item.Description != "" {
		snippet = stripHTML(item.Description)
	} else if item.Content != "" {
		snippet = stripHTML(item.Content)
	}

	return brief.SourceCandidate{URL: itemURL, Title: title, Snippet: snippet}, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)

	return strings.Join(strings.Fields(s), " ")
}
