package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/config"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

const liteHTML = `<html><body><table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fone&rut=x" class="result-link">First Result</a></td></tr>
<tr><td class="result-snippet">Snippet   one</td></tr>
<tr><td><a rel="nofollow" href="https://example.org/two" class="result-link">Second Result</a></td></tr>
<tr><td class="result-snippet">Snippet two</td></tr>
<tr><td><a rel="nofollow" href="https://example.net/three" class="result-link">Third Result</a></td></tr>
<tr><td class="result-snippet">Snippet three</td></tr>
</table></body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "go generics", r.FormValue("q"))
		w.Write([]byte(liteHTML))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(5*time.Second, 100)
	d.Endpoint = srv.URL

	got, err := d.Search(context.Background(), "go generics", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/one", got[0].URL)
	assert.Equal(t, "First Result", got[0].Title)
	assert.Equal(t, "Snippet one", got[0].Snippet)
	assert.Equal(t, 0, got[0].DiscoveryRank)
	assert.Equal(t, "https://example.org/two", got[1].URL)
	assert.Equal(t, 1, got[1].DiscoveryRank)
}

func TestDuckDuckGoRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(5*time.Second, 100)
	d.Endpoint = srv.URL
	_, err := d.Search(context.Background(), "q", 5)
	assert.Equal(t, failure.RateLimited, failure.KindOf(err))
}

func TestDuckDuckGoEmptyQuery(t *testing.T) {
	_, err := NewDuckDuckGo(0, 0).Search(context.Background(), "  ", 5)
	assert.Equal(t, failure.Fatal, failure.KindOf(err))
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://a.com/x", resolveRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.com%2Fx"))
	assert.Equal(t, "", resolveRedirect("https://duckduckgo.com/settings"))
	assert.Equal(t, "", resolveRedirect("javascript:void(0)"))
	assert.Equal(t, "https://b.com", resolveRedirect("https://b.com"))
}

func TestNewsAPISearch(t *testing.T) {
	t.Setenv("TEST_NEWSAPI_KEY", "key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "solar", r.URL.Query().Get("q"))
		w.Write([]byte(`{"status":"ok","articles":[
			{"url":"https://a.com","title":" A ","description":"about a"},
			{"url":"https://removed.com","title":"[Removed]"},
			{"url":"https://b.com","title":"B"}
		]}`))
	}))
	defer srv.Close()

	c := NewNewsAPIClient("TEST_NEWSAPI_KEY", 7, time.Second)
	c.BaseURL = srv.URL
	got, err := c.Search(context.Background(), "solar", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, "about a", got[0].Snippet)
	assert.Equal(t, 1, got[1].DiscoveryRank)
}

func TestNewsAPINotConfigured(t *testing.T) {
	c := NewNewsAPIClient("BRIEFGEN_TEST_UNSET_NEWSAPI", 0, 0)
	assert.False(t, c.IsConfigured())
	_, err := c.Search(context.Background(), "q", 5)
	assert.Equal(t, failure.Fatal, failure.KindOf(err))
}

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>News</title>
<item><title>Item One</title><link>https://news.example/1</link><description>&lt;b&gt;Bold&lt;/b&gt; text</description></item>
<item><title></title><link>https://news.example/skip</link></item>
<item><title>Item Two</title><link>https://news.example/2</link></item>
</channel></rss>`

func TestFeedSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "battery recycling", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	f := NewFeedSearch(srv.URL+"/rss?q={query}", time.Second)
	got, err := f.Search(context.Background(), "battery recycling", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Item One", got[0].Title)
	assert.Equal(t, "Bold text", got[0].Snippet)
	assert.Equal(t, "https://news.example/2", got[1].URL)
}

func TestFeedSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFeedSearch(srv.URL+"?q={query}", time.Second).Search(context.Background(), "x", 5)
	assert.Equal(t, failure.Transient, failure.KindOf(err))
}

type fakeSearcher struct {
	results []brief.SourceCandidate
	err     error
}

func (f fakeSearcher) Search(context.Context, string, int) ([]brief.SourceCandidate, error) {
	return f.results, f.err
}

func TestMultiMergesAndDedupes(t *testing.T) {
	a := fakeSearcher{results: []brief.SourceCandidate{{URL: "https://a.com"}, {URL: "https://b.com"}}}
	b := fakeSearcher{results: []brief.SourceCandidate{{URL: "https://www.a.com/"}, {URL: "https://c.com"}}}
	broken := fakeSearcher{err: errors.New("down")}

	got, err := NewMulti(nil, broken, a, b).Search(context.Background(), "q", 10)
	require.NoError(t, err)
	var urls []string
	for _, c := range got {
		urls = append(urls, fmt.Sprintf("%d:%s", c.DiscoveryRank, c.URL))
	}
	assert.Equal(t, []string{"0:https://a.com", "1:https://b.com", "2:https://c.com"}, urls)
}

func TestMultiInterleavesBackends(t *testing.T) {
	web := fakeSearcher{results: []brief.SourceCandidate{{URL: "https://web.com/1"}, {URL: "https://web.com/2"}, {URL: "https://web.com/3"}}}
	news := fakeSearcher{results: []brief.SourceCandidate{{URL: "https://news.com/1"}, {URL: "https://news.com/2"}}}

	got, err := NewMulti(nil, web, news).Search(context.Background(), "q", 3)
	require.NoError(t, err)
	var urls []string
	for _, c := range got {
		urls = append(urls, c.URL)
	}
	assert.Equal(t, []string{"https://web.com/1", "https://news.com/1", "https://web.com/2"}, urls)
}

func TestMultiAllFail(t *testing.T) {
	rl := failure.NewCallError(failure.RateLimited, "x", nil)
	_, err := NewMulti(nil, fakeSearcher{err: rl}, fakeSearcher{err: errors.New("down")}).Search(context.Background(), "q", 10)
	assert.Equal(t, failure.RateLimited, failure.KindOf(err))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Search{Backends: []string{"duckduckgo", "newsapi", "feed"}, Feed: config.FeedSearch{URLTemplate: "https://x/{query}"},
		NewsAPI: config.NewsAPI{APIKeyEnv: "BRIEFGEN_TEST_UNSET_NEWSAPI"}}
	m, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, m.backends, 2, "newsapi is skipped without a key")

	_, err = FromConfig(config.Search{Backends: []string{"bing"}}, nil)
	assert.Error(t, err)
}
