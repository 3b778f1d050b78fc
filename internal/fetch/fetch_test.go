package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

var articleHTML = `<html><head><title>Grid Storage Update</title></head><body>
<nav>Home | About</nav>
<article><h1>Grid Storage Update</h1>
<p>` + strings.Repeat("Utility-scale batteries are being deployed faster than expected. ", 12) + `</p>
<p>` + strings.Repeat("Costs continue to fall as manufacturing scales up. ", 10) + `</p>
</article></body></html>`

func serve(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchExtractsArticle(t *testing.T) {
	srv := serve(t, "text/html; charset=utf-8", articleHTML, http.StatusOK)

	res, err := New(Options{}).Fetch(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, brief.FetchOK, res.Status)
	assert.Contains(t, res.Text, "Utility-scale batteries")
}

func TestFetchTruncatesLongText(t *testing.T) {
	srv := serve(t, "text/html", articleHTML, http.StatusOK)

	res, err := New(Options{MaxChars: 50}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, brief.FetchTruncated, res.Status)
	assert.Equal(t, 50, len([]rune(res.Text)))
}

func TestFetchTruncatesLargeBody(t *testing.T) {
	srv := serve(t, "text/plain", strings.Repeat("x", 1000), http.StatusOK)

	res, err := New(Options{MaxBytes: 100}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, brief.FetchTruncated, res.Status)
	assert.Len(t, res.Text, 100)
}

func TestFetchClassifiesStatus(t *testing.T) {
	srv := serve(t, "text/html", "nope", http.StatusNotFound)
	_, err := New(Options{}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, failure.Fatal, failure.KindOf(err))

	srv = serve(t, "text/html", "busy", http.StatusBadGateway)
	_, err = New(Options{}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, failure.Transient, failure.KindOf(err))

	srv = serve(t, "text/html", "slow down", http.StatusTooManyRequests)
	_, err = New(Options{}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, failure.RateLimited, failure.KindOf(err))
}

func TestFetchRejectsBinary(t *testing.T) {
	srv := serve(t, "application/pdf", "%PDF-1.4", http.StatusOK)
	_, err := New(Options{}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, failure.Fatal, failure.KindOf(err))
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), "ftp://example.com/file")
	assert.Equal(t, failure.Fatal, failure.KindOf(err))
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), addr)
	assert.Equal(t, failure.Transient, failure.KindOf(err))
}

func TestExtractFallsBackToBodyText(t *testing.T) {
	srv := serve(t, "text/html", `<html><head><title>T</title><script>var x=1;</script></head><body><p>Short page body.</p></body></html>`, http.StatusOK)

	res, err := New(Options{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Short page body.")
	assert.NotContains(t, res.Text, "var x")
}
