package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a/b", normaliseURL("https://example.com/a/b/"))
	assert.Equal(t, "https://example.com/a/b", normaliseURL("https://example.com/a/b/#section"))
	assert.Equal(t, "https://example.com/", normaliseURL("https://example.com/"))
}

func TestExtractLinksFiltersOffSiteAndAssets(t *testing.T) {
	html := `
	<html><body>
	<a href="/about">About</a>
	<a href="https://other.com/page">Other site</a>
	<a href="/image.png">Image</a>
	<a href="/contact#form">Contact</a>
	</body></html>`

	links := extractLinks(html, "https://example.com/")
	assert.Contains(t, links, "https://example.com/about")
	assert.Contains(t, links, "https://example.com/contact")
	assert.NotContains(t, links, "https://other.com/page")
	for _, l := range links {
		assert.NotContains(t, l, ".png")
	}
}

func TestCrawlFollowsLinksWithinMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/page2">next</a></body></html>`))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>no more links</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(1000)
	result := c.Crawl(context.Background(), server.URL, 10)

	require.Len(t, result.Errors, 0)
	assert.GreaterOrEqual(t, len(result.Pages), 2)
}
