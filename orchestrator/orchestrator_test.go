package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfeeder-sidecar/crawler"
	"openfeeder-sidecar/embeddings"
	"openfeeder-sidecar/vectorindex"
	"openfeeder-sidecar/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 1}
	}
	return out, nil
}

var _ embeddings.Embedder = fakeEmbedder{}

func newTestOrchestrator(t *testing.T, siteURL string) *Orchestrator {
	idx := vectorindex.New(vectorstore.NewMemoryStore(), fakeEmbedder{})
	tombstones := NewTombstoneStore(filepath.Join(t.TempDir(), "tombstones.json"))
	c := crawler.New(1000)
	return New(siteURL, 10, c, idx, tombstones)
}

func TestFullCrawlIndexesPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main><p>` + strings.Repeat("word ", 40) + `</p></body></main></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)
	o.FullCrawl(context.Background())

	assert.True(t, o.LastCrawlTS() > 0)
	assert.False(t, o.CrawlRunning())
}

func TestFullCrawlGuardsReentrancy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main><p>slow page content here</p></main></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)

	done := make(chan struct{})
	go func() {
		o.FullCrawl(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, o.CrawlRunning())
	o.FullCrawl(context.Background()) // should skip immediately, not block
	<-done
}

func TestWebhookUpsertInline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main><p>a freshly published article with real content</p></main></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)
	result := o.Webhook(context.Background(), "upsert", []string{"/article"})

	assert.False(t, result.Queued)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)

	chunks, err := o.index.ChunksForURL(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestWebhookUpsertCollectsPerURLErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	server := httptest.NewServer(mux)
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)
	result := o.Webhook(context.Background(), "upsert", []string{"/missing"})

	assert.Equal(t, 1, result.Processed)
	assert.Len(t, result.Errors, 1)
}

func TestWebhookDeleteWritesTombstone(t *testing.T) {
	o := newTestOrchestrator(t, "https://example.com")
	result := o.Webhook(context.Background(), "delete", []string{"/gone"})

	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)

	since := o.tombstones.Since(time.Now().Add(-time.Minute))
	require.Len(t, since, 1)
	assert.Equal(t, "https://example.com/gone", since[0].URL)
}

func TestWebhookQueuesLargeBatches(t *testing.T) {
	o := newTestOrchestrator(t, "https://example.com")

	urls := make([]string, 11)
	for i := range urls {
		urls[i] = fmt.Sprintf("/gone-%d", i)
	}
	result := o.Webhook(context.Background(), "delete", urls)

	assert.True(t, result.Queued)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, result.Errors)

	// The queued batch keeps writing tombstones into the test's temp dir
	// after Webhook returns; wait for its last write before cleanup runs.
	require.Eventually(t, func() bool {
		return len(o.tombstones.Since(time.Now().Add(-time.Minute))) == len(urls)
	}, 5*time.Second, 10*time.Millisecond)
}
