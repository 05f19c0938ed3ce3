package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfeeder-sidecar/models"
	"openfeeder-sidecar/vectorstore"
)

// fakeEmbedder returns a deterministic two-dimensional vector derived from
// each text's length so results in tests are predictable without a real
// embedding API.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := float32(len(t)%7 + 1)
		out[i] = []float32{v, 1}
	}
	return out, nil
}

func newTestIndex() *Index {
	return New(vectorstore.NewMemoryStore(), fakeEmbedder{})
}

func samplePage(url string) models.ParsedPage {
	return models.ParsedPage{
		URL:       url,
		Title:     "Sample",
		Author:    "Jane",
		Published: "2026-01-01",
		Language:  "en",
		Summary:   "A short summary.",
		Chunks: []models.Chunk{
			{URL: url, Index: 0, Type: models.ChunkParagraph, Text: "first paragraph"},
			{URL: url, Index: 1, Type: models.ChunkParagraph, Text: "second paragraph here"},
		},
	}
}

func TestIngestPageThenChunksForURL(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	n, err := idx.IngestPage(ctx, samplePage("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := idx.ChunksForURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph", chunks[0].Text)
	assert.Equal(t, "second paragraph here", chunks[1].Text)
}

func TestIngestPagePreservesFirstIndexedAt(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()
	url := "https://example.com/a"

	_, err := idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	first, ok, err := idx.GetPageMeta(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	firstIndexedAt := first.Metadata[metaFirstIndexedAt].(float64)

	time.Sleep(10 * time.Millisecond)
	_, err = idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	second, ok, err := idx.GetPageMeta(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, firstIndexedAt, second.Metadata[metaFirstIndexedAt].(float64))
}

func TestIngestPageReplacesOldChunks(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()
	url := "https://example.com/a"

	page := samplePage(url)
	_, err := idx.IngestPage(ctx, page)
	require.NoError(t, err)

	page.Chunks = []models.Chunk{{URL: url, Index: 0, Type: models.ChunkParagraph, Text: "only chunk now"}}
	n, err := idx.IngestPage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chunks, err := idx.ChunksForURL(ctx, url)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only chunk now", chunks[0].Text)
}

func TestGetPageReturnsTypedRecord(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()
	url := "https://example.com/a"

	_, err := idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	page, ok, err := idx.GetPage(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, url, page.URL)
	assert.Equal(t, "Sample", page.Title)
	assert.Equal(t, "Jane", page.Author)
	assert.Equal(t, 2, page.ChunkCount)
	assert.Greater(t, page.IndexedAt, 0.0)
	assert.Equal(t, page.FirstIndexedAt, page.IndexedAt)

	_, ok, err = idx.GetPage(ctx, "https://example.com/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletePageRemovesChunksAndPage(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()
	url := "https://example.com/a"

	_, err := idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	require.NoError(t, idx.DeletePage(ctx, url))

	chunks, err := idx.ChunksForURL(ctx, url)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, ok, err := idx.GetPageMeta(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchReturnsRankedRelevance(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_, err := idx.IngestPage(ctx, samplePage("https://example.com/a"))
	require.NoError(t, err)

	results, err := idx.Search(ctx, "first paragraph", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Relevance, 0.0)
		assert.LessOrEqual(t, r.Relevance, 1.0)
	}
}

func TestSearchFiltersByURL(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_, err := idx.IngestPage(ctx, samplePage("https://example.com/a"))
	require.NoError(t, err)
	_, err = idx.IngestPage(ctx, samplePage("https://example.com/b"))
	require.NoError(t, err)

	results, err := idx.Search(ctx, "paragraph", 10, "https://example.com/b")
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "https://example.com/b", r.URL)
	}
}

func TestAllPagesSortsPublishedDescendingWithUnpublishedLast(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	old := samplePage("https://example.com/old")
	old.Published = "2020-01-01"
	recent := samplePage("https://example.com/recent")
	recent.Published = "2026-01-01"
	unpublished := samplePage("https://example.com/unpublished")
	unpublished.Published = ""

	for _, p := range []models.ParsedPage{old, recent, unpublished} {
		_, err := idx.IngestPage(ctx, p)
		require.NoError(t, err)
	}

	items, total, err := idx.AllPages(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, "https://example.com/recent", items[0].URL)
	assert.Equal(t, "https://example.com/old", items[1].URL)
	assert.Equal(t, "https://example.com/unpublished", items[2].URL)
}

func TestAllPagesPaginates(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	for _, u := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		_, err := idx.IngestPage(ctx, samplePage(u))
		require.NoError(t, err)
	}

	items, total, err := idx.AllPages(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	items, total, err = idx.AllPages(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 1)
}

func TestPagesInRangeSplitsAddedAndUpdated(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	_, err := idx.IngestPage(ctx, samplePage("https://example.com/a"))
	require.NoError(t, err)

	checkpoint := time.Now()
	time.Sleep(1100 * time.Millisecond)

	_, err = idx.IngestPage(ctx, samplePage("https://example.com/b"))
	require.NoError(t, err)

	added, updated, err := idx.PagesInRange(ctx, &checkpoint, nil)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "https://example.com/b", added[0].URL)
	assert.Empty(t, updated)
}

func TestPagesInRangeTreatsReingestAsUpdated(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()
	url := "https://example.com/a"

	_, err := idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	checkpoint := time.Now()
	time.Sleep(1100 * time.Millisecond)

	_, err = idx.IngestPage(ctx, samplePage(url))
	require.NoError(t, err)

	added, updated, err := idx.PagesInRange(ctx, &checkpoint, nil)
	require.NoError(t, err)
	assert.Empty(t, added)
	require.Len(t, updated, 1)
	assert.Equal(t, url, updated[0].URL)
}
