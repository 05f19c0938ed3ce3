// Package vectorindex is the vector index that owns chunks and pages. It
// translates OpenFeeder's page/chunk model onto the generic
// vectorstore.Store, embeds chunk text via an Embedder, and implements
// ingest, delete, search, chunks-for-url, paginated index and time-window
// queries.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"openfeeder-sidecar/embeddings"
	"openfeeder-sidecar/models"
	"openfeeder-sidecar/vectorstore"
)

const (
	metaURL            = "url"
	metaTitle          = "title"
	metaAuthor         = "author"
	metaPublished      = "published"
	metaUpdated        = "updated"
	metaLanguage       = "language"
	metaSummary        = "summary"
	metaChunkType      = "chunk_type"
	metaChunkIndex     = "chunk_index"
	metaIndexedAt      = "indexed_at"
	metaFirstIndexedAt = "first_indexed_at"
	metaChunkCount     = "chunk_count"
)

// Index serialises ingest, delete and ChunksForURL per URL so a concurrent
// chunk read never observes a mixed old/new chunk set.
type Index struct {
	store    vectorstore.Store
	embedder embeddings.Embedder

	urlLocksMu sync.Mutex
	urlLocks   map[string]*sync.Mutex
}

// New builds an Index over store, embedding chunk text with embedder.
func New(store vectorstore.Store, embedder embeddings.Embedder) *Index {
	return &Index{store: store, embedder: embedder, urlLocks: map[string]*sync.Mutex{}}
}

func (idx *Index) lockFor(url string) *sync.Mutex {
	idx.urlLocksMu.Lock()
	defer idx.urlLocksMu.Unlock()
	if idx.urlLocks[url] == nil {
		idx.urlLocks[url] = &sync.Mutex{}
	}
	return idx.urlLocks[url]
}

// IngestPage replaces all indexed data for page.URL: it deletes existing
// chunks for the URL, embeds the new chunk set as one batch, upserts each
// chunk with denormalised page metadata, and upserts the page record using
// the first chunk's vector as a stand-in page embedding. Returns the
// number of chunks indexed.
func (idx *Index) IngestPage(ctx context.Context, page models.ParsedPage) (int, error) {
	mu := idx.lockFor(page.URL)
	mu.Lock()
	defer mu.Unlock()

	now := float64(time.Now().UnixNano()) / 1e9

	firstIndexedAt := now
	if existing, ok, err := idx.store.GetByID(ctx, vectorstore.CollectionPages, models.PageID(page.URL)); err == nil && ok {
		if v, ok := existing.Metadata[metaFirstIndexedAt].(float64); ok {
			firstIndexedAt = v
		}
	}

	if err := idx.store.DeleteWhere(ctx, vectorstore.CollectionChunks, map[string]any{metaURL: page.URL}); err != nil {
		return 0, fmt.Errorf("failed to delete existing chunks for %s: %w", page.URL, err)
	}

	if len(page.Chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(page.Chunks))
	for i, c := range page.Chunks {
		texts[i] = c.Text
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks for %s: %w", page.URL, err)
	}

	summary := page.Summary
	if len(summary) > 500 {
		summary = summary[:500]
	}

	for i, chunk := range page.Chunks {
		chunkID := models.ChunkID(page.URL, i)
		record := vectorstore.Record{
			ID:     chunkID,
			Vector: vectors[i],
			Text:   chunk.Text,
			Metadata: map[string]any{
				metaURL:        page.URL,
				metaTitle:      page.Title,
				metaAuthor:     page.Author,
				metaPublished:  page.Published,
				metaUpdated:    page.Updated,
				metaLanguage:   page.Language,
				metaSummary:    summary,
				metaChunkType:  string(chunk.Type),
				metaChunkIndex: i,
				metaIndexedAt:  now,
			},
		}
		if err := idx.store.Upsert(ctx, vectorstore.CollectionChunks, record); err != nil {
			return 0, fmt.Errorf("failed to upsert chunk %s: %w", chunkID, err)
		}
	}

	pageRecord := vectorstore.Record{
		ID:     models.PageID(page.URL),
		Vector: vectors[0],
		Text:   summary,
		Metadata: map[string]any{
			metaURL:            page.URL,
			metaTitle:          page.Title,
			metaAuthor:         page.Author,
			metaPublished:      page.Published,
			metaUpdated:        page.Updated,
			metaLanguage:       page.Language,
			metaSummary:        summary,
			metaChunkCount:     len(page.Chunks),
			metaFirstIndexedAt: firstIndexedAt,
			metaIndexedAt:      now,
		},
	}
	if err := idx.store.Upsert(ctx, vectorstore.CollectionPages, pageRecord); err != nil {
		return 0, fmt.Errorf("failed to upsert page record for %s: %w", page.URL, err)
	}

	log.Info().Str("url", page.URL).Int("chunks", len(page.Chunks)).Msg("indexed page")
	return len(page.Chunks), nil
}

// DeletePage removes all chunks and the page record for url. Tombstone
// writing is the orchestrator's responsibility, not the index's.
func (idx *Index) DeletePage(ctx context.Context, url string) error {
	mu := idx.lockFor(url)
	mu.Lock()
	defer mu.Unlock()

	if err := idx.store.DeleteWhere(ctx, vectorstore.CollectionChunks, map[string]any{metaURL: url}); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", url, err)
	}
	if err := idx.store.DeleteByID(ctx, vectorstore.CollectionPages, models.PageID(url)); err != nil {
		return fmt.Errorf("failed to delete page record for %s: %w", url, err)
	}
	log.Info().Str("url", url).Msg("deleted all data for page")
	return nil
}

// Search embeds query and returns the nearest chunks (optionally scoped to
// one URL), relevance-ranked.
func (idx *Index) Search(ctx context.Context, query string, limit int, urlFilter string) ([]models.SearchResult, error) {
	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if limit > 50 {
		limit = 50
	}
	if limit <= 0 {
		limit = 10
	}

	var where map[string]any
	if urlFilter != "" {
		where = map[string]any{metaURL: urlFilter}
	}

	results, err := idx.store.Query(ctx, vectorstore.CollectionChunks, vectors[0], limit, where)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		relevance := roundTo4(max(0.0, 1.0-r.Distance))
		chunkType, _ := r.Record.Metadata[metaChunkType].(string)
		if chunkType == "" {
			chunkType = string(models.ChunkParagraph)
		}
		url, _ := r.Record.Metadata[metaURL].(string)
		title, _ := r.Record.Metadata[metaTitle].(string)
		out = append(out, models.SearchResult{
			ChunkID:   r.Record.ID,
			Text:      r.Record.Text,
			ChunkType: models.ChunkType(chunkType),
			Relevance: relevance,
			URL:       url,
			Title:     title,
		})
	}
	return out, nil
}

// ChunksForURL returns every chunk indexed for url, ordered by chunk_index.
func (idx *Index) ChunksForURL(ctx context.Context, url string) ([]models.ChunkDTO, error) {
	mu := idx.lockFor(url)
	mu.Lock()
	defer mu.Unlock()

	records, err := idx.store.GetByWhere(ctx, vectorstore.CollectionChunks, map[string]any{metaURL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for %s: %w", url, err)
	}

	sort.Slice(records, func(i, j int) bool {
		return chunkIndexOf(records[i]) < chunkIndexOf(records[j])
	})

	out := make([]models.ChunkDTO, 0, len(records))
	for _, r := range records {
		chunkType, _ := r.Metadata[metaChunkType].(string)
		if chunkType == "" {
			chunkType = string(models.ChunkParagraph)
		}
		out = append(out, models.ChunkDTO{ID: r.ID, Text: r.Text, Type: chunkType})
	}
	return out, nil
}

func chunkIndexOf(r vectorstore.Record) int {
	switch v := r.Metadata[metaChunkIndex].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetPageMeta returns the stored page record's metadata for url, if any.
func (idx *Index) GetPageMeta(ctx context.Context, url string) (vectorstore.Record, bool, error) {
	return idx.store.GetByID(ctx, vectorstore.CollectionPages, models.PageID(url))
}

// GetPage returns the typed page record for url, if indexed.
func (idx *Index) GetPage(ctx context.Context, url string) (models.Page, bool, error) {
	rec, ok, err := idx.store.GetByID(ctx, vectorstore.CollectionPages, models.PageID(url))
	if err != nil || !ok {
		return models.Page{}, false, err
	}
	return pageFromRecord(rec), true, nil
}

// pageFromRecord rebuilds a Page from the denormalised metadata bag stored
// alongside the page embedding. Numeric fields arrive as float64 from the
// SQLite store (JSON round-trip) but as native ints from the memory store.
func pageFromRecord(r vectorstore.Record) models.Page {
	var p models.Page
	p.URL, _ = r.Metadata[metaURL].(string)
	p.Title, _ = r.Metadata[metaTitle].(string)
	p.Author, _ = r.Metadata[metaAuthor].(string)
	p.Published, _ = r.Metadata[metaPublished].(string)
	p.Updated, _ = r.Metadata[metaUpdated].(string)
	p.Language, _ = r.Metadata[metaLanguage].(string)
	p.Summary, _ = r.Metadata[metaSummary].(string)
	switch v := r.Metadata[metaChunkCount].(type) {
	case int:
		p.ChunkCount = v
	case float64:
		p.ChunkCount = int(v)
	}
	p.FirstIndexedAt, _ = r.Metadata[metaFirstIndexedAt].(float64)
	p.IndexedAt, _ = r.Metadata[metaIndexedAt].(float64)
	return p
}

// AllPages returns a paginated index of every page, sorted by published
// date descending with unpublished pages last. This loads every page record
// before paginating; a 1000+ page index logs a warning.
func (idx *Index) AllPages(ctx context.Context, page, limit int) ([]models.IndexItem, int, error) {
	records, err := idx.store.GetByWhere(ctx, vectorstore.CollectionPages, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(records) == 0 {
		return []models.IndexItem{}, 0, nil
	}
	if len(records) > 1000 {
		log.Warn().Int("pages", len(records)).Msg("large index: AllPages loads all page metadata before paginating")
	}

	items := make([]models.IndexItem, len(records))
	for i, r := range records {
		items[i] = indexItemFromRecord(r)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return publishedSortKey(items[i].Published) > publishedSortKey(items[j].Published)
	})

	total := len(items)
	start := (page - 1) * limit
	if start < 0 || start >= total {
		return []models.IndexItem{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

// PagesInRange returns pages whose indexed_at falls within [since, until]
// (either bound may be zero/open-ended), split into added/updated by
// whether first_indexed_at >= since.
func (idx *Index) PagesInRange(ctx context.Context, since, until *time.Time) ([]models.ChangedPage, []models.ChangedPage, error) {
	records, err := idx.store.GetByWhere(ctx, vectorstore.CollectionPages, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pages: %w", err)
	}

	var sinceTS, untilTS *float64
	if since != nil {
		v := float64(since.UnixNano()) / 1e9
		sinceTS = &v
	}
	if until != nil {
		v := float64(until.UnixNano()) / 1e9
		untilTS = &v
	}

	var added, updated []models.ChangedPage
	for _, r := range records {
		indexedAt, _ := r.Metadata[metaIndexedAt].(float64)
		if sinceTS != nil && indexedAt < *sinceTS {
			continue
		}
		if untilTS != nil && indexedAt > *untilTS {
			continue
		}

		changed := changedPageFromRecord(r)
		first, _ := r.Metadata[metaFirstIndexedAt].(float64)
		if sinceTS == nil || first >= *sinceTS {
			added = append(added, changed)
		} else {
			updated = append(updated, changed)
		}
	}
	if added == nil {
		added = []models.ChangedPage{}
	}
	if updated == nil {
		updated = []models.ChangedPage{}
	}
	return added, updated, nil
}

func indexItemFromRecord(r vectorstore.Record) models.IndexItem {
	url, _ := r.Metadata[metaURL].(string)
	title, _ := r.Metadata[metaTitle].(string)
	summary, _ := r.Metadata[metaSummary].(string)
	item := models.IndexItem{URL: url, Title: title, Summary: summary}
	if published, ok := r.Metadata[metaPublished].(string); ok && published != "" {
		item.Published = &published
	}
	return item
}

func changedPageFromRecord(r vectorstore.Record) models.ChangedPage {
	url, _ := r.Metadata[metaURL].(string)
	title, _ := r.Metadata[metaTitle].(string)
	summary, _ := r.Metadata[metaSummary].(string)
	page := models.ChangedPage{URL: url, Title: title, Summary: summary}
	if published, ok := r.Metadata[metaPublished].(string); ok && published != "" {
		page.Published = &published
	}
	if updated, ok := r.Metadata[metaUpdated].(string); ok && updated != "" {
		page.Updated = &updated
	}
	return page
}

// publishedSortKey maps an empty/missing published date to the lowest
// possible sort key so unpublished pages sort last in descending order.
func publishedSortKey(published *string) string {
	if published == nil || *published == "" {
		return "0000"
	}
	return *published
}

func roundTo4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
