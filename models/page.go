package models

// Page is a crawled, parsed document. It is created on first
// index, replaced on re-ingest while preserving FirstIndexedAt, and removed
// only by explicit delete.
type Page struct {
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	Author         string   `json:"author,omitempty"`
	Published      string   `json:"published,omitempty"`
	Updated        string   `json:"updated,omitempty"`
	Language       string   `json:"language"`
	Summary        string   `json:"summary"`
	Metadata       Metadata `json:"-"`
	ChunkCount     int      `json:"-"`
	FirstIndexedAt float64  `json:"-"`
	IndexedAt      float64  `json:"-"`
}

// ID returns the page's deterministic identity: sha256("page::<url>")[:16].
func (p Page) ID() string {
	return PageID(p.URL)
}

// ChunkType enumerates the typed slices a page's visible content is split
// into.
type ChunkType string

const (
	ChunkParagraph    ChunkType = "paragraph"
	ChunkHeading      ChunkType = "heading"
	ChunkList         ChunkType = "list"
	ChunkCode         ChunkType = "code"
	ChunkQuote        ChunkType = "quote"
	ChunkIngredients  ChunkType = "ingredients"
	ChunkInstructions ChunkType = "instructions"
)

// Chunk is an ordered, typed slice of a page's visible content.
type Chunk struct {
	URL   string    `json:"-"`
	Index int       `json:"-"`
	Type  ChunkType `json:"type"`
	Text  string    `json:"text"`

	// Denormalised page metadata, carried for single-chunk retrieval.
	PageTitle     string `json:"-"`
	PageAuthor    string `json:"-"`
	PagePublished string `json:"-"`
	PageUpdated   string `json:"-"`
	PageLanguage  string `json:"-"`
	PageSummary   string `json:"-"`
}

// ID returns the chunk's deterministic identity:
// sha256("<url>::chunk::<index>")[:16].
func (c Chunk) ID() string {
	return ChunkID(c.URL, c.Index)
}

// ParsedPage is the chunker's output: a cleaned, chunked representation of
// one fetched page.
type ParsedPage struct {
	URL       string
	Title     string
	Author    string
	Published string
	Updated   string
	Language  string
	Summary   string
	Metadata  Metadata
	Chunks    []Chunk
}

// Tombstone is a durable deletion marker.
type Tombstone struct {
	URL       string `json:"url"`
	DeletedAt string `json:"deleted_at"`
}

// SearchResult is a single ranked chunk returned by a semantic search query.
type SearchResult struct {
	ChunkID   string
	Text      string
	ChunkType ChunkType
	Relevance float64
	URL       string
	Title     string
}

// IndexItem is the projection of a Page used by the paginated index mode.
type IndexItem struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Published *string `json:"published"`
	Summary   string  `json:"summary"`
}

// ChangedPage is the projection of a Page used by sync-mode added/updated
// lists.
type ChangedPage struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Published *string `json:"published"`
	Updated   *string `json:"updated"`
	Summary   string  `json:"summary"`
}
