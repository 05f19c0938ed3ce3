package models

// ChunkDTO is the JSON shape of a chunk in fetch/search/sync responses.
type ChunkDTO struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Type      string   `json:"type"`
	Relevance *float64 `json:"relevance"`
}

// ContentMeta is the "meta" block of a fetch/search response.
type ContentMeta struct {
	TotalChunks     int  `json:"total_chunks"`
	ReturnedChunks  int  `json:"returned_chunks"`
	Cached          bool `json:"cached"`
	CacheAgeSeconds *int `json:"cache_age_seconds"`
}

// ContentResponse is the unified single-page response shape used by both
// fetch mode and search mode.
type ContentResponse struct {
	Schema    string      `json:"schema"`
	URL       string      `json:"url"`
	Title     string      `json:"title"`
	Author    *string     `json:"author"`
	Published *string     `json:"published"`
	Updated   *string     `json:"updated"`
	Language  string      `json:"language"`
	Summary   string      `json:"summary"`
	Chunks    []ChunkDTO  `json:"chunks"`
	Meta      ContentMeta `json:"meta"`
}

// IndexResponse is the paginated index response shape.
type IndexResponse struct {
	Schema     string      `json:"schema"`
	Type       string      `json:"type"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Items      []IndexItem `json:"items"`
}

// SyncCounts summarises a differential-sync response.
type SyncCounts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// SyncInfo is the "sync" block of a differential-sync response.
type SyncInfo struct {
	AsOf      string     `json:"as_of"`
	SyncToken string     `json:"sync_token"`
	Since     *string    `json:"since,omitempty"`
	Until     *string    `json:"until,omitempty"`
	Counts    SyncCounts `json:"counts"`
}

// SyncResponse is the differential-sync response shape.
type SyncResponse struct {
	OpenFeederVersion string        `json:"openfeeder_version"`
	Sync              SyncInfo      `json:"sync"`
	Added             []ChangedPage `json:"added"`
	Updated           []ChangedPage `json:"updated"`
	Deleted           []Tombstone   `json:"deleted"`
}

// ErrorDetail is the body of the OpenFeeder error envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the full OpenFeeder error envelope.
type ErrorResponse struct {
	Schema string      `json:"schema"`
	Error  ErrorDetail `json:"error"`
}

// DiscoverySite is the "site" block of the discovery document.
type DiscoverySite struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Language    string `json:"language"`
	Description string `json:"description"`
}

// DiscoveryFeed is the "feed" block of the discovery document.
type DiscoveryFeed struct {
	Endpoint string `json:"endpoint"`
	Type     string `json:"type"`
}

// DiscoveryResponse is the `GET /.well-known/openfeeder.json` response
// shape.
type DiscoveryResponse struct {
	Version      string        `json:"version"`
	Site         DiscoverySite `json:"site"`
	Feed         DiscoveryFeed `json:"feed"`
	Capabilities []string      `json:"capabilities"`
	Contact      *string       `json:"contact"`
}

// WebhookRequest is the `POST /openfeeder/update` request body.
type WebhookRequest struct {
	Action string   `json:"action" binding:"required"`
	URLs   []string `json:"urls" binding:"required"`
}

// UpdateResponse is the webhook response shape.
type UpdateResponse struct {
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

// HealthResponse is the `GET /healthz` response shape.
type HealthResponse struct {
	Status       string  `json:"status"`
	CrawlRunning bool    `json:"crawl_running"`
	LastCrawl    float64 `json:"last_crawl"`
}

// CrawlResponse is the `POST /crawl` response shape.
type CrawlResponse struct {
	Status string `json:"status"`
}
