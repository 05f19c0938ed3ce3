package api

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"openfeeder-sidecar/analytics"
	"openfeeder-sidecar/config"
	"openfeeder-sidecar/models"
	"openfeeder-sidecar/orchestrator"
	"openfeeder-sidecar/synctoken"
	"openfeeder-sidecar/vectorindex"
)

// Server wires the injected collaborators an HTTP handler needs: the
// vector index (reads), the orchestrator (crawl state, tombstones,
// webhook processing), config (site identity) and an analytics tracker.
type Server struct {
	cfg     *config.Config
	index   *vectorindex.Index
	orch    *orchestrator.Orchestrator
	tracker *analytics.Tracker
}

// NewServer builds a Server. It holds no mutable state of its own beyond
// request-local data.
func NewServer(cfg *config.Config, index *vectorindex.Index, orch *orchestrator.Orchestrator, tracker *analytics.Tracker) *Server {
	return &Server{cfg: cfg, index: index, orch: orch, tracker: tracker}
}

// Discovery implements `GET /.well-known/openfeeder.json`, with optional
// conditional-GET support via an MD5-derived ETag.
func (s *Server) Discovery(c *gin.Context) {
	resp := models.DiscoveryResponse{
		Version: openFeederVersion,
		Site: models.DiscoverySite{
			Name:        s.cfg.SiteName,
			URL:         s.cfg.SiteURL,
			Language:    s.cfg.SiteLang,
			Description: "OpenFeeder sidecar for " + s.cfg.SiteName,
		},
		Feed:         models.DiscoveryFeed{Endpoint: "/openfeeder", Type: "paginated"},
		Capabilities: []string{"search", "embeddings", "diff-sync"},
	}

	body, err := json.Marshal(resp)
	if err != nil {
		internalError(c, "failed to render discovery document")
		return
	}

	etag := makeETag(body)
	c.Header("Cache-Control", "public, max-age=300, stale-while-revalidate=60")
	c.Header("ETag", etag)
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// makeETag computes `"<md5(body)[:16]>"`.
func makeETag(body []byte) string {
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:])[:16] + `"`
}

// Content implements `GET /openfeeder`, dispatching to sync / index /
// search / fetch mode based on which query parameters are present.
func (s *Server) Content(c *gin.Context) {
	start := time.Now()
	q := strings.TrimSpace(c.Query("q"))
	since := strings.TrimSpace(c.Query("since"))
	until := strings.TrimSpace(c.Query("until"))
	rawURL := strings.TrimSpace(c.Query("url"))

	page := parsePositiveIntDefault(c.Query("page"), 1, 1, 0)
	limit := parsePositiveIntDefault(c.Query("limit"), 10, 1, 50)
	minScore := parseFloatDefault(c.Query("min_score"), 0, 0, 1)

	c.Header("X-OpenFeeder-Cache", cacheStatus(s.orch.LastCrawlTS()))

	switch {
	case q == "" && (since != "" || until != ""):
		s.syncMode(c, since, until, start)
	case rawURL == "" && q == "":
		s.indexMode(c, page, limit, start)
	case q != "":
		s.searchMode(c, q, rawURL, limit, minScore, start)
	default:
		s.fetchMode(c, rawURL, limit, start)
	}
}

func cacheStatus(lastCrawlTS float64) string {
	if lastCrawlTS > 0 {
		return "HIT"
	}
	return "MISS"
}

// parsePositiveIntDefault parses raw as an int, falling back to def on any
// parse failure. When max > 0, the result is clamped to [min, max].
func parsePositiveIntDefault(raw string, def, min, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func parseFloatDefault(raw string, def, min, max float64) float64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// indexMode implements the paginated index result shape.
func (s *Server) indexMode(c *gin.Context, page, limit int, start time.Time) {
	ctx := c.Request.Context()
	items, total, err := s.index.AllPages(ctx, page, limit)
	if err != nil {
		internalError(c, "failed to load index")
		return
	}

	resp := models.IndexResponse{
		Schema:     openFeederSchema,
		Type:       "index",
		Page:       page,
		TotalPages: totalPages(total, limit),
		Items:      items,
	}
	c.JSON(http.StatusOK, resp)
	s.track(c, "index", "", "", len(items), start)
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		limit = 10
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

// fetchMode implements single-page fetch.
func (s *Server) fetchMode(c *gin.Context, rawURL string, limit int, start time.Time) {
	resolved, err := s.resolveURLParam(rawURL)
	if err != nil {
		invalidURL(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	page, ok, err := s.index.GetPage(ctx, resolved)
	if err != nil {
		internalError(c, "failed to load page")
		return
	}
	if !ok {
		notFound(c, "no indexed page matches url")
		return
	}

	chunks, err := s.index.ChunksForURL(ctx, resolved)
	if err != nil {
		internalError(c, "failed to load chunks")
		return
	}

	totalChunks := page.ChunkCount
	if totalChunks == 0 {
		totalChunks = len(chunks)
	}
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}

	resp := models.ContentResponse{
		Schema:    openFeederSchema,
		URL:       resolved,
		Title:     page.Title,
		Author:    optionalString(page.Author),
		Published: optionalString(page.Published),
		Updated:   optionalString(page.Updated),
		Language:  page.Language,
		Summary:   page.Summary,
		Chunks:    chunks,
		Meta: models.ContentMeta{
			TotalChunks:     totalChunks,
			ReturnedChunks:  len(chunks),
			Cached:          s.orch.LastCrawlTS() > 0,
			CacheAgeSeconds: s.cacheAge(),
		},
	}
	c.JSON(http.StatusOK, resp)
	s.track(c, "fetch", "", "", len(chunks), start)
}

// cacheAge is seconds since the last completed crawl, or nil before the
// first one.
func (s *Server) cacheAge() *int {
	last := s.orch.LastCrawlTS()
	if last <= 0 {
		return nil
	}
	age := int(time.Now().Unix() - int64(last))
	if age < 0 {
		age = 0
	}
	return &age
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// searchMode implements semantic search.
func (s *Server) searchMode(c *gin.Context, q, rawURL string, limit int, minScore float64, start time.Time) {
	var urlFilter string
	if rawURL != "" {
		resolved, err := s.resolveURLParam(rawURL)
		if err != nil {
			invalidURL(c, err.Error())
			return
		}
		urlFilter = resolved
	}

	ctx := c.Request.Context()
	results, err := s.index.Search(ctx, q, limit, urlFilter)
	if err != nil {
		internalError(c, "search failed")
		return
	}

	chunks := make([]models.ChunkDTO, 0, len(results))
	for _, r := range results {
		if r.Relevance < minScore {
			continue
		}
		relevance := r.Relevance
		chunks = append(chunks, models.ChunkDTO{ID: r.ChunkID, Text: r.Text, Type: string(r.ChunkType), Relevance: &relevance})
	}

	if len(chunks) == 0 {
		notFound(c, "no chunks matched the query")
		return
	}

	// The response groups all matches under the top result's page.
	first := results[0]
	page, _, err := s.index.GetPage(ctx, first.URL)
	if err != nil {
		internalError(c, "failed to load page")
		return
	}
	if page.Title == "" {
		page.Title = first.Title
	}
	if page.Language == "" {
		page.Language = s.cfg.SiteLang
	}

	resp := models.ContentResponse{
		Schema:    openFeederSchema,
		URL:       first.URL,
		Title:     page.Title,
		Author:    optionalString(page.Author),
		Published: optionalString(page.Published),
		Updated:   optionalString(page.Updated),
		Language:  page.Language,
		Summary:   page.Summary,
		Chunks:    chunks,
		Meta: models.ContentMeta{
			TotalChunks:     len(results),
			ReturnedChunks:  len(chunks),
			Cached:          s.orch.LastCrawlTS() > 0,
			CacheAgeSeconds: s.cacheAge(),
		},
	}
	c.JSON(http.StatusOK, resp)
	s.track(c, "search", q, fmt.Sprintf("%d", len(chunks)), len(chunks), start)
}

// syncMode implements the differential-sync extension.
func (s *Server) syncMode(c *gin.Context, sinceRaw, untilRaw string, start time.Time) {
	asOf := time.Now().UTC()

	var sincePtr, untilPtr *time.Time
	if sinceRaw != "" {
		t, ok := synctoken.Parse(sinceRaw)
		if !ok {
			invalidParam(c, "since is not a valid RFC 3339 timestamp or sync token")
			return
		}
		sincePtr = &t
	}
	if untilRaw != "" {
		t, ok := synctoken.Parse(untilRaw)
		if !ok {
			invalidParam(c, "until is not a valid RFC 3339 timestamp or sync token")
			return
		}
		untilPtr = &t
	}
	if sincePtr != nil && untilPtr != nil && untilPtr.Before(*sincePtr) {
		invalidParam(c, "until must not be before since")
		return
	}

	ctx := c.Request.Context()
	added, updated, err := s.index.PagesInRange(ctx, sincePtr, untilPtr)
	if err != nil {
		internalError(c, "failed to compute sync window")
		return
	}

	var deleted []models.Tombstone
	if sincePtr != nil {
		deleted = s.orch.Tombstones().Since(*sincePtr)
	}
	if deleted == nil {
		deleted = []models.Tombstone{}
	}

	info := models.SyncInfo{
		AsOf:      asOf.Format(time.RFC3339),
		SyncToken: synctoken.Encode(asOf),
		Counts:    models.SyncCounts{Added: len(added), Updated: len(updated), Deleted: len(deleted)},
	}
	if sinceRaw != "" {
		info.Since = &sinceRaw
	}
	if untilRaw != "" {
		info.Until = &untilRaw
	}

	resp := models.SyncResponse{
		OpenFeederVersion: openFeederVersion,
		Sync:              info,
		Added:             added,
		Updated:           updated,
		Deleted:           deleted,
	}
	c.JSON(http.StatusOK, resp)
	s.track(c, "sync", "", "", len(added)+len(updated)+len(deleted), start)
}

// resolveURLParam resolves a `url` query parameter against the site base,
// rejecting path traversal. Absolute http(s) URLs are used as given; any
// other value is treated as a path under SITE_URL.
func (s *Server) resolveURLParam(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("url must not be empty")
	}
	if strings.Contains(raw, "..") {
		return "", fmt.Errorf("url must not contain path traversal segments")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	path := raw
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return s.orch.SiteURL() + path, nil
}

// Webhook implements `POST /openfeeder/update`.
func (s *Server) Webhook(c *gin.Context) {
	if s.cfg.WebhookSecret != "" {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if auth != "Bearer "+s.cfg.WebhookSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	var req models.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidParam(c, "request body must supply action and a non-empty urls list")
		return
	}
	if req.Action != "upsert" && req.Action != "delete" {
		invalidParam(c, "action must be \"upsert\" or \"delete\"")
		return
	}
	if len(req.URLs) == 0 {
		invalidParam(c, "urls must not be empty")
		return
	}

	result := s.orch.Webhook(c.Request.Context(), req.Action, req.URLs)
	if result.Queued {
		c.JSON(http.StatusOK, models.UpdateResponse{Status: "queued", Processed: 0, Errors: []string{}})
		return
	}
	c.JSON(http.StatusOK, models.UpdateResponse{Status: "ok", Processed: result.Processed, Errors: result.Errors})
}

// Crawl implements `POST /crawl`.
func (s *Server) Crawl(c *gin.Context) {
	if s.orch.CrawlRunning() {
		c.JSON(http.StatusOK, models.CrawlResponse{Status: "already_running"})
		return
	}
	go s.orch.FullCrawl(context.Background())
	c.JSON(http.StatusOK, models.CrawlResponse{Status: "crawl_started"})
}

// Healthz implements `GET /healthz`.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:       "ok",
		CrawlRunning: s.orch.CrawlRunning(),
		LastCrawl:    s.orch.LastCrawlTS(),
	})
}

// track fires an analytics event without blocking the response that
// produced it.
func (s *Server) track(c *gin.Context, endpoint, query, intent string, results int, start time.Time) {
	if s.tracker == nil {
		return
	}
	botName, botFamily := analytics.DetectBot(c.GetHeader("User-Agent"))
	s.tracker.Track(analytics.Event{
		Hostname:   c.Request.Host,
		URL:        c.Request.URL.Path,
		BotName:    botName,
		BotFamily:  botFamily,
		Endpoint:   endpoint,
		Query:      query,
		Intent:     intent,
		Results:    results,
		Cached:     s.orch.LastCrawlTS() > 0,
		ResponseMs: time.Since(start).Milliseconds(),
	})
	log.Debug().Str("endpoint", endpoint).Int("results", results).Msg("served openfeeder request")
}
