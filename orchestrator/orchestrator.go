// Package orchestrator drives the crawl → chunk → index pipeline
// on a schedule, serves the webhook update path, and owns the tombstone
// store and last-crawl timestamp.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"openfeeder-sidecar/chunker"
	"openfeeder-sidecar/crawler"
	"openfeeder-sidecar/vectorindex"
)

const (
	webhookInlineThreshold = 10
	webhookFetchTimeout    = 30 * time.Second
	webhookUserAgent       = "OpenFeeder/1.0 (webhook updater)"
)

// Orchestrator owns the tombstone store, the crawl re-entrancy
// guard, and the periodic schedule; the vector index and crawler are
// injected collaborators.
type Orchestrator struct {
	siteURL  string
	maxPages int

	crawler     *crawler.Crawler
	index       *vectorindex.Index
	tombstones  *TombstoneStore
	httpClient  *http.Client
	cron        *cron.Cron
	globalMu    sync.Mutex // serialises full crawls
	running     atomic.Bool
	lastCrawlTS atomic.Value // float64
}

// New builds an Orchestrator for a site.
func New(siteURL string, maxPages int, c *crawler.Crawler, idx *vectorindex.Index, tombstones *TombstoneStore) *Orchestrator {
	o := &Orchestrator{
		siteURL:    strings.TrimRight(siteURL, "/"),
		maxPages:   maxPages,
		crawler:    c,
		index:      idx,
		tombstones: tombstones,
		httpClient: &http.Client{Timeout: webhookFetchTimeout},
		cron:       cron.New(),
	}
	o.lastCrawlTS.Store(float64(0))
	return o
}

// Start schedules an immediate background crawl and registers the
// recurring full crawl every crawlIntervalSeconds.
func (o *Orchestrator) Start(crawlIntervalSeconds int) error {
	go o.FullCrawl(context.Background())

	spec := fmt.Sprintf("@every %ds", crawlIntervalSeconds)
	if _, err := o.cron.AddFunc(spec, func() { o.FullCrawl(context.Background()) }); err != nil {
		return fmt.Errorf("failed to register recurring crawl: %w", err)
	}
	o.cron.Start()
	log.Info().Int("interval_seconds", crawlIntervalSeconds).Msg("scheduled recurring crawl")
	return nil
}

// Shutdown cancels the scheduler without awaiting in-flight jobs.
func (o *Orchestrator) Shutdown() {
	o.cron.Stop()
}

// CrawlRunning reports whether a full crawl is currently in progress.
func (o *Orchestrator) CrawlRunning() bool { return o.running.Load() }

// LastCrawlTS returns the Unix timestamp of the last successful crawl, or
// zero if none has completed yet.
func (o *Orchestrator) LastCrawlTS() float64 { return o.lastCrawlTS.Load().(float64) }

// FullCrawl runs crawl → chunk → index once, guarded against re-entrancy.
// Exceptions are logged, never propagated.
func (o *Orchestrator) FullCrawl(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic recovered in full crawl")
			o.running.Store(false)
		}
	}()

	if !o.running.CompareAndSwap(false, true) {
		log.Warn().Msg("crawl already in progress, skipping")
		return
	}
	defer o.running.Store(false)

	o.globalMu.Lock()
	defer o.globalMu.Unlock()

	log.Info().Str("site_url", o.siteURL).Int("max_pages", o.maxPages).Msg("starting crawl")
	result := o.crawler.Crawl(ctx, o.siteURL, o.maxPages)
	log.Info().Int("pages", len(result.Pages)).Int("errors", len(result.Errors)).Msg("crawl finished")

	totalChunks := 0
	for _, page := range result.Pages {
		parsed := chunker.ChunkHTML(page.URL, page.HTML)
		n, err := o.index.IngestPage(ctx, parsed)
		if err != nil {
			log.Warn().Str("url", page.URL).Err(err).Msg("failed to index crawled page")
			continue
		}
		totalChunks += n
	}

	o.lastCrawlTS.Store(float64(time.Now().Unix()))
	log.Info().Int("total_chunks", totalChunks).Int("pages", len(result.Pages)).Msg("indexed crawl results")

	for i, errMsg := range result.Errors {
		if i >= 10 {
			break
		}
		log.Warn().Str("error", errMsg).Msg("crawl error")
	}
}

// WebhookResult is the outcome of a webhook update request.
type WebhookResult struct {
	Queued    bool
	Processed int
	Errors    []string
}

// Webhook processes a webhook update request.
// action is "upsert" or "delete"; urls are relative paths, resolved against
// the site base. Batches of 10 or fewer URLs are processed inline; larger
// batches are processed in the background and the caller is told to expect
// status "queued".
func (o *Orchestrator) Webhook(ctx context.Context, action string, urls []string) WebhookResult {
	batchID := uuid.New().String()
	resolved := make([]string, len(urls))
	for i, u := range urls {
		resolved[i] = o.resolveURL(u)
	}

	if len(resolved) <= webhookInlineThreshold {
		log.Info().Str("batch_id", batchID).Str("action", action).Int("urls", len(resolved)).Msg("processing webhook batch inline")
		errs := o.processURLs(ctx, action, resolved)
		return WebhookResult{Queued: false, Processed: len(resolved), Errors: errs}
	}

	log.Info().Str("batch_id", batchID).Str("action", action).Int("urls", len(resolved)).Msg("queued webhook batch for background processing")
	go func() {
		bgCtx := context.Background()
		errs := o.processURLs(bgCtx, action, resolved)
		if len(errs) > 0 {
			log.Warn().Str("batch_id", batchID).Int("errors", len(errs)).Msg("background webhook batch finished with errors")
		}
	}()
	return WebhookResult{Queued: true, Processed: 0, Errors: []string{}}
}

func (o *Orchestrator) resolveURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return o.siteURL + "/" + strings.TrimLeft(raw, "/")
}

// processURLs runs upsert/delete for each URL, collecting per-URL errors
// without aborting the batch on the first failure.
func (o *Orchestrator) processURLs(ctx context.Context, action string, urls []string) []string {
	var errs []string
	for _, u := range urls {
		var err error
		switch action {
		case "upsert":
			err = o.upsertOne(ctx, u)
		case "delete":
			err = o.deleteOne(ctx, u)
		default:
			err = fmt.Errorf("unknown action %q", action)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", u, err))
			log.Warn().Str("url", u).Str("action", action).Err(err).Msg("webhook item failed")
		}
	}
	if errs == nil {
		errs = []string{}
	}
	return errs
}

func (o *Orchestrator) upsertOne(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	parsed := chunker.ChunkHTML(target, string(body))
	if _, err := o.index.IngestPage(ctx, parsed); err != nil {
		return fmt.Errorf("failed to index page: %w", err)
	}
	return nil
}

func (o *Orchestrator) deleteOne(ctx context.Context, target string) error {
	if err := o.index.DeletePage(ctx, target); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	o.tombstones.Add(target)
	return nil
}

// SiteURL exposes the configured site base for handlers that need to
// resolve a `url` query parameter without duplicating the join logic.
func (o *Orchestrator) SiteURL() string { return o.siteURL }

// Tombstones exposes the tombstone store for sync-mode deleted-page
// lookups.
func (o *Orchestrator) Tombstones() *TombstoneStore { return o.tombstones }
