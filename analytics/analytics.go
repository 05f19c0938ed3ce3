// Package analytics implements bot identification from the User-Agent
// header and fire-and-forget event tracking against Umami or GA4.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// botFamily is one (User-Agent substring, family) pair. Order matters: the
// first match wins.
type botFamily struct {
	pattern string
	family  string
}

var botFamilies = []botFamily{
	{"GPTBot", "openai"},
	{"ChatGPT-User", "openai"},
	{"ClaudeBot", "anthropic"},
	{"anthropic-ai", "anthropic"},
	{"PerplexityBot", "perplexity"},
	{"Google-Extended", "google"},
	{"Googlebot", "google"},
	{"CCBot", "common-crawl"},
	{"cohere-ai", "cohere"},
	{"FacebookBot", "meta"},
	{"Amazonbot", "amazon"},
	{"YouBot", "you"},
	{"Bytespider", "bytedance"},
}

// DetectBot maps a User-Agent header to (bot name, bot family), falling
// back to ("human-or-unknown", "unknown") when nothing matches.
func DetectBot(userAgent string) (name, family string) {
	if userAgent == "" {
		return "unknown", "unknown"
	}
	lower := strings.ToLower(userAgent)
	for _, bf := range botFamilies {
		if strings.Contains(lower, strings.ToLower(bf.pattern)) {
			return bf.pattern, bf.family
		}
	}
	return "human-or-unknown", "unknown"
}

// Event is one tracked OpenFeeder request.
type Event struct {
	Hostname   string
	URL        string
	BotName    string
	BotFamily  string
	Endpoint   string
	Query      string
	Intent     string
	Results    int
	Cached     bool
	ResponseMs int64
}

// Tracker fires analytics events at Umami or GA4 without ever blocking the
// request that produced them.
type Tracker struct {
	provider string
	url      string
	siteID   string
	apiKey   string
	enabled  bool
	client   *http.Client
}

// New builds a Tracker. provider is "umami", "ga4", or anything else to
// disable tracking entirely.
func New(provider, url, siteID, apiKey string) *Tracker {
	enabled := provider != "none" && provider != "" && url != "" && siteID != ""
	return &Tracker{
		provider: provider,
		url:      strings.TrimRight(url, "/"),
		siteID:   siteID,
		apiKey:   apiKey,
		enabled:  enabled,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Track fires ev in the background. Failures are logged at debug level and
// never surfaced to the caller.
func (t *Tracker) Track(ev Event) {
	if !t.enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		switch t.provider {
		case "umami":
			err = t.sendUmami(ctx, ev)
		case "ga4":
			err = t.sendGA4(ctx, ev)
		}
		if err != nil {
			log.Debug().Err(err).Msg("analytics send failed (non-critical)")
		}
	}()
}

func (t *Tracker) sendUmami(ctx context.Context, ev Event) error {
	urlPath := ev.URL
	if urlPath == "" {
		urlPath = "/openfeeder"
	}
	payload := map[string]any{
		"type": "event",
		"payload": map[string]any{
			"website":  t.siteID,
			"hostname": ev.Hostname,
			"url":      urlPath,
			"name":     "openfeeder_request",
			"data": map[string]any{
				"bot_name":    ev.BotName,
				"bot_family":  ev.BotFamily,
				"endpoint":    ev.Endpoint,
				"query":       ev.Query,
				"intent":      ev.Intent,
				"results":     ev.Results,
				"cached":      ev.Cached,
				"response_ms": ev.ResponseMs,
			},
		},
	}
	return t.post(ctx, fmt.Sprintf("%s/api/send", t.url), payload, true)
}

func (t *Tracker) sendGA4(ctx context.Context, ev Event) error {
	if t.apiKey == "" {
		return nil
	}
	clientID := ev.BotName
	if clientID == "" {
		clientID = "bot"
	}
	payload := map[string]any{
		"client_id": clientID,
		"events": []map[string]any{
			{
				"name": "openfeeder_request",
				"params": map[string]any{
					"bot_name":    ev.BotName,
					"bot_family":  ev.BotFamily,
					"endpoint":    ev.Endpoint,
					"search_term": ev.Query,
					"results":     ev.Results,
				},
			},
		},
	}
	url := fmt.Sprintf("https://www.google-analytics.com/mp/collect?measurement_id=%s&api_secret=%s", t.siteID, t.apiKey)
	return t.post(ctx, url, payload, false)
}

func (t *Tracker) post(ctx context.Context, url string, payload map[string]any, auth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth && t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send analytics event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("analytics endpoint returned %d", resp.StatusCode)
	}
	return nil
}
