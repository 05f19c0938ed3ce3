// Package crawler discovers and fetches a target site's pages: it seeds a
// breadth-first walk from sitemap.xml (recursing into sitemap indexes) and
// the site root, then follows same-origin links up to a page budget.
package crawler

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Page is a crawled page with its raw HTML and resolved URL.
type Page struct {
	URL    string
	HTML   string
	Status int
}

// Result is the aggregated outcome of a full crawl run. Per-URL failures
// are collected in Errors rather than aborting the walk.
type Result struct {
	Pages  []Page
	Errors []string
}

// skipExtensions matches URLs we never want to crawl (media, archives,
// fonts, stylesheets, scripts).
var skipExtensions = regexp.MustCompile(
	`(?i)\.(jpg|jpeg|png|gif|svg|webp|ico|pdf|zip|tar|gz|mp3|mp4|mov|avi|woff2?|ttf|eot|css|js)$`,
)

const userAgent = "OpenFeeder/1.0 (sidecar crawler)"

// Crawler walks a site with a single politeness-rate-limited HTTP client.
type Crawler struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New builds a Crawler. requestsPerSecond bounds how fast the crawler
// issues requests against the target site.
func New(requestsPerSecond float64) *Crawler {
	return &Crawler{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Crawl walks siteURL and returns up to maxPages pages, seeding the queue
// from sitemap.xml before falling back to plain link discovery.
func (c *Crawler) Crawl(ctx context.Context, siteURL string, maxPages int) Result {
	var result Result
	visited := map[string]bool{}
	var queue []string

	for _, u := range c.fetchSitemap(ctx, siteURL, siteURL) {
		n := normaliseURL(u)
		if !visited[n] {
			visited[n] = true
			queue = append(queue, n)
		}
	}

	root := normaliseURL(siteURL)
	if !visited[root] {
		visited[root] = true
		queue = append([]string{root}, queue...)
	}

	idx := 0
	for idx < len(queue) && len(result.Pages) < maxPages {
		target := queue[idx]
		idx++

		if err := c.limiter.Wait(ctx); err != nil {
			result.Errors = append(result.Errors, "GET "+target+": "+err.Error())
			continue
		}

		body, status, contentType, err := c.fetch(ctx, target, 15*time.Second)
		if err != nil {
			result.Errors = append(result.Errors, "GET "+target+": "+err.Error())
			continue
		}
		if !strings.Contains(contentType, "text/html") {
			continue
		}
		if status >= 400 {
			result.Errors = append(result.Errors, "GET "+target+": HTTP "+http.StatusText(status))
			continue
		}

		result.Pages = append(result.Pages, Page{URL: target, HTML: body, Status: status})
		log.Info().Str("url", target).Int("count", len(result.Pages)).Int("max_pages", maxPages).Msg("crawled page")

		for _, link := range extractLinks(body, target) {
			if !visited[link] && len(visited) < maxPages*2 {
				visited[link] = true
				queue = append(queue, link)
			}
		}
	}

	log.Info().Int("pages", len(result.Pages)).Int("errors", len(result.Errors)).Msg("crawl complete")
	return result
}

func (c *Crawler) fetch(ctx context.Context, target string, timeout time.Duration) (body string, status int, contentType string, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, "", err
	}
	return string(data), resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// sitemapURLSet mirrors the sitemap protocol's <urlset>/<sitemapindex> XML
// shapes closely enough to extract <loc> values from either.
type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fetchSitemap fetches sitemapURL relative to siteURL and recurses into any
// nested sitemap index.
func (c *Crawler) fetchSitemap(ctx context.Context, siteURL, from string) []string {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil
	}
	sitemapURL := base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()
	if from != siteURL {
		sitemapURL = from
	}

	body, status, _, err := c.fetch(ctx, sitemapURL, 15*time.Second)
	if err != nil || status != 200 {
		return nil
	}

	var idx sitemapIndex
	if xml.Unmarshal([]byte(body), &idx) == nil && len(idx.Sitemaps) > 0 {
		var urls []string
		for _, sm := range idx.Sitemaps {
			if sm.Loc != "" {
				urls = append(urls, c.fetchSitemap(ctx, siteURL, strings.TrimSpace(sm.Loc))...)
			}
		}
		return urls
	}

	var set sitemapURLSet
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return nil
	}
	var urls []string
	for _, u := range set.URLs {
		if u.Loc != "" {
			urls = append(urls, strings.TrimSpace(u.Loc))
		}
	}
	return urls
}

// extractLinks resolves every <a href> against baseURL and keeps the
// same-origin, non-asset results.
func extractLinks(html, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		normalised := normaliseURL(resolved.String())
		if isSameOrigin(base, resolved) && !skipExtensions.MatchString(normalised) {
			links = append(links, normalised)
		}
	})
	return links
}

func isSameOrigin(base, candidate *url.URL) bool {
	return base.Host == candidate.Host
}

// normaliseURL strips the fragment and, for URLs with more than three
// slashes, a trailing slash, so that "/a/b/" and "/a/b" dedup to one entry.
func normaliseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	s := u.String()
	if strings.HasSuffix(s, "/") && strings.Count(s, "/") > 3 {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}
