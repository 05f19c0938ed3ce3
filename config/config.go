// Package config loads OpenFeeder's process-wide configuration from the
// environment. Every key has a default except SITE_URL, which is
// mandatory.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all OpenFeeder sidecar configuration, read once at startup.
type Config struct {
	SiteURL          string  `mapstructure:"site_url"`
	SiteName         string  `mapstructure:"site_name"`
	SiteLang         string  `mapstructure:"site_lang"`
	CrawlInterval    int     `mapstructure:"crawl_interval"`
	MaxPages         int     `mapstructure:"max_pages"`
	CrawlRatePerSec  float64 `mapstructure:"crawl_rate_per_second"`
	Port             string  `mapstructure:"port"`
	EmbeddingModel   string  `mapstructure:"embedding_model"`
	EmbeddingBaseURL string  `mapstructure:"embedding_base_url"`

	WebhookSecret string `mapstructure:"openfeeder_webhook_secret"`

	AnalyticsProvider string `mapstructure:"analytics_provider"`
	AnalyticsURL      string `mapstructure:"analytics_url"`
	AnalyticsSiteID   string `mapstructure:"analytics_site_id"`
	AnalyticsAPIKey   string `mapstructure:"analytics_api_key"`

	VectorStorePath string `mapstructure:"vector_store_path"`
	TombstonePath   string `mapstructure:"tombstone_path"`
	LogLevel        string `mapstructure:"log_level"`
}

// Load reads configuration from the environment. SITE_URL is required; every
// other key falls back to its documented default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("site_name", "")
	v.SetDefault("site_lang", "en")
	v.SetDefault("crawl_interval", 3600)
	v.SetDefault("max_pages", 500)
	v.SetDefault("port", "8080")
	v.SetDefault("embedding_model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding_base_url", "http://localhost:8081/v1")
	v.SetDefault("crawl_rate_per_second", 5.0)
	v.SetDefault("openfeeder_webhook_secret", "")
	v.SetDefault("analytics_provider", "none")
	v.SetDefault("analytics_url", "")
	v.SetDefault("analytics_site_id", "")
	v.SetDefault("analytics_api_key", "")
	v.SetDefault("vector_store_path", "/data/chromadb/openfeeder.db")
	v.SetDefault("tombstone_path", "/app/data/tombstones.json")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		SiteURL:           v.GetString("site_url"),
		SiteName:          v.GetString("site_name"),
		SiteLang:          v.GetString("site_lang"),
		CrawlInterval:     v.GetInt("crawl_interval"),
		MaxPages:          v.GetInt("max_pages"),
		CrawlRatePerSec:   v.GetFloat64("crawl_rate_per_second"),
		Port:              v.GetString("port"),
		EmbeddingModel:    v.GetString("embedding_model"),
		EmbeddingBaseURL:  v.GetString("embedding_base_url"),
		WebhookSecret:     v.GetString("openfeeder_webhook_secret"),
		AnalyticsProvider: v.GetString("analytics_provider"),
		AnalyticsURL:      v.GetString("analytics_url"),
		AnalyticsSiteID:   v.GetString("analytics_site_id"),
		AnalyticsAPIKey:   v.GetString("analytics_api_key"),
		VectorStorePath:   v.GetString("vector_store_path"),
		TombstonePath:     v.GetString("tombstone_path"),
		LogLevel:          v.GetString("log_level"),
	}

	if cfg.SiteURL == "" {
		return nil, fmt.Errorf("SITE_URL environment variable is required")
	}
	if cfg.SiteName == "" {
		cfg.SiteName = siteNameFromURL(cfg.SiteURL)
	}

	return cfg, nil
}

// siteNameFromURL derives a presentable site name from the host of SITE_URL
// when SITE_NAME is not set.
func siteNameFromURL(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return siteURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
