package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"openfeeder-sidecar/analytics"
	"openfeeder-sidecar/api"
	"openfeeder-sidecar/config"
	"openfeeder-sidecar/crawler"
	"openfeeder-sidecar/embeddings"
	"openfeeder-sidecar/logging"
	"openfeeder-sidecar/orchestrator"
	"openfeeder-sidecar/vectorindex"
	"openfeeder-sidecar/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging isn't initialised yet; this is the one place the error
		// is written straight to stderr.
		os.Stderr.WriteString("openfeeder: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel)
	log.Info().Str("site_url", cfg.SiteURL).Str("port", cfg.Port).Msg("starting openfeeder sidecar")

	store, err := vectorstore.Open(cfg.VectorStorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.VectorStorePath).Msg("failed to open vector store")
	}
	defer store.Close()

	embedder := embeddings.NewHTTPEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
	index := vectorindex.New(store, embedder)

	c := crawler.New(cfg.CrawlRatePerSec)
	tombstones := orchestrator.NewTombstoneStore(cfg.TombstonePath)
	orch := orchestrator.New(cfg.SiteURL, cfg.MaxPages, c, index, tombstones)

	if err := orch.Start(cfg.CrawlInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	tracker := analytics.New(cfg.AnalyticsProvider, cfg.AnalyticsURL, cfg.AnalyticsSiteID, cfg.AnalyticsAPIKey)

	server := api.NewServer(cfg, index, orch, tracker)
	router := api.SetupRoutes(server)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", httpServer.Addr).Msg("openfeeder sidecar listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	orch.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
}
