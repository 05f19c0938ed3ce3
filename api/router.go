package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes builds the gin.Engine exposing OpenFeeder's HTTP surface:
// discovery, the unified content endpoint, the webhook, manual crawl
// trigger and health check.
func SetupRoutes(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(openFeederHeaders())

	r.GET("/.well-known/openfeeder.json", s.Discovery)
	r.GET("/openfeeder", s.Content)
	r.POST("/openfeeder/update", s.Webhook)
	r.POST("/crawl", s.Crawl)
	r.GET("/healthz", s.Healthz)

	return r
}
