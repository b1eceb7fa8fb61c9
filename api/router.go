// Package api assembles the relay's HTTP surface.
package api

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kre8/diagram-relay/api/handlers"
	"github.com/kre8/diagram-relay/api/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds what the router serves.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *slog.Logger
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer    prometheus.Gatherer
	WebSocket   *handlers.WebSocketHandler
	Fulfillment *handlers.FulfillmentHandler
}

// NewRouter builds the gin engine with every relay route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(middleware.Logging(cfg.Logger))
	}
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	if cfg.WebSocket != nil {
		cfg.WebSocket.RegisterRoutes(r)
	}

	api := r.Group("/api")
	{
		if cfg.Fulfillment != nil {
			cfg.Fulfillment.RegisterRoutes(api)
		}
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
