package router

import (
	"github.com/gin-gonic/gin"
	"github.com/pricedragon/backend/internal/infrastructure/logger"
	"github.com/pricedragon/backend/internal/interfaces/http/handler"
	"github.com/pricedragon/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// EngineOptions configures the gin engine middleware stack
type EngineOptions struct {
	Logger         *zap.Logger
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
	// Metrics is optional HTTP metrics middleware
	Metrics gin.HandlerFunc
}

// NewEngine creates a gin engine with request IDs, logging, recovery, CORS,
// body limits and optional metrics.
func NewEngine(opts EngineOptions) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(opts.Logger),
		logger.Recovery(opts.Logger),
		middleware.CORS(opts.CORS),
	)
	if opts.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.MaxBodySize))
	}
	if opts.Metrics != nil {
		engine.Use(opts.Metrics)
	}
	return engine, nil
}

// Handlers are the API handlers mounted by RegisterAPI
type Handlers struct {
	Entries *handler.EntryHandler
	Prices  *handler.PriceHandler
	Ingest  *handler.IngestHandler
	System  *handler.SystemHandler
}

// RegisterAPI mounts the price API. ingestLimit, when set, guards the
// endpoints that start work.
func RegisterAPI(r *Router, h Handlers, ingestLimit gin.HandlerFunc) {
	system := NewRouteGroup("system", "")
	system.GET("/health", h.System.Health).
		GET("/ping", h.System.Ping)

	entries := NewRouteGroup("entries", "/entries")
	entries.GET("", h.Entries.List).
		GET("/:id", h.Entries.Get).
		GET("/:id/history", h.Entries.History).
		GET("/:id/similar", h.Entries.Similar).
		GET("/:id/best-price", h.Entries.BestPrice)

	// Natural keys live under /platforms since gin cannot share the
	// /entries/:id segment with a second parameter name.
	listings := NewRouteGroup("listings", "/platforms/:platform/entries")
	listings.GET("/:product_id", h.Entries.GetByNaturalKey).
		GET("/:product_id/history", h.Entries.HistoryByNaturalKey)

	prices := NewRouteGroup("prices", "")
	prices.GET("/best-price", h.Prices.BestPrice).
		GET("/alerts", h.Prices.Alerts).
		GET("/runs", h.Ingest.Runs)

	work := NewRouteGroup("ingestion", "")
	if ingestLimit != nil {
		work.Use(ingestLimit)
	}
	work.POST("/ingest/:platform", h.Ingest.Ingest).
		POST("/matches/rebuild", h.Ingest.RebuildMatches)

	r.Mount(system, entries, listings, prices, work)
}
