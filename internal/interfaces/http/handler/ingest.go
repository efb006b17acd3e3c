package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogapp "github.com/pricedragon/backend/internal/application/catalog"
	ingestionapp "github.com/pricedragon/backend/internal/application/ingestion"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/scheduler"
	"github.com/pricedragon/backend/internal/interfaces/http/dto"
)

// ScraperLookup finds the scraper of a platform
type ScraperLookup interface {
	Get(platform string) (ingestion.Scraper, error)
}

// RebuildQueue schedules a full match graph rebuild
type RebuildQueue interface {
	EnqueueRebuild() error
}

// IngestHandler triggers ingestion runs and match rebuilds
type IngestHandler struct {
	BaseHandler
	orchestrator *ingestionapp.Orchestrator
	queries      *catalogapp.QueryService
	scrapers     ScraperLookup
	rebuilds     RebuildQueue
}

// NewIngestHandler creates a new IngestHandler. scrapers and rebuilds may be
// nil, which disables live scraping and rebuild scheduling.
func NewIngestHandler(
	orchestrator *ingestionapp.Orchestrator,
	queries *catalogapp.QueryService,
	scrapers ScraperLookup,
	rebuilds RebuildQueue,
) *IngestHandler {
	return &IngestHandler{
		orchestrator: orchestrator,
		queries:      queries,
		scrapers:     scrapers,
		rebuilds:     rebuilds,
	}
}

// Ingest godoc
// @Summary      Ingest a batch for a platform
// @Description  Ingests the posted records, or searches the platform scraper for query when no records are given. Returns the run report.
// @Tags         ingestion
// @Accept       json
// @Produce      json
// @Param        platform path string              true "Platform"
// @Param        request  body dto.IngestRequest   true "Batch"
// @Success      200 {object} dto.Response{data=ingestion.RunReport}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/{platform} [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	platform := c.Param("platform")

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	opts := ingestionapp.RunOptions{Query: req.Query, SyncMatching: req.SyncMatching}

	var (
		report *ingestion.RunReport
		err    error
	)
	switch {
	case len(req.Records) > 0:
		report, err = h.orchestrator.Run(c.Request.Context(), platform, req.Records, opts)
	case req.Query != "" && h.scrapers != nil:
		scraper, lookupErr := h.scrapers.Get(platform)
		if lookupErr != nil {
			h.HandleError(c, lookupErr)
			return
		}
		report, err = h.orchestrator.RunFromScraper(c.Request.Context(), scraper, req.Query, opts)
		var domainErr *shared.DomainError
		if err != nil && !errors.As(err, &domainErr) {
			h.Error(c, http.StatusBadGateway, dto.ErrCodeUpstream, err.Error())
			return
		}
	default:
		h.BadRequest(c, "records or query is required")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Runs godoc
// @Summary      Recent ingestion runs
// @Tags         ingestion
// @Produce      json
// @Param        platform query string false "Platform filter"
// @Param        limit    query int    false "Maximum results" default(20)
// @Success      200 {object} dto.Response{data=[]ingestion.RunReport}
// @Router       /runs [get]
func (h *IngestHandler) Runs(c *gin.Context) {
	var q dto.RunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	runs, err := h.queries.ListRuns(c.Request.Context(), q.Platform, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, runs, len(runs), q.Limit)
}

// RebuildMatches godoc
// @Summary      Schedule a full match graph rebuild
// @Tags         ingestion
// @Produce      json
// @Success      202 {object} dto.Response
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /matches/rebuild [post]
func (h *IngestHandler) RebuildMatches(c *gin.Context) {
	if h.rebuilds == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "match rebuilds are not scheduled by this server")
		return
	}
	if err := h.rebuilds.EnqueueRebuild(); err != nil {
		if errors.Is(err, scheduler.ErrJobQueueFull) || errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, gin.H{"status": "scheduled"})
}
