package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	catalogapp "github.com/pricedragon/backend/internal/application/catalog"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// DefaultHistoryDays is the history window when none is requested
const DefaultHistoryDays = 30

// EntryHandler serves lookups keyed by catalog entry
type EntryHandler struct {
	BaseHandler
	queries *catalogapp.QueryService
	now     func() time.Time
}

// NewEntryHandler creates a new EntryHandler
func NewEntryHandler(queries *catalogapp.QueryService) *EntryHandler {
	return &EntryHandler{
		queries: queries,
		now:     time.Now,
	}
}

// bindEntryID reads the :id path parameter. It writes the error response
// and returns false when the ID is missing or malformed.
func (h *EntryHandler) bindEntryID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}

// List godoc
// @Summary      List catalog entries
// @Description  Pages through the catalog. A search without order_by lists the cheapest entries first.
// @Tags         entries
// @Produce      json
// @Param        page      query int     false "Page number" default(1)
// @Param        page_size query int     false "Page size" default(20)
// @Param        order_by  query string  false "Sort column"
// @Param        order_dir query string  false "asc or desc"
// @Param        q         query string  false "Words that must all appear in the name"
// @Param        platform  query string  false "Platform filter"
// @Param        available query bool    false "Availability filter"
// @Param        min_price query string  false "Lowest current price"
// @Param        max_price query string  false "Highest current price"
// @Success      200 {object} dto.Response{data=catalogapp.EntryPage}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /entries [get]
func (h *EntryHandler) List(c *gin.Context) {
	var q dto.ListEntriesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	minPrice, err := priceBound("min_price", q.MinPrice)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	maxPrice, err := priceBound("max_price", q.MaxPrice)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.queries.ListEntries(c.Request.Context(), catalogapp.ListEntriesQuery{
		Page:      q.Page,
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		OrderDir:  q.OrderDir,
		Search:    q.Q,
		Platform:  q.Platform,
		Available: q.Available,
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, page)
}

func priceBound(field, raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%s must be a non-negative number", field)
	}
	return decimal.NewNullDecimal(d), nil
}

// GetByNaturalKey godoc
// @Summary      Get a catalog entry by its platform product id
// @Tags         entries
// @Produce      json
// @Param        platform   path string true "Platform"
// @Param        product_id path string true "Product id on the platform"
// @Success      200 {object} dto.Response{data=catalogapp.EntryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /platforms/{platform}/entries/{product_id} [get]
func (h *EntryHandler) GetByNaturalKey(c *gin.Context) {
	var req dto.NaturalKeyRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return
	}
	entry, err := h.queries.GetEntryByNaturalKey(c.Request.Context(), req.Platform, req.ProductID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// HistoryByNaturalKey godoc
// @Summary      Price history of a platform product
// @Tags         entries
// @Produce      json
// @Param        platform   path  string true  "Platform"
// @Param        product_id path  string true  "Product id on the platform"
// @Param        days       query int    false "Window in days" default(30)
// @Success      200 {object} dto.Response{data=catalogapp.PriceHistoryResult}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /platforms/{platform}/entries/{product_id}/history [get]
func (h *EntryHandler) HistoryByNaturalKey(c *gin.Context) {
	var req dto.NaturalKeyRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindError(c, err)
		return
	}
	days, ok := h.bindHistoryDays(c)
	if !ok {
		return
	}

	result, err := h.queries.GetPriceHistoryByNaturalKey(c.Request.Context(), req.Platform, req.ProductID,
		pricing.LastDays(days, h.now()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Get godoc
// @Summary      Get a catalog entry
// @Tags         entries
// @Produce      json
// @Param        id path string true "Entry ID"
// @Success      200 {object} dto.Response{data=catalogapp.EntryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /entries/{id} [get]
func (h *EntryHandler) Get(c *gin.Context) {
	id, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	entry, err := h.queries.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// History godoc
// @Summary      Price history of an entry
// @Tags         entries
// @Produce      json
// @Param        id   path  string true  "Entry ID"
// @Param        days query int    false "Window in days" default(30)
// @Success      200 {object} dto.Response{data=catalogapp.PriceHistoryResult}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /entries/{id}/history [get]
func (h *EntryHandler) History(c *gin.Context) {
	id, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	days, ok := h.bindHistoryDays(c)
	if !ok {
		return
	}

	result, err := h.queries.GetPriceHistory(c.Request.Context(), id, pricing.LastDays(days, h.now()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Similar godoc
// @Summary      Entries on other platforms that match this one
// @Tags         entries
// @Produce      json
// @Param        id        path  string  true  "Entry ID"
// @Param        threshold query number  false "Minimum score, default from the matching policy"
// @Param        limit     query int     false "Maximum results" default(20)
// @Success      200 {object} dto.Response{data=[]catalogapp.SimilarResult}
// @Router       /entries/{id}/similar [get]
func (h *EntryHandler) Similar(c *gin.Context) {
	id, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	var q dto.SimilarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	results, err := h.queries.FindSimilar(c.Request.Context(), id, q.Threshold, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, results, len(results), q.Limit)
}

// BestPrice godoc
// @Summary      Cheapest matching offer for an entry
// @Tags         entries
// @Produce      json
// @Param        id path string true "Entry ID"
// @Success      200 {object} dto.Response{data=catalogapp.BestPriceResult}
// @Router       /entries/{id}/best-price [get]
func (h *EntryHandler) BestPrice(c *gin.Context) {
	id, ok := h.bindEntryID(c)
	if !ok {
		return
	}
	result, err := h.queries.BestPriceForEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *EntryHandler) bindHistoryDays(c *gin.Context) (int, bool) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return 0, false
	}
	if q.Days == 0 {
		return DefaultHistoryDays, true
	}
	return q.Days, true
}
