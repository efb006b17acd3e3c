package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	catalogapp "github.com/pricedragon/backend/internal/application/catalog"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// Alert defaults
const (
	DefaultAlertDays      = 7
	DefaultAlertThreshold = 10.0
)

// PriceHandler serves free-text price comparison and drop alerts
type PriceHandler struct {
	BaseHandler
	queries *catalogapp.QueryService
	now     func() time.Time
}

// NewPriceHandler creates a new PriceHandler
func NewPriceHandler(queries *catalogapp.QueryService) *PriceHandler {
	return &PriceHandler{
		queries: queries,
		now:     time.Now,
	}
}

// BestPrice godoc
// @Summary      Cheapest offer for a product name across platforms
// @Tags         prices
// @Produce      json
// @Param        q query string true "Product name"
// @Success      200 {object} dto.Response{data=catalogapp.BestPriceResult}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /best-price [get]
func (h *PriceHandler) BestPrice(c *gin.Context) {
	var q dto.BestPriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.queries.BestPrice(c.Request.Context(), q.Q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Alerts godoc
// @Summary      Entries whose price dropped within the window
// @Tags         prices
// @Produce      json
// @Param        days      query int    false "Window in days" default(7)
// @Param        threshold query number false "Minimum drop in percent" default(10)
// @Success      200 {object} dto.Response{data=[]catalogapp.PriceAlertResult}
// @Router       /alerts [get]
func (h *PriceHandler) Alerts(c *gin.Context) {
	q := dto.AlertsQuery{Days: DefaultAlertDays, Threshold: DefaultAlertThreshold}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	if q.Days == 0 {
		q.Days = DefaultAlertDays
	}

	alerts, err := h.queries.PriceAlerts(c.Request.Context(),
		pricing.LastDays(q.Days, h.now()),
		decimal.NewFromFloat(q.Threshold),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.List(c, alerts, len(alerts), 0)
}
