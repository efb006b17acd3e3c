package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// EntryResponse represents a catalog entry in API responses
type EntryResponse struct {
	ID                 uuid.UUID           `json:"id"`
	Platform           string              `json:"platform"`
	PlatformProductID  string              `json:"platform_product_id"`
	Name               string              `json:"name"`
	Brand              string              `json:"brand,omitempty"`
	CurrentPrice       decimal.NullDecimal `json:"current_price"`
	OriginalPrice      decimal.NullDecimal `json:"original_price"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage,omitempty"`
	Currency           string              `json:"currency"`
	Available          bool                `json:"available"`
	URL                string              `json:"url,omitempty"`
	ImageURL           string              `json:"image_url,omitempty"`
	FirstSeenAt        time.Time           `json:"first_seen_at"`
	LastUpdatedAt      time.Time           `json:"last_updated_at"`
	Version            int                 `json:"version"`
	Observations       *int64              `json:"observations,omitempty"`
}

// ListEntriesQuery filters and pages a catalog listing
type ListEntriesQuery struct {
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
	Search    string
	Platform  string
	Available *bool
	MinPrice  decimal.NullDecimal
	MaxPrice  decimal.NullDecimal
}

// EntryPage is one page of a catalog listing
type EntryPage struct {
	Items    []EntryResponse `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ToEntryResponse converts a domain Entry to EntryResponse
func ToEntryResponse(e *catalog.Entry) EntryResponse {
	resp := EntryResponse{
		ID:                e.ID,
		Platform:          e.Platform,
		PlatformProductID: e.PlatformProductID,
		Name:              e.Name,
		Brand:             e.Brand,
		CurrentPrice:      e.CurrentPrice,
		OriginalPrice:     e.OriginalPrice,
		Currency:          e.Currency,
		Available:         e.Available,
		URL:               e.URL,
		ImageURL:          e.ImageURL,
		FirstSeenAt:       e.FirstSeenAt,
		LastUpdatedAt:     e.LastUpdatedAt,
		Version:           e.Version,
	}
	if pct, ok := e.DiscountPercentage(); ok {
		resp.DiscountPercentage = &pct
	}
	return resp
}

// PriceHistoryResult is an entry's observations in a window with derived stats
type PriceHistoryResult struct {
	Entry        EntryResponse         `json:"entry"`
	Window       pricing.Window        `json:"window"`
	Observations []pricing.Observation `json:"observations"`
	Stats        pricing.Stats         `json:"stats"`
}

// SimilarResult is one match of an entry
type SimilarResult struct {
	Entry     EntryResponse      `json:"entry"`
	Score     float64            `json:"score"`
	MatchType matching.MatchType `json:"match_type"`
}

// OfferResponse is one listing in a best-price answer
type OfferResponse struct {
	Entry EntryResponse `json:"entry"`
	Score float64       `json:"score"`
}

// BestPriceResult ranks the seed and its matches by price
type BestPriceResult struct {
	Query  string          `json:"query,omitempty"`
	Seed   EntryResponse   `json:"seed"`
	Best   *OfferResponse  `json:"best,omitempty"`
	Offers []OfferResponse `json:"offers"`
}

// PriceAlertResult is a price drop with the entry it belongs to
type PriceAlertResult struct {
	pricing.Alert
	Platform string `json:"platform"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
}
