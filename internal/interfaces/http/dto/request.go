package dto

import "github.com/pricedragon/backend/internal/domain/ingestion"

// IDRequest binds an entry ID path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// NaturalKeyRequest binds a platform and its product id from the path
type NaturalKeyRequest struct {
	Platform  string `uri:"platform" binding:"required,max=50"`
	ProductID string `uri:"product_id" binding:"required,max=200"`
}

// ListEntriesQuery pages and filters the catalog. Prices are decimal text.
type ListEntriesQuery struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"order_by" binding:"omitempty,max=50"`
	OrderDir  string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Q         string `form:"q" binding:"omitempty,max=200"`
	Platform  string `form:"platform" binding:"omitempty,max=50"`
	Available *bool  `form:"available"`
	MinPrice  string `form:"min_price" binding:"omitempty,max=32"`
	MaxPrice  string `form:"max_price" binding:"omitempty,max=32"`
}

// HistoryQuery selects the price history window
type HistoryQuery struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// SimilarQuery tunes a similarity lookup
type SimilarQuery struct {
	Threshold float64 `form:"threshold" binding:"omitempty,gte=0,lte=1"`
	Limit     int     `form:"limit" binding:"omitempty,min=1,max=100"`
}

// BestPriceQuery is a free-text best price lookup
type BestPriceQuery struct {
	Q string `form:"q" binding:"required,max=200"`
}

// AlertsQuery selects the price drop window and minimum drop percentage
type AlertsQuery struct {
	Days      int     `form:"days" binding:"omitempty,min=1,max=365"`
	Threshold float64 `form:"threshold" binding:"omitempty,gte=0,lte=100"`
}

// RunsQuery filters recent ingestion runs
type RunsQuery struct {
	Platform string `form:"platform" binding:"omitempty,max=50"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// IngestRequest triggers a run. With Records set the batch is ingested as
// given; otherwise the platform scraper is searched for Query. SyncMatching
// refreshes match edges inline even when the server defers them.
type IngestRequest struct {
	Query        string                `json:"query" binding:"max=200"`
	Records      []ingestion.RawRecord `json:"records" binding:"omitempty,max=5000"`
	SyncMatching bool                  `json:"sync_matching"`
}
