package ingestion

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one product listing exactly as a platform scraper produced it.
// Optional fields are pointers so "absent" and "empty" stay distinguishable.
type RawRecord struct {
	Platform          string    `json:"platform"`
	PlatformProductID *string   `json:"platform_product_id,omitempty"`
	Name              string    `json:"name"`
	Price             *string   `json:"price,omitempty"`
	OriginalPrice     *string   `json:"original_price,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	URL               string    `json:"url,omitempty"`
	ImageURL          string    `json:"image_url,omitempty"`
	Brand             *string   `json:"brand,omitempty"`
	Available         *bool     `json:"available,omitempty"`
	ScrapedAt         time.Time `json:"scraped_at"`
}

// NormalizedRecord is a validated, canonicalized RawRecord.
// Price, when valid, is strictly positive and PlatformProductID is never empty.
type NormalizedRecord struct {
	Platform          string
	PlatformProductID string
	Name              string
	// CanonicalName is the case-folded form of Name used for identity comparisons
	CanonicalName string
	// MatchKey is the matcher-only form of the name; never used for identity
	MatchKey      string
	Brand         string
	Price         decimal.NullDecimal
	OriginalPrice decimal.NullDecimal
	Currency      string
	Available     bool
	URL           string
	ImageURL      string
	ObservedAt    time.Time
}

// HasPrice reports whether the record carries a price
func (r NormalizedRecord) HasPrice() bool {
	return r.Price.Valid
}

// DiscountPercentage returns the discount relative to the original price,
// or false when either price is missing or there is no discount.
func (r NormalizedRecord) DiscountPercentage() (decimal.Decimal, bool) {
	if !r.Price.Valid || !r.OriginalPrice.Valid || !r.OriginalPrice.Decimal.GreaterThan(r.Price.Decimal) {
		return decimal.Zero, false
	}
	diff := r.OriginalPrice.Decimal.Sub(r.Price.Decimal)
	return diff.Div(r.OriginalPrice.Decimal).Mul(decimal.NewFromInt(100)).Round(2), true
}

// StringPtr is a small helper for building RawRecords
func StringPtr(s string) *string {
	return &s
}

// BoolPtr is a small helper for building RawRecords
func BoolPtr(b bool) *bool {
	return &b
}
