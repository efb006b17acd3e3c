package models

import (
	"time"

	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// CatalogEntryModel is the persistence model for the catalog Entry aggregate.
// LastCheckedAt is not stored.
type CatalogEntryModel struct {
	AggregateModel
	Platform          string              `gorm:"type:varchar(50);not null;uniqueIndex:idx_catalog_entries_natural_key,priority:1"`
	PlatformProductID string              `gorm:"type:varchar(200);not null;uniqueIndex:idx_catalog_entries_natural_key,priority:2"`
	Name              string              `gorm:"type:varchar(500);not null"`
	CanonicalName     string              `gorm:"type:varchar(500);not null;index"`
	MatchKey          string              `gorm:"type:varchar(500);not null"`
	Brand             string              `gorm:"type:varchar(100);index"`
	CurrentPrice      decimal.NullDecimal `gorm:"type:decimal(18,4);index"`
	OriginalPrice     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Currency          string              `gorm:"type:varchar(10);not null;default:'TWD'"`
	Available         bool                `gorm:"not null;default:false;index"`
	URL               string              `gorm:"type:text"`
	ImageURL          string              `gorm:"type:text"`
	FirstSeenAt       time.Time           `gorm:"not null"`
	LastUpdatedAt     time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogEntryModel) TableName() string {
	return "catalog_entries"
}

// ToDomain converts the persistence model to a domain Entry
func (m *CatalogEntryModel) ToDomain() *catalog.Entry {
	return &catalog.Entry{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Platform:          m.Platform,
		PlatformProductID: m.PlatformProductID,
		Name:              m.Name,
		CanonicalName:     m.CanonicalName,
		MatchKey:          m.MatchKey,
		Brand:             m.Brand,
		CurrentPrice:      m.CurrentPrice,
		OriginalPrice:     m.OriginalPrice,
		Currency:          m.Currency,
		Available:         m.Available,
		URL:               m.URL,
		ImageURL:          m.ImageURL,
		FirstSeenAt:       m.FirstSeenAt,
		LastUpdatedAt:     m.LastUpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Entry
func (m *CatalogEntryModel) FromDomain(e *catalog.Entry) {
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	m.Platform = e.Platform
	m.PlatformProductID = e.PlatformProductID
	m.Name = e.Name
	m.CanonicalName = e.CanonicalName
	m.MatchKey = e.MatchKey
	m.Brand = e.Brand
	m.CurrentPrice = e.CurrentPrice
	m.OriginalPrice = e.OriginalPrice
	m.Currency = e.Currency
	m.Available = e.Available
	m.URL = e.URL
	m.ImageURL = e.ImageURL
	m.FirstSeenAt = e.FirstSeenAt
	m.LastUpdatedAt = e.LastUpdatedAt
}

// CatalogEntryModelFromDomain creates a new persistence model from a domain Entry
func CatalogEntryModelFromDomain(e *catalog.Entry) *CatalogEntryModel {
	m := &CatalogEntryModel{}
	m.FromDomain(e)
	return m
}
