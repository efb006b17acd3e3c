package catalog

import (
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// NaturalKey uniquely identifies a catalog entry
type NaturalKey struct {
	Platform          string `json:"platform"`
	PlatformProductID string `json:"platform_product_id"`
}

// Entry is the canonical record of one product as listed on one platform.
// It is the aggregate root of the catalog; entries are never deleted, a
// listing that disappears is retired by setting Available to false.
type Entry struct {
	shared.BaseAggregateRoot
	Platform          string
	PlatformProductID string
	Name              string
	CanonicalName     string
	MatchKey          string
	Brand             string
	CurrentPrice      decimal.NullDecimal
	OriginalPrice     decimal.NullDecimal
	Currency          string
	Available         bool
	URL               string
	ImageURL          string
	FirstSeenAt       time.Time
	LastUpdatedAt     time.Time
	// LastCheckedAt is bumped on every sighting and is not persisted
	LastCheckedAt time.Time
}

// NewEntry creates an entry from its first sighting
func NewEntry(rec ingestion.NormalizedRecord) *Entry {
	e := &Entry{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(time.Now()),
		Platform:          rec.Platform,
		PlatformProductID: rec.PlatformProductID,
		FirstSeenAt:       rec.ObservedAt,
		LastUpdatedAt:     rec.ObservedAt,
		LastCheckedAt:     rec.ObservedAt,
	}
	e.apply(rec)
	e.AddDomainEvent(NewEntryCreatedEvent(e))
	return e
}

// NaturalKey returns the (platform, platform product id) pair
func (e *Entry) NaturalKey() NaturalKey {
	return NaturalKey{Platform: e.Platform, PlatformProductID: e.PlatformProductID}
}

// PriceSnapshot captures the entry's current price state for the ledger
func (e *Entry) PriceSnapshot() pricing.Snapshot {
	return pricing.Snapshot{Exists: true, Price: e.CurrentPrice, Available: e.Available}
}

// IsLive reports whether the entry is available with a known price
func (e *Entry) IsLive() bool {
	return e.Available && e.CurrentPrice.Valid
}

// DiscountPercentage returns the discount against the list price, if any
func (e *Entry) DiscountPercentage() (decimal.Decimal, bool) {
	return ingestion.NormalizedRecord{Price: e.CurrentPrice, OriginalPrice: e.OriginalPrice}.DiscountPercentage()
}

// Diff returns the fields of rec that differ from the entry without changing it
func (e *Entry) Diff(rec ingestion.NormalizedRecord) ChangedFields {
	changed := NewChangedFields()
	if e.CanonicalName != rec.CanonicalName {
		changed.Add(FieldName)
	}
	if e.Brand != rec.Brand {
		changed.Add(FieldBrand)
	}
	if !pricing.PriceEqual(e.CurrentPrice, rec.Price) {
		changed.Add(FieldPrice)
	}
	if e.Available != rec.Available {
		changed.Add(FieldAvailability)
	}
	if !pricing.PriceEqual(e.OriginalPrice, rec.OriginalPrice) {
		changed.Add(FieldOriginalPrice)
	}
	if e.Currency != rec.Currency {
		changed.Add(FieldCurrency)
	}
	if e.URL != rec.URL {
		changed.Add(FieldURL)
	}
	if e.ImageURL != rec.ImageURL {
		changed.Add(FieldImageURL)
	}
	return changed
}

// Reconcile applies a later sighting of the same listing. When nothing
// differs only LastCheckedAt moves and an empty set is returned.
func (e *Entry) Reconcile(rec ingestion.NormalizedRecord) ChangedFields {
	e.LastCheckedAt = rec.ObservedAt

	changed := e.Diff(rec)
	if changed.Len() == 0 {
		return changed
	}

	e.apply(rec)
	if rec.ObservedAt.After(e.LastUpdatedAt) {
		e.LastUpdatedAt = rec.ObservedAt
	}
	e.Touch(time.Now())
	e.IncrementVersion()
	e.AddDomainEvent(NewEntryUpdatedEvent(e, changed))
	return changed
}

func (e *Entry) apply(rec ingestion.NormalizedRecord) {
	// The display name keeps the first-seen spelling until the folded form changes.
	if e.CanonicalName != rec.CanonicalName {
		e.Name = rec.Name
		e.CanonicalName = rec.CanonicalName
	}
	e.MatchKey = rec.MatchKey
	e.Brand = rec.Brand
	e.CurrentPrice = rec.Price
	e.OriginalPrice = rec.OriginalPrice
	e.Currency = rec.Currency
	e.Available = rec.Available
	e.URL = rec.URL
	e.ImageURL = rec.ImageURL
}
