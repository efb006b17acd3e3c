package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/pricing"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrIdentityConflict signals that a concurrent writer inserted the same
// natural key first. The identity store recovers from it by retrying as an update.
var ErrIdentityConflict = shared.NewDomainError("IDENTITY_CONFLICT", "Catalog entry with this platform product id already exists")

// UpsertOutcome is the result of resolving one normalized record
type UpsertOutcome struct {
	Entry    *Entry
	Created  bool
	Changed  ChangedFields
	Previous pricing.Snapshot
}

// Unchanged reports whether the upsert wrote nothing
func (o *UpsertOutcome) Unchanged() bool {
	return !o.Created && o.Changed.Len() == 0
}

// LiveFilter narrows the live-entry candidate pool
type LiveFilter struct {
	ExcludePlatform string
	MinPrice        decimal.NullDecimal
	MaxPrice        decimal.NullDecimal
	Limit           int
}

// ListFilter pages through the catalog. Search matches every word against
// the canonical name; the price bounds skip unpriced entries.
type ListFilter struct {
	shared.Filter
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
}

// IdentityStore is the only writer of catalog entries. It decides
// insert-vs-update for every normalized record.
type IdentityStore interface {
	// Upsert creates or reconciles the entry keyed by (platform, platform product id)
	Upsert(ctx context.Context, rec ingestion.NormalizedRecord) (*UpsertOutcome, error)

	// FindByID finds an entry by its surrogate id
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// FindByNaturalKey finds an entry by platform and platform product id
	FindByNaturalKey(ctx context.Context, key NaturalKey) (*Entry, error)

	// FindByIDs finds several entries; missing ids are skipped
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Entry, error)

	// ListLive returns available, priced entries matching the filter
	ListLive(ctx context.Context, filter LiveFilter) ([]Entry, error)

	// SearchByName returns live entries whose canonical name contains every term
	SearchByName(ctx context.Context, terms []string, limit int) ([]Entry, error)

	// List returns one page of the entries matching filter
	List(ctx context.Context, filter ListFilter) ([]Entry, error)

	// Count counts the entries matching filter, ignoring paging
	Count(ctx context.Context, filter ListFilter) (int64, error)
}
