package catalog

import (
	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeEntry = "CatalogEntry"

// Event type constants
const (
	EventTypeEntryCreated = "CatalogEntryCreated"
	EventTypeEntryUpdated = "CatalogEntryUpdated"
)

// EntryCreatedEvent is published when a listing is seen for the first time
type EntryCreatedEvent struct {
	shared.BaseDomainEvent
	EntryID           uuid.UUID           `json:"entry_id"`
	Platform          string              `json:"platform"`
	PlatformProductID string              `json:"platform_product_id"`
	Name              string              `json:"name"`
	Price             decimal.NullDecimal `json:"price"`
	Available         bool                `json:"available"`
}

// NewEntryCreatedEvent creates a new EntryCreatedEvent
func NewEntryCreatedEvent(e *Entry) *EntryCreatedEvent {
	return &EntryCreatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeEntryCreated, AggregateTypeEntry, e.ID, e.CreatedAt),
		EntryID:           e.ID,
		Platform:          e.Platform,
		PlatformProductID: e.PlatformProductID,
		Name:              e.Name,
		Price:             e.CurrentPrice,
		Available:         e.Available,
	}
}

// EntryUpdatedEvent is published when a sighting changed an entry
type EntryUpdatedEvent struct {
	shared.BaseDomainEvent
	EntryID   uuid.UUID           `json:"entry_id"`
	Platform  string              `json:"platform"`
	Changed   ChangedFields       `json:"changed_fields"`
	Price     decimal.NullDecimal `json:"price"`
	Available bool                `json:"available"`
}

// NewEntryUpdatedEvent creates a new EntryUpdatedEvent
func NewEntryUpdatedEvent(e *Entry, changed ChangedFields) *EntryUpdatedEvent {
	return &EntryUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryUpdated, AggregateTypeEntry, e.ID, e.UpdatedAt),
		EntryID:         e.ID,
		Platform:        e.Platform,
		Changed:         changed,
		Price:           e.CurrentPrice,
		Available:       e.Available,
	}
}

// RequiresMatchRefresh reports whether an event should trigger a match
// recomputation for its entry.
func RequiresMatchRefresh(event shared.DomainEvent) bool {
	switch ev := event.(type) {
	case *EntryCreatedEvent:
		return true
	case *EntryUpdatedEvent:
		return ev.Changed.AffectsMatching()
	}
	return false
}
