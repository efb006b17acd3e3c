package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and row timestamps
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh ID stamped at now
func NewBaseEntity(now time.Time) BaseEntity {
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification at the given time
func (e *BaseEntity) Touch(at time.Time) {
	e.UpdatedAt = at
}

// BaseAggregateRoot adds the optimistic-lock version and the events raised
// since the aggregate was loaded. Version starts at 1 and is bumped by every
// persisted change.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
	events  []DomainEvent
}

// NewBaseAggregateRoot starts a new aggregate at version 1
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now), Version: 1}
}

// GetVersion returns the version the aggregate will be persisted with
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion marks one more change on top of the loaded version
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent buffers an event until PullDomainEvents
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.events = append(a.events, event)
}

// PendingDomainEvents returns the buffered events without clearing them
func (a *BaseAggregateRoot) PendingDomainEvents() []DomainEvent {
	return a.events
}

// PullDomainEvents returns the buffered events and clears the buffer
func (a *BaseAggregateRoot) PullDomainEvents() []DomainEvent {
	events := a.events
	a.events = nil
	return events
}
