package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func created() *catalog.EntryCreatedEvent {
	id := uuid.New()
	return &catalog.EntryCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(catalog.EventTypeEntryCreated, catalog.AggregateTypeEntry, id, time.Now()),
		EntryID:         id,
		Platform:        "pchome",
	}
}

func updated(fields ...catalog.Field) *catalog.EntryUpdatedEvent {
	id := uuid.New()
	return &catalog.EntryUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(catalog.EventTypeEntryUpdated, catalog.AggregateTypeEntry, id, time.Now()),
		EntryID:         id,
		Platform:        "momo",
		Changed:         catalog.NewChangedFields(fields...),
	}
}

type recorder struct {
	types []string
	err   error

	mu   sync.Mutex
	seen []shared.DomainEvent
}

func (r *recorder) Handle(_ context.Context, ev shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
	return r.err
}

func (r *recorder) EventTypes() []string { return r.types }

func (r *recorder) events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.seen...)
}

type panicking struct{}

func (panicking) Handle(context.Context, shared.DomainEvent) error { panic("boom") }
func (panicking) EventTypes() []string                             { return []string{catalog.EventTypeEntryCreated} }

func TestInMemoryEventBus_Routing(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())

	onCreate := &recorder{types: []string{catalog.EventTypeEntryCreated}}
	onUpdate := &recorder{}
	everything := &recorder{}
	bus.Subscribe(onCreate)
	bus.Subscribe(onUpdate, catalog.EventTypeEntryUpdated)
	bus.Subscribe(everything)

	c, u := created(), updated(catalog.FieldPrice)
	require.NoError(t, bus.Publish(ctx, c, u))

	assert.Equal(t, []shared.DomainEvent{c}, onCreate.events())
	assert.Equal(t, []shared.DomainEvent{u}, onUpdate.events())
	assert.Equal(t, []shared.DomainEvent{c, u}, everything.events())
}

func TestInMemoryEventBus_SubscribeTwiceDeliversOnce(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recorder{types: []string{catalog.EventTypeEntryCreated}}
	bus.Subscribe(h)
	bus.Subscribe(h)
	bus.Subscribe(h, allEvents)

	require.NoError(t, bus.Publish(context.Background(), created()))
	assert.Len(t, h.events(), 1)
}

func TestInMemoryEventBus_FailuresDoNotStopDelivery(t *testing.T) {
	var hooked []string
	bus := NewInMemoryEventBus(zap.NewNop(), WithFailureHook(func(eventType string, err error) {
		hooked = append(hooked, eventType+": "+err.Error())
	}))

	failing := &recorder{types: []string{catalog.EventTypeEntryCreated}, err: errors.New("queue full")}
	after := &recorder{types: []string{catalog.EventTypeEntryCreated}}
	bus.Subscribe(failing)
	bus.Subscribe(panicking{})
	bus.Subscribe(after)

	require.NoError(t, bus.Publish(context.Background(), created()))

	assert.Len(t, failing.events(), 1)
	assert.Len(t, after.events(), 1)
	assert.Equal(t, []string{
		"CatalogEntryCreated: queue full",
		"CatalogEntryCreated: handler panicked: boom",
	}, hooked)

	published, failed := bus.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(2), failed)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(nil)
	h := &recorder{types: []string{catalog.EventTypeEntryCreated, catalog.EventTypeEntryUpdated}}
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(ctx, created()))
	bus.Unsubscribe(h)
	require.NoError(t, bus.Publish(ctx, created(), updated(catalog.FieldName)))

	assert.Len(t, h.events(), 1)
	assert.Empty(t, bus.handlersFor(catalog.EventTypeEntryUpdated))
}

func TestInMemoryEventBus_Lifecycle(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(ctx))

	h := &recorder{}
	bus.Subscribe(h)
	require.NoError(t, bus.Publish(ctx, updated(catalog.FieldURL)))
	assert.Len(t, h.events(), 1)

	require.NoError(t, bus.Stop(ctx))
}
