// Package event delivers catalog domain events to in-process handlers after
// the ingestion transaction commits.
package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pricedragon/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// allEvents is the subscription key of handlers registered without types
const allEvents = "*"

// FailureHook observes handler failures, e.g. to count them
type FailureHook func(eventType string, err error)

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithFailureHook installs a hook called for every failed or panicking handler
func WithFailureHook(hook FailureHook) BusOption {
	return func(b *InMemoryEventBus) {
		b.onFailure = hook
	}
}

// InMemoryEventBus is a synchronous in-process EventBus. Handlers run in the
// publisher's goroutine in subscription order; slow work such as a match
// refresh is handed to the worker pool by the handler itself.
type InMemoryEventBus struct {
	mu     sync.RWMutex
	routes map[string][]shared.EventHandler

	logger    *zap.Logger
	onFailure FailureHook
	published atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryEventBus creates an event bus with no subscribers
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		routes: make(map[string][]shared.EventHandler),
		logger: logger.Named("events"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe routes eventTypes to handler, or the handler's own EventTypes
// when none are given. A handler with no types at all receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		eventTypes = []string{allEvents}
	}

	b.mu.Lock()
	for _, t := range eventTypes {
		if !slices.Contains(b.routes[t], handler) {
			b.routes[t] = append(b.routes[t], handler)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every route
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, hs := range b.routes {
		hs = slices.DeleteFunc(hs, func(h shared.EventHandler) bool { return h == handler })
		if len(hs) == 0 {
			delete(b.routes, t)
		} else {
			b.routes[t] = hs
		}
	}
}

// handlersFor returns the handlers of eventType followed by the catch-all
// handlers, each at most once
func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := slices.Clone(b.routes[eventType])
	for _, h := range b.routes[allEvents] {
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	return out
}

// Publish delivers each event to its handlers. A failing or panicking
// handler is logged and reported to the failure hook; delivery continues and
// Publish itself never fails.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, ev := range events {
		b.published.Add(1)
		for _, h := range b.handlersFor(ev.EventType()) {
			err := b.deliver(ctx, h, ev)
			if err == nil {
				continue
			}
			b.failed.Add(1)
			b.logger.Error("Event handler failed",
				zap.String("event_type", ev.EventType()),
				zap.Stringer("event_id", ev.EventID()),
				zap.Stringer("aggregate_id", ev.AggregateID()),
				zap.Error(err),
			)
			if b.onFailure != nil {
				b.onFailure(ev.EventType(), err)
			}
		}
	}
	return nil
}

func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}

// Start is a no-op kept for the EventBus lifecycle
func (b *InMemoryEventBus) Start(context.Context) error {
	b.logger.Info("Event bus started")
	return nil
}

// Stop logs delivery totals
func (b *InMemoryEventBus) Stop(context.Context) error {
	published, failed := b.Stats()
	b.logger.Info("Event bus stopped", zap.Int64("published", published), zap.Int64("failed", failed))
	return nil
}

// Stats returns how many events were published and how many deliveries failed
func (b *InMemoryEventBus) Stats() (published, failed int64) {
	return b.published.Load(), b.failed.Load()
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
