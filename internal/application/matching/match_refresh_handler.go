package matching

import (
	"context"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RefreshQueue accepts background match refresh requests
type RefreshQueue interface {
	EnqueueRefresh(entryID uuid.UUID) error
}

// MatchRefreshHandler turns catalog events into background match refreshes
type MatchRefreshHandler struct {
	queue  RefreshQueue
	logger *zap.Logger
}

// NewMatchRefreshHandler creates a new handler for catalog events
func NewMatchRefreshHandler(queue RefreshQueue, logger *zap.Logger) *MatchRefreshHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchRefreshHandler{queue: queue, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *MatchRefreshHandler) EventTypes() []string {
	return []string{catalog.EventTypeEntryCreated, catalog.EventTypeEntryUpdated}
}

// Handle enqueues a refresh when the event can move match scores. A full
// queue is logged and not returned: edges are derived data and the next
// rebuild repairs them.
func (h *MatchRefreshHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !catalog.RequiresMatchRefresh(event) {
		return nil
	}

	entryID := event.AggregateID()
	if err := h.queue.EnqueueRefresh(entryID); err != nil {
		h.logger.Warn("Match refresh not queued",
			zap.String("entry_id", entryID.String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
	return nil
}

// Ensure MatchRefreshHandler implements shared.EventHandler
var _ shared.EventHandler = (*MatchRefreshHandler)(nil)
