package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinged struct {
	BaseDomainEvent
}

func TestBaseAggregateRoot(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	root := NewBaseAggregateRoot(now)

	assert.NotEqual(t, uuid.Nil, root.ID)
	assert.Equal(t, now, root.CreatedAt)
	assert.Equal(t, now, root.UpdatedAt)
	assert.Equal(t, 1, root.GetVersion())

	later := now.Add(time.Minute)
	root.Touch(later)
	root.IncrementVersion()
	assert.Equal(t, later, root.UpdatedAt)
	assert.Equal(t, now, root.CreatedAt)
	assert.Equal(t, 2, root.GetVersion())

	root.AddDomainEvent(&pinged{NewBaseDomainEvent("Pinged", "Test", root.ID, later)})
	root.AddDomainEvent(&pinged{NewBaseDomainEvent("Pinged", "Test", root.ID, later)})
	assert.Len(t, root.PendingDomainEvents(), 2)

	events := root.PullDomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "Pinged", events[0].EventType())
	assert.Equal(t, root.ID, events[0].AggregateID())
	assert.Equal(t, later, events[0].OccurredAt())
	assert.NotEqual(t, events[0].EventID(), events[1].EventID())
	assert.Empty(t, root.PullDomainEvents())
}

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("load entry: %w", InvalidInputf("bad window %d", 3))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "load entry: bad window 3", err.Error())
}

func TestFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, DefaultFilter().Offset())
	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
	assert.Equal(t, 0, Filter{Page: 0, PageSize: 20}.Offset())
}
