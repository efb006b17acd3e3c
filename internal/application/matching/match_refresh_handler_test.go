package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/catalog"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRefreshQueue struct {
	mock.Mock
}

func (m *mockRefreshQueue) EnqueueRefresh(entryID uuid.UUID) error {
	args := m.Called(entryID)
	return args.Error(0)
}

func testEntry() *catalog.Entry {
	return catalog.NewEntry(ingestion.NormalizedRecord{
		Platform:          "pchome",
		PlatformProductID: "A1",
		Name:              "Widget Pro",
		CanonicalName:     "widget pro",
		MatchKey:          "widget pro",
		Price:             decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		Available:         true,
		ObservedAt:        scrapedAt,
	})
}

func TestMatchRefreshHandler_Handle(t *testing.T) {
	ctx := context.Background()
	entry := testEntry()

	tests := []struct {
		name    string
		event   shared.DomainEvent
		enqueue bool
	}{
		{"created", catalog.NewEntryCreatedEvent(entry), true},
		{"price change", catalog.NewEntryUpdatedEvent(entry, catalog.NewChangedFields(catalog.FieldPrice)), true},
		{"availability change", catalog.NewEntryUpdatedEvent(entry, catalog.NewChangedFields(catalog.FieldAvailability)), true},
		{"url only", catalog.NewEntryUpdatedEvent(entry, catalog.NewChangedFields(catalog.FieldURL)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := new(mockRefreshQueue)
			if tt.enqueue {
				queue.On("EnqueueRefresh", entry.ID).Return(nil).Once()
			}

			handler := NewMatchRefreshHandler(queue, nil)
			require.NoError(t, handler.Handle(ctx, tt.event))
			queue.AssertExpectations(t)
			if !tt.enqueue {
				queue.AssertNotCalled(t, "EnqueueRefresh", mock.Anything)
			}
		})
	}

	t.Run("full queue is not an error", func(t *testing.T) {
		queue := new(mockRefreshQueue)
		queue.On("EnqueueRefresh", entry.ID).Return(scheduler.ErrJobQueueFull)

		handler := NewMatchRefreshHandler(queue, nil)
		assert.NoError(t, handler.Handle(ctx, catalog.NewEntryCreatedEvent(entry)))
	})

	t.Run("subscribes to entry events", func(t *testing.T) {
		handler := NewMatchRefreshHandler(new(mockRefreshQueue), nil)
		assert.ElementsMatch(t, []string{catalog.EventTypeEntryCreated, catalog.EventTypeEntryUpdated}, handler.EventTypes())
	})
}

type recordedJob struct {
	kind string
	err  error
}

type fakeJobMetrics struct {
	jobs []recordedJob
}

func (f *fakeJobMetrics) RecordMatchJob(_ context.Context, kind string, _ time.Duration, err error) {
	f.jobs = append(f.jobs, recordedJob{kind: kind, err: err})
}

func TestMatchJobExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches by kind", func(t *testing.T) {
		f := newFixture(t)
		seed := f.sight(t, "pchome", "A1", "Widget Pro 128GB", "1000")
		f.sight(t, "momo", "B1", "Widget Pro 128GB", "1000")

		metrics := &fakeJobMetrics{}
		executor := NewMatchJobExecutor(f.service)
		executor.SetMetrics(metrics)

		require.NoError(t, executor.Execute(ctx, scheduler.NewJob(scheduler.JobKindMatchRefresh, seed.ID, 0)))
		count, err := f.edges.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		require.NoError(t, executor.Execute(ctx, scheduler.NewJob(scheduler.JobKindMatchRebuild, uuid.Nil, 0)))

		require.Len(t, metrics.jobs, 2)
		assert.Equal(t, string(scheduler.JobKindMatchRefresh), metrics.jobs[0].kind)
		assert.Equal(t, string(scheduler.JobKindMatchRebuild), metrics.jobs[1].kind)
	})

	t.Run("unknown kind fails", func(t *testing.T) {
		f := newFixture(t)
		metrics := &fakeJobMetrics{}
		executor := NewMatchJobExecutor(f.service)
		executor.SetMetrics(metrics)

		err := executor.Execute(ctx, scheduler.NewJob("BOGUS", uuid.Nil, 0))
		assert.Error(t, err)
		require.Len(t, metrics.jobs, 1)
		assert.Error(t, metrics.jobs[0].err)
	})
}

func TestMatchJobQueue_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed := f.sight(t, "pchome", "A1", "Widget Pro 128GB", "1000")
	f.sight(t, "momo", "B1", "Widget Pro 128GB", "1000")

	cfg := scheduler.DefaultSchedulerConfig()
	cfg.Workers = 1
	sched, err := scheduler.NewScheduler(cfg, NewMatchJobExecutor(f.service), nil)
	require.NoError(t, err)
	require.NoError(t, sched.Start(ctx))
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	queue := NewMatchJobQueue(sched, 0)
	require.NoError(t, queue.EnqueueRefresh(seed.ID))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Wait(waitCtx))

	edges, err := f.edges.FindForEntry(ctx, seed.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	require.NoError(t, queue.EnqueueRebuild())
	require.NoError(t, sched.Wait(waitCtx))
	assert.Equal(t, int64(2), sched.Stats().Completed)
}
