package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:       2,
		QueueSize:     16,
		JobTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func TestSchedulerConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultSchedulerConfig().Validate())

	cfg := testConfig()
	cfg.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = testConfig()
	cfg.QueueSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewScheduler(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestJob_Lifecycle(t *testing.T) {
	entryID := uuid.New()
	job := NewJob(JobKindMatchRefresh, entryID, 1)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, "MATCH_REFRESH:"+entryID.String(), job.Key())

	t0 := time.Now()
	job.start(t0)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, t0, job.StartedAt)

	job.finish(t0.Add(time.Second), errors.New("boom"))
	assert.Equal(t, "boom", job.Error)
	assert.True(t, job.CanRetry())
	job.Retries = 1
	assert.False(t, job.CanRetry())

	job.start(t0.Add(2 * time.Second))
	assert.Empty(t, job.Error)
	job.finish(t0.Add(3*time.Second), nil)
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.False(t, job.CanRetry())
}

func TestScheduler_SubmitWhenStopped(t *testing.T) {
	s, err := NewScheduler(testConfig(), JobExecutorFunc(func(context.Context, *Job) error { return nil }), nil)
	require.NoError(t, err)

	err = s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 0))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_ExecutesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	exec := JobExecutorFunc(func(_ context.Context, job *Job) error {
		mu.Lock()
		seen[job.EntryID] = true
		mu.Unlock()
		return nil
	})

	s, err := NewScheduler(testConfig(), exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, id, 0)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		assert.True(t, seen[id])
	}
	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Completed)
	assert.Equal(t, int64(0), stats.Pending)
}

func TestScheduler_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	exec := JobExecutorFunc(func(context.Context, *Job) error {
		calls.Add(1)
		return errors.New("store unavailable")
	})

	s, err := NewScheduler(testConfig(), exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 2)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestScheduler_RetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	exec := JobExecutorFunc(func(context.Context, *Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	s, err := NewScheduler(testConfig(), exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRebuild, uuid.Nil, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), s.Stats().Completed)
	assert.Equal(t, int64(0), s.Stats().Failed)
}

func TestScheduler_CoalescesPendingJobs(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	exec := JobExecutorFunc(func(ctx context.Context, job *Job) error {
		calls.Add(1)
		if job.Kind == JobKindMatchRebuild {
			<-release
		}
		return nil
	})

	cfg := testConfig()
	cfg.Workers = 1
	s, err := NewScheduler(cfg, exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	// Occupy the only worker so later submissions stay queued.
	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRebuild, uuid.Nil, 0)))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	entryID := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, entryID, 0)))
	}
	assert.Equal(t, int64(2), s.Stats().Pending)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_QueueFull(t *testing.T) {
	release := make(chan struct{})
	exec := JobExecutorFunc(func(context.Context, *Job) error {
		<-release
		return nil
	})

	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	s, err := NewScheduler(cfg, exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() {
		close(release)
		s.Stop(context.Background())
	}()

	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 0)))
	require.Eventually(t, func() bool { return len(s.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 0)))

	err = s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 0))
	assert.ErrorIs(t, err, ErrJobQueueFull)
	assert.Equal(t, int64(1), s.Stats().Dropped)
}

func TestScheduler_WaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	exec := JobExecutorFunc(func(context.Context, *Job) error {
		<-release
		return nil
	})

	s, err := NewScheduler(testConfig(), exec, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.SubmitJob(NewJob(JobKindMatchRefresh, uuid.New(), 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
