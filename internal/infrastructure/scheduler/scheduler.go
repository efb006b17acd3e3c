// Package scheduler runs background match jobs on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig holds worker pool configuration
type SchedulerConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultSchedulerConfig returns default worker pool configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:       2,
		QueueSize:     1024,
		JobTimeout:    30 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    2 * time.Second,
	}
}

// Validate checks the configuration
func (c SchedulerConfig) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue size must be at least 1", ErrInvalidConfig)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 0 || c.RetryDelay < 0:
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler is a bounded worker pool: a fixed number of workers drain a
// fixed-size queue, each job runs under its own timeout.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	jobs     chan *Job

	mu      sync.Mutex
	workers *errgroup.Group
	cancel  context.CancelFunc // nil while stopped
	queued  map[string]struct{}

	pending   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("scheduler"),
		jobs:     make(chan *Job, config.QueueSize),
		queued:   make(map[string]struct{}),
	}, nil
}

// Start launches the workers. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.workers = &errgroup.Group{}
	for id := range s.config.Workers {
		s.workers.Go(func() error {
			s.work(ctx, id)
			return nil
		})
	}

	s.logger.Info("Worker pool started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the workers and waits for them until ctx is done. Jobs still
// queued are abandoned; match edges are derived data and a later refresh or
// rebuild recomputes them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, workers := s.cancel, s.workers
	s.cancel, s.workers = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}

	s.logger.Info("Worker pool stopped",
		zap.Int64("completed", s.completed.Load()),
		zap.Int64("failed", s.failed.Load()),
		zap.Int64("abandoned", s.pending.Load()),
	)
	return nil
}

// SubmitJob queues a job. A job whose key is already queued is absorbed
// and reported as accepted.
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return ErrSchedulerNotRunning
	}

	key := job.Key()
	if _, ok := s.queued[key]; ok {
		s.logger.Debug("Job coalesced", zap.String("key", key))
		return nil
	}

	select {
	case s.jobs <- job:
		s.queued[key] = struct{}{}
		s.pending.Add(1)
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("entry_id", job.EntryID.String()),
		)
		return nil
	default:
		s.dropped.Add(1)
		return ErrJobQueueFull
	}
}

// Wait blocks until every accepted job has finished or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stats is a snapshot of worker pool counters
type Stats struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns the current counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		Pending:   s.pending.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *Scheduler) work(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.mu.Lock()
			delete(s.queued, job.Key())
			s.mu.Unlock()

			s.processJob(ctx, job, workerID)
			s.pending.Add(-1)
		}
	}
}

// processJob runs a job, retrying in place after RetryDelay
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.Stringer("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Stringer("entry_id", job.EntryID),
	)
	for {
		job.start(time.Now())
		jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
		err := s.executor.Execute(jobCtx, job)
		cancel()
		job.finish(time.Now(), err)

		if err == nil {
			s.completed.Add(1)
			log.Debug("Job completed", zap.Duration("took", job.FinishedAt.Sub(job.StartedAt)))
			return
		}
		if !job.CanRetry() || ctx.Err() != nil {
			s.failed.Add(1)
			log.Error("Job failed", zap.Int("retries", job.Retries), zap.Error(err))
			return
		}

		job.Retries++
		log.Warn("Retrying job", zap.Int("retry", job.Retries), zap.Int("max_retries", job.MaxRetries), zap.Error(err))
		select {
		case <-ctx.Done():
			s.failed.Add(1)
			return
		case <-time.After(s.config.RetryDelay):
		}
	}
}
