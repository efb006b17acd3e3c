package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/infrastructure/scheduler"
)

// JobMetrics records background match job outcomes
type JobMetrics interface {
	RecordMatchJob(ctx context.Context, kind string, d time.Duration, err error)
}

// MatchJobExecutor runs match jobs taken off the scheduler queue
type MatchJobExecutor struct {
	service *MatcherService
	metrics JobMetrics
}

// NewMatchJobExecutor creates an executor backed by service
func NewMatchJobExecutor(service *MatcherService) *MatchJobExecutor {
	return &MatchJobExecutor{service: service}
}

// SetMetrics attaches a job metrics sink
func (e *MatchJobExecutor) SetMetrics(m JobMetrics) {
	e.metrics = m
}

// Execute implements scheduler.JobExecutor
func (e *MatchJobExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	start := time.Now()
	var err error
	switch job.Kind {
	case scheduler.JobKindMatchRefresh:
		_, err = e.service.RefreshEdges(ctx, job.EntryID)
	case scheduler.JobKindMatchRebuild:
		_, err = e.service.RebuildAll(ctx)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if e.metrics != nil {
		e.metrics.RecordMatchJob(ctx, string(job.Kind), time.Since(start), err)
	}
	return err
}

// MatchJobQueue submits match jobs to the scheduler
type MatchJobQueue struct {
	scheduler  *scheduler.Scheduler
	maxRetries int
}

// NewMatchJobQueue creates a queue on top of s
func NewMatchJobQueue(s *scheduler.Scheduler, maxRetries int) *MatchJobQueue {
	return &MatchJobQueue{scheduler: s, maxRetries: maxRetries}
}

// EnqueueRefresh queues a refresh of one entry's edges
func (q *MatchJobQueue) EnqueueRefresh(entryID uuid.UUID) error {
	return q.scheduler.SubmitJob(scheduler.NewJob(scheduler.JobKindMatchRefresh, entryID, q.maxRetries))
}

// EnqueueRebuild queues a rebuild of the whole graph
func (q *MatchJobQueue) EnqueueRebuild() error {
	return q.scheduler.SubmitJob(scheduler.NewJob(scheduler.JobKindMatchRebuild, uuid.Nil, q.maxRetries))
}

var (
	_ scheduler.JobExecutor = (*MatchJobExecutor)(nil)
	_ RefreshQueue          = (*MatchJobQueue)(nil)
)
