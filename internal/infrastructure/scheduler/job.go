package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	ErrJobQueueFull        = errors.New("scheduler: job queue full")
	ErrInvalidConfig       = errors.New("scheduler: invalid configuration")
)

// JobKind identifies what a job does
type JobKind string

const (
	// JobKindMatchRefresh recomputes the match edges of one catalog entry
	JobKindMatchRefresh JobKind = "MATCH_REFRESH"
	// JobKindMatchRebuild recomputes the whole match graph
	JobKindMatchRebuild JobKind = "MATCH_REBUILD"
)

// JobStatus is where a job is in its lifecycle
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one unit of background match work. EntryID is zero for jobs over
// the whole graph.
type Job struct {
	ID         uuid.UUID
	Kind       JobKind
	EntryID    uuid.UUID
	Status     JobStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Retries    int
	MaxRetries int
}

// NewJob creates a pending job
func NewJob(kind JobKind, entryID uuid.UUID, maxRetries int) *Job {
	return &Job{ID: uuid.New(), Kind: kind, EntryID: entryID, Status: JobStatusPending, MaxRetries: maxRetries}
}

// Key is shared by jobs that would do the same work. A queued job absorbs
// later submissions with its key.
func (j *Job) Key() string {
	return string(j.Kind) + ":" + j.EntryID.String()
}

func (j *Job) start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = now
	j.Error = ""
}

// finish records the outcome of one attempt
func (j *Job) finish(now time.Time, err error) {
	j.FinishedAt = now
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = JobStatusSuccess
}

// CanRetry reports whether a failed job has retries left
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Retries < j.MaxRetries
}

// JobExecutor runs jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// JobExecutorFunc adapts a function to JobExecutor
type JobExecutorFunc func(ctx context.Context, job *Job) error

func (f JobExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}
