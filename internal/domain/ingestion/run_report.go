package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the single classification every input record receives
type Outcome string

const (
	OutcomeInserted        Outcome = "inserted"
	OutcomeUpdated         Outcome = "updated"
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeFailed          Outcome = "failed"
)

// RecordError describes one record that did not make it into the catalog
type RecordError struct {
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// RunReport summarizes one ingestion batch
type RunReport struct {
	ID               uuid.UUID     `json:"id"`
	Platform         string        `json:"platform"`
	Query            string        `json:"query,omitempty"`
	Total            int           `json:"total"`
	Inserted         int           `json:"inserted"`
	Updated          int           `json:"updated"`
	Unchanged        int           `json:"unchanged"`
	ValidationErrors int           `json:"validation_errors"`
	Failed           int           `json:"failed"`
	Observations     int           `json:"observations"`
	Errors           []RecordError `json:"errors,omitempty"`
	Cancelled        bool          `json:"cancelled"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Duration         time.Duration `json:"duration"`
}

// NewRunReport starts a report for a batch of total records
func NewRunReport(platform, query string, total int, startedAt time.Time) *RunReport {
	return &RunReport{
		ID:        uuid.New(),
		Platform:  platform,
		Query:     query,
		Total:     total,
		Errors:    make([]RecordError, 0),
		StartedAt: startedAt,
	}
}

// Count records one outcome
func (r *RunReport) Count(outcome Outcome) {
	switch outcome {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeValidationError:
		r.ValidationErrors++
	case OutcomeFailed:
		r.Failed++
	}
}

// Processed is the number of records that received an outcome
func (r *RunReport) Processed() int {
	return r.Inserted + r.Updated + r.Unchanged + r.ValidationErrors + r.Failed
}

// Finish stamps the end of the run
func (r *RunReport) Finish(at time.Time) {
	r.FinishedAt = at
	r.Duration = at.Sub(r.StartedAt)
}

// ErrorRatio is the share of processed records that were rejected or failed
func (r *RunReport) ErrorRatio() float64 {
	processed := r.Processed()
	if processed == 0 {
		return 0
	}
	return float64(r.ValidationErrors+r.Failed) / float64(processed)
}
