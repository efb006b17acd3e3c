package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"gorm.io/datatypes"
)

// IngestionRunModel is the persistence model for a run report
type IngestionRunModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primary_key"`
	Platform         string         `gorm:"type:varchar(50);not null;index:idx_ingestion_runs_platform_started,priority:1"`
	Query            string         `gorm:"type:varchar(200)"`
	Total            int            `gorm:"not null"`
	Inserted         int            `gorm:"not null"`
	Updated          int            `gorm:"not null"`
	Unchanged        int            `gorm:"not null"`
	ValidationErrors int            `gorm:"not null"`
	Failed           int            `gorm:"not null"`
	Observations     int            `gorm:"not null"`
	Errors           datatypes.JSON `gorm:"not null"`
	Cancelled        bool           `gorm:"not null;default:false"`
	StartedAt        time.Time      `gorm:"not null;index:idx_ingestion_runs_platform_started,priority:2"`
	FinishedAt       time.Time      `gorm:"not null"`
	DurationMs       int64          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IngestionRunModel) TableName() string {
	return "ingestion_runs"
}

// ToDomain converts the persistence model to a domain RunReport
func (m *IngestionRunModel) ToDomain() (*ingestion.RunReport, error) {
	errs := make([]ingestion.RecordError, 0)
	if len(m.Errors) > 0 {
		if err := json.Unmarshal(m.Errors, &errs); err != nil {
			return nil, err
		}
	}
	return &ingestion.RunReport{
		ID:               m.ID,
		Platform:         m.Platform,
		Query:            m.Query,
		Total:            m.Total,
		Inserted:         m.Inserted,
		Updated:          m.Updated,
		Unchanged:        m.Unchanged,
		ValidationErrors: m.ValidationErrors,
		Failed:           m.Failed,
		Observations:     m.Observations,
		Errors:           errs,
		Cancelled:        m.Cancelled,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
		Duration:         time.Duration(m.DurationMs) * time.Millisecond,
	}, nil
}

// IngestionRunModelFromDomain creates a persistence model from a domain RunReport
func IngestionRunModelFromDomain(r *ingestion.RunReport) (*IngestionRunModel, error) {
	errs := r.Errors
	if errs == nil {
		errs = []ingestion.RecordError{}
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	return &IngestionRunModel{
		ID:               r.ID,
		Platform:         r.Platform,
		Query:            r.Query,
		Total:            r.Total,
		Inserted:         r.Inserted,
		Updated:          r.Updated,
		Unchanged:        r.Unchanged,
		ValidationErrors: r.ValidationErrors,
		Failed:           r.Failed,
		Observations:     r.Observations,
		Errors:           datatypes.JSON(raw),
		Cancelled:        r.Cancelled,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		DurationMs:       r.Duration.Milliseconds(),
	}, nil
}

// AllModels lists every model for AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&CatalogEntryModel{},
		&PriceObservationModel{},
		&MatchEdgeModel{},
		&IngestionRunModel{},
	}
}
