package persistence

import (
	"context"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRunReportRepository implements ingestion.RunReportRepository using GORM
type GormRunReportRepository struct {
	db *gorm.DB
}

// NewGormRunReportRepository creates a new GormRunReportRepository
func NewGormRunReportRepository(db *gorm.DB) *GormRunReportRepository {
	return &GormRunReportRepository{db: db}
}

// Save stores a finished run report
func (r *GormRunReportRepository) Save(ctx context.Context, report *ingestion.RunReport) error {
	model, err := models.IngestionRunModelFromDomain(report)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// FindRecent returns the newest reports first; an empty platform matches all
func (r *GormRunReportRepository) FindRecent(ctx context.Context, platform string, limit int) ([]ingestion.RunReport, error) {
	query := r.db.WithContext(ctx).Model(&models.IngestionRunModel{})
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if limit <= 0 {
		limit = 20
	}

	var rows []models.IngestionRunModel
	if err := query.Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	reports := make([]ingestion.RunReport, 0, len(rows))
	for i := range rows {
		report, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// Ensure GormRunReportRepository implements ingestion.RunReportRepository
var _ ingestion.RunReportRepository = (*GormRunReportRepository)(nil)
