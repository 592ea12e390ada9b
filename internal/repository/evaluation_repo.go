package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-evaluator/internal/models"
)

// EvaluationRepository persists completed evaluations.
type EvaluationRepository interface {
	Create(ctx context.Context, record *models.EvaluationRecord) error
	GetByReference(ctx context.Context, referenceID string) (models.EvaluationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.EvaluationRecord, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository constructs a repository for evaluation records.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, record *models.EvaluationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *evaluationRepository) GetByReference(ctx context.Context, referenceID string) (models.EvaluationRecord, error) {
	var record models.EvaluationRecord
	err := r.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&record).Error
	return record, err
}

func (r *evaluationRepository) ListRecent(ctx context.Context, limit int) ([]models.EvaluationRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var records []models.EvaluationRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
