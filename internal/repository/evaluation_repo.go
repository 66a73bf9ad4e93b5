package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/models"
)

// NewEvaluation carries everything needed to persist a scored submission.
type NewEvaluation struct {
	TaskName       string
	SubmissionType string
	Code           *string
	ImageURL       *string
	Score          int
	Feedback       string
	Provider       string
	Metadata       map[string]interface{}
}

// EvaluationRepository is the evaluation store. GetByID reports a missing
// record through its boolean result, never through an error.
type EvaluationRepository interface {
	Create(ctx context.Context, input NewEvaluation) (models.Evaluation, error)
	List(ctx context.Context) ([]models.Evaluation, error)
	GetByID(ctx context.Context, id string) (models.Evaluation, bool, error)
}

// NewEvaluationRepository constructs a gorm backed evaluation store.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db, now: time.Now}
}

type evaluationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func (r *evaluationRepository) Create(ctx context.Context, input NewEvaluation) (models.Evaluation, error) {
	now := r.now().UTC().Truncate(time.Microsecond)
	evaluation := models.Evaluation{
		ID:             uuid.NewString(),
		TaskName:       input.TaskName,
		SubmissionType: input.SubmissionType,
		Code:           input.Code,
		ImageURL:       input.ImageURL,
		Score:          input.Score,
		Feedback:       input.Feedback,
		Provider:       input.Provider,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Metadata != nil {
		evaluation.Metadata = datatypes.JSONMap(input.Metadata)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&evaluation).Error
	})
	if err != nil {
		return models.Evaluation{}, errdefs.Storage("evaluations.create", err)
	}

	return evaluation, nil
}

func (r *evaluationRepository) List(ctx context.Context) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&evaluations).Error
	if err != nil {
		return nil, errdefs.Storage("evaluations.list", err)
	}
	return evaluations, nil
}

func (r *evaluationRepository) GetByID(ctx context.Context, id string) (models.Evaluation, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Evaluation{}, false, nil
	}

	var evaluation models.Evaluation
	err := r.db.WithContext(ctx).First(&evaluation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, false, nil
		}
		return models.Evaluation{}, false, errdefs.Storage("evaluations.get", err)
	}
	return evaluation, true, nil
}
