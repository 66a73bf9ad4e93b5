package dto

import (
	"time"

	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
)

// Submission is one of CodeSubmission or ImageSubmission. The set of
// implementations is closed.
type Submission interface {
	Task() string
	Modality() ai.Modality
	isSubmission()
}

// CodeSubmission carries raw source text.
type CodeSubmission struct {
	TaskName string
	Code     string
}

// ImageSubmission carries a screenshot of source code.
type ImageSubmission struct {
	TaskName string
	Image    []byte
	FileName string
}

func (s CodeSubmission) Task() string          { return s.TaskName }
func (s CodeSubmission) Modality() ai.Modality { return ai.ModalityCode }
func (CodeSubmission) isSubmission()           {}

func (s ImageSubmission) Task() string          { return s.TaskName }
func (s ImageSubmission) Modality() ai.Modality { return ai.ModalityImage }
func (ImageSubmission) isSubmission()           {}

// EvaluateForm is the multipart form accepted by POST /api/evaluate.
type EvaluateForm struct {
	TaskName       string `form:"taskName" validate:"required,max=255"`
	SubmissionType string `form:"submissionType" validate:"required,oneof=code image"`
	Code           string `form:"code"`
}

// EvaluationResponse represents a stored evaluation to API consumers.
type EvaluationResponse struct {
	ID             string    `json:"id"`
	TaskName       string    `json:"taskName"`
	SubmissionType string    `json:"submissionType"`
	Code           *string   `json:"code"`
	ImageURL       *string   `json:"imageUrl"`
	Score          int       `json:"score"`
	Feedback       string    `json:"feedback"`
	Provider       string    `json:"provider,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewEvaluationResponse converts an Evaluation model into a DTO.
func NewEvaluationResponse(evaluation models.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:             evaluation.ID,
		TaskName:       evaluation.TaskName,
		SubmissionType: evaluation.SubmissionType,
		Code:           evaluation.Code,
		ImageURL:       evaluation.ImageURL,
		Score:          evaluation.Score,
		Feedback:       evaluation.Feedback,
		Provider:       evaluation.Provider,
		CreatedAt:      evaluation.CreatedAt,
		UpdatedAt:      evaluation.UpdatedAt,
	}
}

// NewEvaluationResponseSlice converts a list of models into DTOs.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, NewEvaluationResponse(evaluation))
	}
	return responses
}

// EvaluationCompletedEvent is published after an evaluation has been stored.
type EvaluationCompletedEvent struct {
	Source     string             `json:"source"`
	Evaluation EvaluationResponse `json:"evaluation"`
	SentAt     time.Time          `json:"sent_at"`
}
