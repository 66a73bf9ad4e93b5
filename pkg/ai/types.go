package ai

import "context"

// Modality tags where the evaluated content came from.
type Modality string

const (
	ModalityCode  Modality = "code"
	ModalityImage Modality = "image"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m == ModalityCode || m == ModalityImage
}

// EvaluationRequest is the canonical, provider independent input for one evaluation.
type EvaluationRequest struct {
	TaskName string
	Modality Modality
	Content  string
}

// Verdict is the validated score and feedback parsed from a model reply.
type Verdict struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// EvaluationResult wraps the verdict with provider bookkeeping.
type EvaluationResult struct {
	Verdict
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Raw      map[string]interface{} `json:"raw,omitempty"`
}

// Evaluator describes an AI model capable of grading a submission.
type Evaluator interface {
	Evaluate(ctx context.Context, request EvaluationRequest) (EvaluationResult, error)
}
