package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
)

// TextExtractor turns image bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// PreparedSubmission is a submission normalised into one evaluation request
// plus the fields recorded alongside the verdict.
type PreparedSubmission struct {
	Request  ai.EvaluationRequest
	Code     *string
	ImageURL *string
}

// RequestBuilder normalises code and image submissions into evaluation requests.
type RequestBuilder struct {
	extractor TextExtractor
	now       func() time.Time
}

// NewRequestBuilder constructs a builder; extractor may be nil when image
// submissions are not supported.
func NewRequestBuilder(extractor TextExtractor) *RequestBuilder {
	return &RequestBuilder{extractor: extractor, now: time.Now}
}

// Build derives the canonical content for a submission. Image submissions call
// the extractor exactly once.
func (b *RequestBuilder) Build(ctx context.Context, submission dto.Submission) (PreparedSubmission, error) {
	const op = "request_builder.build"

	if submission == nil {
		return PreparedSubmission{}, errdefs.InvalidSubmission(op, "submission is required")
	}

	taskName := strings.TrimSpace(submission.Task())
	if taskName == "" {
		return PreparedSubmission{}, errdefs.InvalidSubmission(op, "Task name is required.")
	}

	switch s := submission.(type) {
	case dto.CodeSubmission:
		content := strings.TrimSpace(s.Code)
		if content == "" {
			return PreparedSubmission{}, errdefs.InvalidSubmission(op, "Code content is required for code submissions.")
		}
		code := s.Code
		return PreparedSubmission{
			Request: ai.EvaluationRequest{TaskName: taskName, Modality: ai.ModalityCode, Content: content},
			Code:    &code,
		}, nil

	case dto.ImageSubmission:
		if b.extractor == nil {
			return PreparedSubmission{}, errdefs.ExtractionFailure(op, errors.New("no OCR engine configured"))
		}
		text, err := b.extractor.Extract(ctx, s.Image)
		if err != nil {
			return PreparedSubmission{}, err
		}
		content := strings.TrimSpace(text)
		if content == "" {
			return PreparedSubmission{}, errdefs.InvalidSubmission(op, "OCR failed to extract readable content from the image. Please try a clearer image.")
		}
		reference := b.imageReference(s.FileName)
		return PreparedSubmission{
			Request:  ai.EvaluationRequest{TaskName: taskName, Modality: ai.ModalityImage, Content: content},
			ImageURL: &reference,
		}, nil

	default:
		return PreparedSubmission{}, errdefs.InvalidSubmission(op, fmt.Sprintf("unsupported submission type %T", submission))
	}
}

// maxReferenceNameRunes keeps references within the image_url column.
const maxReferenceNameRunes = 255

// imageReference is a record-keeping placeholder, not a storage locator.
func (b *RequestBuilder) imageReference(fileName string) string {
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("uploaded-image-%d-%s", b.now().UnixMilli(), truncateName(name, maxReferenceNameRunes))
}

// truncateName shortens the stem and keeps the extension when it fits.
func truncateName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	ext := []rune(filepath.Ext(name))
	if len(ext) >= limit {
		return string(runes[:limit])
	}
	stem := runes[:len(runes)-len(ext)]
	return string(stem[:limit-len(ext)]) + string(ext)
}
