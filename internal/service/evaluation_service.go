package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/observability"
	"github.com/noah-isme/gema-evaluator-api/internal/repository"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
)

// EvaluationService is the single entry point for evaluating submissions and
// reading evaluation history.
type EvaluationService interface {
	EvaluateTask(ctx context.Context, submission dto.Submission) (dto.EvaluationResponse, error)
	List(ctx context.Context) ([]dto.EvaluationResponse, error)
	Get(ctx context.Context, id string) (dto.EvaluationResponse, bool, error)
}

type evaluationService struct {
	builder   *RequestBuilder
	evaluator ai.Evaluator
	repo      repository.EvaluationRepository
	events    EventPublisher
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewEvaluationService wires the evaluation pipeline. events may be nil.
func NewEvaluationService(builder *RequestBuilder, evaluator ai.Evaluator, repo repository.EvaluationRepository, events EventPublisher, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		builder:   builder,
		evaluator: evaluator,
		repo:      repo,
		events:    events,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-evaluator-api/internal/service/evaluation"),
	}
}

// EvaluateTask runs build, evaluate and persist in order. The first failure
// aborts the pipeline and is returned unchanged; nothing is stored unless the
// verdict was obtained.
func (s *evaluationService) EvaluateTask(ctx context.Context, submission dto.Submission) (dto.EvaluationResponse, error) {
	modality := "unknown"
	if submission != nil {
		modality = string(submission.Modality())
	}

	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate_task", trace.WithAttributes(
		attribute.String("evaluation.modality", modality),
	))
	defer span.End()

	logger := s.logger.With().Str("modality", modality).Logger()

	prepared, err := s.builder.Build(ctx, submission)
	if err != nil {
		return dto.EvaluationResponse{}, s.fail(span, logger, modality, "build", err)
	}

	result, err := s.evaluator.Evaluate(ctx, prepared.Request)
	if err != nil {
		return dto.EvaluationResponse{}, s.fail(span, logger, modality, "evaluate", err)
	}

	evaluation, err := s.repo.Create(ctx, repository.NewEvaluation{
		TaskName:       prepared.Request.TaskName,
		SubmissionType: string(prepared.Request.Modality),
		Code:           prepared.Code,
		ImageURL:       prepared.ImageURL,
		Score:          result.Score,
		Feedback:       result.Feedback,
		Provider:       result.Provider,
		Metadata:       result.Raw,
	})
	if err != nil {
		return dto.EvaluationResponse{}, s.fail(span, logger, modality, "persist", err)
	}

	response := dto.NewEvaluationResponse(evaluation)
	observability.PipelineOutcomes().WithLabelValues(modality, "completed").Inc()
	span.SetAttributes(attribute.String("evaluation.id", evaluation.ID), attribute.Int("evaluation.score", evaluation.Score))
	span.SetStatus(codes.Ok, "completed")
	logger.Info().Str("evaluation_id", evaluation.ID).Int("score", evaluation.Score).Msg("evaluation completed")

	if s.events != nil {
		if err := s.events.PublishEvaluationCompleted(ctx, response); err != nil {
			logger.Warn().Err(err).Str("evaluation_id", evaluation.ID).Msg("failed to publish evaluation event")
		}
	}

	return response, nil
}

func (s *evaluationService) List(ctx context.Context) ([]dto.EvaluationResponse, error) {
	evaluations, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list evaluations")
		return nil, err
	}
	return dto.NewEvaluationResponseSlice(evaluations), nil
}

func (s *evaluationService) Get(ctx context.Context, id string) (dto.EvaluationResponse, bool, error) {
	evaluation, found, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		s.logger.Error().Err(err).Str("evaluation_id", id).Msg("failed to fetch evaluation")
		return dto.EvaluationResponse{}, false, err
	}
	if !found {
		return dto.EvaluationResponse{}, false, nil
	}
	return dto.NewEvaluationResponse(evaluation), true, nil
}

func (s *evaluationService) fail(span trace.Span, logger zerolog.Logger, modality, stage string, err error) error {
	outcome := "failed"
	if kind := errdefs.KindOf(err); kind != nil {
		outcome = kind.Error()
	}
	observability.PipelineOutcomes().WithLabelValues(modality, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)

	event := logger.Error()
	if errdefs.KindOf(err) == errdefs.ErrInvalidSubmission {
		event = logger.Warn()
	}
	event.Err(err).Str("stage", stage).Bool("retryable", errdefs.Retryable(err)).Msg("evaluation failed")
	return err
}
