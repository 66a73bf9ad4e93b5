package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/internal/repository"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
)

type stubEvaluator struct {
	result   ai.EvaluationResult
	err      error
	requests []ai.EvaluationRequest
}

func (s *stubEvaluator) Evaluate(_ context.Context, request ai.EvaluationRequest) (ai.EvaluationResult, error) {
	s.requests = append(s.requests, request)
	if s.err != nil {
		return ai.EvaluationResult{}, s.err
	}
	return s.result, nil
}

type stubEvaluationRepo struct {
	created   []repository.NewEvaluation
	records   map[string]models.Evaluation
	createErr error
	getErr    error
}

func newStubEvaluationRepo() *stubEvaluationRepo {
	return &stubEvaluationRepo{records: map[string]models.Evaluation{}}
}

func (r *stubEvaluationRepo) Create(_ context.Context, input repository.NewEvaluation) (models.Evaluation, error) {
	if r.createErr != nil {
		return models.Evaluation{}, r.createErr
	}
	r.created = append(r.created, input)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evaluation := models.Evaluation{
		ID:             "11111111-2222-3333-4444-555555555555",
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
	r.records[evaluation.ID] = evaluation
	return evaluation, nil
}

func (r *stubEvaluationRepo) List(context.Context) ([]models.Evaluation, error) {
	items := make([]models.Evaluation, 0, len(r.records))
	for _, item := range r.records {
		items = append(items, item)
	}
	return items, nil
}

func (r *stubEvaluationRepo) GetByID(_ context.Context, id string) (models.Evaluation, bool, error) {
	if r.getErr != nil {
		return models.Evaluation{}, false, r.getErr
	}
	evaluation, ok := r.records[id]
	return evaluation, ok, nil
}

type recordingPublisher struct {
	events []dto.EvaluationResponse
	err    error
}

func (p *recordingPublisher) PublishEvaluationCompleted(_ context.Context, evaluation dto.EvaluationResponse) error {
	p.events = append(p.events, evaluation)
	return p.err
}

func newTestEvaluationService(extractor TextExtractor, evaluator ai.Evaluator, repo repository.EvaluationRepository, events EventPublisher) EvaluationService {
	return NewEvaluationService(NewRequestBuilder(extractor), evaluator, repo, events, zerolog.Nop())
}

func TestEvaluateTaskCodeSubmission(t *testing.T) {
	extractor := &stubExtractor{}
	evaluator := &stubEvaluator{result: ai.EvaluationResult{
		Verdict:  ai.Verdict{Score: 9, Feedback: "Clean code"},
		Provider: "gemini",
		Model:    "gemini-1.5-flash",
		Raw:      map[string]interface{}{"model": "gemini-1.5-flash"},
	}}
	repo := newStubEvaluationRepo()
	publisher := &recordingPublisher{}
	svc := newTestEvaluationService(extractor, evaluator, repo, publisher)

	resp, err := svc.EvaluateTask(context.Background(), dto.CodeSubmission{TaskName: "Counter", Code: "const x = 1;"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Equal(t, "Counter", resp.TaskName)
	require.Equal(t, models.SubmissionTypeCode, resp.SubmissionType)
	require.Equal(t, 9, resp.Score)
	require.Equal(t, "Clean code", resp.Feedback)
	require.NotNil(t, resp.Code)
	require.Equal(t, "const x = 1;", *resp.Code)
	require.Nil(t, resp.ImageURL)

	require.Zero(t, extractor.calls)
	require.Len(t, evaluator.requests, 1)
	require.Equal(t, "const x = 1;", evaluator.requests[0].Content)
	require.Len(t, repo.created, 1)
	require.Equal(t, "gemini", repo.created[0].Provider)
	require.Equal(t, "gemini-1.5-flash", repo.created[0].Metadata["model"])
	require.Len(t, publisher.events, 1)
	require.Equal(t, resp.ID, publisher.events[0].ID)
}

func TestEvaluateTaskImageSubmission(t *testing.T) {
	extractor := &stubExtractor{text: "print('hi')"}
	evaluator := &stubEvaluator{result: ai.EvaluationResult{Verdict: ai.Verdict{Score: 6, Feedback: "Works"}}}
	repo := newStubEvaluationRepo()
	svc := newTestEvaluationService(extractor, evaluator, repo, nil)

	resp, err := svc.EvaluateTask(context.Background(), dto.ImageSubmission{TaskName: "Hello", Image: []byte{1, 2, 3}, FileName: "hello.png"})
	require.NoError(t, err)
	require.Equal(t, 1, extractor.calls)
	require.Equal(t, ai.ModalityImage, evaluator.requests[0].Modality)
	require.Equal(t, "print('hi')", evaluator.requests[0].Content)
	require.Nil(t, resp.Code)
	require.NotNil(t, resp.ImageURL)
	require.Contains(t, *resp.ImageURL, "uploaded-image-")
	require.Contains(t, *resp.ImageURL, "-hello.png")
}

func TestEvaluateTaskStopsAtFirstFailure(t *testing.T) {
	extractionErr := errdefs.ExtractionFailure("ocr.extract", errors.New("tesseract missing"))
	serviceErr := errdefs.AIService("gemini.evaluate", errors.New("503"))
	protocolErr := errdefs.AIProtocol("ai.parse_verdict", "no JSON object found in reply", nil)

	cases := []struct {
		name          string
		submission    dto.Submission
		extractor     *stubExtractor
		evaluatorErr  error
		wantKind      error
		wantEvaluated int
	}{
		{name: "invalid code", submission: dto.CodeSubmission{TaskName: "T", Code: "  "}, extractor: &stubExtractor{}, wantKind: errdefs.ErrInvalidSubmission},
		{name: "extraction failure", submission: dto.ImageSubmission{TaskName: "T", Image: []byte{1}}, extractor: &stubExtractor{err: extractionErr}, wantKind: errdefs.ErrExtractionFailure},
		{name: "blank ocr text", submission: dto.ImageSubmission{TaskName: "T", Image: []byte{1}}, extractor: &stubExtractor{text: " "}, wantKind: errdefs.ErrInvalidSubmission},
		{name: "ai service", submission: dto.CodeSubmission{TaskName: "T", Code: "x"}, extractor: &stubExtractor{}, evaluatorErr: serviceErr, wantKind: errdefs.ErrAIService, wantEvaluated: 1},
		{name: "ai protocol", submission: dto.CodeSubmission{TaskName: "T", Code: "x"}, extractor: &stubExtractor{}, evaluatorErr: protocolErr, wantKind: errdefs.ErrAIProtocol, wantEvaluated: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator := &stubEvaluator{err: tc.evaluatorErr, result: ai.EvaluationResult{Verdict: ai.Verdict{Score: 5, Feedback: "ok"}}}
			repo := newStubEvaluationRepo()
			publisher := &recordingPublisher{}
			svc := newTestEvaluationService(tc.extractor, evaluator, repo, publisher)

			_, err := svc.EvaluateTask(context.Background(), tc.submission)
			require.ErrorIs(t, err, tc.wantKind)
			require.Len(t, evaluator.requests, tc.wantEvaluated)
			require.Empty(t, repo.created)
			require.Empty(t, publisher.events)
		})
	}
}

func TestEvaluateTaskPropagatesStorageError(t *testing.T) {
	repo := newStubEvaluationRepo()
	repo.createErr = errdefs.Storage("evaluation_repository.create", errors.New("connection refused"))
	publisher := &recordingPublisher{}
	svc := newTestEvaluationService(nil, &stubEvaluator{result: ai.EvaluationResult{Verdict: ai.Verdict{Score: 7, Feedback: "fine"}}}, repo, publisher)

	_, err := svc.EvaluateTask(context.Background(), dto.CodeSubmission{TaskName: "T", Code: "x"})
	require.ErrorIs(t, err, errdefs.ErrStorage)
	require.Empty(t, publisher.events)
}

func TestEvaluateTaskIgnoresPublishFailure(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("nats: connection closed")}
	svc := newTestEvaluationService(nil, &stubEvaluator{result: ai.EvaluationResult{Verdict: ai.Verdict{Score: 3, Feedback: "needs work"}}}, newStubEvaluationRepo(), publisher)

	resp, err := svc.EvaluateTask(context.Background(), dto.CodeSubmission{TaskName: "T", Code: "x"})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Score)
	require.Len(t, publisher.events, 1)
}

func TestEvaluationServiceGet(t *testing.T) {
	repo := newStubEvaluationRepo()
	svc := newTestEvaluationService(nil, &stubEvaluator{result: ai.EvaluationResult{Verdict: ai.Verdict{Score: 8, Feedback: "nice"}}}, repo, nil)

	created, err := svc.EvaluateTask(context.Background(), dto.CodeSubmission{TaskName: "T", Code: "x"})
	require.NoError(t, err)

	found, ok, err := svc.Get(context.Background(), " "+created.ID+" ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created, found)

	_, ok, err = svc.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)

	repo.getErr = errdefs.Storage("evaluation_repository.get", errors.New("boom"))
	_, _, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, errdefs.ErrStorage)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestNATSEventPublisherWithoutConnection(t *testing.T) {
	publisher := NewNATSEventPublisher(nil, "evaluations.completed")
	require.Nil(t, publisher)
	require.NoError(t, publisher.PublishEvaluationCompleted(context.Background(), dto.EvaluationResponse{}))
}

func TestEncodeCompletedEvent(t *testing.T) {
	sentAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload, err := encodeCompletedEvent("node-1", dto.EvaluationResponse{ID: "abc", TaskName: "T", Score: 4}, sentAt)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"source": "node-1",
		"sent_at": "2024-05-01T12:00:00Z",
		"evaluation": {
			"id": "abc", "taskName": "T", "submissionType": "", "code": null, "imageUrl": null,
			"score": 4, "feedback": "", "createdAt": "0001-01-01T00:00:00Z", "updatedAt": "0001-01-01T00:00:00Z"
		}
	}`, string(payload))
}
