package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evaluator-api/internal/config"
	"github.com/noah-isme/gema-evaluator-api/internal/database"
	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/handler"
	"github.com/noah-isme/gema-evaluator-api/internal/middleware"
	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/internal/repository"
	"github.com/noah-isme/gema-evaluator-api/internal/router"
	"github.com/noah-isme/gema-evaluator-api/internal/service"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
)

type scriptedEvaluator struct {
	replies map[ai.Modality]ai.Verdict
}

func (e scriptedEvaluator) Evaluate(_ context.Context, request ai.EvaluationRequest) (ai.EvaluationResult, error) {
	return ai.EvaluationResult{Verdict: e.replies[request.Modality], Provider: "scripted", Model: "test"}, nil
}

type fixedExtractor string

func (f fixedExtractor) Extract(context.Context, []byte) (string, error) {
	return string(f), nil
}

func setupEvaluationApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Evaluation{}))
	t.Cleanup(func() { _ = database.Close(db) })

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.New(io.Discard)
	repo := repository.NewCachedEvaluationRepository(repository.NewEvaluationRepository(db), redisClient, 0, logger)
	evaluator := scriptedEvaluator{replies: map[ai.Modality]ai.Verdict{
		ai.ModalityCode:  {Score: 9, Feedback: "Clean code"},
		ai.ModalityImage: {Score: 6, Feedback: "Readable screenshot"},
	}}
	svc := service.NewEvaluationService(service.NewRequestBuilder(fixedExtractor("console.log('hi')")), evaluator, repo, nil, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger, FrontendURL: "http://localhost:5173"})
	router.Register(app, config.Config{AppName: "Task Evaluator API"}, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(svc, validator.New(validator.WithRequiredStructEnabled()), handler.EvaluationHandlerConfig{}, logger),
		HealthHandler: handler.HealthCheck(func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}, "test", logger),
	})
	return app
}

func postEvaluation(t *testing.T, app *fiber.App, fields map[string]string, image []byte) dto.EvaluationResponse {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "screen.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Data    dto.EvaluationResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)
	return payload.Data
}

func getJSON(t *testing.T, app *fiber.App, path string, target interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	return resp.StatusCode
}

func TestEvaluationLifecycle(t *testing.T) {
	app := setupEvaluationApp(t)

	code := postEvaluation(t, app, map[string]string{"taskName": "Counter", "submissionType": "code", "code": "const x = 1;"}, nil)
	require.NotEmpty(t, code.ID)
	require.Equal(t, 9, code.Score)
	require.Equal(t, "Clean code", code.Feedback)
	require.NotNil(t, code.Code)
	require.Equal(t, "const x = 1;", *code.Code)
	require.Nil(t, code.ImageURL)

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}
	image := postEvaluation(t, app, map[string]string{"taskName": "Screenshot", "submissionType": "image"}, png)
	require.Equal(t, 6, image.Score)
	require.Nil(t, image.Code)
	require.NotNil(t, image.ImageURL)
	require.True(t, strings.HasPrefix(*image.ImageURL, "uploaded-image-"))

	var history struct {
		Data []dto.EvaluationResponse `json:"data"`
	}
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/api/evaluations", &history))
	require.Len(t, history.Data, 2)
	require.False(t, history.Data[0].CreatedAt.Before(history.Data[1].CreatedAt))

	var single struct {
		Data dto.EvaluationResponse `json:"data"`
	}
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/api/evaluations/"+code.ID, &single))
	require.Equal(t, code.ID, single.Data.ID)
	require.Equal(t, "Clean code", single.Data.Feedback)

	var missing struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.Equal(t, fiber.StatusNotFound, getJSON(t, app, "/api/evaluations/"+uuid.NewString(), &missing))
	require.Equal(t, "Evaluation not found.", missing.Error)

	var health handler.HealthResponse
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/health", &health))
	require.Equal(t, "Connected", health.Database)
}
