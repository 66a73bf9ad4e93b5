package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator-api/internal/config"
	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/handler"
	"github.com/noah-isme/gema-evaluator-api/internal/observability"
	"github.com/noah-isme/gema-evaluator-api/internal/router"
	"github.com/noah-isme/gema-evaluator-api/internal/utils"
)

type emptyEvaluationService struct{}

func (emptyEvaluationService) EvaluateTask(context.Context, dto.Submission) (dto.EvaluationResponse, error) {
	return dto.EvaluationResponse{}, nil
}

func (emptyEvaluationService) List(context.Context) ([]dto.EvaluationResponse, error) {
	return []dto.EvaluationResponse{}, nil
}

func (emptyEvaluationService) Get(context.Context, string) (dto.EvaluationResponse, bool, error) {
	return dto.EvaluationResponse{}, false, nil
}

func newApp() *fiber.App {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "Task Evaluator API"}, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(emptyEvaluationService{}, validator.New(), handler.EvaluationHandlerConfig{}, zerolog.Nop()),
		HealthHandler:     handler.HealthCheck(func(context.Context) error { return nil }, "test", zerolog.Nop()),
		MetricsHandler:    observability.MetricsHandler(),
	})
	return app
}

func TestRegisterRoutes(t *testing.T) {
	app := newApp()

	for _, path := range []string{"/health", "/metrics", "/api/evaluations"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/evaluations/unknown", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Task Evaluator API", resp.Header.Get("X-Application"))
}

func TestUnknownRouteFallback(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/evaluations", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var payload utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.False(t, payload.Success)
	require.Equal(t, "Endpoint not found. Please check the URL and HTTP method.", payload.Error)
}
