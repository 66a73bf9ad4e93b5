package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-evaluator-api/internal/config"
	"github.com/noah-isme/gema-evaluator-api/internal/handler"
	"github.com/noah-isme/gema-evaluator-api/internal/utils"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	HealthHandler     fiber.Handler
	MetricsHandler    fiber.Handler
	// EvaluateLimiter guards the evaluate endpoint; nil disables it.
	EvaluateLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application. It must run after
// all middleware since it installs the catch-all 404 handler.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.HealthHandler != nil {
		app.Get("/health", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	if deps.EvaluationHandler != nil {
		var evaluateMiddleware []fiber.Handler
		if deps.EvaluateLimiter != nil {
			evaluateMiddleware = append(evaluateMiddleware, deps.EvaluateLimiter)
		}
		deps.EvaluationHandler.Register(api, evaluateMiddleware...)
	}

	app.Use(func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusNotFound, "Endpoint not found. Please check the URL and HTTP method.")
	})
}
