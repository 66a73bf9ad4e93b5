package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Database    string    `json:"database"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
}

// HealthCheck returns a handler that reports service and database health.
func HealthCheck(ping func(context.Context) error, environment string, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			requestLogger(logger, c).Error().Err(err).Msg("health check: database connection failed")
			return c.Status(fiber.StatusInternalServerError).JSON(HealthResponse{
				Status:      "ERROR",
				Database:    "Disconnected",
				Error:       "Database connection failed",
				Timestamp:   time.Now().UTC(),
				Environment: environment,
			})
		}

		return c.JSON(HealthResponse{
			Status:      "OK",
			Database:    "Connected",
			Timestamp:   time.Now().UTC(),
			Environment: environment,
		})
	}
}
