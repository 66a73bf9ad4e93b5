package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/middleware"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationMessages(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		switch fieldErr.Field() {
		case "TaskName":
			if fieldErr.Tag() == "max" {
				messages = append(messages, fmt.Sprintf("Task name must be at most %s characters.", fieldErr.Param()))
			} else {
				messages = append(messages, "Task name is required.")
			}
		case "SubmissionType":
			messages = append(messages, "Submission type must be 'code' or 'image'.")
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid.", fieldErr.Field()))
		}
	}
	return messages
}

// publicMessage returns the client-facing text of a pipeline error without
// the operation prefix.
func publicMessage(err error) string {
	var pipelineErr *errdefs.Error
	if errors.As(err, &pipelineErr) && pipelineErr.Msg != "" {
		return pipelineErr.Msg
	}
	return err.Error()
}
