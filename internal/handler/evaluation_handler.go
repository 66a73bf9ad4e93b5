package handler

import (
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator-api/internal/dto"
	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/internal/service"
	"github.com/noah-isme/gema-evaluator-api/internal/utils"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

// Raster formats tesseract can read.
var allowedImageTypes = []string{"image/png", "image/jpeg", "image/gif"}

// EvaluationHandlerConfig tunes upload limits and error exposure.
type EvaluationHandlerConfig struct {
	MaxUploadBytes int64
	// ExposeErrors returns internal error text to clients; development only.
	ExposeErrors bool
}

// EvaluationHandler exposes submission evaluation and history endpoints.
type EvaluationHandler struct {
	service   service.EvaluationService
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	config    EvaluationHandlerConfig
	logger    zerolog.Logger
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(service service.EvaluationService, validate *validator.Validate, cfg EvaluationHandlerConfig, logger zerolog.Logger) *EvaluationHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &EvaluationHandler{
		service:   service,
		validate:  validate,
		sanitizer: bluemonday.StrictPolicy(),
		config:    cfg,
		logger:    logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires evaluation routes. evaluateMiddleware runs before the
// evaluate endpoint only.
func (h *EvaluationHandler) Register(router fiber.Router, evaluateMiddleware ...fiber.Handler) {
	evaluate := append(append([]fiber.Handler{}, evaluateMiddleware...), h.evaluate)
	router.Post("/evaluate", evaluate...)
	router.Get("/evaluations", h.list)
	router.Get("/evaluations/:id", h.get)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var form dto.EvaluateForm
	if err := c.BodyParser(&form); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "Invalid input data.", []string{"Request must be multipart/form-data."})
	}
	form.TaskName = h.sanitizeTaskName(form.TaskName)
	form.SubmissionType = strings.ToLower(strings.TrimSpace(form.SubmissionType))

	if err := h.validate.Struct(form); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "Invalid input data.", validationMessages(err))
	}

	var submission dto.Submission
	switch form.SubmissionType {
	case models.SubmissionTypeCode:
		if strings.TrimSpace(form.Code) == "" {
			return utils.SendError(c, fiber.StatusBadRequest, "Code content is required for code submissions.")
		}
		submission = dto.CodeSubmission{TaskName: form.TaskName, Code: form.Code}
	case models.SubmissionTypeImage:
		file, err := c.FormFile("image")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "An image file is required for image submissions.")
		}
		image, err := h.readImage(file)
		if err != nil {
			if errors.Is(err, errdefs.ErrInvalidSubmission) {
				return utils.SendError(c, fiber.StatusBadRequest, publicMessage(err))
			}
			logger.Error().Err(err).Msg("failed to read uploaded image")
			return h.internalError(c, err, "Internal server error during evaluation.")
		}
		submission = dto.ImageSubmission{TaskName: form.TaskName, Image: image, FileName: file.Filename}
	}

	result, err := h.service.EvaluateTask(c.UserContext(), submission)
	if err != nil {
		if errors.Is(err, errdefs.ErrInvalidSubmission) {
			return utils.SendError(c, fiber.StatusBadRequest, publicMessage(err))
		}
		logger.Error().Err(err).Bool("retryable", errdefs.Retryable(err)).Msg("evaluation failed")
		return h.internalError(c, err, "Internal server error during evaluation.")
	}

	return utils.OK(c, result)
}

func (h *EvaluationHandler) list(c *fiber.Ctx) error {
	evaluations, err := h.service.List(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list evaluations")
		return h.internalError(c, err, "Internal server error fetching history.")
	}
	return utils.OK(c, evaluations)
}

func (h *EvaluationHandler) get(c *fiber.Ctx) error {
	evaluation, found, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("evaluation_id", c.Params("id")).Msg("failed to fetch evaluation")
		return h.internalError(c, err, "Internal server error fetching evaluation.")
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "Evaluation not found.")
	}
	return utils.OK(c, evaluation)
}

// readImage loads the upload into memory and accepts image content only.
func (h *EvaluationHandler) readImage(file *multipart.FileHeader) ([]byte, error) {
	const op = "evaluation_handler.read_image"

	if file.Size > h.config.MaxUploadBytes {
		return nil, errdefs.InvalidSubmission(op, fmt.Sprintf("Image exceeds the %dMB upload limit.", h.config.MaxUploadBytes/(1024*1024)))
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.config.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.config.MaxUploadBytes {
		return nil, errdefs.InvalidSubmission(op, fmt.Sprintf("Image exceeds the %dMB upload limit.", h.config.MaxUploadBytes/(1024*1024)))
	}
	if !mimetype.EqualsAny(mimetype.Detect(data).String(), allowedImageTypes...) {
		return nil, errdefs.InvalidSubmission(op, "Only image files (PNG, JPG, JPEG, GIF) are allowed.")
	}
	return data, nil
}

// sanitizeTaskName strips markup. StrictPolicy entity-encodes what it keeps,
// so the result is unescaped back to plain text.
func (h *EvaluationHandler) sanitizeTaskName(name string) string {
	return strings.TrimSpace(html.UnescapeString(h.sanitizer.Sanitize(name)))
}

func (h *EvaluationHandler) internalError(c *fiber.Ctx, err error, fallback string) error {
	message := fallback
	if h.config.ExposeErrors {
		message = err.Error()
	}
	return utils.SendError(c, fiber.StatusInternalServerError, message)
}
