package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
	"github.com/noah-isme/gema-evaluator-api/internal/observability"
)

// ErrEmptyImage indicates the extractor received no image bytes.
var ErrEmptyImage = errors.New("image payload is empty")

// Engine recognises text in an image that already sits on the local file system.
type Engine interface {
	Recognize(ctx context.Context, imagePath, language string) (string, error)
}

// Config tunes the extractor.
type Config struct {
	Language    string
	StagingRoot string
}

// Extractor stages image bytes in a private temporary directory and runs the
// OCR engine against it. Each call owns its staging directory exclusively.
type Extractor struct {
	engine Engine
	cfg    Config
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewExtractor constructs an extractor backed by the given engine.
func NewExtractor(engine Engine, cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = os.TempDir()
	}

	return &Extractor{
		engine: engine,
		cfg:    cfg,
		logger: logger.With().Str("component", "ocr_extractor").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-evaluator-api/internal/ocr"),
	}
}

// Extract returns the recognised text trimmed of surrounding whitespace. An
// empty result is not an error here.
func (x *Extractor) Extract(ctx context.Context, image []byte) (string, error) {
	const op = "ocr.extract"

	ctx, span := x.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.Int("ocr.image_bytes", len(image)),
		attribute.String("ocr.language", x.cfg.Language),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.OCRLatency().Observe(time.Since(start).Seconds())
	}()

	if len(image) == 0 {
		return "", x.fail(span, errdefs.ExtractionFailure(op, ErrEmptyImage))
	}

	dir, err := os.MkdirTemp(x.cfg.StagingRoot, "ocr-")
	if err != nil {
		return "", x.fail(span, errdefs.ExtractionFailure(op, fmt.Errorf("create staging dir: %w", err)))
	}
	defer x.release(dir)

	// The engine may read the staged file as a different user (container runtime).
	if err := os.Chmod(dir, 0o755); err != nil {
		return "", x.fail(span, errdefs.ExtractionFailure(op, fmt.Errorf("prepare staging dir: %w", err)))
	}

	path := filepath.Join(dir, "input"+stagingExtension(image))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", x.fail(span, errdefs.ExtractionFailure(op, fmt.Errorf("stage image: %w", err)))
	}

	text, err := x.engine.Recognize(ctx, path, x.cfg.Language)
	if err != nil {
		return "", x.fail(span, errdefs.ExtractionFailure(op, err))
	}

	text = strings.TrimSpace(text)
	span.SetAttributes(attribute.Int("ocr.text_length", len(text)))
	x.logger.Debug().Int("text_length", len(text)).Msg("ocr extraction complete")
	return text, nil
}

func (x *Extractor) release(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		x.logger.Warn().Err(err).Str("staging_dir", dir).Msg("failed to remove ocr staging dir")
	}
}

func (x *Extractor) fail(span trace.Span, err error) error {
	observability.OCRFailures().Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func stagingExtension(image []byte) string {
	detected := mimetype.Detect(image)
	if strings.HasPrefix(detected.String(), "image/") && detected.Extension() != "" {
		return detected.Extension()
	}
	return ".png"
}
