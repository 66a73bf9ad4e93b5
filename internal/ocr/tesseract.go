package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	dockerexec "github.com/noah-isme/gema-evaluator-api/pkg/docker"
)

const containerWorkspace = "/workspace"

// TesseractConfig selects the container image and limits for tesseract runs.
type TesseractConfig struct {
	Image   string
	Timeout time.Duration
}

// TesseractEngine runs the tesseract CLI inside a sandboxed container with the
// staging directory mounted read-only.
type TesseractEngine struct {
	executor dockerexec.Executor
	cfg      TesseractConfig
}

// NewTesseractEngine constructs a container backed tesseract engine.
func NewTesseractEngine(executor dockerexec.Executor, cfg TesseractConfig) *TesseractEngine {
	if cfg.Image == "" {
		cfg.Image = "jitesoft/tesseract-ocr:latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TesseractEngine{executor: executor, cfg: cfg}
}

// Recognize implements Engine.
func (e *TesseractEngine) Recognize(ctx context.Context, imagePath, language string) (string, error) {
	dir, name := filepath.Split(imagePath)

	result, err := e.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:      e.cfg.Image,
		Entrypoint: []string{"tesseract"},
		Cmd:        []string{name, "stdout", "-l", language},
		Timeout:    e.cfg.Timeout,
		Workspace:  filepath.Clean(dir),
		WorkingDir: containerWorkspace,
	})
	if err != nil {
		return "", fmt.Errorf("tesseract run: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("tesseract exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return result.Stdout, nil
}
