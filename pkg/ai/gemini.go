package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
)

const providerGemini = "gemini"

// GeminiConfig defines configuration options for the Gemini evaluator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiEvaluator implements Evaluator against the Google generative language API.
type GeminiEvaluator struct {
	client    *genai.Client
	generator contentGenerator
	cfg       GeminiConfig
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewGeminiEvaluator dials the Gemini API once; the evaluator is safe for concurrent use.
func NewGeminiEvaluator(ctx context.Context, cfg GeminiConfig) (*GeminiEvaluator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	cfg = cfg.withDefaults()
	client, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(cfg.APIKey)))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}

	evaluator := newGeminiEvaluator(model, cfg)
	evaluator.client = client
	return evaluator, nil
}

func newGeminiEvaluator(generator contentGenerator, cfg GeminiConfig) *GeminiEvaluator {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiEvaluator{
		generator: generator,
		cfg:       cfg,
		tracer:    otel.Tracer("github.com/noah-isme/gema-evaluator-api/pkg/ai/gemini"),
		logger:    logger.With().Str("component", "gemini_evaluator").Logger(),
	}
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = "gemini-1.5-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Evaluate sends a single prompt to Gemini and parses the reply into a verdict.
func (e *GeminiEvaluator) Evaluate(parent context.Context, request EvaluationRequest) (EvaluationResult, error) {
	ctx, span := e.tracer.Start(parent, "gemini.evaluate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.String("modality", string(request.Modality)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.generator.GenerateContent(ctx, genai.Text(BuildPrompt(request)))
	observeDuration(providerGemini, e.cfg.Model, start)
	if err != nil {
		err = errdefs.AIService("gemini.generate_content", err)
		recordFailure(span, providerGemini, e.cfg.Model, err)
		return EvaluationResult{}, err
	}

	reply := firstText(resp)
	verdict, err := ParseVerdict(reply)
	if err != nil {
		e.logger.Debug().Str("reply", reply).Msg("unparseable gemini reply")
		recordFailure(span, providerGemini, e.cfg.Model, err)
		return EvaluationResult{}, err
	}

	result := EvaluationResult{
		Verdict:  verdict,
		Provider: providerGemini,
		Model:    e.cfg.Model,
		Raw:      map[string]interface{}{"model": e.cfg.Model},
	}
	if resp.UsageMetadata != nil {
		result.Raw["usage"] = map[string]interface{}{
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"completion_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// Close releases the underlying API client.
func (e *GeminiEvaluator) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var builder strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		if builder.Len() > 0 {
			return builder.String()
		}
	}
	return ""
}
