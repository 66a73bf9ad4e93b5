package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	FrontendURL  string
	DatabaseURL  string
	RedisURL     string
	CacheTTL     time.Duration
	NATSURL      string
	NATSSubject  string
	AIProvider   string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	AITimeout    time.Duration
	OCRImage     string
	OCRLanguage  string
	OCRTimeout   time.Duration
	OCRStaging   string
	DockerHost   string
	UploadMaxMB  int
	RateLimit    int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// UploadLimitBytes is the maximum accepted request body size.
func (c Config) UploadLimitBytes() int {
	return c.UploadMaxMB * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EVALUATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Task Evaluator API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3001")
	v.SetDefault("frontend.url", "http://localhost:5173")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("nats.subject", "evaluations.completed")
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ocr.image", "jitesoft/tesseract-ocr:latest")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.timeout", "30s")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("evaluate.rate_limit", 20)

	cacheTTL, err := parseDuration(v, "cache.ttl")
	if err != nil {
		return Config{}, err
	}
	aiTimeout, err := parseDuration(v, "ai.timeout")
	if err != nil {
		return Config{}, err
	}
	ocrTimeout, err := parseDuration(v, "ocr.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		FrontendURL:  v.GetString("frontend.url"),
		DatabaseURL:  strings.TrimSpace(v.GetString("database.url")),
		RedisURL:     strings.TrimSpace(v.GetString("redis.url")),
		CacheTTL:     cacheTTL,
		NATSURL:      strings.TrimSpace(v.GetString("nats.url")),
		NATSSubject:  v.GetString("nats.subject"),
		AIProvider:   strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		GeminiAPIKey: v.GetString("gemini.api_key"),
		GeminiModel:  v.GetString("gemini.model"),
		OpenAIAPIKey: v.GetString("openai.api_key"),
		OpenAIModel:  v.GetString("openai.model"),
		AITimeout:    aiTimeout,
		OCRImage:     v.GetString("ocr.image"),
		OCRLanguage:  v.GetString("ocr.language"),
		OCRTimeout:   ocrTimeout,
		OCRStaging:   v.GetString("ocr.staging_dir"),
		DockerHost:   v.GetString("docker.host"),
		UploadMaxMB:  v.GetInt("upload.max_mb"),
		RateLimit:    v.GetInt("evaluate.rate_limit"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	switch cfg.AIProvider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return Config{}, fmt.Errorf("gemini api key must be provided")
		}
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return Config{}, fmt.Errorf("openai api key must be provided")
		}
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 10
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
