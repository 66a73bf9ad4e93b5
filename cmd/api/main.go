package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evaluator-api/internal/config"
	"github.com/noah-isme/gema-evaluator-api/internal/database"
	"github.com/noah-isme/gema-evaluator-api/internal/handler"
	"github.com/noah-isme/gema-evaluator-api/internal/middleware"
	"github.com/noah-isme/gema-evaluator-api/internal/models"
	"github.com/noah-isme/gema-evaluator-api/internal/observability"
	"github.com/noah-isme/gema-evaluator-api/internal/ocr"
	"github.com/noah-isme/gema-evaluator-api/internal/repository"
	"github.com/noah-isme/gema-evaluator-api/internal/router"
	"github.com/noah-isme/gema-evaluator-api/internal/service"
	"github.com/noah-isme/gema-evaluator-api/pkg/ai"
	dockerexec "github.com/noah-isme/gema-evaluator-api/pkg/docker"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if !cfg.IsDevelopment() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := db.AutoMigrate(&models.Evaluation{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, evaluation cache disabled")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, evaluation events disabled")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	evaluator, closeEvaluator, err := newEvaluator(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AIProvider).Msg("failed to create ai evaluator")
	}
	defer closeEvaluator()

	var extractor service.TextExtractor
	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:    cfg.DockerHost,
		Timeout: cfg.OCRTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("docker unavailable, image submissions will fail")
	} else {
		defer executor.Close()
		engine := ocr.NewTesseractEngine(executor, ocr.TesseractConfig{Image: cfg.OCRImage, Timeout: cfg.OCRTimeout})
		extractor = ocr.NewExtractor(engine, ocr.Config{Language: cfg.OCRLanguage, StagingRoot: cfg.OCRStaging}, logger)
	}

	var events service.EventPublisher
	if publisher := service.NewNATSEventPublisher(natsConn, cfg.NATSSubject); publisher != nil {
		events = publisher
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluationRepo := repository.NewCachedEvaluationRepository(repository.NewEvaluationRepository(db), redisClient, cfg.CacheTTL, logger)
	evaluationService := service.NewEvaluationService(service.NewRequestBuilder(extractor), evaluator, evaluationRepo, events, logger)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, validate, handler.EvaluationHandlerConfig{
		MaxUploadBytes: int64(cfg.UploadLimitBytes()),
		ExposeErrors:   cfg.IsDevelopment(),
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.UploadLimitBytes() + 1024*1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AITimeout + cfg.OCRTimeout + 10*time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, FrontendURL: cfg.FrontendURL})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		HealthHandler:     handler.HealthCheck(pingFunc(db), cfg.AppEnv, logger),
		MetricsHandler:    observability.MetricsHandler(),
		EvaluateLimiter:   middleware.RateLimit("evaluate", cfg.RateLimit, time.Minute),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("provider", cfg.AIProvider).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

// newEvaluator builds the provider selected at startup.
func newEvaluator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Evaluator, func(), error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		evaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return evaluator, func() {}, nil
	default:
		evaluator, err := ai.NewGeminiEvaluator(ctx, ai.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return evaluator, func() { _ = evaluator.Close() }, nil
	}
}

func pingFunc(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
