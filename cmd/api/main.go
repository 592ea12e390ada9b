package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator/internal/config"
	"github.com/noah-isme/gema-evaluator/internal/database"
	"github.com/noah-isme/gema-evaluator/internal/evalclient"
	"github.com/noah-isme/gema-evaluator/internal/handler"
	"github.com/noah-isme/gema-evaluator/internal/middleware"
	"github.com/noah-isme/gema-evaluator/internal/models"
	"github.com/noah-isme/gema-evaluator/internal/observability"
	"github.com/noah-isme/gema-evaluator/internal/repository"
	"github.com/noah-isme/gema-evaluator/internal/router"
	"github.com/noah-isme/gema-evaluator/internal/service"
	"github.com/noah-isme/gema-evaluator/internal/web"
	"github.com/noah-isme/gema-evaluator/pkg/ai"
	cloud "github.com/noah-isme/gema-evaluator/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	var deps router.Dependencies

	// Console traffic to the local API presents this key and is limited per browser instead.
	var consoleKey string
	if cfg.ConsoleEnabled && cfg.ConsoleLoopback {
		consoleKey = uuid.NewString()
	}

	if cfg.APIEnabled {
		deps.EvaluationHandler = buildEvaluationHandler(cfg, logger)
		deps.EvaluateGuards = router.EvaluateGuards(cfg, consoleKey)
		deps.HistoryGuards = router.HistoryGuards(cfg)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	if cfg.ConsoleEnabled {
		deps.ConsoleHandler = buildConsoleHandler(cfg, consoleKey, redisClient, logger)
		deps.ConsoleGuards = router.ConsoleGuards(cfg, deps.ConsoleHandler.RespondLimited)
	}

	// Each file may reach the service one byte past the limit so it can answer 413 itself.
	bodyLimit := (2*cfg.UploadMaxSizeMB + 1) * 1024 * 1024

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    bodyLimit,
		ProxyHeader:  cfg.ProxyHeader,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, deps)

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Bool("api", cfg.APIEnabled).Bool("console", cfg.ConsoleEnabled).Msg("server starting")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildEvaluationHandler(cfg config.Config, logger zerolog.Logger) *handler.EvaluationHandler {
	judge, err := ai.NewJudge(context.Background(), ai.ProviderConfig{
		Provider:        cfg.AIProvider,
		Model:           cfg.AIModel,
		MaxTokens:       cfg.AIMaxTokens,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AzureEndpoint:   cfg.AzureOpenAIEndpoint,
		AzureAPIKey:     cfg.AzureOpenAIKey,
		AzureDeployment: cfg.AzureOpenAIDeployment,
		AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai judge: %v", err)
	}

	var repo repository.EvaluationRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := db.AutoMigrate(&models.EvaluationRecord{}); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		repo = repository.NewEvaluationRepository(db)
	} else {
		logger.Warn().Msg("database url not set, evaluation history disabled")
	}

	var archive service.SubmissionArchive
	if cfg.CloudinaryConfigured() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archive = uploader
	}

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		publisher = conn
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	evaluationService := service.NewEvaluationService(judge, repo, archive, publisher, validate, service.EvaluationServiceConfig{
		MaxUploadMB: cfg.UploadMaxSizeMB,
		Subject:     cfg.NATSSubject,
	}, logger)

	return handler.NewEvaluationHandler(evaluationService, logger)
}

func buildConsoleHandler(cfg config.Config, consoleKey string, redisClient *redis.Client, logger zerolog.Logger) *handler.ConsoleHandler {
	client, err := evalclient.New(evalclient.Config{
		BaseURL:     cfg.ConsoleBackendURL,
		Timeout:     cfg.ConsoleRequestTimeout,
		BearerToken: cfg.ConsoleBearerToken,
		ConsoleKey:  consoleKey,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create evaluation client: %v", err)
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("failed to parse console templates: %v", err)
	}

	consoleService := service.NewConsoleService(client, redisClient, service.ConsoleServiceConfig{
		RequestTimeout: cfg.ConsoleRequestTimeout,
		NoticeDelay:    cfg.ConsoleNoticeDelay,
	}, logger)

	logger.Info().Str("backend", client.Endpoint()).Msg("console enabled")
	return handler.NewConsoleHandler(consoleService, renderer, cfg.AppName, cfg.UploadMaxSizeMB, logger)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
