package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/config"
	"github.com/noah-isme/campus-guidance-api/internal/database"
	"github.com/noah-isme/campus-guidance-api/internal/handler"
	"github.com/noah-isme/campus-guidance-api/internal/middleware"
	"github.com/noah-isme/campus-guidance-api/internal/realtime"
	"github.com/noah-isme/campus-guidance-api/internal/repository"
	"github.com/noah-isme/campus-guidance-api/internal/router"
	"github.com/noah-isme/campus-guidance-api/internal/service"
	"github.com/noah-isme/campus-guidance-api/pkg/ai"
	cloud "github.com/noah-isme/campus-guidance-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, moderation cache disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, domain events disabled")
		natsConn = nil
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var resumes service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		store, err := cloud.New(cloudCfg, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		resumes = store
	} else {
		logger.Warn().Msg("cloudinary not configured, senior applications will be refused")
	}

	classifier, err := ai.NewOpenAIClassifier(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ModerationModel,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create moderation classifier: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	guidanceRepo := repository.NewGuidanceRepository(db)
	userRepo := repository.NewUserRepository(db)
	seniorRepo := repository.NewSeniorRequestRepository(db)

	users := service.NewUserResolver(userRepo)
	hub := realtime.NewHub(logger)
	gate := service.NewModerationGate(classifier, redisClient, service.ModerationGateConfig{
		Timeout:  cfg.ModerationTimeout,
		CacheTTL: cfg.ModerationCacheTTL,
	}, logger)

	guidanceService := service.NewGuidanceService(
		guidanceRepo,
		service.NewGuidanceAuthorizer(users, guidanceRepo),
		gate,
		hub,
		service.NewNATSGuidancePublisher(natsConn, cfg.EventSubject, logger),
		validate,
		logger,
	)
	seniorService := service.NewSeniorRequestService(seniorRepo, users, resumes, validate, cfg.UploadMaxSizeMB, logger)

	guidanceHandler := handler.NewGuidanceHandler(guidanceService, hub, realtime.ViewerOptions{
		SendBuffer:   cfg.WebsocketSendBuffer,
		WriteTimeout: cfg.WebsocketWriteTimeout,
	}, validate, logger)
	seniorHandler := handler.NewSeniorRequestHandler(seniorService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		GuidanceHandler:      guidanceHandler,
		SeniorRequestHandler: seniorHandler,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		OptionalJWT:          middleware.OptionalJWT(cfg.JWTSecret),
		HealthProbes:         healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("campus guidance api started")
	waitForShutdown(app)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return errors.New("nats disconnected")
				}
				return nil
			},
		})
	}

	return probes
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
