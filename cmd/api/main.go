package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/config"
	"github.com/noah-isme/assignment-portal/internal/database"
	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/handler"
	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/observability"
	"github.com/noah-isme/assignment-portal/internal/repository"
	"github.com/noah-isme/assignment-portal/internal/router"
	"github.com/noah-isme/assignment-portal/internal/service"
	cloud "github.com/noah-isme/assignment-portal/pkg/cloudinary"
	objectstore "github.com/noah-isme/assignment-portal/pkg/minio"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.AppEnv == "development" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	storage, err := connectStorage(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.StorageProvider).Msg("failed to create file storage")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	observability.RegisterMetrics()
	bus := events.NewBus(logger)

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer conn.Drain()

		bridge := events.NewNATSBridge(conn, cfg.EventsSubject, bus, logger)
		if err := bridge.Start(rootCtx); err != nil {
			logger.Fatal().Err(err).Str("subject", cfg.EventsSubject).Msg("failed to subscribe to event subject")
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	denylist := service.NewRedisTokenDenylist(redisClient)
	authService := service.NewAuthService(userRepo, denylist, validate, cfg.JWTSecret, cfg.JWTTTL, logger)
	activityService := service.NewActivityService(activityRepo, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, validate, logger)
	statsService := service.NewStatsService(assignmentRepo, submissionRepo, redisClient, cfg.StatsCacheTTL, logger)

	collaborators := service.Collaborators{
		Storage:        storage,
		Activity:       activityService,
		Events:         bus,
		Stats:          statsService,
		Notifier:       notificationService,
		MaxUploadBytes: cfg.UploadMaxBytes(),
	}
	assignmentService := service.NewAssignmentService(assignmentRepo, validate, collaborators, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, collaborators, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes()) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authService, middleware.RateLimit("auth", 10, time.Minute), logger),
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, submissionService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, middleware.RateLimit("submissions", 5, time.Minute), logger),
		StatsHandler:        handler.NewStatsHandler(statsService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		EventsHandler:       handler.NewEventsHandler(bus, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"database": databaseProbe(db),
			"redis":    redisProbe(redisClient),
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret, denylist),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Str("env", cfg.AppEnv).Msg("assignment portal started")

	waitForShutdown(app, logger)
}

func connectDatabase(cfg config.Config) (*gorm.DB, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		return database.ConnectSQLite(cfg.DatabaseURL)
	default:
		return database.ConnectPostgres(cfg.DatabaseURL)
	}
}

func connectStorage(cfg config.Config, logger zerolog.Logger) (service.FileStorage, error) {
	switch cfg.StorageProvider {
	case "minio":
		store, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "cloudinary":
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New("unsupported storage provider")
	}
}

func databaseProbe(db *gorm.DB) handler.HealthProbe {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func redisProbe(client *redis.Client) handler.HealthProbe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
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
