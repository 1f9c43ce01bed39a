package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-portal/internal/api/http"
	"github.com/spec-kit/civic-portal/internal/api/http/handlers"
	"github.com/spec-kit/civic-portal/internal/auth"
	"github.com/spec-kit/civic-portal/internal/config"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/observability"
	"github.com/spec-kit/civic-portal/internal/persistence"
	"github.com/spec-kit/civic-portal/internal/realtime"
	"github.com/spec-kit/civic-portal/internal/repository"
	"github.com/spec-kit/civic-portal/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	issueRepo := repository.NewIssueRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	statusEventRepo := repository.NewStatusEventRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	registry := realtime.NewRegistry(logger, metrics, cfg.Realtime.SendBufferSize)

	var broadcaster realtime.Broadcaster = registry
	if cfg.Realtime.BridgeChannel && redis.Client != nil {
		bridge := realtime.NewRedisBridge(registry, redis.Client, cfg.Realtime.BridgeChannelName, cfg.Realtime.PushTimeout(), logger)
		go bridge.Run(ctx)
		broadcaster = bridge
	}

	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:   issueRepo,
		CommentRepo: commentRepo,
		UserRepo:    userRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})
	timelineService := service.NewTimelineService(issueRepo, statusEventRepo, commentRepo)
	bulkService := service.NewBulkService(issueService, dispatcher, metrics)
	userService := service.NewUserService(userRepo, cfg.Auth)
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		IssueRepo:        issueRepo,
		Dispatcher:       dispatcher,
		Broadcaster:      broadcaster,
		Subscribers:      registry,
		Logger:           logger,
	})
	notificationService.RegisterHandlers()

	authMiddleware := auth.NewAuthMiddleware(userService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Users:          handlers.NewUsersHandler(userService),
		Issues:         handlers.NewIssuesHandler(issueService, timelineService),
		Admin:          handlers.NewAdminHandler(issueService, bulkService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		WS:             handlers.NewWSHandler(registry, issueService, authMiddleware, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
