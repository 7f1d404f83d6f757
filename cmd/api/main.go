package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
	"github.com/spec-kit/helpdesk-service/pkg/util/validation"
)

const shutdownTimeout = 15 * time.Second

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

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authenticator := auth.NewAuthenticator(tokens, userRepo)
	hub := realtime.NewHub(logger, metrics)

	outbox := events.NewOutbox(cfg.Outbox.Workers, cfg.Outbox.QueueSize, logger, metrics)
	audit := service.NewActivityAuditLog(service.ActivityLogDependencies{
		ActivityRepo: activityRepo,
		TicketRepo:   ticketRepo,
		Logger:       logger,
		Metrics:      metrics,
	})
	router := service.NewNotificationRouter(service.NotificationRouterDependencies{
		NotificationRepo: notificationRepo,
		UserRepo:         userRepo,
		Transport:        hub,
		Logger:           logger,
		Metrics:          metrics,
	})
	worker.SubscribeSideEffects(outbox, router, audit)

	machine := service.NewStateMachine(service.StateMachineDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		UserRepo:    userRepo,
		Dispatcher:  outbox,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		CommentRepo:    commentRepo,
		FeedbackRepo:   feedbackRepo,
		DepartmentRepo: departmentRepo,
		UserRepo:       userRepo,
		Dispatcher:     outbox,
		Validator:      validation.New(),
		Logger:         logger,
	})
	inbox := service.NewNotificationService(notificationRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Lifecycle:      handlers.NewLifecycleHandler(machine),
		Inbox:          handlers.NewInboxHandler(inbox),
		Activity:       handlers.NewActivityHandler(audit),
		AuthMiddleware: auth.NewAuthMiddleware(authenticator),
		Metrics:        metrics.Handler(),
	})

	wsServer := &http.Server{
		Addr:              cfg.Realtime.Addr(),
		Handler:           realtime.NewHandler(hub, authenticator, cfg.Realtime.AllowedOrigins, cfg.Realtime.SendBuffer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Reaper.Enabled {
		reaper := worker.NewIdleTicketReaper(ticketRepo, machine, worker.ReaperConfig{
			Interval:    cfg.Reaper.Interval,
			GraceWindow: cfg.Reaper.GraceWindow,
			BatchSize:   cfg.Reaper.BatchSize,
			LockTTL:     cfg.Reaper.LockTTL,
		})
		reaper.Locker = persistence.NewRedisLocker(redis, cfg.App.Name+":lock:")
		reaper.Logger = logger
		reaper.Metrics = metrics
		go reaper.Start(ctx)
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime listening", zap.String("addr", wsServer.Addr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime shutdown", zap.Error(err))
	}
	if err := outbox.Close(shutdownCtx); err != nil {
		logger.Warn("outbox drain", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
