package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/kanban-service/internal/api/http"
	"github.com/spec-kit/kanban-service/internal/api/http/handlers"
	"github.com/spec-kit/kanban-service/internal/auth"
	"github.com/spec-kit/kanban-service/internal/config"
	"github.com/spec-kit/kanban-service/internal/events"
	"github.com/spec-kit/kanban-service/internal/messaging"
	"github.com/spec-kit/kanban-service/internal/observability"
	"github.com/spec-kit/kanban-service/internal/persistence"
	"github.com/spec-kit/kanban-service/internal/realtime"
	"github.com/spec-kit/kanban-service/internal/repository"
	"github.com/spec-kit/kanban-service/internal/service"
	"github.com/spec-kit/kanban-service/internal/worker"
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
	laneRepo := repository.NewLaneRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	transitionRepo := repository.NewTransitionRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	messenger := messaging.NewWebhookDispatcher(cfg.Messaging, logger)

	realtimePublisher := realtime.NewPublisher(redis.Client, logger)
	realtimePublisher.RegisterHandlers(dispatcher)

	automationService := service.NewAutomationService(service.AutomationDependencies{
		LaneRepo:        laneRepo,
		TicketRepo:      ticketRepo,
		TransitionRepo:  transitionRepo,
		SettingsRepo:    settingsRepo,
		Dispatcher:      dispatcher,
		Messenger:       messenger,
		Metrics:         metrics,
		Logger:          logger,
		GreetingTimeout: cfg.Automation.GreetingTimeout(),
	})
	sweepService := service.NewSweepService(service.SweepDependencies{
		TicketRepo:    ticketRepo,
		Automation:    automationService,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger,
		BatchLimit:    cfg.Automation.SweepBatchLimit,
		TicketTimeout: cfg.Automation.TicketTimeout(),
	})
	laneService := service.NewLaneService(laneRepo, ticketRepo)
	ticketService := service.NewTicketService(ticketRepo, transitionRepo, automationService, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	tenantMiddleware := auth.NewTenantMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:           handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Lanes:            handlers.NewLanesHandler(laneService),
		Tickets:          handlers.NewTicketsHandler(ticketService),
		Settings:         handlers.NewSettingsHandler(settingsRepo),
		TenantMiddleware: tenantMiddleware,
	})

	sweepWorker := worker.NewSweepWorker(cfg.Automation.SweepInterval(), logger, func(ctx context.Context) {
		sweepService.SweepExpiredTimers(ctx)
	})
	sweepWorker.Start(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	sweepWorker.Wait()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
