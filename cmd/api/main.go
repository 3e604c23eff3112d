package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-service/internal/api/http"
	"github.com/spec-kit/civic-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-service/internal/auth"
	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/observability"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/service"
	"github.com/spec-kit/civic-service/internal/worker"
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

	infra, err := persistence.Open(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer infra.Close()

	var locker service.Locker
	if infra.Locker != nil {
		locker = infra.Locker
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	evidenceStore := persistence.NewLocalEvidenceStore(cfg.Evidence)
	authService := service.NewAuthService(*cfg, infra.Store.Repos().Users)
	requestService := service.NewRequestService(*cfg, service.RequestDependencies{
		Store:      infra.Store,
		Locker:     locker,
		Evidence:   evidenceStore,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	slaService := service.NewSLAService(*cfg, service.SLADependencies{
		Store:      infra.Store,
		Locker:     locker,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	directoryService := service.NewDirectoryService(*cfg, service.DirectoryDependencies{
		Store:      infra.Store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	if cfg.SLA.SweepEnabled {
		worker.StartSLAWorker(ctx, worker.NewSLAWorker(slaService, cfg.SLA.SweepInterval(), cfg.SLA.SweepTimeout(), logger))
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: bodyLimit(cfg.Evidence),
	})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		ServiceName:     cfg.App.Name,
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, infra.Postgres, infra.Redis),
		Auth:            handlers.NewAuthHandler(authService),
		Requests:        handlers.NewRequestsHandler(requestService),
		Tasks:           handlers.NewTasksHandler(requestService),
		SLA:             handlers.NewSLAHandler(slaService),
		Directory:       handlers.NewDirectoryHandler(directoryService),
		AuthMiddleware:  auth.NewAuthMiddleware(authService.TokenManager(), infra.Store.Repos().Users),
		MetricsRegistry: prometheus.DefaultRegisterer,
		EvidenceDir:     evidenceStore.Dir(),
		EvidencePath:    cfg.Evidence.PublicBaseURL,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// bodyLimit leaves room for a full set of evidence files plus form fields.
func bodyLimit(cfg config.EvidenceConfig) int {
	limit := int(cfg.MaxFileBytes)*max(cfg.MaxFiles, 1) + 1<<20
	if limit < fiber.DefaultBodyLimit {
		return fiber.DefaultBodyLimit
	}
	return limit
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
