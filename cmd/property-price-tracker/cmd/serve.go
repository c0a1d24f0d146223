package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/donaldgifford/property-price-tracker/api/openapi"
	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
	"github.com/donaldgifford/property-price-tracker/internal/api/middleware"
	"github.com/donaldgifford/property-price-tracker/internal/cache"
	"github.com/donaldgifford/property-price-tracker/internal/engine"
	"github.com/donaldgifford/property-price-tracker/internal/stats"
	"github.com/donaldgifford/property-price-tracker/internal/telemetry"
	"github.com/donaldgifford/property-price-tracker/pkg/logger"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "run database migrations before serving")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Error("telemetry shutdown", "error", err)
		}
	}()

	s, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	if serveMigrate {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	var (
		statsCache  cache.Cache = cache.NewNoOp()
		cachePinger handlers.Pinger
	)
	if cfg.Cache.Enabled {
		r := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(logger.Component(log, "cache")),
		)
		defer func() { _ = r.Close() }()
		statsCache, cachePinger = r, r
	}

	notifier := newNotifier(&cfg.Notifications, log)
	orch, err := newOrchestrator(ctx, cfg, s, notifier, log)
	if err != nil {
		return err
	}
	statsSvc := stats.New(s, statsCache, stats.WithLogger(logger.Component(log, "stats")))

	src, err := newSource(ctx, &cfg.Feed)
	if err != nil {
		return err
	}

	var (
		eng       *engine.Engine
		scheduler *engine.Scheduler
	)
	if src != nil {
		eng = engine.NewEngine(s, orch, src,
			engine.WithLogger(logger.Component(log, "engine")),
			engine.WithNotifier(notifier),
			engine.WithPartitions(cfg.Ingest.PartitionList()...),
			engine.WithConcurrency(cfg.Ingest.Concurrency),
			engine.WithRateLimit(cfg.Ingest.RateLimit.PerSecond, cfg.Ingest.RateLimit.Burst),
			engine.WithReconcile(cfg.Reconcile.Enabled),
		)
		if cfg.Schedule.Enabled {
			scheduler, err = engine.NewScheduler(eng,
				cfg.Schedule.IngestionInterval,
				cfg.Schedule.MaintenanceInterval,
				logger.Component(log, "scheduler"),
			)
			if err != nil {
				return fmt.Errorf("creating scheduler: %w", err)
			}
		}
		log.Info("feed configured", "source", src.Name())
	} else {
		log.Info("no feed configured; listings arrive over HTTP only")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestLog(logger.Component(log, "http")))
	e.Use(middleware.Metrics())

	health := handlers.NewHealthHandler(s, cachePinger)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	humaCfg := huma.DefaultConfig("property-price-tracker", Version)
	api := humaecho.New(e, humaCfg)
	openapi.RegisterRoutes(e, humaCfg.OpenAPIPath+".json")
	handlers.RegisterSnapshotRoutes(api, handlers.NewSnapshotHandler(orch, cfg.Feed.Strict))
	handlers.RegisterListingRoutes(api, handlers.NewListingsHandler(s))
	handlers.RegisterStatsRoutes(api, handlers.NewStatsHandler(statsSvc))
	handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(s))

	var reconciler handlers.Reconciler
	if eng != nil {
		reconciler = eng
		handlers.RegisterTriggerRoutes(api, handlers.NewIngestHandler(eng))
	}
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(orch, orch.Sweeper(), reconciler))

	if scheduler != nil {
		scheduler.Start()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("starting server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", "error", err)
		stop()
	}

	log.Info("shutting down server")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	log.Info("server stopped")
	return nil
}

