package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftmarket/hookline/internal/admin"
	"github.com/driftmarket/hookline/internal/api"
	"github.com/driftmarket/hookline/internal/auth"
	"github.com/driftmarket/hookline/internal/config"
	"github.com/driftmarket/hookline/internal/db"
	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/health"
	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/intake"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/metrics"
	"github.com/driftmarket/hookline/internal/store"
	"github.com/driftmarket/hookline/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New(cfg.AppName)

	shutdownTracing, err := tracing.Init(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdownTracing()

	// Store selection. Memory is for local development and tests only; it
	// forgets everything on restart.
	var (
		pool       *pgxpool.Pool
		endpoints  hook.EndpointStore
		deliveries hook.DeliveryStore
	)
	switch cfg.StoreKind {
	case "memory":
		logger.Plain().Warn("using in-memory store, state will not survive restarts")
		mem := store.NewMemory()
		endpoints, deliveries = mem, mem
	default:
		pool, err = db.Connect(ctx, cfg.DSN())
		if err != nil {
			logger.Plain().WithError(err).Fatal("db connect failed")
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		endpoints, deliveries = pg, pg
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	dispatcher := delivery.NewDispatcher(endpoints, deliveries, delivery.Config{
		Timeout:          cfg.Delivery.Timeout,
		UserAgent:        cfg.Delivery.UserAgent,
		MaxAttempts:      cfg.Delivery.MaxAttempts,
		Backoff:          cfg.Delivery.BackoffSchedule,
		MaxResponseBytes: cfg.Delivery.MaxResponseBytes,
	}, logger)
	router := delivery.NewRouter(endpoints, dispatcher, logger)
	svc := admin.NewService(endpoints, deliveries, dispatcher, logger)

	validator, err := auth.NewValidator(cfg.Server.JWTSecret, cfg.Server.JWTIssuer)
	if err != nil {
		logger.Plain().WithError(err).Fatal("auth setup failed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/v1/", validator.Middleware(api.Routes(api.NewHandler(svc, router, logger))))

	httpSrv := &http.Server{Addr: cfg.Server.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("http server failed")
		}
	}()

	// Background loops: due-retry sweep and endpoint health sweep.
	scheduler := delivery.NewRetryScheduler(endpoints, deliveries, dispatcher,
		cfg.Retry.SweepInterval, cfg.Retry.BatchSize, cfg.Retry.MaxInFlight, logger)
	go scheduler.Run(ctx)

	monitor := delivery.NewHealthMonitor(endpoints,
		cfg.Health.SweepInterval, cfg.Health.FailureThreshold, logger)
	go monitor.Run(ctx)

	var consumer *intake.Consumer
	if cfg.Intake.Enabled {
		consumer, err = intake.NewConsumer(intake.Config{
			NsqdTCPAddr:    cfg.Intake.NsqdTCPAddr,
			LookupHTTPAddr: cfg.Intake.LookupHTTPAddr,
			Topic:          cfg.Intake.Topic,
			Channel:        cfg.Intake.Channel,
		}, router, logger)
		if err != nil {
			logger.Plain().WithError(err).Fatal("intake consumer start failed")
		}
		logger.Plain().WithField("topic", cfg.Intake.Topic).Info("event intake started")
	}

	logger.Plain().Info("hookline started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down")
	if consumer != nil {
		consumer.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("stopped")
}
