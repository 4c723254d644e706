package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rdvmed/clinicsched/libs/config"
	"github.com/rdvmed/clinicsched/libs/httpx"
	otelx "github.com/rdvmed/clinicsched/libs/otel"
	"github.com/rdvmed/clinicsched/libs/runtime"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/availability"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/booking"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/handlers"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/lifecycle"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/sweeper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := config.Location("SCHEDULE_TIMEZONE", "Local")
	if err != nil {
		panic(err)
	}
	slotMinutes, err := config.Int("DEFAULT_SLOT_MINUTES", 30)
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps, err := wire(ctx, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		panic(err)
	}
	defer deps.close()

	lc := lifecycle.NewService(deps.store, lifecycle.Options{Logger: logger, Metrics: m})
	coordinator := booking.NewCoordinator(deps.store, deps.directory, lc, booking.Options{
		Location: loc,
		Logger:   logger,
		Metrics:  m,
	})
	api := handlers.NewRouter(handlers.Config{
		Slots: availability.NewSlotGenerator(deps.store, availability.SlotOptions{
			DefaultSlot: time.Duration(slotMinutes) * time.Minute,
			Logger:      logger,
			Metrics:     m,
		}),
		Windows:   availability.NewWindowService(deps.store, availability.WindowOptions{Logger: logger}),
		Booking:   coordinator,
		Lifecycle: lc,
		Logger:    logger,
	})

	if deps.publisher != nil {
		go deps.publisher.Run(ctx)
	}

	if config.Bool("SWEEP_ENABLED", true) {
		interval, err := config.Duration("SWEEP_INTERVAL", sweeper.DefaultInterval)
		if err != nil {
			panic(err)
		}
		sw := sweeper.New(deps.store, sweeper.Options{
			Interval: interval,
			Location: loc,
			Logger:   logger,
			Metrics:  m,
		})
		sw.Start(ctx)
		defer sw.Stop()
	}

	limiter, err := deps.rateLimiter(ctx, logger)
	if err != nil {
		panic(err)
	}
	if limiter != nil {
		api = httpx.RateLimit(limiter, logger, true)(api)
	}

	requestTimeout, err := config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(deps.readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/api/", api)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("scheduling service configured",
		"store", deps.driver, "timezone", loc.String(), "default_slot_minutes", slotMinutes)
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
