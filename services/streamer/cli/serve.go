package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/quote-stream/internal/kafka"
	"github.com/ramiqadoumi/quote-stream/internal/postgres"
	"github.com/ramiqadoumi/quote-stream/internal/quotes"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
	"github.com/ramiqadoumi/quote-stream/internal/workflow"
	"github.com/ramiqadoumi/quote-stream/pkg/telemetry"
	"github.com/ramiqadoumi/quote-stream/services/streamer"
	"github.com/ramiqadoumi/quote-stream/services/streamer/config"
	"github.com/ramiqadoumi/quote-stream/services/streamer/handler"
	"github.com/ramiqadoumi/quote-stream/services/streamer/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streamer HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("redis-addr", "", "Redis address (host:port); empty disables checkpoints and rate limiting")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN; empty disables the audit trail")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables lifecycle events")
	serveCmd.Flags().String("quote-url", "", "remote quote API endpoint; empty uses the built-in quote pool")
	serveCmd.Flags().Duration("poll-interval", 500*time.Millisecond, "stream poll cadence")
	serveCmd.Flags().Duration("tick-interval", 500*time.Millisecond, "workflow progress tick interval")
	serveCmd.Flags().Duration("sleep-min", 2*time.Second, "minimum randomized wait per iteration")
	serveCmd.Flags().Duration("sleep-max", 5*time.Second, "maximum randomized wait per iteration")
	serveCmd.Flags().Duration("fetch-timeout", 10*time.Second, "per-attempt quote fetch timeout")
	serveCmd.Flags().Int("max-attempts", 3, "quote fetch attempts before the workflow fails")
	serveCmd.Flags().Duration("retry-base-delay", time.Second, "initial quote fetch retry backoff (doubles per attempt)")
	serveCmd.Flags().String("janitor-schedule", "@every 5m", "cron schedule for pruning terminated workflows")
	serveCmd.Flags().Duration("retention", 15*time.Minute, "how long terminated workflows stay queryable in memory")
	serveCmd.Flags().Int("stream-rate-limit", 0, "max streams per client per window (0 disables; requires Redis)")
	serveCmd.Flags().Duration("stream-rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("quote_url", serveCmd.Flags(), "quote-url")
	bindFlag("poll_interval", serveCmd.Flags(), "poll-interval")
	bindFlag("tick_interval", serveCmd.Flags(), "tick-interval")
	bindFlag("sleep_min", serveCmd.Flags(), "sleep-min")
	bindFlag("sleep_max", serveCmd.Flags(), "sleep-max")
	bindFlag("fetch_timeout", serveCmd.Flags(), "fetch-timeout")
	bindFlag("max_attempts", serveCmd.Flags(), "max-attempts")
	bindFlag("retry_base_delay", serveCmd.Flags(), "retry-base-delay")
	bindFlag("janitor_schedule", serveCmd.Flags(), "janitor-schedule")
	bindFlag("retention", serveCmd.Flags(), "retention")
	bindFlag("stream_rate_limit", serveCmd.Flags(), "stream-rate-limit")
	bindFlag("stream_rate_window", serveCmd.Flags(), "stream-rate-window")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "streamer")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "streamer", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// runCtx is the lifetime of every workflow this process starts;
	// cancelling it (on shutdown) cancels them all.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── quote provider ────────────────────────────────────────────────────────
	var provider quotes.Provider
	if cfg.QuoteURL != "" {
		provider = quotes.NewHTTPProvider(cfg.QuoteURL)
		logger.Info("using remote quote provider", slog.String("url", cfg.QuoteURL))
	} else {
		provider = quotes.NewPool(rand.New(rand.NewSource(time.Now().UnixNano())))
		logger.Info("using built-in quote pool")
	}

	// ── optional backends ─────────────────────────────────────────────────────
	svcOpts := []streamer.Option{}
	var limiter redisstore.RateLimiter

	if cfg.RedisAddr != "" {
		redisClient := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		svcOpts = append(svcOpts, streamer.WithSnapshotStore(redisstore.NewSnapshotStore(redisClient)))
		if cfg.StreamRateLimit > 0 {
			limiter = redisstore.NewRateLimiter(redisClient, cfg.StreamRateLimit, cfg.StreamRateWindow)
		}
	}

	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		svcOpts = append(svcOpts, streamer.WithRepository(postgres.NewRepository(pool)))
	}

	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
		svcOpts = append(svcOpts, streamer.WithProducer(producer))
	}

	// ── service ───────────────────────────────────────────────────────────────
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	svcOpts = append(svcOpts, streamer.WithRunnerOptions(
		workflow.WithFetchTimeout(cfg.FetchTimeout),
		workflow.WithMaxAttempts(cfg.MaxAttempts),
		workflow.WithRetryBaseDelay(cfg.RetryBaseDelay),
		workflow.WithTickInterval(cfg.TickInterval),
		workflow.WithSleepRange(cfg.SleepMin, cfg.SleepMax, rng),
	))

	svc := streamer.NewService(provider, logger, svcOpts...)
	bridge := streamer.NewBridge(cfg.PollInterval, logger)

	janitor, err := streamer.NewJanitor(svc.Registry(), cfg.JanitorSchedule, cfg.Retention, logger)
	if err != nil {
		return fmt.Errorf("janitor schedule %q: %w", cfg.JanitorSchedule, err)
	}
	janitor.Start()
	defer janitor.Stop()

	restHandler := handler.NewREST(runCtx, svc, bridge, limiter, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/workflows/stream", restHandler.OpenStream)
		r.Get("/workflows/{id}", restHandler.GetWorkflow)
		r.Post("/workflows/{id}/stop", restHandler.StopWorkflow)
	})

	httpSrv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE responses stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	go func() {
		logger.Info("streamer HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
