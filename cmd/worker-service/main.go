package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/config"
	"github.com/cuongbtq/agent-core/internal/events"
	"github.com/cuongbtq/agent-core/internal/handlers"
	"github.com/cuongbtq/agent-core/internal/llm"
	"github.com/cuongbtq/agent-core/internal/report"
	"github.com/cuongbtq/agent-core/internal/store"
	"github.com/cuongbtq/agent-core/internal/worker"
	"github.com/cuongbtq/agent-core/shared/logger"
	"github.com/cuongbtq/agent-core/shared/postgresql"
	"github.com/cuongbtq/agent-core/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize error reporting
	reporter, err := report.New(&report.Config{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.App.Version,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize error reporting: %w", err)
	}
	defer reporter.Flush(2 * time.Second)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	st := store.NewPostgres(dbClient, appLogger.Logger)

	// Initialize the lifecycle event stream when enabled
	publisher, rabbitClient, err := initEvents(&cfg.Events, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event stream: %w", err)
	}

	// Register job handlers
	llmClient := llm.NewClient(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey(),
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.RequestTimeout,
	})

	registry := worker.NewRegistry()
	if err := handlers.RegisterAll(registry, llmClient); err != nil {
		return fmt.Errorf("failed to register job handlers: %w", err)
	}

	appLogger.Info("Job handlers registered",
		slog.Any("job_types", registry.Types()),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Checkpoint manager with the background expiry sweeper
	checkpoints := checkpoint.NewManager(st, appLogger.Logger, reporter, publisher, &checkpoint.Config{
		DefaultTTL:    cfg.Worker.Checkpoint.DefaultTTL,
		SweepInterval: cfg.Worker.Checkpoint.SweepInterval,
	})
	if err := checkpoints.StartSweeper(ctx); err != nil {
		return fmt.Errorf("failed to start checkpoint sweeper: %w", err)
	}

	// Create worker instance
	workerInstance := worker.New(st, registry, checkpoints, appLogger.Logger, reporter, publisher, &worker.Config{
		PollInterval:      cfg.Worker.PollInterval,
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
		WaitPollInterval:  cfg.Worker.Checkpoint.WaitPollInterval,
		WaitTimeout:       cfg.Worker.Checkpoint.WaitTimeout,
		ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
	})

	// Expose Prometheus metrics and a health endpoint
	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, appLogger.Logger)

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	appLogger.Info("Worker service started successfully",
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
		slog.Int("max_concurrent_jobs", cfg.Worker.MaxConcurrentJobs),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			return err
		}
	}

	// Cancel context to stop the worker; Start drains in-flight jobs
	cancel()
	if err := <-errChan; err != nil {
		appLogger.Warn("Worker shutdown incomplete",
			slog.Any("error", err),
		)
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initEvents initializes the optional RabbitMQ lifecycle event stream. When
// disabled, a noop publisher is returned and no connection is made.
func initEvents(cfg *config.EventsConfig, logger *slog.Logger) (events.Publisher, *rabbitmq.Client, error) {
	if !cfg.Enabled {
		logger.Info("Lifecycle event stream disabled")
		return events.Noop{}, nil, nil
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	client, err := rabbitmq.NewClient(rabbitConfig, logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("RabbitMQ connection established")
	return events.NewRabbit(client, logger), client, nil
}

// startMetricsServer exposes /metrics and /health on the metrics port.
// A port of 0 disables the server.
func startMetricsServer(port int, logger *slog.Logger) *http.Server {
	if port <= 0 {
		logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"agent-core-worker"}`))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	return srv
}
