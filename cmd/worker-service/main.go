package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/health"
	"github.com/scholaris/paper-analysis-be/internal/monitor"
	"github.com/scholaris/paper-analysis-be/internal/provider"
	"github.com/scholaris/paper-analysis-be/internal/recovery"
	"github.com/scholaris/paper-analysis-be/internal/storage"
	"github.com/scholaris/paper-analysis-be/internal/worker"
	"github.com/scholaris/paper-analysis-be/shared/logger"
	"github.com/scholaris/paper-analysis-be/shared/postgresql"
	"github.com/scholaris/paper-analysis-be/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := provider.NewRegistry(ctx, &cfg.Providers, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	var available []string
	for _, p := range registry.Available() {
		available = append(available, p.Name())
	}
	appLogger.Info("Provider registry initialized",
		slog.Any("available", available),
	)

	jobStore := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	resourceMonitor := monitor.NewResourceMonitor(appLogger.Logger, cfg.Monitor)

	healthService := health.NewService(appLogger.Logger, cfg.Health.Interval,
		workerProbes(cfg, dbClient, rabbitClient, registry, resourceMonitor))

	// Startup gate: the worker refuses to start against unhealthy critical
	// dependencies. A worker that cannot reach the store or broker would
	// only churn deliveries.
	startupResult := healthService.PerformHealthCheck(ctx)
	if startupResult.Overall == health.StatusUnhealthy {
		for _, svc := range startupResult.Services {
			if svc.Status != health.StatusHealthy {
				appLogger.Error("Startup health check failed",
					slog.String("service", svc.Name),
					slog.Bool("critical", svc.Critical),
					slog.String("error", svc.Error),
				)
			}
		}
		return fmt.Errorf("startup health check failed, refusing to start")
	}

	appLogger.Info("Startup health check passed",
		slog.String("overall", string(startupResult.Overall)),
	)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:           appLogger.Logger,
		Storage:          jobStore,
		RabbitClient:     rabbitClient,
		Registry:         registry,
		Concurrency:      cfg.Worker.Concurrency,
		PrefetchCount:    cfg.Worker.PrefetchCount,
		ProviderTimeout:  cfg.Worker.ProviderTimeout,
		BackoffBaseDelay: cfg.Worker.BackoffBaseDelay,
		BackoffMaxDelay:  cfg.Worker.BackoffMaxDelay,
		CompletionPolicy: cfg.Worker.CompletionPolicy,
		StatsInterval:    cfg.Worker.StatsInterval,
	})

	autoRecovery := recovery.NewAutoRecovery(appLogger.Logger, cfg.Recovery, healthService)
	autoRecovery.RegisterRemediation("broker", func(ctx context.Context) error {
		return rabbitClient.Reconnect()
	})

	go healthService.Start(ctx)
	go resourceMonitor.Start(ctx)
	go autoRecovery.Start(ctx)
	go logWorkerEvents(appLogger.Logger, workerInstance)

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	appLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, draining in-flight jobs",
		slog.String("signal", sig.String()),
		slog.Duration("drain_timeout", cfg.Worker.DrainTimeout),
	)

	// Keep ctx alive through the drain window: in-flight provider calls are
	// children of ctx and canceling now would fail jobs that were about to
	// complete. Stop() alone halts leasing and waits for the pool.
	drained := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		appLogger.Info("Worker drained cleanly")
		cancel()
	case <-time.After(cfg.Worker.DrainTimeout):
		appLogger.Error("Drain timeout exceeded, forcing shutdown")
		closeClients(dbClient, rabbitClient)
		return fmt.Errorf("drain timeout exceeded")
	case sig := <-quit:
		appLogger.Warn("Second signal received, forcing immediate shutdown",
			slog.String("signal", sig.String()),
		)
		os.Exit(1)
	}

	closeClients(dbClient, rabbitClient)

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// workerProbes builds the worker's full probe set
func workerProbes(cfg *config.Config, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, registry *provider.Registry, mon *monitor.ResourceMonitor) []health.Probe {
	var probes []health.Probe

	if cfg.Health.Probes.Store.Enabled {
		health.NormalizeProbeTimeout(&cfg.Health.Probes.Store)
		probes = append(probes, health.StoreProbe(cfg.Health.Probes.Store, dbClient))
	}
	if cfg.Health.Probes.Broker.Enabled {
		health.NormalizeProbeTimeout(&cfg.Health.Probes.Broker)
		probes = append(probes, health.BrokerProbe(cfg.Health.Probes.Broker, rabbitClient))
	}
	if cfg.Health.Probes.Providers.Enabled {
		health.NormalizeProbeTimeout(&cfg.Health.Probes.Providers)
		probes = append(probes, health.ProviderProbes(cfg.Health.Probes.Providers, registry)...)
	}
	if cfg.Health.Probes.System.Enabled {
		health.NormalizeProbeTimeout(&cfg.Health.Probes.System)
		probes = append(probes, health.SystemProbe(cfg.Health.Probes.System, mon))
	}

	return probes
}

// logWorkerEvents drains the worker's event stream into the log
func logWorkerEvents(logger *slog.Logger, w *worker.Worker) {
	for event := range w.Events() {
		switch event.Type {
		case worker.EventJobCompleted:
			logger.Info("Job completed",
				slog.String("job_id", event.JobID),
				slog.String("paper_id", event.PaperID),
			)
		case worker.EventJobFailed:
			logger.Warn("Job attempt failed",
				slog.String("job_id", event.JobID),
				slog.String("paper_id", event.PaperID),
				slog.String("error", event.Error),
				slog.Bool("terminal", event.Terminal),
			)
		case worker.EventStatsTick:
			logger.Info("Worker stats",
				slog.Int64("processed", event.Stats.Processed),
				slog.Int64("failed", event.Stats.Failed),
				slog.Int64("active", event.Stats.Active),
			)
		}
	}
}

func closeClients(dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) {
	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}
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
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.WorkQueue,
		QueueDurable:       cfg.Durable,
		RetryQueueName:     cfg.RetryQueue,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
