package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wapool/internal/config"
	"wapool/internal/constants"
	"wapool/internal/database"
	"wapool/internal/models"
	"wapool/internal/service"
	"wapool/internal/tracing"
	"wapool/pkg/whatsapp"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes unmasked phone numbers)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envPath    = flag.String("env", ".env", "Path to an optional .env file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wapool %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadDotEnv(*envPath); err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogger(logger, cfg)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wapool")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, tracing.ServiceInfo{
		Version:     Version,
		Environment: os.Getenv("WAPOOL_ENV"),
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	dispatcher, err := service.NewDispatcher(cfg.Notifications.Workers, logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	// Drain pending audit writes and notifications before the database closes.
	defer dispatcher.Close()

	graphClient := whatsapp.NewClient(
		cfg.WhatsApp.APIBaseURL,
		cfg.WhatsApp.APIVersion,
		time.Duration(cfg.WhatsApp.TimeoutSec)*time.Second,
	)
	verifier, err := service.NewAccountVerifier(*cfg, graphClient, logger)
	if err != nil {
		return err
	}

	var notifier service.Notifier = service.NewNoOpNotifier()
	if cfg.Notifications.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Notifications, logger)
	} else {
		logger.Info("Notification webhook not configured, transitions are only logged")
	}

	hub := service.NewLogHub()
	audit := service.NewAuditLog(db, hub, dispatcher, logger, *verbose)
	events := service.NewEventPublisher(audit, notifier, dispatcher,
		time.Duration(cfg.Notifications.TimeoutSec)*time.Second, logger)

	guard, closeGuard, err := newRunGuard(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeGuard()

	checker := service.NewHealthChecker(cfg.HealthCheck, service.HealthCheckerDeps{
		Repo:     db,
		Verifier: verifier,
		Guard:    guard,
		Events:   events,
		Audit:    audit,
		Logger:   logger,

		AppTimeout: service.AppTimeout(cfg.WhatsApp.TimeoutSec),
	})

	scheduler, err := service.NewScheduler(cfg.HealthCheck, checker, db, logger)
	if err != nil {
		return err
	}

	appService := service.NewAppService(db, audit, *cfg, logger)
	server := NewServer(cfg.Server, ServerDeps{
		Apps:        appService,
		Checker:     checker,
		Selector:    service.NewSelector(db, audit, logger),
		Diagnostics: service.NewDiagnostics(graphClient, logger),
		Hub:         hub,
		DB:          db,
	}, logger)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	logger.WithFields(logrus.Fields{
		"schedule":            cfg.HealthCheck.Schedule,
		"next_run":            scheduler.Next(),
		"verification_method": verifier.Method(),
		"terminal_action":     cfg.HealthCheck.TerminalAction,
	}).Info("Health check scheduler started")

	audit.Record(ctx, models.LogTypeSystem, "Service started", map[string]interface{}{
		"version":            Version,
		"verificationMethod": string(verifier.Method()),
		"schedule":           cfg.HealthCheck.Schedule,
	})

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogger(logger *logrus.Logger, cfg *models.Config) {
	if cfg.LogFile.Path != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}))
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - phone numbers will be logged unmasked")
		return
	}
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// openDatabase retries the open with exponential backoff; a locked or
// still-mounting volume usually clears within seconds.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond
	policy.MaxInterval = time.Duration(constants.DefaultBackoffMaxSec) * time.Second

	db, err := backoff.Retry(ctx, func() (*database.Database, error) {
		db, err := database.New(ctx, cfg.Database.Path, cfg.Audit.Retention, logger)
		if err != nil {
			logger.Warnf("Failed to initialize database: %v", err)
		}
		return db, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(constants.DefaultDatabaseRetryAttempts)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// newRunGuard returns a Redis-backed guard when redis.url is set so that
// replicas sharing a database never run concurrently.
func newRunGuard(ctx context.Context, cfg models.RedisConfig, logger *logrus.Logger) (service.RunGuard, func(), error) {
	if cfg.URL == "" {
		return service.NewLocalRunGuard(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithField("lock_key", cfg.LockKey).Info("Using Redis run lock")
	guard := service.NewRedisRunGuard(client, cfg.LockKey, time.Duration(cfg.LockTTLSec)*time.Second, logger)
	return guard, func() { _ = client.Close() }, nil
}
