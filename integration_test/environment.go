package integration_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"wapool/internal/config"
	"wapool/internal/database"
	"wapool/internal/models"
	"wapool/internal/service"
	"wapool/pkg/whatsapp"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment wires the health check stack the way the service binary
// does, against a temp SQLite file, a fake Graph API and a webhook sink.
type TestEnvironment struct {
	t          *testing.T
	cfg        *models.Config
	db         *database.Database
	graph      *FakeGraphAPI
	sink       *WebhookSink
	dispatcher *service.Dispatcher
	audit      *service.AuditLog
	checker    *service.HealthChecker
	apps       *service.AppService
	selector   *service.Selector
}

// EnvOption adjusts the configuration before the stack is built.
type EnvOption func(cfg *models.Config)

func WithMethod(method string) EnvOption {
	return func(cfg *models.Config) { cfg.HealthCheck.VerificationMethod = method }
}

func WithTerminalAction(action string, maxFailedChecks int) EnvOption {
	return func(cfg *models.Config) {
		cfg.HealthCheck.TerminalAction = action
		cfg.HealthCheck.MaxFailedChecks = maxFailedChecks
	}
}

func WithConcurrency(n int) EnvOption {
	return func(cfg *models.Config) { cfg.HealthCheck.Concurrency = n }
}

func NewTestEnvironment(t *testing.T, opts ...EnvOption) *TestEnvironment {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	graph := NewFakeGraphAPI(t)
	sink := NewWebhookSink(t)

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "wapool.db")
	cfg.WhatsApp.APIBaseURL = graph.URL()
	cfg.WhatsApp.APIVersion = "v21.0"
	cfg.Notifications.WebhookURL = sink.URL()
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := database.New(context.Background(), cfg.Database.Path, cfg.Audit.Retention, logger)
	require.NoError(t, err)

	dispatcher, err := service.NewDispatcher(cfg.Notifications.Workers, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		dispatcher.Close()
		_ = db.Close()
	})

	client := whatsapp.NewClient(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.APIVersion, 5*time.Second)
	verifier, err := service.NewAccountVerifier(*cfg, client, logger)
	require.NoError(t, err)

	audit := service.NewAuditLog(db, service.NewLogHub(), dispatcher, logger, false)
	events := service.NewEventPublisher(audit, service.NewWebhookNotifier(cfg.Notifications, logger),
		dispatcher, time.Duration(cfg.Notifications.TimeoutSec)*time.Second, logger)

	return &TestEnvironment{
		t:          t,
		cfg:        cfg,
		db:         db,
		graph:      graph,
		sink:       sink,
		dispatcher: dispatcher,
		audit:      audit,
		checker: service.NewHealthChecker(cfg.HealthCheck, service.HealthCheckerDeps{
			Repo:     db,
			Verifier: verifier,
			Events:   events,
			Audit:    audit,
			Logger:   logger,

			AppTimeout: service.AppTimeout(cfg.WhatsApp.TimeoutSec),
		}),
		apps:     service.NewAppService(db, audit, *cfg, logger),
		selector: service.NewSelector(db, audit, logger),
	}
}

// AddApp registers an app through the CRUD service and adds its numbers.
func (e *TestEnvironment) AddApp(in service.AppInput, numbers ...string) {
	e.t.Helper()
	ctx := context.Background()
	_, _, err := e.apps.SaveApp(ctx, in)
	require.NoError(e.t, err)
	for _, n := range numbers {
		_, err := e.apps.AddNumber(ctx, in.AppID, n)
		require.NoError(e.t, err)
	}
}

// Run executes one health check and waits for its notifications and audit writes.
func (e *TestEnvironment) Run() *service.RunSummary {
	e.t.Helper()
	summary, err := e.checker.Run(context.Background(), service.TriggerManual)
	require.NoError(e.t, err)
	e.dispatcher.Wait()
	return summary
}

func (e *TestEnvironment) Number(appID, number string) *models.Number {
	e.t.Helper()
	app, err := e.db.GetApp(context.Background(), appID)
	require.NoError(e.t, err)
	require.NotNil(e.t, app, "app %s", appID)
	return app.Numbers[number]
}

func (e *TestEnvironment) Stats() models.Stats {
	e.t.Helper()
	stats, err := e.db.GetStats(context.Background())
	require.NoError(e.t, err)
	return stats
}

func (e *TestEnvironment) LogCount(logType models.LogType) int {
	e.t.Helper()
	_, total, err := e.db.ListLogs(context.Background(), models.LogFilter{Type: logType, Limit: 1})
	require.NoError(e.t, err)
	return total
}
