package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wapool/internal/constants"
	apperrors "wapool/internal/errors"
	"wapool/internal/metrics"
	"wapool/internal/models"
	"wapool/internal/tracing"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Trigger names what started a health check run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerStartup   Trigger = "startup"
)

// NumberError describes one number that received an inactive verdict.
type NumberError struct {
	AppID        string `json:"appId"`
	AppName      string `json:"appName"`
	Number       string `json:"number"`
	Error        string `json:"error"`
	ErrorCode    string `json:"errorCode,omitempty"`
	FailedChecks int    `json:"failedChecks"`
}

// AppFailure describes an app skipped because no verdict could be applied.
type AppFailure struct {
	AppID   string `json:"appId"`
	AppName string `json:"appName"`
	Error   string `json:"error"`
}

// RunSummary is the merged result of one health check run.
type RunSummary struct {
	RunID       string        `json:"runId"`
	Trigger     Trigger       `json:"trigger"`
	Method      string        `json:"testMethod"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
	Checked     int           `json:"checked"`
	Active      int           `json:"active"`
	Disabled    int           `json:"disabled"`
	Removed     int           `json:"removed"`
	Quarantined int           `json:"quarantined"`
	Recovered   int           `json:"recovered"`
	Errors      []NumberError `json:"errors"`
	AppErrors   []AppFailure  `json:"appErrors"`
	Verdicts    []AppVerdict  `json:"verdicts"`
}

// AppVerdict is the verdict one app received during a run.
type AppVerdict struct {
	AppID   string  `json:"appId"`
	Verdict Verdict `json:"verdict"`
}

// appResult is owned by exactly one app task until the merge.
type appResult struct {
	checked     int
	active      int
	disabled    int
	removed     int
	quarantined int
	recovered   int
	bans        int
	errors      []NumberError
	failure     *AppFailure
	verdict     *AppVerdict
}

// HealthCheckRepository is the storage the orchestrator reads and writes.
type HealthCheckRepository interface {
	AppStore
	StatsStore
}

// HealthChecker runs the health check cycle over every registered app.
type HealthChecker struct {
	cfg      models.HealthCheckConfig
	repo     HealthCheckRepository
	verifier AccountVerifier
	machine  StateMachine
	guard    RunGuard
	events   *EventPublisher
	audit    *AuditLog
	logger   *logrus.Logger

	appTimeout time.Duration
	now        func() time.Time
}

// HealthCheckerDeps groups the collaborators of a HealthChecker.
type HealthCheckerDeps struct {
	Repo     HealthCheckRepository
	Verifier AccountVerifier
	Guard    RunGuard
	Events   *EventPublisher
	Audit    *AuditLog
	Logger   *logrus.Logger
	// AppTimeout bounds one app's verification and persistence.
	AppTimeout time.Duration
}

// AppTimeout is the per-app budget for a Graph API timeout of graphTimeoutSec.
// A verification makes at most two sequential Graph calls.
func AppTimeout(graphTimeoutSec int) time.Duration {
	if graphTimeoutSec <= 0 {
		graphTimeoutSec = constants.DefaultGraphTimeoutSec
	}
	return 2 * time.Duration(graphTimeoutSec) * time.Second
}

func NewHealthChecker(cfg models.HealthCheckConfig, deps HealthCheckerDeps) *HealthChecker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = constants.DefaultHealthCheckWorkers
	}
	if deps.Guard == nil {
		deps.Guard = NewLocalRunGuard()
	}
	appTimeout := deps.AppTimeout
	if appTimeout <= 0 {
		appTimeout = AppTimeout(constants.DefaultGraphTimeoutSec)
	}
	return &HealthChecker{
		cfg:        cfg,
		repo:       deps.Repo,
		verifier:   deps.Verifier,
		machine:    NewStateMachine(cfg.MaxFailedChecks, TerminalAction(cfg.TerminalAction)),
		guard:      deps.Guard,
		events:     deps.Events,
		audit:      deps.Audit,
		logger:     deps.Logger,
		appTimeout: appTimeout,
		now:        time.Now,
	}
}

// Method returns the verification strategy in use.
func (h *HealthChecker) Method() VerificationMethod {
	return h.verifier.Method()
}

// Run executes one cycle. It returns a Conflict error when another run holds the guard.
func (h *HealthChecker) Run(ctx context.Context, trigger Trigger) (*RunSummary, error) {
	release, ok, err := h.guard.TryAcquire(ctx)
	if err != nil {
		metrics.HealthCheckRuns.WithLabelValues(string(trigger), "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to acquire health check lock")
	}
	if !ok {
		metrics.HealthCheckRuns.WithLabelValues(string(trigger), "skipped").Inc()
		return nil, apperrors.NewConflictError("a health check is already running")
	}
	defer release()

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		Method:    string(h.verifier.Method()),
		StartedAt: h.now().UTC(),
		Errors:    []NumberError{},
		AppErrors: []AppFailure{},
		Verdicts:  []AppVerdict{},
	}

	ctx, span := tracing.StartSpan(ctx, "health_check.run",
		attribute.String("run.id", summary.RunID),
		attribute.String("run.trigger", string(trigger)),
		attribute.String("run.method", summary.Method),
	)
	defer span.End()

	logger := h.logger.WithFields(logrus.Fields{
		LogFieldRunID:   summary.RunID,
		LogFieldTrigger: string(trigger),
		LogFieldMethod:  summary.Method,
	})
	logger.Info("Health check started")
	h.record(ctx, models.LogTypeHealthCheck, "Health check started", map[string]interface{}{
		"runId":   summary.RunID,
		"trigger": string(trigger),
	})

	apps, err := h.repo.ListApps(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.HealthCheckRuns.WithLabelValues(string(trigger), "error").Inc()
		return nil, err
	}

	results := h.checkApps(ctx, apps, logger)

	delta := models.StatsDelta{}
	for _, r := range results {
		summary.Checked += r.checked
		summary.Active += r.active
		summary.Disabled += r.disabled
		summary.Removed += r.removed
		summary.Quarantined += r.quarantined
		summary.Recovered += r.recovered
		summary.Errors = append(summary.Errors, r.errors...)
		if r.failure != nil {
			summary.AppErrors = append(summary.AppErrors, *r.failure)
		}
		if r.verdict != nil {
			summary.Verdicts = append(summary.Verdicts, *r.verdict)
		}
		delta.Bans += r.bans
		delta.Recoveries += r.recovered
	}
	summary.FinishedAt = h.now().UTC()
	delta.FinishedAt = summary.FinishedAt

	if err := h.repo.RecordRun(ctx, delta); err != nil {
		apperrors.LogError(logger, err, "Failed to record health check stats")
	}

	elapsed := summary.FinishedAt.Sub(summary.StartedAt)
	metrics.HealthCheckRuns.WithLabelValues(string(trigger), "completed").Inc()
	metrics.HealthCheckDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("run.checked", summary.Checked),
		attribute.Int("run.active", summary.Active),
		attribute.Int("run.app_errors", len(summary.AppErrors)),
	)

	message := fmt.Sprintf("Health check completed: %d checked, %d active, %d errors",
		summary.Checked, summary.Active, len(summary.Errors))
	logger.WithFields(logrus.Fields{
		"checked":        summary.Checked,
		"active":         summary.Active,
		"disabled":       summary.Disabled,
		"removed":        summary.Removed,
		"app_errors":     len(summary.AppErrors),
		LogFieldDuration: elapsed.Milliseconds(),
	}).Info("Health check completed")
	h.record(ctx, models.LogTypeHealthCheck, message, map[string]interface{}{
		"runId":       summary.RunID,
		"trigger":     string(trigger),
		"checked":     summary.Checked,
		"active":      summary.Active,
		"disabled":    summary.Disabled,
		"removed":     summary.Removed,
		"quarantined": summary.Quarantined,
		"recovered":   summary.Recovered,
		"errors":      len(summary.Errors),
		"appErrors":   len(summary.AppErrors),
	})

	return summary, nil
}

// checkApps processes apps with bounded parallelism and returns results in listing order.
func (h *HealthChecker) checkApps(ctx context.Context, apps []*models.App, logger *logrus.Entry) []appResult {
	results := make([]appResult, len(apps))
	if len(apps) == 0 {
		return results
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(h.cfg.Concurrency, func(arg interface{}) {
		defer wg.Done()
		i := arg.(int)
		results[i] = h.checkAppSafely(ctx, apps[i], logger)
	})
	if err != nil {
		logger.WithError(err).Warn("Worker pool unavailable, checking apps sequentially")
		for i, app := range apps {
			results[i] = h.checkAppSafely(ctx, app, logger)
		}
		return results
	}
	defer pool.Release()

	for i := range apps {
		wg.Add(1)
		if err := pool.Invoke(i); err != nil {
			wg.Done()
			results[i] = h.checkAppSafely(ctx, apps[i], logger)
		}
	}
	wg.Wait()
	return results
}

func (h *HealthChecker) checkAppSafely(ctx context.Context, app *models.App, logger *logrus.Entry) (result appResult) {
	defer func() {
		if p := recover(); p != nil {
			result = h.appFailed(app, fmt.Errorf("panic while checking app: %v", p), logger)
		}
	}()
	return h.checkApp(ctx, app, logger)
}

func (h *HealthChecker) checkApp(ctx context.Context, app *models.App, logger *logrus.Entry) appResult {
	ctx, cancel := context.WithTimeout(ctx, h.appTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "health_check.app", attribute.String("app.id", app.AppID))
	defer span.End()

	appLogger := logger.WithField(LogFieldAppID, app.AppID)
	if len(app.Numbers) == 0 {
		appLogger.Debug("App has no numbers, skipping verification")
		return appResult{}
	}

	started := time.Now()
	verdict, err := h.verifier.Verify(ctx, app)
	if err != nil {
		tracing.RecordError(ctx, err)
		return h.appFailed(app, err, appLogger)
	}
	metrics.ObserveVerification(string(verdict.Method), verdict.Active, time.Since(started))
	span.SetAttributes(attribute.Bool("verdict.active", verdict.Active), attribute.String("verdict.code", verdict.ErrorCode))

	var (
		result      appResult
		transitions []Transition
	)
	err = h.repo.UpdateApp(ctx, app.AppID, func(current *models.App) error {
		result = appResult{}
		transitions = transitions[:0]
		now := h.now().UTC()

		for _, key := range current.SortedNumbers() {
			n := current.Numbers[key]
			t := h.machine.Apply(n, verdict, now)
			if t.Kind == TransitionRemoved {
				delete(current.Numbers, key)
			}
			transitions = append(transitions, t)
			result.tally(current, n, t, verdict)
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return h.appFailed(app, err, appLogger)
	}

	for _, t := range transitions {
		metrics.NumberTransitions.WithLabelValues(string(t.Kind)).Inc()
		if t.Kind.Notifies() {
			appLogger.WithFields(logrus.Fields{
				LogFieldNumber:     numberField(ctx, t.Number),
				LogFieldTransition: string(t.Kind),
				LogFieldFailed:     t.FailedChecks,
				LogFieldErrorCode:  verdict.ErrorCode,
			}).Info("Number state changed")
			h.events.PublishTransition(app, t, verdict)
		}
	}

	result.verdict = &AppVerdict{AppID: app.AppID, Verdict: verdict}
	appLogger.WithFields(verdict.logFields()).WithField(LogFieldCount, result.checked).Debug("App checked")
	return result
}

func (r *appResult) tally(app *models.App, n *models.Number, t Transition, v Verdict) {
	r.checked++
	switch t.Kind {
	case TransitionRecovered:
		r.recovered++
	case TransitionQuarantine:
		r.quarantined++
	case TransitionDisabled:
		r.disabled++
		r.bans++
	case TransitionRemoved:
		r.removed++
		r.bans++
	}

	if n.Active {
		r.active++
		return
	}
	if !v.Active && !n.Paused {
		r.errors = append(r.errors, NumberError{
			AppID:        app.AppID,
			AppName:      app.AppName,
			Number:       n.Number,
			Error:        v.Error,
			ErrorCode:    v.ErrorCode,
			FailedChecks: t.FailedChecks,
		})
	}
}

func (h *HealthChecker) appFailed(app *models.App, err error, logger *logrus.Entry) appResult {
	metrics.AppFailures.Inc()
	apperrors.LogError(logger, err, "Health check skipped app")
	h.record(context.Background(), models.LogTypeError, fmt.Sprintf("Health check failed for app %s: %v", app.AppID, err),
		map[string]interface{}{
			"appId":   app.AppID,
			"appName": app.AppName,
			"error":   err.Error(),
		})
	return appResult{
		failure: &AppFailure{
			AppID:   app.AppID,
			AppName: app.AppName,
			Error:   err.Error(),
		},
	}
}

// record writes a run entry before returning so the persisted log keeps run order:
// start, then transitions and app errors, then the summary.
func (h *HealthChecker) record(ctx context.Context, logType models.LogType, message string, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	h.audit.Record(ctx, logType, message, data)
}
