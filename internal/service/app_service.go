package service

import (
	"context"
	"fmt"
	"time"

	apperrors "wapool/internal/errors"
	"wapool/internal/metrics"
	"wapool/internal/models"
	"wapool/internal/validation"

	"github.com/sirupsen/logrus"
)

// AppInput is the create-or-update payload for an app.
type AppInput struct {
	AppID           string `json:"appId"`
	AppName         string `json:"appName"`
	Token           string `json:"token"`
	WABAID          string `json:"wabaId"`
	PhoneNumberID   string `json:"phoneNumberId"`
	TestPhoneNumber string `json:"testPhoneNumber"`
}

// ConfigSummary is the non-secret view of the running configuration.
type ConfigSummary struct {
	MaxFailedChecks     int    `json:"maxFailedChecks"`
	HealthCheckInterval string `json:"healthCheckInterval"`
	WebhookConfigured   bool   `json:"webhookConfigured"`
	MetaAPIVersion      string `json:"metaApiVersion"`
	VerificationMethod  string `json:"verificationMethod"`
	TerminalAction      string `json:"terminalAction"`
	Database            string `json:"database"`
}

func NewConfigSummary(cfg models.Config) ConfigSummary {
	return ConfigSummary{
		MaxFailedChecks:     cfg.HealthCheck.MaxFailedChecks,
		HealthCheckInterval: cfg.HealthCheck.Schedule,
		WebhookConfigured:   cfg.Notifications.WebhookURL != "",
		MetaAPIVersion:      cfg.WhatsApp.APIVersion,
		VerificationMethod:  cfg.HealthCheck.VerificationMethod,
		TerminalAction:      cfg.HealthCheck.TerminalAction,
		Database:            "sqlite",
	}
}

// StatusReport aggregates pool counts, global stats and the configuration echo.
type StatusReport struct {
	TotalApps     int           `json:"totalApps"`
	TotalNumbers  int           `json:"totalNumbers"`
	ActiveNumbers int           `json:"activeNumbers"`
	InQuarantine  int           `json:"inQuarantine"`
	Disabled      int           `json:"disabled"`
	Paused        int           `json:"paused"`
	Stats         models.Stats  `json:"stats"`
	Config        ConfigSummary `json:"config"`
}

// AppService is the CRUD surface over apps, numbers and the audit log.
type AppService struct {
	repo            Repository
	audit           *AuditLog
	summary         ConfigSummary
	maxFailedChecks int
	logger          *logrus.Logger
	now             func() time.Time
}

func NewAppService(repo Repository, audit *AuditLog, cfg models.Config, logger *logrus.Logger) *AppService {
	return &AppService{
		repo:            repo,
		audit:           audit,
		summary:         NewConfigSummary(cfg),
		maxFailedChecks: cfg.HealthCheck.MaxFailedChecks,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *AppService) Config() ConfigSummary {
	return s.summary
}

func (s *AppService) ListApps(ctx context.Context) ([]*models.App, error) {
	return s.repo.ListApps(ctx)
}

// SaveApp creates the app or replaces its credentials, keeping its numbers.
func (s *AppService) SaveApp(ctx context.Context, in AppInput) (*models.App, bool, error) {
	if err := validation.ValidateAppFields(in.AppID, in.AppName, in.Token, in.WABAID, in.PhoneNumberID, in.TestPhoneNumber); err != nil {
		return nil, false, err
	}

	app := &models.App{
		AppID:           in.AppID,
		AppName:         in.AppName,
		Token:           in.Token,
		WABAID:          in.WABAID,
		PhoneNumberID:   in.PhoneNumberID,
		TestPhoneNumber: in.TestPhoneNumber,
	}
	created, err := s.repo.SaveApp(ctx, app)
	if err != nil {
		return nil, false, err
	}

	verb := "updated"
	if created {
		verb = "created"
	}
	s.audit.RecordAsync(models.LogTypeApp, fmt.Sprintf("App %s %s", in.AppID, verb), map[string]interface{}{
		"appId":   in.AppID,
		"appName": in.AppName,
		"action":  verb,
	})

	saved, err := s.repo.GetApp(ctx, in.AppID)
	if err != nil {
		return nil, created, err
	}
	if saved == nil {
		saved = app
	}
	return saved, created, nil
}

func (s *AppService) DeleteApp(ctx context.Context, appID string) error {
	deleted, err := s.repo.DeleteApp(ctx, appID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NewNotFoundError("app", appID)
	}
	s.audit.RecordAsync(models.LogTypeApp, fmt.Sprintf("App %s deleted", appID), map[string]interface{}{
		"appId":  appID,
		"action": "deleted",
	})
	return nil
}

// RenewWindow stamps the start of a new 24-hour messaging window.
func (s *AppService) RenewWindow(ctx context.Context, appID string) (time.Time, error) {
	now := s.now().UTC()
	err := s.repo.UpdateApp(ctx, appID, func(app *models.App) error {
		app.LastMessageWindowRenewal = &now
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	s.audit.RecordAsync(models.LogTypeApp, fmt.Sprintf("Messaging window renewed for app %s", appID), map[string]interface{}{
		"appId":     appID,
		"renewedAt": now,
	})
	return now, nil
}

// AddNumber registers a new active number under the app.
func (s *AppService) AddNumber(ctx context.Context, appID, number string) (*models.Number, error) {
	if err := validation.ValidatePhoneNumber("number", number); err != nil {
		return nil, err
	}

	var added *models.Number
	err := s.repo.UpdateApp(ctx, appID, func(app *models.App) error {
		if _, exists := app.Numbers[number]; exists {
			return apperrors.NewConflictError(fmt.Sprintf("number %s already exists in app %s", number, appID))
		}
		added = models.NewNumber(number, s.now().UTC())
		app.Numbers[number] = added
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshGauges(ctx)
	s.audit.RecordAsync(models.LogTypeNumber, fmt.Sprintf("Number %s added to app %s", number, appID), map[string]interface{}{
		"appId":  appID,
		"number": number,
		"action": "added",
	})
	return added, nil
}

func (s *AppService) DeleteNumber(ctx context.Context, appID, number string) error {
	err := s.repo.UpdateApp(ctx, appID, func(app *models.App) error {
		if _, exists := app.Numbers[number]; !exists {
			return apperrors.NewNotFoundError("number", number)
		}
		delete(app.Numbers, number)
		return nil
	})
	if err != nil {
		return err
	}

	s.refreshGauges(ctx)
	s.audit.RecordAsync(models.LogTypeNumber, fmt.Sprintf("Number %s deleted from app %s", number, appID), map[string]interface{}{
		"appId":  appID,
		"number": number,
		"action": "deleted",
	})
	return nil
}

// SetNumberActive is the manual override. Activation clears the failure history;
// deactivation pauses the number without touching its counter.
func (s *AppService) SetNumberActive(ctx context.Context, appID, number string, active bool) (*models.Number, error) {
	var updated models.Number
	err := s.repo.UpdateApp(ctx, appID, func(app *models.App) error {
		n, exists := app.Numbers[number]
		if !exists {
			return apperrors.NewNotFoundError("number", number)
		}

		now := s.now().UTC()
		if active {
			n.Active = true
			n.Paused = false
			n.FailedChecks = 0
			n.Error = ""
			n.ErrorCode = ""
		} else {
			n.Active = false
			n.Paused = true
		}
		n.LastStatusChange = now
		updated = *n
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "manual_deactivation"
	message := fmt.Sprintf("Number %s manually deactivated", number)
	if active {
		action = "manual_reactivation"
		message = fmt.Sprintf("Number %s manually reactivated", number)
	}
	s.refreshGauges(ctx)
	s.audit.RecordAsync(models.LogTypeNumber, message, map[string]interface{}{
		"appId":  appID,
		"number": number,
		"action": action,
	})
	return &updated, nil
}

func (s *AppService) Status(ctx context.Context) (*StatusReport, error) {
	apps, err := s.repo.ListApps(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{TotalApps: len(apps), Stats: stats, Config: s.summary}
	for _, app := range apps {
		for _, n := range app.Numbers {
			report.TotalNumbers++
			switch n.State(s.maxFailedChecks) {
			case models.StateActive:
				report.ActiveNumbers++
			case models.StateQuarantined:
				report.InQuarantine++
			case models.StateDisabled:
				report.Disabled++
			case models.StatePaused:
				report.Paused++
			}
		}
	}
	return report, nil
}

func (s *AppService) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, apperrors.NewValidationError("type", fmt.Sprintf("unknown log type %q", filter.Type))
	}
	return s.repo.ListLogs(ctx, filter)
}

func (s *AppService) ClearLogs(ctx context.Context) error {
	if err := s.repo.ClearLogs(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, models.LogTypeSystem, "Logs cleared", nil)
	return nil
}

// refreshGauges recomputes the per-state number gauges.
func (s *AppService) refreshGauges(ctx context.Context) {
	report, err := s.Status(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to refresh number gauges")
		return
	}
	UpdateNumberGauges(report)
}

// UpdateNumberGauges publishes per-state counts from a status report.
func UpdateNumberGauges(report *StatusReport) {
	metrics.NumbersByState.WithLabelValues(string(models.StateActive)).Set(float64(report.ActiveNumbers))
	metrics.NumbersByState.WithLabelValues(string(models.StateQuarantined)).Set(float64(report.InQuarantine))
	metrics.NumbersByState.WithLabelValues(string(models.StateDisabled)).Set(float64(report.Disabled))
	metrics.NumbersByState.WithLabelValues(string(models.StatePaused)).Set(float64(report.Paused))
}
