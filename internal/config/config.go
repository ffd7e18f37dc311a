package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"wapool/internal/constants"
	"wapool/internal/models"
	"wapool/internal/security"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	TerminalActionDisable = "disable"
	TerminalActionRemove  = "remove"

	MethodWABAStatus  = "waba_status"
	MethodPhoneNumber = "phone_number"
	MethodMessageSend = "message_send"
)

var (
	ErrMissingDBPath         = models.ConfigError{Message: "missing database path"}
	ErrInvalidTerminalAction = models.ConfigError{Message: "health_check.terminal_action must be \"disable\" or \"remove\""}
	ErrInvalidMethod         = models.ConfigError{Message: "health_check.verification_method must be one of waba_status, phone_number, message_send"}
)

// ScheduleParser accepts standard five-field cron expressions, an optional
// leading seconds field and descriptors such as @every 15m.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// LoadDotEnv loads variables from an env file without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with every default applied, used when no file is given.
func Default() (*models.Config, error) {
	config := &models.Config{}
	applyEnvironmentOverrides(config)
	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault loads path, or starts from defaults and environment overrides
// when no file exists there. Security checks apply either way.
func LoadOrDefault(path string) (*models.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		config, err := Default()
		if err != nil {
			return nil, err
		}
		if err := validateSecurity(config); err != nil {
			return nil, err
		}
		return config, nil
	}
	return LoadConfig(path)
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.WhatsApp.APIBaseURL == "" {
		c.WhatsApp.APIBaseURL = constants.DefaultGraphAPIBaseURL
	}
	if _, err := url.ParseRequestURI(c.WhatsApp.APIBaseURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid whatsapp.api_base_url: %v", err)}
	}
	if c.WhatsApp.APIVersion == "" {
		c.WhatsApp.APIVersion = constants.DefaultGraphAPIVersion
	}
	if c.WhatsApp.TimeoutSec <= 0 {
		c.WhatsApp.TimeoutSec = constants.DefaultGraphTimeoutSec
	}
	if c.WhatsApp.TestMessageText == "" {
		c.WhatsApp.TestMessageText = constants.DefaultTestMessageText
	}

	hc := &c.HealthCheck
	if hc.Schedule == "" {
		hc.Schedule = constants.DefaultHealthCheckSchedule
	}
	if _, err := ScheduleParser.Parse(hc.Schedule); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid health_check.schedule %q: %v", hc.Schedule, err)}
	}
	if hc.MaxFailedChecks <= 0 {
		hc.MaxFailedChecks = constants.DefaultMaxFailedChecks
	}
	if hc.TerminalAction == "" {
		hc.TerminalAction = constants.DefaultTerminalAction
	}
	hc.TerminalAction = strings.ToLower(hc.TerminalAction)
	if hc.TerminalAction != TerminalActionDisable && hc.TerminalAction != TerminalActionRemove {
		return ErrInvalidTerminalAction
	}
	if hc.VerificationMethod == "" {
		hc.VerificationMethod = constants.DefaultVerificationMethod
	}
	switch hc.VerificationMethod {
	case MethodWABAStatus, MethodPhoneNumber, MethodMessageSend:
	default:
		return ErrInvalidMethod
	}
	if hc.Concurrency <= 0 {
		hc.Concurrency = constants.DefaultHealthCheckWorkers
	}
	if hc.InitialDelaySec < 0 {
		hc.InitialDelaySec = 0
	} else if hc.InitialDelaySec == 0 {
		hc.InitialDelaySec = constants.DefaultInitialCheckDelaySec
	}

	n := &c.Notifications
	if n.WebhookURL != "" {
		if u, err := url.ParseRequestURI(n.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return models.ConfigError{Message: "notifications.webhook_url must be an http(s) URL"}
		}
	}
	if n.TimeoutSec <= 0 {
		n.TimeoutSec = constants.DefaultNotifyTimeoutSec
	}
	if n.Workers <= 0 {
		n.Workers = constants.DefaultNotifyWorkers
	}
	if n.BreakerMaxFailures <= 0 {
		n.BreakerMaxFailures = constants.DefaultBreakerMaxFailures
	}
	if n.BreakerCooldownSec <= 0 {
		n.BreakerCooldownSec = constants.DefaultBreakerCooldownSec
	}

	if c.Audit.Retention <= 0 {
		c.Audit.Retention = constants.DefaultAuditRetention
	}

	if c.Redis.LockKey == "" {
		c.Redis.LockKey = constants.DefaultRunLockKey
	}
	if c.Redis.LockTTLSec <= 0 {
		c.Redis.LockTTLSec = constants.DefaultRunLockTTLSec
	}

	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
		c.Tracing.SampleRate = 1.0
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile.Path != "" {
		if err := security.ValidateFilePath(c.LogFile.Path); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid log_file.path: %v", err)}
		}
		if c.LogFile.MaxSizeMB <= 0 {
			c.LogFile.MaxSizeMB = constants.DefaultLogFileMaxSizeMB
		}
		if c.LogFile.MaxBackups <= 0 {
			c.LogFile.MaxBackups = constants.DefaultLogFileMaxBackups
		}
		if c.LogFile.MaxAgeDays <= 0 {
			c.LogFile.MaxAgeDays = constants.DefaultLogFileMaxAgeDays
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WHATSAPP_API_URL"); url != "" {
		c.WhatsApp.APIBaseURL = url
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		c.Notifications.WebhookURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	// SECURITY: API keys should be set via environment variables
	if key := os.Getenv("WAPOOL_API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Redis.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if os.Getenv("WAPOOL_ENV") == "production" {
		if c.Server.APIKey == "" {
			return models.ConfigError{Message: "API key is required in production (set WAPOOL_API_KEY environment variable)"}
		}
		if len(c.Server.APIKey) < 24 {
			return models.ConfigError{Message: "API key must be at least 24 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.APIKey == "" {
		fmt.Fprintf(os.Stderr, "WARNING: API key not set, management endpoints are unauthenticated. Set WAPOOL_API_KEY.\n")
	}
	return nil
}
