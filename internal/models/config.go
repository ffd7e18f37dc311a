package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig       `json:"server"`
	Database      DatabaseConfig     `json:"database"`
	WhatsApp      WhatsAppConfig     `json:"whatsapp"`
	HealthCheck   HealthCheckConfig  `json:"health_check"`
	Notifications NotificationConfig `json:"notifications"`
	Audit         AuditConfig        `json:"audit"`
	Redis         RedisConfig        `json:"redis"`
	Tracing       TracingConfig      `json:"tracing"`
	LogLevel      string             `json:"log_level"`
	LogFile       LogFileConfig      `json:"log_file"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            int    `json:"port"`
	APIKey          string `json:"api_key"`
	ReadTimeoutSec  int    `json:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
	IdleTimeoutSec  int    `json:"idle_timeout_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// WhatsAppConfig holds Graph API settings
type WhatsAppConfig struct {
	APIBaseURL      string `json:"api_base_url"`
	APIVersion      string `json:"api_version"`
	TimeoutSec      int    `json:"timeout_sec"`
	TestMessageText string `json:"test_message_text"`
}

// HealthCheckConfig drives the orchestrator and scheduler
type HealthCheckConfig struct {
	Schedule           string `json:"schedule"`
	MaxFailedChecks    int    `json:"max_failed_checks"`
	TerminalAction     string `json:"terminal_action"`
	VerificationMethod string `json:"verification_method"`
	Concurrency        int    `json:"concurrency"`
	RunOnStartup       *bool  `json:"run_on_startup"`
	InitialDelaySec    int    `json:"initial_delay_sec"`
}

// StartupRunEnabled reports whether a run is scheduled shortly after boot.
func (h HealthCheckConfig) StartupRunEnabled() bool {
	return h.RunOnStartup == nil || *h.RunOnStartup
}

// NotificationConfig holds webhook delivery settings
type NotificationConfig struct {
	WebhookURL         string `json:"webhook_url"`
	TimeoutSec         int    `json:"timeout_sec"`
	Workers            int    `json:"workers"`
	BreakerMaxFailures int    `json:"breaker_max_failures"`
	BreakerCooldownSec int    `json:"breaker_cooldown_sec"`
}

// AuditConfig bounds the persisted audit log
type AuditConfig struct {
	Retention int `json:"retention"`
}

// RedisConfig enables the distributed run lock when URL is set
type RedisConfig struct {
	URL        string `json:"url"`
	Password   string `json:"password"`
	LockKey    string `json:"lock_key"`
	LockTTLSec int    `json:"lock_ttl_sec"`
}

// TracingConfig controls the OpenTelemetry exporter
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
}

// LogFileConfig enables a rotated log file next to stdout
type LogFileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
