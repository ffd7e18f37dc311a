package constants

// Server defaults
const (
	DefaultServerPort            = 3000
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultDatabasePath          = "wapool.db"
	MaxRequestBodyBytes          = 1 << 20
	MaxLogListLimit              = 1000
	ServerErrorChannelSize       = 1
	LogStreamPingIntervalSec     = 30
)

// Graph API defaults
const (
	DefaultGraphAPIBaseURL   = "https://graph.facebook.com"
	DefaultGraphAPIVersion   = "v21.0"
	DefaultGraphTimeoutSec   = 15
	DefaultTestMessageText   = "Health check"
	MessagingWindowHours     = 24
	DefaultMaxResponseBodyKB = 512
)

// Health check defaults
const (
	DefaultHealthCheckSchedule   = "*/15 * * * *"
	DefaultMaxFailedChecks       = 3
	DefaultTerminalAction        = "disable"
	DefaultVerificationMethod    = "waba_status"
	DefaultHealthCheckWorkers    = 4
	DefaultInitialCheckDelaySec  = 10
	DefaultRunLockTTLSec         = 600
	DefaultRunLockKey            = "wapool:health-check:lock"
	DefaultDatabaseRetryAttempts = 5
	DefaultBackoffInitialMs      = 200
	DefaultBackoffMaxSec         = 5
)

// Notification defaults
const (
	DefaultNotifyTimeoutSec         = 5
	DefaultNotifyWorkers            = 8
	DefaultBreakerMaxFailures       = 5
	DefaultBreakerCooldownSec       = 60
	DefaultAuditRetention           = 1000
	DefaultLogListLimit             = 100
	DefaultLogStreamBuffer          = 64
	DefaultLogFileMaxSizeMB         = 50
	DefaultLogFileMaxBackups        = 5
	DefaultLogFileMaxAgeDays        = 30
	DefaultSelectionRedirectBaseURL = "https://wa.me/"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultTokenMaskLength = 6
)
