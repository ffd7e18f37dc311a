package models

import "time"

// LogType categorizes audit log entries
type LogType string

const (
	LogTypeApp          LogType = "app"
	LogTypeNumber       LogType = "number"
	LogTypeRedirect     LogType = "redirect"
	LogTypeHealthCheck  LogType = "health_check"
	LogTypeRecovery     LogType = "recovery"
	LogTypeQuarantine   LogType = "quarantine"
	LogTypeBan          LogType = "ban"
	LogTypeNotification LogType = "notification"
	LogTypeSystem       LogType = "system"
	LogTypeError        LogType = "error"
)

var knownLogTypes = map[LogType]struct{}{
	LogTypeApp: {}, LogTypeNumber: {}, LogTypeRedirect: {}, LogTypeHealthCheck: {},
	LogTypeRecovery: {}, LogTypeQuarantine: {}, LogTypeBan: {}, LogTypeNotification: {},
	LogTypeSystem: {}, LogTypeError: {},
}

// Valid reports whether t is one of the known log types.
func (t LogType) Valid() bool {
	_, ok := knownLogTypes[t]
	return ok
}

// LogEntry is one persisted audit event
type LogEntry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      LogType                `json:"type"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
}

// LogFilter narrows a log listing
type LogFilter struct {
	Type  LogType
	Limit int
}
