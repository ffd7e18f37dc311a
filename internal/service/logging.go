package service

import (
	"context"

	"wapool/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Standard field names used by every component in this package
const (
	LogFieldRunID      = "run_id"
	LogFieldAppID      = "app_id"
	LogFieldNumber     = "number"
	LogFieldMethod     = "method"
	LogFieldTrigger    = "trigger"
	LogFieldTransition = "transition"
	LogFieldFailed     = "failed_checks"
	LogFieldErrorCode  = "error_code"
	LogFieldStatusCode = "status_code"
	LogFieldDuration   = "duration_ms"
	LogFieldCount      = "count"
	LogFieldComponent  = "component"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the context key for the verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// numberField masks a phone number unless verbose logging is on.
func numberField(ctx context.Context, number string) string {
	if IsVerboseLogging(ctx) {
		return number
	}
	return privacy.MaskPhoneNumber(number)
}

func componentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField(LogFieldComponent, component)
}
