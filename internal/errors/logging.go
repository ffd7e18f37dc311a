package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields returns the structured context of an AppError as logrus fields
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}
	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LogError logs an error with its structured context
func LogError(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entry(logger, err, fields).Error(message)
}

// LogWarn logs an error at warn level with its structured context
func LogWarn(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entry(logger, err, fields).Warn(message)
}

// LogRetryableError logs a retryable error at warn level, non-retryable at error level
func LogRetryableError(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	if IsRetryable(err) {
		LogWarn(logger, err, message, fields...)
		return
	}
	LogError(logger, err, message, fields...)
}

func entry(logger logrus.FieldLogger, err error, extra []logrus.Fields) *logrus.Entry {
	e := logger.WithError(err).WithFields(Fields(err))
	for _, f := range extra {
		e = e.WithFields(f)
	}
	return e
}
