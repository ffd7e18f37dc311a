package service

import (
	"context"
	"strings"
	"time"

	"wapool/internal/models"
	"wapool/internal/privacy"

	"github.com/sirupsen/logrus"
)

const auditWriteTimeout = 5 * time.Second

// AuditLog persists audit entries, echoes them to the console and broadcasts
// them to live subscribers. Persistence failures are logged and swallowed.
type AuditLog struct {
	store      LogStore
	hub        *LogHub
	dispatcher *Dispatcher
	logger     *logrus.Logger
	verbose    bool
}

func NewAuditLog(store LogStore, hub *LogHub, dispatcher *Dispatcher, logger *logrus.Logger, verbose bool) *AuditLog {
	return &AuditLog{store: store, hub: hub, dispatcher: dispatcher, logger: logger, verbose: verbose}
}

// Record writes the entry synchronously.
func (a *AuditLog) Record(ctx context.Context, logType models.LogType, message string, data map[string]interface{}) {
	entry := models.LogEntry{
		Timestamp: time.Now().UTC(),
		Type:      logType,
		Message:   message,
		Data:      data,
	}

	echo := message
	if !a.verbose {
		echo = privacy.MaskPhoneNumbersInText(message)
	}
	a.logger.WithField("audit_type", string(logType)).Infof("[%s] %s", strings.ToUpper(string(logType)), echo)

	if err := a.store.AppendLog(ctx, &entry); err != nil {
		a.logger.WithError(err).WithField("audit_type", string(logType)).Error("Failed to persist audit log entry")
	}
	if a.hub != nil {
		a.hub.Publish(entry)
	}
}

// RecordAsync writes the entry on the dispatcher without blocking the caller.
func (a *AuditLog) RecordAsync(logType models.LogType, message string, data map[string]interface{}) {
	a.dispatcher.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		a.Record(ctx, logType, message, data)
	})
}
