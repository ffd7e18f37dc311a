package service

import (
	"context"
	"fmt"
	"time"

	"wapool/internal/constants"
	"wapool/internal/models"

	"github.com/sirupsen/logrus"
)

// EventPublisher turns committed state transitions into audit entries and
// webhook notifications. The audit entry is written before the call returns;
// delivery and its "Notification sent" entry happen on the dispatcher.
type EventPublisher struct {
	audit         *AuditLog
	notifier      Notifier
	dispatcher    *Dispatcher
	notifyTimeout time.Duration
	logger        *logrus.Entry
}

func NewEventPublisher(audit *AuditLog, notifier Notifier, dispatcher *Dispatcher, notifyTimeout time.Duration, logger *logrus.Logger) *EventPublisher {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	if notifyTimeout <= 0 {
		notifyTimeout = time.Duration(constants.DefaultNotifyTimeoutSec) * time.Second
	}
	return &EventPublisher{
		audit:         audit,
		notifier:      notifier,
		dispatcher:    dispatcher,
		notifyTimeout: notifyTimeout,
		logger:        componentLogger(logger, "events"),
	}
}

// PublishTransition emits at most one log entry and one notification for t.
func (p *EventPublisher) PublishTransition(app *models.App, t Transition, v Verdict) {
	if !t.Kind.Notifies() {
		return
	}

	logType, title, message := describeTransition(t, v)
	data := map[string]interface{}{
		"appId":        app.AppID,
		"appName":      app.AppName,
		"number":       t.Number,
		"failedChecks": t.FailedChecks,
		"testMethod":   string(v.Method),
	}
	for k, val := range v.metadata() {
		data[k] = val
	}
	if t.Kind != TransitionRecovered {
		data["error"] = v.Error
		data["errorCode"] = v.ErrorCode
	}

	p.Publish(logType, title, message, data)
}

// Publish records the entry and then delivers the notification on the dispatcher.
func (p *EventPublisher) Publish(logType models.LogType, title, message string, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	p.audit.Record(ctx, logType, message, data)
	cancel()

	if !p.notifier.Enabled() {
		return
	}

	p.dispatcher.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.notifyTimeout)
		defer cancel()
		err := p.notifier.Notify(ctx, Notification{
			Title:     title,
			Message:   message,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			p.logger.WithError(err).WithField("title", title).Warn("Failed to deliver notification")
			return
		}
		p.audit.Record(ctx, models.LogTypeNotification, "Notification sent: "+title, map[string]interface{}{
			"title": title,
		})
	})
}

func describeTransition(t Transition, v Verdict) (models.LogType, string, string) {
	reason := v.Error
	if v.ErrorCode != "" {
		reason = fmt.Sprintf("%s (code %s)", v.Error, v.ErrorCode)
	}

	switch t.Kind {
	case TransitionRecovered:
		return models.LogTypeRecovery, "Number Recovered",
			fmt.Sprintf("Number %s is active again", t.Number)
	case TransitionQuarantine:
		return models.LogTypeQuarantine, "Number Quarantined",
			fmt.Sprintf("Number %s quarantined: %s", t.Number, reason)
	case TransitionRemoved:
		return models.LogTypeBan, "Number Removed",
			fmt.Sprintf("Number %s removed after %d failed checks: %s", t.Number, t.FailedChecks, reason)
	default:
		return models.LogTypeBan, "Number Disabled",
			fmt.Sprintf("Number %s disabled after %d failed checks: %s", t.Number, t.FailedChecks, reason)
	}
}
