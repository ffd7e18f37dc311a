package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wapool/internal/constants"
	apperrors "wapool/internal/errors"
	"wapool/internal/metrics"
	"wapool/internal/models"
	"wapool/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// Notification is the payload POSTed to the configured webhook.
type Notification struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier delivers operator notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Enabled() bool
}

// WebhookNotifier posts notifications to a single webhook URL behind a circuit breaker.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Entry
}

// NewWebhookNotifier creates a notifier for cfg.WebhookURL
func NewWebhookNotifier(cfg models.NotificationConfig, logger *logrus.Logger) *WebhookNotifier {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultNotifyTimeoutSec) * time.Second
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = constants.DefaultBreakerMaxFailures
	}
	cooldown := time.Duration(cfg.BreakerCooldownSec) * time.Second
	if cooldown <= 0 {
		cooldown = time.Duration(constants.DefaultBreakerCooldownSec) * time.Second
	}

	entry := componentLogger(logger, "notifier")
	return &WebhookNotifier{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "webhook",
			MaxFailures: maxFailures,
			Cooldown:    cooldown,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				entry.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
					Warn("Notification webhook circuit breaker changed state")
			},
		}),
		logger: entry,
	}
}

func (w *WebhookNotifier) Enabled() bool {
	return w.webhookURL != ""
}

// Notify sends one notification. Failures are returned, never retried.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if w.webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	err = w.breaker.Execute(ctx, func(ctx context.Context) error {
		return w.post(ctx, body)
	})
	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues("delivered").Inc()
	case circuitbreaker.IsOpen(err):
		metrics.Notifications.WithLabelValues("rejected").Inc()
	default:
		metrics.Notifications.WithLabelValues("failed").Inc()
	}
	return err
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wapool-notifier")

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.NewWebhookError(0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewWebhookError(resp.StatusCode,
			fmt.Errorf("webhook returned non-success status: %d", resp.StatusCode))
	}

	w.logger.WithField(LogFieldStatusCode, resp.StatusCode).Debug("Notification delivered")
	return nil
}

// NoOpNotifier is used when no webhook is configured
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) Notify(ctx context.Context, notification Notification) error {
	return nil
}

func (n *NoOpNotifier) Enabled() bool {
	return false
}
