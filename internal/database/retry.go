package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"wapool/internal/constants"

	"github.com/cenkalti/backoff/v5"
)

// withRetry retries fn while SQLite reports a transient lock or I/O error.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond
	policy.MaxInterval = time.Duration(constants.DefaultBackoffMaxSec) * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		result, err := fn()
		if err != nil && !isRetryableDBError(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(constants.DefaultDatabaseRetryAttempts)),
	)
}

func withRetryNoReturn(ctx context.Context, fn func() error) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "disk I/O error")
}
