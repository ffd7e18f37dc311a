package service

import (
	"context"

	"wapool/internal/models"
)

// AppStore persists apps together with their numbers.
type AppStore interface {
	ListApps(ctx context.Context) ([]*models.App, error)
	// GetApp returns nil without error when the app does not exist.
	GetApp(ctx context.Context, appID string) (*models.App, error)
	SaveApp(ctx context.Context, app *models.App) (created bool, err error)
	DeleteApp(ctx context.Context, appID string) (deleted bool, err error)
	// UpdateApp runs mutate inside one transaction scoped to the app. mutate may
	// be invoked again if the store retries, so it must reset anything it collects.
	UpdateApp(ctx context.Context, appID string, mutate func(app *models.App) error) error
}

// StatsStore owns the global counters.
type StatsStore interface {
	GetStats(ctx context.Context) (models.Stats, error)
	RecordRun(ctx context.Context, delta models.StatsDelta) error
}

// LogStore persists the audit log.
type LogStore interface {
	AppendLog(ctx context.Context, entry *models.LogEntry) error
	ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error)
	ClearLogs(ctx context.Context) error
}

// Repository is everything the service layer needs from storage.
type Repository interface {
	AppStore
	StatsStore
	LogStore
}
