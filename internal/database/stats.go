package database

import (
	"context"
	"database/sql"

	apperrors "wapool/internal/errors"
	"wapool/internal/models"
)

// GetStats returns the global counters.
func (d *Database) GetStats(ctx context.Context) (models.Stats, error) {
	var (
		stats models.Stats
		last  sql.NullTime
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT total_checks, total_bans, total_recoveries, last_health_check FROM stats WHERE id = 1`,
	).Scan(&stats.TotalChecks, &stats.TotalBans, &stats.TotalRecoveries, &last)
	if err != nil {
		return models.Stats{}, apperrors.NewDatabaseError("get stats", err)
	}
	stats.LastHealthCheck = timePtr(last)
	return stats, nil
}

// RecordRun counts one completed health check run and adds its bans and recoveries.
func (d *Database) RecordRun(ctx context.Context, delta models.StatsDelta) error {
	return withRetryNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			UPDATE stats SET
				total_checks = total_checks + 1,
				total_bans = total_bans + ?,
				total_recoveries = total_recoveries + ?,
				last_health_check = ?
			WHERE id = 1`,
			delta.Bans, delta.Recoveries, delta.FinishedAt.UTC(),
		)
		if err != nil {
			return apperrors.NewDatabaseError("record run", err)
		}
		return nil
	})
}
