package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wapool/internal/constants"
	apperrors "wapool/internal/errors"
	"wapool/internal/models"
)

// AppendLog persists entry and prunes the log down to the retention window.
func (d *Database) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data := entry.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode log data: %w", err)
	}

	return d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO audit_logs (timestamp, type, message, data) VALUES (?, ?, ?, ?)`,
			entry.Timestamp.UTC(), string(entry.Type), entry.Message, string(payload),
		)
		if err != nil {
			return apperrors.NewDatabaseError("insert log", err)
		}
		if entry.ID, err = res.LastInsertId(); err != nil {
			return apperrors.NewDatabaseError("insert log", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM audit_logs WHERE id NOT IN (
				SELECT id FROM audit_logs ORDER BY id DESC LIMIT ?
			)`, d.auditRetention,
		); err != nil {
			return apperrors.NewDatabaseError("prune logs", err)
		}
		return nil
	})
}

// ListLogs returns entries newest first together with the number of entries matching the filter.
func (d *Database) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultLogListLimit
	}

	where := ""
	var args []interface{}
	if filter.Type != "" {
		where = " WHERE type = ?"
		args = append(args, string(filter.Type))
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewDatabaseError("count logs", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, timestamp, type, message, data FROM audit_logs`+where+` ORDER BY id DESC LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list logs", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, limit)
	for rows.Next() {
		var (
			entry   models.LogEntry
			logType string
			payload string
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &logType, &entry.Message, &payload); err != nil {
			return nil, 0, apperrors.NewDatabaseError("scan log", err)
		}
		entry.Type = models.LogType(logType)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &entry.Data); err != nil {
				d.logger.WithError(err).WithField("log_id", entry.ID).Warn("Skipping malformed log data")
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewDatabaseError("list logs", err)
	}
	return entries, total, nil
}

// ClearLogs removes every audit entry.
func (d *Database) ClearLogs(ctx context.Context) error {
	return withRetryNoReturn(ctx, func() error {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM audit_logs`); err != nil {
			return apperrors.NewDatabaseError("clear logs", err)
		}
		return nil
	})
}
