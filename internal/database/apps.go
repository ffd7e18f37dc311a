package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "wapool/internal/errors"
	"wapool/internal/models"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const appColumns = `app_id, app_name, token, waba_id, phone_number_id, test_phone_number,
	last_window_renewal, created_at, updated_at`

const numberColumns = `app_id, number, active, paused, last_check, error, error_code, failed_checks,
	added_at, last_status_change, quality_rating, display_phone_number, verified_name`

// ListApps returns every app with its numbers, in insertion order.
func (d *Database) ListApps(ctx context.Context) ([]*models.App, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+appColumns+` FROM apps ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list apps", err)
	}
	defer rows.Close()

	var apps []*models.App
	byID := make(map[string]*models.App)
	for rows.Next() {
		app, err := d.scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
		byID[app.AppID] = app
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list apps", err)
	}

	numberRows, err := d.db.QueryContext(ctx, `SELECT `+numberColumns+` FROM numbers ORDER BY app_id, number`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list numbers", err)
	}
	defer numberRows.Close()

	for numberRows.Next() {
		appID, number, err := scanNumber(numberRows)
		if err != nil {
			return nil, err
		}
		if app, ok := byID[appID]; ok {
			app.Numbers[number.Number] = number
		}
	}
	if err := numberRows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list numbers", err)
	}

	return apps, nil
}

// GetApp returns the app with its numbers, or nil when it does not exist.
func (d *Database) GetApp(ctx context.Context, appID string) (*models.App, error) {
	return d.loadApp(ctx, d.db, appID)
}

// SaveApp creates the app or updates its credentials and name, leaving numbers untouched.
func (d *Database) SaveApp(ctx context.Context, app *models.App) (bool, error) {
	token, err := d.encryptor.seal(app.Token)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt token: %w", err)
	}

	var created bool
	err = d.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		var createdAt time.Time
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM apps WHERE app_id = ?`, app.AppID).Scan(&createdAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO apps (app_id, app_name, token, waba_id, phone_number_id, test_phone_number,
					last_window_renewal, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				app.AppID, app.AppName, token, app.WABAID, app.PhoneNumberID, app.TestPhoneNumber,
				nullTime(app.LastMessageWindowRenewal), now, now,
			); err != nil {
				return apperrors.NewDatabaseError("insert app", err)
			}
			app.CreatedAt = now
		case err != nil:
			return apperrors.NewDatabaseError("lookup app", err)
		default:
			created = false
			if _, err := tx.ExecContext(ctx, `
				UPDATE apps SET app_name = ?, token = ?, waba_id = ?, phone_number_id = ?,
					test_phone_number = ?, updated_at = ?
				WHERE app_id = ?`,
				app.AppName, token, app.WABAID, app.PhoneNumberID, app.TestPhoneNumber, now, app.AppID,
			); err != nil {
				return apperrors.NewDatabaseError("update app", err)
			}
			app.CreatedAt = createdAt
		}
		app.UpdatedAt = now
		return nil
	})
	return created, err
}

// DeleteApp removes the app and, by cascade, its numbers.
func (d *Database) DeleteApp(ctx context.Context, appID string) (bool, error) {
	var deleted bool
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM numbers WHERE app_id = ?`, appID); err != nil {
			return apperrors.NewDatabaseError("delete numbers", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM apps WHERE app_id = ?`, appID)
		if err != nil {
			return apperrors.NewDatabaseError("delete app", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.NewDatabaseError("delete app", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// UpdateApp loads the app inside a write transaction, lets mutate change it and
// persists the app row and its full number collection. mutate may run more than
// once if the transaction is retried; only the last run is committed.
func (d *Database) UpdateApp(ctx context.Context, appID string, mutate func(app *models.App) error) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		app, err := d.loadApp(ctx, tx, appID)
		if err != nil {
			return err
		}
		if app == nil {
			return apperrors.NewNotFoundError("app", appID)
		}

		if err := mutate(app); err != nil {
			return err
		}

		return d.writeApp(ctx, tx, app)
	})
}

func (d *Database) writeApp(ctx context.Context, tx *sql.Tx, app *models.App) error {
	token, err := d.encryptor.seal(app.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	app.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE apps SET app_name = ?, token = ?, waba_id = ?, phone_number_id = ?, test_phone_number = ?,
			last_window_renewal = ?, updated_at = ?
		WHERE app_id = ?`,
		app.AppName, token, app.WABAID, app.PhoneNumberID, app.TestPhoneNumber,
		nullTime(app.LastMessageWindowRenewal), app.UpdatedAt, app.AppID,
	); err != nil {
		return apperrors.NewDatabaseError("update app", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM numbers WHERE app_id = ?`, app.AppID); err != nil {
		return apperrors.NewDatabaseError("replace numbers", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO numbers (`+numberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewDatabaseError("prepare number insert", err)
	}
	defer stmt.Close()

	for _, key := range app.SortedNumbers() {
		n := app.Numbers[key]
		if _, err := stmt.ExecContext(ctx,
			app.AppID, key, n.Active, n.Paused, nullTime(n.LastCheck), n.Error, n.ErrorCode, n.FailedChecks,
			n.AddedAt.UTC(), n.LastStatusChange.UTC(), n.QualityRating, n.DisplayPhoneNumber, n.VerifiedName,
		); err != nil {
			return apperrors.NewDatabaseError("insert number", err)
		}
	}
	return nil
}

func (d *Database) loadApp(ctx context.Context, q queryer, appID string) (*models.App, error) {
	row := q.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE app_id = ?`, appID)
	app, err := d.scanApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT `+numberColumns+` FROM numbers WHERE app_id = ? ORDER BY number`, appID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load numbers", err)
	}
	defer rows.Close()

	for rows.Next() {
		_, number, err := scanNumber(rows)
		if err != nil {
			return nil, err
		}
		app.Numbers[number.Number] = number
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("load numbers", err)
	}
	return app, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanApp(s scanner) (*models.App, error) {
	var (
		app     models.App
		token   string
		renewal sql.NullTime
	)
	err := s.Scan(&app.AppID, &app.AppName, &token, &app.WABAID, &app.PhoneNumberID, &app.TestPhoneNumber,
		&renewal, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan app", err)
	}

	app.Token, err = d.encryptor.open(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token for app %s: %w", app.AppID, err)
	}
	app.LastMessageWindowRenewal = timePtr(renewal)
	app.Numbers = make(map[string]*models.Number)
	return &app, nil
}

func scanNumber(s scanner) (string, *models.Number, error) {
	var (
		appID     string
		n         models.Number
		lastCheck sql.NullTime
	)
	err := s.Scan(&appID, &n.Number, &n.Active, &n.Paused, &lastCheck, &n.Error, &n.ErrorCode, &n.FailedChecks,
		&n.AddedAt, &n.LastStatusChange, &n.QualityRating, &n.DisplayPhoneNumber, &n.VerifiedName)
	if err != nil {
		return "", nil, apperrors.NewDatabaseError("scan number", err)
	}
	n.LastCheck = timePtr(lastCheck)
	return appID, &n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
