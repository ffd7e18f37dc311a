package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "wapool/internal/errors"
	"wapool/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, retention int) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"), retention, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testApp(id string) *models.App {
	return &models.App{
		AppID:         id,
		AppName:       "App " + id,
		Token:         "EAAG-token-" + id,
		WABAID:        "waba-" + id,
		PhoneNumberID: "pn-" + id,
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(context.Background(), "../outside.db", 0, nil)
	assert.Error(t, err)
}

func TestSaveApp_CreateThenUpdate(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()

	created, err := db.SaveApp(ctx, testApp("a1"))
	require.NoError(t, err)
	assert.True(t, created)

	update := testApp("a1")
	update.AppName = "Renamed"
	update.Token = "new-token"
	created, err = db.SaveApp(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)

	app, err := db.GetApp(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "Renamed", app.AppName)
	assert.Equal(t, "new-token", app.Token)
	assert.Equal(t, "waba-a1", app.WABAID)
	assert.Empty(t, app.Numbers)
}

func TestGetApp_Missing(t *testing.T) {
	db := setupTestDB(t, 0)

	app, err := db.GetApp(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestUpdateApp_PersistsNumbers(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()
	_, err := db.SaveApp(ctx, testApp("a1"))
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = db.UpdateApp(ctx, "a1", func(app *models.App) error {
		app.Numbers["5511999990001"] = models.NewNumber("5511999990001", now)
		n := models.NewNumber("5511999990002", now)
		n.Active = false
		n.FailedChecks = 2
		n.Error = "Account restricted"
		n.ErrorCode = "131031"
		n.LastCheck = &now
		app.Numbers[n.Number] = n
		app.LastMessageWindowRenewal = &now
		return nil
	})
	require.NoError(t, err)

	app, err := db.GetApp(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, app.Numbers, 2)

	n := app.Numbers["5511999990002"]
	assert.False(t, n.Active)
	assert.Equal(t, 2, n.FailedChecks)
	assert.Equal(t, "131031", n.ErrorCode)
	require.NotNil(t, n.LastCheck)
	assert.True(t, now.Equal(*n.LastCheck))
	require.NotNil(t, app.LastMessageWindowRenewal)
	assert.True(t, now.Equal(*app.LastMessageWindowRenewal))

	err = db.UpdateApp(ctx, "a1", func(app *models.App) error {
		delete(app.Numbers, "5511999990001")
		return nil
	})
	require.NoError(t, err)

	app, err = db.GetApp(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, app.Numbers, 1)
}

func TestUpdateApp_Errors(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()

	err := db.UpdateApp(ctx, "missing", func(app *models.App) error { return nil })
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

	_, err = db.SaveApp(ctx, testApp("a1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.UpdateApp(ctx, "a1", func(app *models.App) error {
		app.Numbers["5511999990001"] = models.NewNumber("5511999990001", time.Now())
		return boom
	})
	assert.ErrorIs(t, err, boom)

	app, err := db.GetApp(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, app.Numbers, "rolled back mutation must not persist")
}

func TestListApps_OrderAndDelete(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		_, err := db.SaveApp(ctx, testApp(id))
		require.NoError(t, err)
	}
	require.NoError(t, db.UpdateApp(ctx, "a", func(app *models.App) error {
		app.Numbers["5511999990001"] = models.NewNumber("5511999990001", time.Now())
		return nil
	}))

	apps, err := db.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{apps[0].AppID, apps[1].AppID, apps[2].AppID})
	assert.Len(t, apps[1].Numbers, 1)

	deleted, err := db.DeleteApp(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteApp(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	var orphans int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM numbers WHERE app_id = 'a'`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestStats_RecordRun(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChecks)
	assert.Nil(t, stats.LastHealthCheck)

	finished := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	require.NoError(t, db.RecordRun(ctx, models.StatsDelta{Bans: 1, Recoveries: 0, FinishedAt: finished}))
	require.NoError(t, db.RecordRun(ctx, models.StatsDelta{Bans: 0, Recoveries: 2, FinishedAt: finished}))

	stats, err = db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.TotalBans)
	assert.Equal(t, int64(2), stats.TotalRecoveries)
	require.NotNil(t, stats.LastHealthCheck)
	assert.True(t, finished.Equal(*stats.LastHealthCheck))
}

func TestAuditLog_RetentionAndFilter(t *testing.T) {
	db := setupTestDB(t, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		logType := models.LogTypeHealthCheck
		if i%2 == 0 {
			logType = models.LogTypeBan
		}
		require.NoError(t, db.AppendLog(ctx, &models.LogEntry{
			Type:    logType,
			Message: fmt.Sprintf("entry %d", i),
			Data:    map[string]interface{}{"seq": i},
		}))
	}

	entries, total, err := db.ListLogs(ctx, models.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 5)
	assert.Equal(t, "entry 7", entries[0].Message)
	assert.Equal(t, float64(7), entries[0].Data["seq"])

	entries, total, err = db.ListLogs(ctx, models.LogFilter{Type: models.LogTypeBan, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry 6", entries[0].Message)

	require.NoError(t, db.ClearLogs(ctx))
	entries, total, err = db.ListLogs(ctx, models.LogFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, entries)
}

func TestTokenEncryptionAtRest(t *testing.T) {
	t.Setenv(envEnableEncryption, "true")
	t.Setenv(envEncryptionSecret, strings.Repeat("s", 32))

	db := setupTestDB(t, 0)
	ctx := context.Background()
	assert.True(t, db.EncryptionEnabled())

	_, err := db.SaveApp(ctx, testApp("a1"))
	require.NoError(t, err)

	var stored string
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT token FROM apps WHERE app_id = 'a1'`).Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, cipherPrefix))

	app, err := db.GetApp(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "EAAG-token-a1", app.Token)
}

func TestEncryptor_ShortSecret(t *testing.T) {
	t.Setenv(envEnableEncryption, "true")
	t.Setenv(envEncryptionSecret, "short")

	_, err := newEncryptor()
	assert.Error(t, err)
}

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("disk I/O error"), true},
		{context.Canceled, false},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableDBError(tt.err), "%v", tt.err)
	}
}
