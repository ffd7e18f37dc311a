package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber_State(t *testing.T) {
	tests := []struct {
		name   string
		number Number
		want   NumberState
	}{
		{"active", Number{Active: true}, StateActive},
		{"first failure", Number{FailedChecks: 1}, StateQuarantined},
		{"below max", Number{FailedChecks: 2}, StateQuarantined},
		{"at max", Number{FailedChecks: 3}, StateDisabled},
		{"paused by operator", Number{Paused: true}, StatePaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.number.State(3))
		})
	}
}

func TestNumber_InQuarantine(t *testing.T) {
	assert.False(t, (&Number{FailedChecks: 0}).InQuarantine(3))
	assert.True(t, (&Number{FailedChecks: 1}).InQuarantine(3))
	assert.True(t, (&Number{FailedChecks: 2}).InQuarantine(3))
	assert.False(t, (&Number{FailedChecks: 3}).InQuarantine(3))
}

func TestNewNumber(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NewNumber("5511999990000", now)

	assert.True(t, n.Active)
	assert.Zero(t, n.FailedChecks)
	assert.Equal(t, now, n.AddedAt)
	assert.Equal(t, now, n.LastStatusChange)
	assert.Nil(t, n.LastCheck)
}

func TestApp_SortedNumbers(t *testing.T) {
	app := &App{Numbers: map[string]*Number{"3": {}, "1": {}, "2": {}}}
	assert.Equal(t, []string{"1", "2", "3"}, app.SortedNumbers())
}

func TestLogType_Valid(t *testing.T) {
	assert.True(t, LogTypeBan.Valid())
	assert.True(t, LogType("health_check").Valid())
	assert.False(t, LogType("bogus").Valid())
}
