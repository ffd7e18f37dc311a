package service

import (
	"testing"
	"time"

	"wapool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0           = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	inactive131k = Verdict{Error: "window expired", ErrorCode: "131047", Method: MethodWABAStatus}
	activeOK     = Verdict{Active: true, Method: MethodWABAStatus}
)

func TestStateMachine_ThreeFailuresDisable(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := models.NewNumber("5511999990000", t0)

	tr := sm.Apply(n, inactive131k, t0.Add(time.Minute))
	assert.Equal(t, TransitionQuarantine, tr.Kind)
	assert.Equal(t, models.StateActive, tr.From)
	assert.Equal(t, models.StateQuarantined, tr.To)
	assert.False(t, n.Active)
	assert.Equal(t, 1, n.FailedChecks)
	assert.Equal(t, "131047", n.ErrorCode)
	assert.Equal(t, t0.Add(time.Minute), n.LastStatusChange)

	tr = sm.Apply(n, inactive131k, t0.Add(2*time.Minute))
	assert.Equal(t, TransitionRetry, tr.Kind)
	assert.False(t, tr.Kind.Notifies())
	assert.Equal(t, 2, n.FailedChecks)

	tr = sm.Apply(n, inactive131k, t0.Add(3*time.Minute))
	assert.Equal(t, TransitionDisabled, tr.Kind)
	assert.Equal(t, models.StateDisabled, tr.To)
	assert.Equal(t, 3, n.FailedChecks)
	assert.Equal(t, 3, tr.FailedChecks)

	for i := 0; i < 3; i++ {
		tr = sm.Apply(n, inactive131k, t0.Add(time.Hour))
		assert.Equal(t, TransitionHeld, tr.Kind)
		assert.False(t, tr.Kind.Notifies())
		assert.Equal(t, 3, n.FailedChecks)
	}
	assert.Equal(t, t0.Add(3*time.Minute), n.LastStatusChange)
}

func TestStateMachine_RemoveVariant(t *testing.T) {
	sm := NewStateMachine(2, TerminalRemove)
	n := models.NewNumber("5511999990000", t0)

	sm.Apply(n, inactive131k, t0)
	tr := sm.Apply(n, inactive131k, t0)
	assert.Equal(t, TransitionRemoved, tr.Kind)
	assert.Empty(t, tr.To)
	assert.True(t, tr.Kind.Notifies())
}

func TestStateMachine_Recovery(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := &models.Number{Number: "1", FailedChecks: 2, Error: "x", ErrorCode: "131047", LastStatusChange: t0}

	tr := sm.Apply(n, activeOK, t0.Add(time.Hour))
	assert.Equal(t, TransitionRecovered, tr.Kind)
	assert.Equal(t, models.StateQuarantined, tr.From)
	assert.Equal(t, models.StateActive, tr.To)
	assert.True(t, n.Active)
	assert.Zero(t, n.FailedChecks)
	assert.Empty(t, n.Error)
	assert.Empty(t, n.ErrorCode)
	assert.Equal(t, t0.Add(time.Hour), n.LastStatusChange)
}

func TestStateMachine_RecoveryFromDisabled(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := &models.Number{Number: "1", FailedChecks: 3}

	tr := sm.Apply(n, activeOK, t0)
	assert.Equal(t, TransitionRecovered, tr.Kind)
	assert.Equal(t, models.StateDisabled, tr.From)
	assert.True(t, n.Active)
}

func TestStateMachine_ActiveIsIdempotent(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := models.NewNumber("1", t0)

	tr := sm.Apply(n, activeOK, t0.Add(time.Minute))
	assert.Equal(t, TransitionNone, tr.Kind)
	assert.True(t, n.Active)
	assert.Zero(t, n.FailedChecks)
	assert.Empty(t, n.Error)
	assert.Equal(t, t0, n.LastStatusChange)
	require.NotNil(t, n.LastCheck)
	assert.Equal(t, t0.Add(time.Minute), *n.LastCheck)
}

func TestStateMachine_MetadataOnSuccess(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := models.NewNumber("1", t0)

	sm.Apply(n, Verdict{Active: true, Method: MethodPhoneNumber, Phone: &PhoneProbeMetadata{QualityRating: "GREEN", VerifiedName: "Acme"}}, t0)
	assert.Equal(t, "GREEN", n.QualityRating)
	assert.Equal(t, "Acme", n.VerifiedName)
}

func TestStateMachine_PausedNumberUntouched(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := &models.Number{Number: "1", Paused: true}

	tr := sm.Apply(n, inactive131k, t0)
	assert.Equal(t, TransitionPaused, tr.Kind)
	assert.Zero(t, n.FailedChecks)

	tr = sm.Apply(n, activeOK, t0)
	assert.Equal(t, TransitionPaused, tr.Kind)
	assert.False(t, n.Active)
	require.NotNil(t, n.LastCheck)
}

func TestStateMachine_CounterInvariant(t *testing.T) {
	sm := NewStateMachine(3, TerminalDisable)
	n := models.NewNumber("1", t0)
	verdicts := []Verdict{inactive131k, activeOK, inactive131k, inactive131k, inactive131k, inactive131k, activeOK, activeOK, inactive131k}

	for _, v := range verdicts {
		sm.Apply(n, v, t0)
		assert.GreaterOrEqual(t, n.FailedChecks, 0)
		assert.LessOrEqual(t, n.FailedChecks, 3)
		if n.Active {
			assert.Zero(t, n.FailedChecks)
		}
	}
}

func TestNewStateMachine_Defaults(t *testing.T) {
	sm := NewStateMachine(0, "explode")
	assert.Equal(t, 1, sm.MaxFailedChecks)
	assert.Equal(t, TerminalDisable, sm.TerminalAction)
}
