package service

import (
	"time"

	"wapool/internal/config"
	"wapool/internal/models"
)

// TransitionKind is the outcome of applying one verdict to one number.
type TransitionKind string

const (
	TransitionNone       TransitionKind = "none"
	TransitionRecovered  TransitionKind = "recovered"
	TransitionQuarantine TransitionKind = "quarantined"
	TransitionRetry      TransitionKind = "retry"
	TransitionDisabled   TransitionKind = "disabled"
	TransitionRemoved    TransitionKind = "removed"
	TransitionHeld       TransitionKind = "held"
	TransitionPaused     TransitionKind = "paused"
)

// Notifies reports whether the transition must produce a log entry and notification.
func (k TransitionKind) Notifies() bool {
	switch k {
	case TransitionRecovered, TransitionQuarantine, TransitionDisabled, TransitionRemoved:
		return true
	}
	return false
}

// TerminalAction is what happens when failedChecks reaches the maximum.
type TerminalAction string

const (
	TerminalDisable TerminalAction = config.TerminalActionDisable
	TerminalRemove  TerminalAction = config.TerminalActionRemove
)

// Transition records the effect of one verdict on one number.
type Transition struct {
	Number       string             `json:"number"`
	Kind         TransitionKind     `json:"kind"`
	From         models.NumberState `json:"from"`
	To           models.NumberState `json:"to"`
	FailedChecks int                `json:"failedChecks"`
}

// StateMachine advances a number's failure counter and activation flag.
type StateMachine struct {
	MaxFailedChecks int
	TerminalAction  TerminalAction
}

func NewStateMachine(maxFailedChecks int, action TerminalAction) StateMachine {
	if maxFailedChecks <= 0 {
		maxFailedChecks = 1
	}
	if action != TerminalRemove {
		action = TerminalDisable
	}
	return StateMachine{MaxFailedChecks: maxFailedChecks, TerminalAction: action}
}

// Apply mutates n according to v and returns the resulting transition.
// A TransitionRemoved result means the caller must delete the number.
func (sm StateMachine) Apply(n *models.Number, v Verdict, now time.Time) (t Transition) {
	from := n.State(sm.MaxFailedChecks)
	checked := now
	n.LastCheck = &checked

	t = Transition{Number: n.Number, From: from}
	defer func() {
		t.FailedChecks = n.FailedChecks
		if t.Kind != TransitionRemoved {
			t.To = n.State(sm.MaxFailedChecks)
		}
	}()

	if n.Paused {
		t.Kind = TransitionPaused
		return t
	}

	if v.Active {
		applyMetadata(n, v)
		if !n.Active || n.FailedChecks > 0 {
			n.Active = true
			n.FailedChecks = 0
			n.Error = ""
			n.ErrorCode = ""
			n.LastStatusChange = now
			t.Kind = TransitionRecovered
			return t
		}
		t.Kind = TransitionNone
		return t
	}

	n.Error = v.Error
	n.ErrorCode = v.ErrorCode

	if n.FailedChecks >= sm.MaxFailedChecks {
		n.FailedChecks = sm.MaxFailedChecks
		n.Active = false
		t.Kind = TransitionHeld
		return t
	}

	if n.Active {
		n.LastStatusChange = now
	}
	n.Active = false
	n.FailedChecks++

	switch {
	case n.FailedChecks >= sm.MaxFailedChecks:
		n.LastStatusChange = now
		if sm.TerminalAction == TerminalRemove {
			t.Kind = TransitionRemoved
			t.To = ""
		} else {
			t.Kind = TransitionDisabled
		}
	case n.FailedChecks == 1:
		t.Kind = TransitionQuarantine
	default:
		t.Kind = TransitionRetry
	}
	return t
}

func applyMetadata(n *models.Number, v Verdict) {
	if v.Phone == nil {
		return
	}
	if v.Phone.QualityRating != "" {
		n.QualityRating = v.Phone.QualityRating
	}
	if v.Phone.DisplayPhoneNumber != "" {
		n.DisplayPhoneNumber = v.Phone.DisplayPhoneNumber
	}
	if v.Phone.VerifiedName != "" {
		n.VerifiedName = v.Phone.VerifiedName
	}
}
