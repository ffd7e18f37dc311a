package models

import (
	"sort"
	"time"
)

// App is one WhatsApp Business integration and the numbers it owns.
type App struct {
	AppID                    string             `json:"appId"`
	AppName                  string             `json:"appName"`
	Token                    string             `json:"token"`
	WABAID                   string             `json:"wabaId,omitempty"`
	PhoneNumberID            string             `json:"phoneNumberId,omitempty"`
	TestPhoneNumber          string             `json:"testPhoneNumber,omitempty"`
	LastMessageWindowRenewal *time.Time         `json:"lastMessageWindowRenewal"`
	Numbers                  map[string]*Number `json:"numbers"`
	CreatedAt                time.Time          `json:"createdAt"`
	UpdatedAt                time.Time          `json:"updatedAt"`
}

// SortedNumbers returns the app's number keys in ascending order.
func (a *App) SortedNumbers() []string {
	keys := make([]string, 0, len(a.Numbers))
	for k := range a.Numbers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NumberState is derived from Active and FailedChecks, never stored.
type NumberState string

const (
	StateActive      NumberState = "active"
	StateQuarantined NumberState = "quarantined"
	StateDisabled    NumberState = "disabled"
	StatePaused      NumberState = "paused"
)

// Number is a phone number in the rotation pool.
type Number struct {
	Number             string     `json:"number"`
	Active             bool       `json:"active"`
	Paused             bool       `json:"paused"`
	LastCheck          *time.Time `json:"lastCheck"`
	Error              string     `json:"error,omitempty"`
	ErrorCode          string     `json:"errorCode,omitempty"`
	FailedChecks       int        `json:"failedChecks"`
	AddedAt            time.Time  `json:"addedAt"`
	LastStatusChange   time.Time  `json:"lastStatusChange"`
	QualityRating      string     `json:"qualityRating,omitempty"`
	DisplayPhoneNumber string     `json:"displayPhoneNumber,omitempty"`
	VerifiedName       string     `json:"verifiedName,omitempty"`
}

// NewNumber returns an active number with a clean failure history.
func NewNumber(number string, now time.Time) *Number {
	return &Number{
		Number:           number,
		Active:           true,
		AddedAt:          now,
		LastStatusChange: now,
	}
}

// State classifies the number against the configured failure threshold.
func (n *Number) State(maxFailedChecks int) NumberState {
	switch {
	case n.Active:
		return StateActive
	case n.Paused:
		return StatePaused
	case n.FailedChecks >= maxFailedChecks:
		return StateDisabled
	default:
		return StateQuarantined
	}
}

// InQuarantine reports 0 < failedChecks < max.
func (n *Number) InQuarantine(maxFailedChecks int) bool {
	return n.FailedChecks > 0 && n.FailedChecks < maxFailedChecks
}
