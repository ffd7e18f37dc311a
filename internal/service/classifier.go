package service

import (
	"net/http"

	"wapool/pkg/whatsapp"
)

// Severity grades how serious an upstream failure is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ErrorAnalysis is descriptive metadata attached to a failed verdict.
// The failure counter, not ShouldRemove, drives transitions.
type ErrorAnalysis struct {
	IsBanned     bool     `json:"isBanned"`
	IsTemporary  bool     `json:"isTemporary"`
	ShouldRemove bool     `json:"shouldRemove"`
	Severity     Severity `json:"severity"`
}

// UpstreamFailure is the classifier input. HasResponse is false for
// network errors and timeouts.
type UpstreamFailure struct {
	HasResponse bool
	StatusCode  int
	Code        int
	Message     string
}

var permanentVendorCodes = map[int]struct{}{
	4: {}, 33: {}, 80007: {}, 131031: {}, 131042: {}, 131047: {},
	131048: {}, 131051: {}, 200: {}, 190: {}, 368: {},
}

var temporaryVendorCodes = map[int]struct{}{
	1: {}, 2: {}, 10: {}, 130429: {}, 131056: {},
}

// ClassifyFailure applies the ordered classification rules; the first match wins.
func ClassifyFailure(f UpstreamFailure) ErrorAnalysis {
	if !f.HasResponse {
		return ErrorAnalysis{IsTemporary: true, Severity: SeverityLow}
	}

	if f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusForbidden {
		return ErrorAnalysis{IsBanned: true, ShouldRemove: true, Severity: SeverityHigh}
	}

	if _, ok := permanentVendorCodes[f.Code]; ok {
		return ErrorAnalysis{IsBanned: true, Severity: SeverityHigh}
	}

	if _, ok := temporaryVendorCodes[f.Code]; ok || f.StatusCode >= 500 {
		return ErrorAnalysis{IsTemporary: true, Severity: SeverityMedium}
	}

	if f.StatusCode == http.StatusNotFound {
		return ErrorAnalysis{IsBanned: true, ShouldRemove: true, Severity: SeverityHigh}
	}

	return ErrorAnalysis{Severity: SeverityLow}
}

// FailureFromError converts a Graph client error into classifier input.
func FailureFromError(err error) UpstreamFailure {
	if apiErr, ok := whatsapp.AsAPIError(err); ok {
		return UpstreamFailure{
			HasResponse: true,
			StatusCode:  apiErr.StatusCode,
			Code:        apiErr.Code,
			Message:     apiErr.Message,
		}
	}
	return UpstreamFailure{Message: err.Error()}
}
