package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is a response from the Graph API with a non-2xx status.
type APIError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// ErrorCode is the vendor code when present, the HTTP status otherwise.
func (e *APIError) ErrorCode() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.StatusCode
}

// TransportError means no HTTP response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request hit a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
