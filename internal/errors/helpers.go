package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(message)
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage(fmt.Sprintf("Invalid configuration %s: %s", key, message))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewAPIError creates an error for a failed Graph API call
func NewAPIError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeWhatsAppAPI, "whatsapp API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408
	return appErr
}

// NewWebhookError creates an error for a failed notification delivery
func NewWebhookError(statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeWebhook, "notification webhook failed").
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode == 0 || statusCode >= 500
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication required")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewConflictError reports an operation rejected because of the current state
func NewConflictError(message string) *AppError {
	return New(ErrCodeConflict, message).WithUserMessage(message)
}

// HTTPStatusCode maps error codes to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeWhatsAppAPI, ErrCodeWebhook:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the body written for failed API requests
type HTTPErrorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
}

// ToHTTPResponse converts an error to the API error body
func ToHTTPResponse(err error) HTTPErrorResponse {
	return HTTPErrorResponse{
		Error: GetUserMessage(err),
		Code:  GetCode(err),
	}
}
