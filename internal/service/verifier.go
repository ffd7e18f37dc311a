package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"wapool/internal/config"
	"wapool/internal/models"
	"wapool/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

// VerificationMethod names an AccountVerifier strategy.
type VerificationMethod string

const (
	MethodPhoneNumber VerificationMethod = config.MethodPhoneNumber
	MethodMessageSend VerificationMethod = config.MethodMessageSend
	MethodWABAStatus  VerificationMethod = config.MethodWABAStatus
)

// Verdict is the normalized health result for one app, applied to all of its numbers.
// Exactly one of the metadata pointers is set, matching Method.
type Verdict struct {
	Active    bool               `json:"active"`
	Error     string             `json:"error,omitempty"`
	ErrorCode string             `json:"errorCode,omitempty"`
	Method    VerificationMethod `json:"testMethod"`
	Analysis  *ErrorAnalysis     `json:"analysis,omitempty"`

	Phone   *PhoneProbeMetadata   `json:"phone,omitempty"`
	Message *MessageProbeMetadata `json:"message,omitempty"`
	WABA    *WABAProbeMetadata    `json:"waba,omitempty"`
}

// PhoneProbeMetadata is carried by the phone-number strategy.
type PhoneProbeMetadata struct {
	QualityRating      string `json:"qualityRating,omitempty"`
	DisplayPhoneNumber string `json:"displayPhoneNumber,omitempty"`
	VerifiedName       string `json:"verifiedName,omitempty"`
	VerificationStatus string `json:"verificationStatus,omitempty"`
}

// MessageProbeMetadata is carried by the message-send strategy.
type MessageProbeMetadata struct {
	MessageID       string     `json:"messageId,omitempty"`
	Diagnosis       string     `json:"diagnosis,omitempty"`
	WindowExpiresAt *time.Time `json:"windowExpiresAt,omitempty"`
	WindowExpired   bool       `json:"windowExpired"`
}

// WABAProbeMetadata is carried by the business-account strategy.
type WABAProbeMetadata struct {
	Name               string `json:"name,omitempty"`
	ReviewStatus       string `json:"reviewStatus,omitempty"`
	MessagingLimitTier string `json:"messagingLimitTier,omitempty"`
}

// AccountVerifier produces one verdict per app. Upstream failures are
// captured in the verdict; a returned error means no verdict could be formed
// and the app is skipped for this run.
type AccountVerifier interface {
	Method() VerificationMethod
	Verify(ctx context.Context, app *models.App) (Verdict, error)
}

// NewAccountVerifier builds the strategy named in the health check configuration.
func NewAccountVerifier(cfg models.Config, client whatsapp.Client, logger *logrus.Logger) (AccountVerifier, error) {
	switch VerificationMethod(cfg.HealthCheck.VerificationMethod) {
	case MethodPhoneNumber:
		return NewPhoneNumberVerifier(client), nil
	case MethodMessageSend:
		return NewMessageSendVerifier(client, cfg.WhatsApp.TestMessageText, logger), nil
	case MethodWABAStatus:
		return NewWABAStatusVerifier(client), nil
	default:
		return nil, fmt.Errorf("unknown verification method %q", cfg.HealthCheck.VerificationMethod)
	}
}

// failureVerdict turns a Graph client error into an inactive verdict with classifier metadata.
func failureVerdict(method VerificationMethod, err error) Verdict {
	failure := FailureFromError(err)
	analysis := ClassifyFailure(failure)

	verdict := Verdict{
		Active:   false,
		Error:    failure.Message,
		Method:   method,
		Analysis: &analysis,
	}
	if apiErr, ok := whatsapp.AsAPIError(err); ok {
		verdict.ErrorCode = strconv.Itoa(apiErr.ErrorCode())
	}
	if verdict.Error == "" {
		verdict.Error = err.Error()
	}
	return verdict
}

// ErrMissingCredential is returned when an app lacks the identifier a strategy needs.
type ErrMissingCredential struct {
	AppID string
	Field string
}

func (e *ErrMissingCredential) Error() string {
	return fmt.Sprintf("app %s has no %s configured", e.AppID, e.Field)
}

// metadata flattens the strategy metadata for audit entries and notifications.
func (v Verdict) metadata() map[string]interface{} {
	out := make(map[string]interface{})
	switch {
	case v.Message != nil:
		if v.Message.MessageID != "" {
			out["messageId"] = v.Message.MessageID
		}
		if v.Message.Diagnosis != "" {
			out["diagnosis"] = v.Message.Diagnosis
		}
		if v.Message.WindowExpiresAt != nil {
			out["windowExpiresAt"] = v.Message.WindowExpiresAt.UTC()
		}
		out["windowExpired"] = v.Message.WindowExpired
	case v.Phone != nil:
		if v.Phone.QualityRating != "" {
			out["qualityRating"] = v.Phone.QualityRating
		}
		if v.Phone.VerificationStatus != "" {
			out["verificationStatus"] = v.Phone.VerificationStatus
		}
	case v.WABA != nil:
		if v.WABA.ReviewStatus != "" {
			out["reviewStatus"] = v.WABA.ReviewStatus
		}
		if v.WABA.MessagingLimitTier != "" {
			out["messagingLimitTier"] = v.WABA.MessagingLimitTier
		}
	}
	return out
}

func (v Verdict) logFields() logrus.Fields {
	fields := logrus.Fields{
		"verdict_active":  v.Active,
		LogFieldErrorCode: v.ErrorCode,
	}
	switch {
	case v.Message != nil:
		fields["message_id"] = v.Message.MessageID
		fields["window_expired"] = v.Message.WindowExpired
	case v.Phone != nil:
		fields["quality_rating"] = v.Phone.QualityRating
	case v.WABA != nil:
		fields["review_status"] = v.WABA.ReviewStatus
	}
	return fields
}
