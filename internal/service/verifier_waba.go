package service

import (
	"context"

	"wapool/internal/models"
	"wapool/pkg/whatsapp"
	"wapool/pkg/whatsapp/types"
)

const (
	ErrorCodeWABARejected   = "WABA_REJECTED"
	ErrorCodeWABARestricted = "WABA_RESTRICTED"
	ErrorCodeWABAPending    = "WABA_PENDING"
	ErrorCodeNoMessaging    = "NO_MESSAGING_PERMISSION"
)

// WABAStatusVerifier judges the business account as a whole by its review
// status and messaging limit tier.
type WABAStatusVerifier struct {
	client whatsapp.Client
}

func NewWABAStatusVerifier(client whatsapp.Client) *WABAStatusVerifier {
	return &WABAStatusVerifier{client: client}
}

func (v *WABAStatusVerifier) Method() VerificationMethod {
	return MethodWABAStatus
}

func (v *WABAStatusVerifier) Verify(ctx context.Context, app *models.App) (Verdict, error) {
	if app.Token == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "token"}
	}
	if app.WABAID == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "wabaId"}
	}

	account, err := v.client.GetBusinessAccount(ctx, app.Token, app.WABAID)
	if err != nil {
		return failureVerdict(MethodWABAStatus, err), nil
	}
	return EvaluateBusinessAccount(account), nil
}

// EvaluateBusinessAccount maps a business account node to a verdict.
func EvaluateBusinessAccount(account *types.BusinessAccount) Verdict {
	meta := &WABAProbeMetadata{
		Name:               account.Name,
		ReviewStatus:       account.AccountReviewStatus,
		MessagingLimitTier: account.MessagingLimitTier,
	}
	verdict := Verdict{Method: MethodWABAStatus, WABA: meta}

	switch account.AccountReviewStatus {
	case types.ReviewRejected:
		verdict.Error = "Business account rejected in review"
		verdict.ErrorCode = ErrorCodeWABARejected
		verdict.Analysis = &ErrorAnalysis{IsBanned: true, Severity: SeverityHigh}
		return verdict
	case types.ReviewRestricted:
		verdict.Error = "Business account restricted"
		verdict.ErrorCode = ErrorCodeWABARestricted
		verdict.Analysis = &ErrorAnalysis{IsBanned: true, Severity: SeverityHigh}
		return verdict
	case types.ReviewPending:
		verdict.Error = "Business account review pending"
		verdict.ErrorCode = ErrorCodeWABAPending
		verdict.Analysis = &ErrorAnalysis{IsTemporary: true, Severity: SeverityMedium}
		return verdict
	}

	if account.MessagingLimitTier == "" || account.MessagingLimitTier == types.TierNoPermission {
		verdict.Error = "Account has no messaging permission"
		verdict.ErrorCode = ErrorCodeNoMessaging
		verdict.Analysis = &ErrorAnalysis{Severity: SeverityMedium}
		return verdict
	}

	verdict.Active = true
	return verdict
}
