package service

import (
	"context"

	"wapool/internal/models"
	"wapool/pkg/whatsapp"
	"wapool/pkg/whatsapp/types"
)

const (
	ErrorCodeQualityRed  = "QUALITY_RED"
	ErrorCodeNotVerified = "NOT_VERIFIED"
)

// PhoneNumberVerifier reads the app's phone-number node and judges it by
// quality rating and code verification status.
type PhoneNumberVerifier struct {
	client whatsapp.Client
}

func NewPhoneNumberVerifier(client whatsapp.Client) *PhoneNumberVerifier {
	return &PhoneNumberVerifier{client: client}
}

func (v *PhoneNumberVerifier) Method() VerificationMethod {
	return MethodPhoneNumber
}

func (v *PhoneNumberVerifier) Verify(ctx context.Context, app *models.App) (Verdict, error) {
	if app.Token == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "token"}
	}
	if app.PhoneNumberID == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "phoneNumberId"}
	}

	phone, err := v.client.GetPhoneNumber(ctx, app.Token, app.PhoneNumberID)
	if err != nil {
		return failureVerdict(MethodPhoneNumber, err), nil
	}

	meta := &PhoneProbeMetadata{
		QualityRating:      phone.QualityRating,
		DisplayPhoneNumber: phone.DisplayPhoneNumber,
		VerifiedName:       phone.VerifiedName,
		VerificationStatus: phone.CodeVerificationStatus,
	}

	if phone.QualityRating == types.QualityRed {
		return Verdict{
			Error:     "Quality rating too low (RED)",
			ErrorCode: ErrorCodeQualityRed,
			Method:    MethodPhoneNumber,
			Analysis:  &ErrorAnalysis{IsBanned: true, IsTemporary: true, Severity: SeverityHigh},
			Phone:     meta,
		}, nil
	}

	if phone.CodeVerificationStatus == types.CodeVerificationNotVerified {
		return Verdict{
			Error:     "Phone number not verified",
			ErrorCode: ErrorCodeNotVerified,
			Method:    MethodPhoneNumber,
			Analysis:  &ErrorAnalysis{IsTemporary: true, Severity: SeverityMedium},
			Phone:     meta,
		}, nil
	}

	return Verdict{Active: true, Method: MethodPhoneNumber, Phone: meta}, nil
}
