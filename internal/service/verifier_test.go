package service

import (
	"context"
	"testing"
	"time"

	"wapool/internal/models"
	"wapool/pkg/whatsapp"
	"wapool/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestPhoneNumberVerifier(t *testing.T) {
	tests := []struct {
		name       string
		phone      *types.PhoneNumber
		err        error
		wantActive bool
		wantCode   string
		wantError  string
		wantBanned bool
	}{
		{
			name:       "green quality",
			phone:      &types.PhoneNumber{QualityRating: types.QualityGreen, DisplayPhoneNumber: "+1 555", VerifiedName: "Acme"},
			wantActive: true,
		},
		{
			name:       "red quality",
			phone:      &types.PhoneNumber{QualityRating: types.QualityRed},
			wantCode:   ErrorCodeQualityRed,
			wantError:  "Quality rating too low (RED)",
			wantBanned: true,
		},
		{
			name:      "not verified",
			phone:     &types.PhoneNumber{QualityRating: types.QualityGreen, CodeVerificationStatus: types.CodeVerificationNotVerified},
			wantCode:  ErrorCodeNotVerified,
			wantError: "Phone number not verified",
		},
		{
			name:       "api error",
			err:        &whatsapp.APIError{StatusCode: 400, Code: 131031, Message: "Account locked"},
			wantCode:   "131031",
			wantError:  "Account locked",
			wantBanned: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockGraphClient{}
			client.On("GetPhoneNumber", mock.Anything, "tok", "pn1").Return(tt.phone, tt.err)

			v := NewPhoneNumberVerifier(client)
			verdict, err := v.Verify(context.Background(), &models.App{AppID: "a", Token: "tok", PhoneNumberID: "pn1"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantActive, verdict.Active)
			assert.Equal(t, tt.wantCode, verdict.ErrorCode)
			assert.Equal(t, tt.wantError, verdict.Error)
			assert.Equal(t, MethodPhoneNumber, verdict.Method)
			if !tt.wantActive {
				require.NotNil(t, verdict.Analysis)
				assert.Equal(t, tt.wantBanned, verdict.Analysis.IsBanned)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestPhoneNumberVerifier_RedQualityAnalysisOverride(t *testing.T) {
	client := &mockGraphClient{}
	client.On("GetPhoneNumber", mock.Anything, "tok", "pn1").Return(&types.PhoneNumber{QualityRating: types.QualityRed, VerifiedName: "Acme"}, nil)

	verdict, err := NewPhoneNumberVerifier(client).Verify(context.Background(), &models.App{AppID: "a", Token: "tok", PhoneNumberID: "pn1"})
	require.NoError(t, err)

	assert.Equal(t, &ErrorAnalysis{IsBanned: true, IsTemporary: true, Severity: SeverityHigh}, verdict.Analysis)
	require.NotNil(t, verdict.Phone)
	assert.Equal(t, "Acme", verdict.Phone.VerifiedName)
}

func TestPhoneNumberVerifier_MissingPhoneNumberID(t *testing.T) {
	_, err := NewPhoneNumberVerifier(&mockGraphClient{}).Verify(context.Background(), &models.App{AppID: "a", Token: "tok"})
	var missing *ErrMissingCredential
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "phoneNumberId", missing.Field)
}

func TestMessageSendVerifier_Success(t *testing.T) {
	client := &mockGraphClient{}
	resp := &types.SendMessageResponse{Messages: []types.MessageRef{{ID: "wamid.1"}}}
	client.On("SendTextMessage", mock.Anything, "tok", "pn1", "5511000", "ping").Return(resp, nil)

	renewed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := NewMessageSendVerifier(client, "ping", quietLogger())
	v.now = func() time.Time { return renewed.Add(2 * time.Hour) }

	verdict, err := v.Verify(context.Background(), &models.App{
		AppID: "a", Token: "tok", PhoneNumberID: "pn1", TestPhoneNumber: "5511000",
		LastMessageWindowRenewal: &renewed,
	})
	require.NoError(t, err)

	assert.True(t, verdict.Active)
	require.NotNil(t, verdict.Message)
	assert.Equal(t, "wamid.1", verdict.Message.MessageID)
	assert.False(t, verdict.Message.WindowExpired)
	assert.Equal(t, renewed.Add(24*time.Hour), *verdict.Message.WindowExpiresAt)
}

func TestMessageSendVerifier_DiagnosedFailure(t *testing.T) {
	client := &mockGraphClient{}
	client.On("SendTextMessage", mock.Anything, "tok", "pn1", "5511000", mock.Anything).
		Return(nil, &whatsapp.APIError{StatusCode: 400, Code: 131047, Message: "Re-engagement message"})

	renewed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := NewMessageSendVerifier(client, "", quietLogger())
	v.now = func() time.Time { return renewed.Add(30 * time.Hour) }

	verdict, err := v.Verify(context.Background(), &models.App{
		AppID: "a", Token: "tok", PhoneNumberID: "pn1", TestPhoneNumber: "5511000",
		LastMessageWindowRenewal: &renewed,
	})
	require.NoError(t, err)

	assert.False(t, verdict.Active)
	assert.Equal(t, "131047", verdict.ErrorCode)
	assert.Equal(t, "24-hour messaging window expired, renew the window: Re-engagement message", verdict.Error)
	assert.True(t, verdict.Message.WindowExpired)
	assert.True(t, verdict.Analysis.IsBanned)
}

func TestMessageSendVerifier_Timeout(t *testing.T) {
	client := &mockGraphClient{}
	client.On("SendTextMessage", mock.Anything, "tok", "pn1", "5511000", mock.Anything).
		Return(nil, &whatsapp.TransportError{Op: "POST", Err: context.DeadlineExceeded})

	verdict, err := NewMessageSendVerifier(client, "", quietLogger()).Verify(context.Background(), &models.App{
		AppID: "a", Token: "tok", PhoneNumberID: "pn1", TestPhoneNumber: "5511000",
	})
	require.NoError(t, err)

	assert.False(t, verdict.Active)
	assert.Equal(t, "request timed out", verdict.Error)
	assert.Empty(t, verdict.ErrorCode)
	assert.Equal(t, &ErrorAnalysis{IsTemporary: true, Severity: SeverityLow}, verdict.Analysis)
}

func TestMessageSendVerifier_RequiresTestNumber(t *testing.T) {
	_, err := NewMessageSendVerifier(&mockGraphClient{}, "", quietLogger()).Verify(context.Background(), &models.App{AppID: "a", Token: "tok", PhoneNumberID: "pn1"})
	var missing *ErrMissingCredential
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "testPhoneNumber", missing.Field)
}

func TestWABAStatusVerifier(t *testing.T) {
	tests := []struct {
		name       string
		account    *types.BusinessAccount
		wantActive bool
		wantCode   string
	}{
		{"approved with tier", &types.BusinessAccount{AccountReviewStatus: types.ReviewApproved, MessagingLimitTier: "TIER_1K"}, true, ""},
		{"rejected", &types.BusinessAccount{AccountReviewStatus: types.ReviewRejected, MessagingLimitTier: "TIER_1K"}, false, ErrorCodeWABARejected},
		{"restricted", &types.BusinessAccount{AccountReviewStatus: types.ReviewRestricted, MessagingLimitTier: "TIER_1K"}, false, ErrorCodeWABARestricted},
		{"pending", &types.BusinessAccount{AccountReviewStatus: types.ReviewPending, MessagingLimitTier: "TIER_1K"}, false, ErrorCodeWABAPending},
		{"tier zero", &types.BusinessAccount{AccountReviewStatus: types.ReviewApproved, MessagingLimitTier: types.TierNoPermission}, false, ErrorCodeNoMessaging},
		{"tier absent", &types.BusinessAccount{AccountReviewStatus: types.ReviewApproved}, false, ErrorCodeNoMessaging},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockGraphClient{}
			client.On("GetBusinessAccount", mock.Anything, "tok", "waba1").Return(tt.account, nil)

			verdict, err := NewWABAStatusVerifier(client).Verify(context.Background(), &models.App{AppID: "a", Token: "tok", WABAID: "waba1"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantActive, verdict.Active)
			assert.Equal(t, tt.wantCode, verdict.ErrorCode)
			require.NotNil(t, verdict.WABA)
			assert.Equal(t, tt.account.AccountReviewStatus, verdict.WABA.ReviewStatus)
			assert.Nil(t, verdict.Phone)
			assert.Nil(t, verdict.Message)
		})
	}
}

func TestWABAStatusVerifier_ForbiddenIsClassified(t *testing.T) {
	client := &mockGraphClient{}
	client.On("GetBusinessAccount", mock.Anything, "tok", "waba1").Return(nil, &whatsapp.APIError{StatusCode: 403, Message: "HTTP 403"})

	verdict, err := NewWABAStatusVerifier(client).Verify(context.Background(), &models.App{AppID: "a", Token: "tok", WABAID: "waba1"})
	require.NoError(t, err)

	assert.False(t, verdict.Active)
	assert.Equal(t, "403", verdict.ErrorCode)
	assert.Equal(t, &ErrorAnalysis{IsBanned: true, ShouldRemove: true, Severity: SeverityHigh}, verdict.Analysis)
}

func TestNewAccountVerifier(t *testing.T) {
	client := &mockGraphClient{}
	for _, method := range []VerificationMethod{MethodPhoneNumber, MethodMessageSend, MethodWABAStatus} {
		cfg := models.Config{HealthCheck: models.HealthCheckConfig{VerificationMethod: string(method)}}
		v, err := NewAccountVerifier(cfg, client, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, method, v.Method())
	}

	_, err := NewAccountVerifier(models.Config{HealthCheck: models.HealthCheckConfig{VerificationMethod: "smoke"}}, client, quietLogger())
	assert.Error(t, err)
}
