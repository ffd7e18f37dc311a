package service

import (
	"context"

	apperrors "wapool/internal/errors"
	"wapool/internal/validation"
	"wapool/pkg/whatsapp"
	"wapool/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// WABADiagnosis is the result of an ad hoc business account probe.
type WABADiagnosis struct {
	Success      bool                   `json:"success"`
	Verdict      Verdict                `json:"verdict"`
	Account      *types.BusinessAccount `json:"account,omitempty"`
	PhoneNumbers []types.PhoneNumber    `json:"phoneNumbers"`
	Error        string                 `json:"error,omitempty"`
	ErrorCode    string                 `json:"errorCode,omitempty"`
}

// Diagnostics probes upstream credentials without touching stored apps.
type Diagnostics struct {
	client whatsapp.Client
	logger *logrus.Logger
}

func NewDiagnostics(client whatsapp.Client, logger *logrus.Logger) *Diagnostics {
	return &Diagnostics{client: client, logger: logger}
}

// TestWABA checks that token can read the business account and its phone numbers.
func (d *Diagnostics) TestWABA(ctx context.Context, token, wabaID string) (*WABADiagnosis, error) {
	if err := validation.ValidateRequired("token", token); err != nil {
		return nil, err
	}
	if err := validation.ValidateIdentifier("wabaId", wabaID); err != nil {
		return nil, err
	}

	account, err := d.client.GetBusinessAccount(ctx, token, wabaID)
	if err != nil {
		verdict := failureVerdict(MethodWABAStatus, err)
		d.logger.WithError(err).WithField("waba_id", wabaID).Info("WABA probe failed")
		return &WABADiagnosis{
			Verdict:      verdict,
			PhoneNumbers: []types.PhoneNumber{},
			Error:        verdict.Error,
			ErrorCode:    verdict.ErrorCode,
		}, nil
	}

	diagnosis := &WABADiagnosis{
		Verdict:      EvaluateBusinessAccount(account),
		Account:      account,
		PhoneNumbers: []types.PhoneNumber{},
	}
	diagnosis.Success = diagnosis.Verdict.Active
	diagnosis.Error = diagnosis.Verdict.Error
	diagnosis.ErrorCode = diagnosis.Verdict.ErrorCode

	numbers, err := d.client.ListPhoneNumbers(ctx, token, wabaID)
	if err != nil {
		apperrors.LogWarn(d.logger, err, "Failed to list phone numbers during WABA probe")
		return diagnosis, nil
	}
	diagnosis.PhoneNumbers = numbers
	return diagnosis, nil
}
