package service

import (
	"context"
	"fmt"
	"time"

	"wapool/internal/constants"
	"wapool/internal/models"
	"wapool/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

var messageDiagnoses = map[int]string{
	100:    "Invalid parameter, check phoneNumberId and test number",
	190:    "Access token expired or invalid",
	368:    "Temporarily blocked for policy violations",
	130429: "Rate limit reached",
	131026: "Message undeliverable to the test number",
	131031: "Account has been disabled or locked",
	131042: "Business eligibility payment issue",
	131047: "24-hour messaging window expired, renew the window",
	131048: "Spam rate limit hit",
	131051: "Unsupported message type",
	131056: "Too many messages to the same recipient",
}

// MessageSendVerifier sends one synthetic text to the app's test number.
// It exercises the real send path, at the cost of consuming the 24-hour
// customer messaging window tracked by LastMessageWindowRenewal.
type MessageSendVerifier struct {
	client whatsapp.Client
	text   string
	logger *logrus.Logger
	now    func() time.Time
}

func NewMessageSendVerifier(client whatsapp.Client, text string, logger *logrus.Logger) *MessageSendVerifier {
	if text == "" {
		text = constants.DefaultTestMessageText
	}
	return &MessageSendVerifier{client: client, text: text, logger: logger, now: time.Now}
}

func (v *MessageSendVerifier) Method() VerificationMethod {
	return MethodMessageSend
}

func (v *MessageSendVerifier) Verify(ctx context.Context, app *models.App) (Verdict, error) {
	if app.Token == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "token"}
	}
	if app.PhoneNumberID == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "phoneNumberId"}
	}
	if app.TestPhoneNumber == "" {
		return Verdict{}, &ErrMissingCredential{AppID: app.AppID, Field: "testPhoneNumber"}
	}

	meta := v.windowStatus(app)
	if meta.WindowExpired {
		v.logger.WithFields(logrus.Fields{
			LogFieldAppID:  app.AppID,
			LogFieldMethod: MethodMessageSend,
		}).Warn("Messaging window appears expired, probe may fail with 131047")
	}

	resp, err := v.client.SendTextMessage(ctx, app.Token, app.PhoneNumberID, app.TestPhoneNumber, v.text)
	if err != nil {
		verdict := failureVerdict(MethodMessageSend, err)
		if apiErr, ok := whatsapp.AsAPIError(err); ok {
			if diagnosis, known := messageDiagnoses[apiErr.Code]; known {
				meta.Diagnosis = diagnosis
				verdict.Error = fmt.Sprintf("%s: %s", diagnosis, apiErr.Message)
			}
		}
		verdict.Message = meta
		return verdict, nil
	}

	meta.MessageID = resp.MessageID()
	return Verdict{Active: true, Method: MethodMessageSend, Message: meta}, nil
}

func (v *MessageSendVerifier) windowStatus(app *models.App) *MessageProbeMetadata {
	meta := &MessageProbeMetadata{}
	if app.LastMessageWindowRenewal == nil {
		return meta
	}
	expires := app.LastMessageWindowRenewal.Add(constants.MessagingWindowHours * time.Hour)
	meta.WindowExpiresAt = &expires
	meta.WindowExpired = v.now().After(expires)
	return meta
}
