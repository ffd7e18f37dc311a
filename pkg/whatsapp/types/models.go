package types

// Graph API field selections
const (
	PhoneNumberFields     = "id,display_phone_number,verified_name,quality_rating,code_verification_status,status,messaging_limit_tier"
	BusinessAccountFields = "id,name,account_review_status,business_verification_status,messaging_limit_tier"
)

// Quality ratings reported for a phone number
const (
	QualityGreen   = "GREEN"
	QualityYellow  = "YELLOW"
	QualityRed     = "RED"
	QualityUnknown = "UNKNOWN"
)

// Account review states of a WhatsApp Business Account
const (
	ReviewApproved   = "APPROVED"
	ReviewPending    = "PENDING"
	ReviewRejected   = "REJECTED"
	ReviewRestricted = "RESTRICTED"
)

// TierNoPermission is reported when the account cannot send business-initiated messages.
const TierNoPermission = "TIER_0"

// CodeVerificationNotVerified marks a number whose ownership was never confirmed.
const CodeVerificationNotVerified = "NOT_VERIFIED"

// PhoneNumber is the phone-number node of the Graph API
type PhoneNumber struct {
	ID                     string `json:"id"`
	DisplayPhoneNumber     string `json:"display_phone_number"`
	VerifiedName           string `json:"verified_name"`
	QualityRating          string `json:"quality_rating"`
	CodeVerificationStatus string `json:"code_verification_status"`
	Status                 string `json:"status,omitempty"`
	MessagingLimitTier     string `json:"messaging_limit_tier,omitempty"`
}

// BusinessAccount is the WhatsApp Business Account node
type BusinessAccount struct {
	ID                         string `json:"id"`
	Name                       string `json:"name"`
	AccountReviewStatus        string `json:"account_review_status"`
	BusinessVerificationStatus string `json:"business_verification_status,omitempty"`
	MessagingLimitTier         string `json:"messaging_limit_tier,omitempty"`
}

// PhoneNumberList is the paged edge returned by /{waba-id}/phone_numbers
type PhoneNumberList struct {
	Data []PhoneNumber `json:"data"`
}

// TextMessageRequest is the body of a text send
type TextMessageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             TextPayload `json:"text"`
}

// TextPayload holds the text body of a message
type TextPayload struct {
	Body string `json:"body"`
}

// SendMessageResponse is returned by the messages edge
type SendMessageResponse struct {
	MessagingProduct string       `json:"messaging_product"`
	Contacts         []ContactRef `json:"contacts"`
	Messages         []MessageRef `json:"messages"`
}

// ContactRef echoes a recipient of a send
type ContactRef struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

// MessageRef identifies an accepted message
type MessageRef struct {
	ID string `json:"id"`
}

// MessageID returns the id of the first accepted message, if any.
func (r *SendMessageResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// ErrorEnvelope is the vendor error body
type ErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}
