package validation

import (
	"fmt"
	"strings"

	"wapool/internal/errors"
)

const (
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
	MaxIdentifierLength  = 128
	MaxNameLength        = 200
)

// ValidatePhoneNumber requires a digits-only number of plausible length
func ValidatePhoneNumber(field, phone string) error {
	if phone == "" {
		return errors.NewValidationError(field, fmt.Sprintf("%s is required", field))
	}
	for _, char := range phone {
		if char < '0' || char > '9' {
			return errors.NewValidationError(field, fmt.Sprintf("%s must contain only digits", field))
		}
	}
	if len(phone) < MinPhoneNumberLength || len(phone) > MaxPhoneNumberLength {
		return errors.NewValidationError(field,
			fmt.Sprintf("%s must be between %d and %d digits", field, MinPhoneNumberLength, MaxPhoneNumberLength))
	}
	return nil
}

// ValidateIdentifier checks ids used in URLs and storage keys
func ValidateIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(field, fmt.Sprintf("%s is required", field))
	}
	if len(value) > MaxIdentifierLength {
		return errors.NewValidationError(field, fmt.Sprintf("%s too long (max %d characters)", field, MaxIdentifierLength))
	}
	for _, char := range value {
		if !isIdentifierChar(char) {
			return errors.NewValidationError(field, fmt.Sprintf("%s contains invalid characters", field))
		}
	}
	return nil
}

// ValidateRequired rejects empty values
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(field, fmt.Sprintf("%s is required", field))
	}
	if strings.ContainsAny(value, "\x00\n\r") {
		return errors.NewValidationError(field, fmt.Sprintf("%s contains invalid characters", field))
	}
	return nil
}

// ValidateAppFields checks a create/update app payload.
// At least one of wabaID and phoneNumberID must identify the upstream account.
func ValidateAppFields(appID, appName, token, wabaID, phoneNumberID, testPhoneNumber string) error {
	if err := ValidateIdentifier("appId", appID); err != nil {
		return err
	}
	if err := ValidateRequired("appName", appName); err != nil {
		return err
	}
	if len(appName) > MaxNameLength {
		return errors.NewValidationError("appName", fmt.Sprintf("appName too long (max %d characters)", MaxNameLength))
	}
	if err := ValidateRequired("token", token); err != nil {
		return err
	}
	if wabaID == "" && phoneNumberID == "" {
		return errors.NewValidationError("wabaId", "wabaId or phoneNumberId is required")
	}
	if wabaID != "" {
		if err := ValidateIdentifier("wabaId", wabaID); err != nil {
			return err
		}
	}
	if phoneNumberID != "" {
		if err := ValidateIdentifier("phoneNumberId", phoneNumberID); err != nil {
			return err
		}
	}
	if testPhoneNumber != "" {
		return ValidatePhoneNumber("testPhoneNumber", testPhoneNumber)
	}
	return nil
}

func isIdentifierChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.'
}
