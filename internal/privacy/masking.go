package privacy

import (
	"regexp"
	"strconv"
	"strings"

	"wapool/internal/constants"
)

// MaskPhoneNumber keeps only the last digits of a phone number.
// Example: "5511999990000" -> "*********0000"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	prefix := ""
	if strings.HasPrefix(phone, "+") {
		prefix, phone = "+", phone[1:]
	}
	return prefix + maskTail(phone, constants.DefaultPhoneMaskLength)
}

// MaskToken keeps a short prefix of an access token so operators can tell tokens apart.
// Example: "EAAGm0PX4ZCps..." -> "EAAGm0...(212 chars)"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= constants.DefaultTokenMaskLength*2 {
		return strings.Repeat("*", len(token))
	}
	return token[:constants.DefaultTokenMaskLength] + "..." + "(" + strconv.Itoa(len(token)) + " chars)"
}

var phoneInText = regexp.MustCompile(`\+?\d{7,20}`)

// MaskPhoneNumbersInText masks every phone-number-like digit run in s.
func MaskPhoneNumbersInText(s string) string {
	return phoneInText.ReplaceAllStringFunc(s, MaskPhoneNumber)
}

func maskTail(s string, visible int) string {
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
