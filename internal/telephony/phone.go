package telephony

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("telephony: invalid phone number")

// NormalizePhone strips everything but digits, prefixes countryCode when the
// number does not already start with it, and returns "+<digits>".
func NormalizePhone(raw, countryCode string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", ErrInvalidPhone
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	// E.164 allows at most 15 digits.
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

// TestLine is one entry of a free-form test blast list.
type TestLine struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
}

// ParseTestLine reads "5511999999999", "Name - 5511999999999" or "Name-5511999999999".
// A dash inside a bare number ("11 9999-0000") is kept as part of the number.
// Blank lines return ok=false.
func ParseTestLine(line string) (TestLine, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return TestLine{}, false
	}
	if name, phone, found := strings.Cut(line, "-"); found && !hasDigit(name) {
		return TestLine{Name: strings.TrimSpace(name), Phone: strings.TrimSpace(phone)}, true
	}
	return TestLine{Phone: line}, true
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
