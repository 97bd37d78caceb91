package phone

import (
	"fmt"
	"regexp"
	"strings"
)

// Numbers without an explicit country prefix are treated as domestic
// mainland-China mobile numbers: 11 digits starting with 1.
const (
	defaultCountryCode = "86"
	domesticLength     = 11
	mobilePrefix       = '1'
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ErrInvalidFormat is returned when the input cannot be recognized as a
// phone number. Malformed input is never normalized on a best-effort basis.
var ErrInvalidFormat = fmt.Errorf("invalid phone number format")

// Normalize canonicalizes a user-supplied phone string into E.164 form.
// Two raw inputs representing the same number normalize to the same string,
// so downstream storage keys stay comparable regardless of client formatting.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)

	// An explicit leading + is taken at face value; the domestic shapes
	// only apply to bare digit strings.
	var candidate string
	switch {
	case hasPlus:
		candidate = "+" + digits
	case len(digits) == domesticLength && digits[0] == mobilePrefix:
		candidate = "+" + defaultCountryCode + digits
	case len(digits) == domesticLength+len(defaultCountryCode) && strings.HasPrefix(digits, defaultCountryCode):
		candidate = "+" + digits
	default:
		return "", ErrInvalidFormat
	}

	if !e164Pattern.MatchString(candidate) {
		return "", ErrInvalidFormat
	}

	return candidate, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
