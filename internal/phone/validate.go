// Package phone validates and normalizes dialable numbers. Validation runs
// locally, before any provider traffic, so a bad destination never costs a
// network round trip.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidNumber = errors.New("phone: invalid number format")

// Normalize strips formatting characters and returns the number in E.164,
// assuming US when a bare 10-digit number is given. Anything else fails
// validation.
func Normalize(raw string) (string, error) {
	cleaned := keepDigitsAndPlus(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty number", ErrInvalidNumber)
	}

	if strings.HasPrefix(cleaned, "+") {
		digits := cleaned[1:]
		if len(digits) >= 10 && len(digits) <= 15 && allDigits(digits) {
			return cleaned, nil
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}

	if len(cleaned) == 10 && allDigits(cleaned) {
		return "+1" + cleaned, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
}

// Sanitize masks the middle of a number for log output.
func Sanitize(raw string) string {
	cleaned := keepDigitsAndPlus(raw)
	if len(cleaned) <= 4 {
		return "***"
	}
	masked := len(cleaned) - 8
	if masked < 0 {
		masked = 0
	}
	return cleaned[:4] + strings.Repeat("*", masked) + cleaned[len(cleaned)-4:]
}

func keepDigitsAndPlus(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
