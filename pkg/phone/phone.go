// Package phone normalizes phone numbers captured from lead payloads.
package phone

import "strings"

const minDigits = 7

// Normalize reduces raw to digits with an optional leading "+". A "00"
// international prefix becomes "+", and 11-digit numbers starting with 8
// are rewritten to the +7 country code. Numbers with fewer than seven digits
// are rejected.
func Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	plus := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case !plus && strings.HasPrefix(digits, "00"):
		digits = digits[2:]
		plus = true
	case !plus && len(digits) == 11 && digits[0] == '8':
		digits = "7" + digits[1:]
		plus = true
	case !plus && len(digits) == 11 && digits[0] == '7':
		plus = true
	}
	if len(digits) < minDigits {
		return "", false
	}
	if plus {
		return "+" + digits, true
	}
	return digits, true
}
