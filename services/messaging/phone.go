package messaging

import (
	"regexp"
	"strings"
)

const (
	addressSuffix  = "@c.us"
	minPhoneDigits = 8
)

var nonDigit = regexp.MustCompile(`\D`)

// FormatPhone normalizes a phone number into a gateway address such as
// 5511999999999@c.us. Formatting an address again yields the same address.
func FormatPhone(raw string) (string, error) {
	digits := nonDigit.ReplaceAllString(strings.TrimSuffix(strings.TrimSpace(raw), addressSuffix), "")
	if len(digits) < minPhoneDigits {
		return "", invalidAddress(raw)
	}
	return digits + addressSuffix, nil
}
