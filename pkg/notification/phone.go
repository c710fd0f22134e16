package notification

import (
	"regexp"
	"strings"
)

var (
	e164Pattern         = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	nonDigits           = regexp.MustCompile(`[^\d]`)
	indianMobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	genericPattern      = regexp.MustCompile(`^\d{10,15}$`)
)

// NormalizeE164Indian coerces a raw phone string into E.164, favouring
// Indian mobile numbers. Returns "" when nothing usable remains.
func NormalizeE164Indian(raw string) string {
	s := strings.TrimSpace(raw)
	if e164Pattern.MatchString(s) {
		return s
	}

	digits := nonDigits.ReplaceAllString(s, "")

	// 10-digit Indian mobile
	if indianMobilePattern.MatchString(digits) {
		return "+91" + digits
	}
	// country code already present, just missing the plus
	if strings.HasPrefix(digits, "91") && len(digits) == 12 {
		return "+" + digits
	}
	if genericPattern.MatchString(digits) {
		return "+" + digits
	}
	return ""
}
