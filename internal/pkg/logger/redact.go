package logger

import (
	"regexp"
	"strings"
)

var (
	emailRegex      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	credentialRegex = regexp.MustCompile(`(?i)\b(basic|bearer)\s+[A-Za-z0-9._~+/=-]+`)
	secretKeys      = []string{"token", "secret", "password", "authorization", "api_key", "apikey"}
)

// RedactSecret keeps the first four characters of a credential.
// "sk_live_abcdef" → "sk_l***"; values of four characters or fewer become "***".
func RedactSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range secretKeys {
		if strings.Contains(key, k) {
			return RedactSecret(val)
		}
	}
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	val = credentialRegex.ReplaceAllStringFunc(val, func(m string) string {
		scheme, _, _ := strings.Cut(m, " ")
		return scheme + " ***"
	})
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
