package logger

import "strings"

// SanitizedEmail masks an email for log output, keeping only the first
// character of the local part and the domain's TLD.
func SanitizedEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}

	local, domain := email[:at], email[at+1:]

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	if dot := strings.LastIndex(domain, "."); dot > 0 {
		domain = strings.Repeat("*", dot) + domain[dot:]
	}

	return masked + "@" + domain
}

var sensitiveQueryParams = []string{
	"password", "token", "secret", "otp", "code", "email", "auth",
}

// SanitizeQueryString reports whether a raw query string carries a
// credential-like parameter and should be redacted wholesale from logs.
func SanitizeQueryString(rawQuery string) bool {
	q := strings.ToLower(rawQuery)
	for _, p := range sensitiveQueryParams {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}
