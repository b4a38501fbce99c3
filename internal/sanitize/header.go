package sanitize

import "strings"

// Redacted is the fixed token substituted for sensitive header values.
const Redacted = "[REDACTED]"

// Header names whose values must never be exported.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-auth-token":        {},
}

// IsSensitiveHeader reports whether the named header carries credentials or
// other values that must not be captured. Matching is case-insensitive.
func IsSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(name)]
	return ok
}

// Header returns the redaction token for sensitive headers and passes all
// other values through unchanged.
func Header(name, value string) string {
	if IsSensitiveHeader(name) {
		return Redacted
	}
	return value
}
