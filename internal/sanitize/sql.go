// Package sanitize provides pure text transforms that keep sensitive data
// out of exported telemetry: SQL literal stripping and HTTP header redaction.
package sanitize

import (
	"regexp"
	"strings"
)

// Placeholder replaces SQL literal values in sanitized statements.
const Placeholder = "?"

// Transform order matters: quoted strings first so that booleans, NULL, and
// numbers nested inside literals are removed along with the literal instead
// of being rewritten in place.
var (
	singleQuotedRe = regexp.MustCompile(`'[^']*'`)
	doubleQuotedRe = regexp.MustCompile(`"[^"]*"`)
	boolRe         = regexp.MustCompile(`(?i)\b(?:true|false)\b`)
	nullRe         = regexp.MustCompile(`(?i)\bnull\b`)
	numberRe       = regexp.MustCompile(`-?\b\d+(?:\.\d+)?\b`)
)

// SQL replaces literal values in a SQL statement with Placeholder so that
// parameter values never reach telemetry while the query shape is preserved.
// Blank input is returned unchanged. The transform is idempotent:
// SQL(SQL(s)) == SQL(s).
func SQL(statement string) string {
	if strings.TrimSpace(statement) == "" {
		return statement
	}
	s := singleQuotedRe.ReplaceAllString(statement, Placeholder)
	s = doubleQuotedRe.ReplaceAllString(s, Placeholder)
	s = boolRe.ReplaceAllString(s, Placeholder)
	s = nullRe.ReplaceAllString(s, Placeholder)
	s = numberRe.ReplaceAllString(s, Placeholder)
	return s
}
