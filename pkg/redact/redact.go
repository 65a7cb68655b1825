// Package redact strips credential-shaped tokens out of build and lint
// logs before they are persisted. It is a distinct concern from
// pkg/sanitize, which escapes user-facing text for XSS safety.
package redact

import (
	"regexp"
	"strings"
)

// secretPatterns mirrors a fixed list of key-value secret shapes:
// password, api_key, secret, token, jwt_secret, private_key,
// access_token, authorization.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)api[_-]?key["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)secret["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)token["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)jwt[_-]?secret["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)private[_-]?key["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)access[_-]?token["\s:=]+([^\s"']+)`),
	regexp.MustCompile(`(?i)authorization["\s:=]+([^\s"']+)`),
}

var equalsSplit = regexp.MustCompile(`^([^=:\s]+)[\s:=]+`)

var bearerPattern = regexp.MustCompile(`Bearer\s+([A-Za-z0-9_-]{20,})`)

// Logs redacts credential-shaped key=value occurrences and bearer tokens
// from s. It is idempotent: Logs(Logs(s)) == Logs(s), since the
// replacement text never itself matches a secret pattern.
func Logs(s string) string {
	sanitized := s
	for _, pattern := range secretPatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			key := equalsSplit.FindStringSubmatch(match)
			if key == nil {
				return "[REDACTED]"
			}
			// "authorization: Bearer <token>" - leave the "Bearer" word alone
			// here so bearerPattern below redacts the token that follows it;
			// otherwise this pattern would consume "Bearer" as the value and
			// the token would be left in the clear with no prefix to catch.
			if value := strings.TrimSpace(match[len(key[0]):]); strings.EqualFold(value, "bearer") {
				return match
			}
			return key[1] + "=[REDACTED]"
		})
	}
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer [REDACTED]")
	return sanitized
}
