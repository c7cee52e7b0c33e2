// Package redact scrubs credentials and personal data from strings before
// they leave the process: activity sinks on disk and threat reports sent to
// the governance service. It is a local, best-effort filter and is not a
// substitute for the remote PII detection.
package redact

import (
	"regexp"
	"sort"
)

const placeholder = "[REDACTED]"

type rule struct {
	category string
	pattern  *regexp.Regexp
}

var rules = []rule{
	{"aws", regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`)},
	{"aws", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"github", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
	{"slack", regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`)},
	{"stripe", regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`)},
	{"tork", regexp.MustCompile(`tork_[A-Za-z0-9_]{16,}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`)},
	{"bearer", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
	{"url_credentials", regexp.MustCompile(`(https?://)[^:/\s]+:[^@/\s]+@`)},
	{"api_key", regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`)},
	{"password", regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`)},

	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
}

// Redact replaces every sensitive match in input with a placeholder.
func Redact(input string) string {
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, placeholder)
	}
	return result
}

// Categories lists which kinds of sensitive data appear in input, sorted
// and without duplicates.
func Categories(input string) []string {
	seen := map[string]bool{}
	for _, r := range rules {
		if !seen[r.category] && r.pattern.MatchString(input) {
			seen[r.category] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
