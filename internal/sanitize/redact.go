package sanitize

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var secretKey = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`

// rule rewrites one class of secret. Rules run in order; the PEM rule goes
// first so the key body is gone before line-oriented rules see it.
type rule struct {
	pattern *regexp.Regexp
	replace func(match string) string
}

var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?s)-----BEGIN [^-]+ PRIVATE KEY-----.*?-----END [^-]+ PRIVATE KEY-----`),
		replace: func(string) string { return "[REDACTED_PRIVATE_KEY]" },
	},
	{
		pattern: regexp.MustCompile(`(?i)"` + secretKey + `"\s*:\s*"(?:[^"\\]|\\.)*"`),
		replace: func(m string) string { return m[:strings.Index(m, ":")+1] + ` "` + redacted + `"` },
	},
	{
		pattern: regexp.MustCompile(`(?i)\b` + secretKey + `\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`),
		replace: keepUntil(":="),
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(?:authorization|cookie|set-cookie)\s*:\s*[^\r\n]+`),
		replace: keepUntil(":"),
	},
	{
		pattern: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`),
		replace: func(string) string { return "Bearer " + redacted },
	},
	{
		pattern: regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_-]{16,}|gh[pousr]_[A-Za-z0-9]{20,}|xox[abpr]-[A-Za-z0-9-]{10,}|AKIA[0-9A-Z]{16})\b`),
		replace: func(string) string { return redacted },
	},
	{
		pattern: regexp.MustCompile(`(?i)(?:https?|ssh)://[^\s/@:]+(?::[^\s/@]*)?@`),
		replace: func(m string) string { return m[:strings.Index(m, "://")+3] + redacted + "@" },
	},
}

// keepUntil keeps the match up to and including the first of seps and masks
// the rest.
func keepUntil(seps string) func(string) string {
	return func(m string) string {
		idx := strings.IndexAny(m, seps)
		if idx < 0 {
			return redacted
		}
		return m[:idx+1] + " " + redacted
	}
}

// Redact masks credentials in terminal output before it is handed to a
// third-party push transport.
func Redact(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range rules {
		text = r.pattern.ReplaceAllStringFunc(text, r.replace)
	}
	return text
}
