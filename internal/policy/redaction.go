package policy

import "regexp"

type redaction struct {
	marker  string
	pattern *regexp.Regexp
}

// Credentials run first so the card and phone patterns never see the digits inside a key.
var redactions = []redaction{
	{"[REDACTED_JWT]", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)},
	{"Bearer [REDACTED_TOKEN]", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`)},
	{"[REDACTED_API_KEY]", regexp.MustCompile(`\bsk-(?:ant-|proj-)?[A-Za-z0-9_-]{16,}`)},
	{"[REDACTED_EMAIL]", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"[REDACTED_CARD]", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{"[REDACTED_PHONE]", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)},
}

// Redact masks bearer tokens, provider API keys and personal data in s. It reports
// how many spans were replaced.
func Redact(s string) (string, int) {
	n := 0
	for _, r := range redactions {
		s = r.pattern.ReplaceAllStringFunc(s, func(string) string {
			n++
			return r.marker
		})
	}
	return s, n
}
