package policy

import "strings"

// LogPreview redacts s and shortens it for log lines.
func LogPreview(s string, maxRunes int) string {
	out, _ := Redact(strings.Join(strings.Fields(s), " "))
	r := []rune(out)
	if maxRunes > 0 && len(r) > maxRunes {
		return string(r[:maxRunes]) + "…"
	}
	return out
}
