package runner

import (
	"fmt"
	"strings"
)

// hintMaxLen bounds FailedTask.ErrorHint (spec.md Section 3, "<=150 chars").
const hintMaxLen = 150

// knownFailures maps a stderr substring to a short, stable classification,
// in the fixed order spec.md Section 4.3 lists them. Checked in order; the
// first match wins.
var knownFailures = []struct {
	substr string
	hint   string
}{
	{"timeout", "Timed out."},
	{"permission", "Permission denied."},
	{"command not found", "Executable missing."},
	{"connection", "Connection failed."},
	{"failed to connect", "Connection failed."},
}

// ClassifyFailure derives FailedTask.ErrorHint from a worker's captured
// stderr and exit code, following spec.md Section 4.3's literal heuristic:
// the first matching substring of stderr (case-insensitive) wins; otherwise
// the first 150 characters of stderr with newlines elided; an empty stderr
// falls back to "Exit code <n>".
func ClassifyFailure(stderr []byte, exitCode int) string {
	lower := strings.ToLower(string(stderr))
	for _, kf := range knownFailures {
		if strings.Contains(lower, kf.substr) {
			return kf.hint
		}
	}

	trimmed := strings.TrimSpace(string(stderr))
	if trimmed == "" {
		return fmt.Sprintf("Exit code %d", exitCode)
	}
	return elideNewlines(trimmed)
}

func elideNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= hintMaxLen {
		return s
	}
	return s[:hintMaxLen]
}
