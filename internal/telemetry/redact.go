package telemetry

import (
	"os"
	"regexp"
	"strings"

	"github.com/harrison/conductor/internal/models"
)

// longTokenPattern matches bearer-token-shaped runs of 20+ alphanumeric
// or punctuation characters, the common shape of API keys and session
// tokens that show up in provider stderr.
var longTokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-\.]{20,}`)

// Redact scrubs sensitive substrings from an event's free-form fields
// before it reaches a sink: long tokens and the caller's home
// directory in any absolute path.
func Redact(event models.Event) models.Event {
	event.Message = scrub(event.Message)
	return event
}

func scrub(s string) string {
	if s == "" {
		return s
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.Contains(s, home) {
		s = strings.ReplaceAll(s, home, "~")
	}
	return longTokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		if len(match) < 20 {
			return match
		}
		return match[:4] + "…redacted"
	})
}
