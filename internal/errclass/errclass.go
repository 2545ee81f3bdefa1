// Package errclass maps a raw failure signal to a taxonomy of
// {transient, configuration, permanent, unknown} that drives the
// engine's retry policy.
package errclass

import (
	"strings"
	"time"

	"github.com/harrison/conductor/internal/models"
)

// Ordered keyword sets; the first set a message matches wins.
var (
	transientKeywords = []string{
		"timeout", "network", "rate limit", "temporary", "unavailable", "connection", "retry",
	}
	configurationKeywords = []string{
		"configuration", "config", "setup", "environment", "permission", "access",
	}
	permanentKeywords = []string{
		"not found", "invalid", "corrupt", "missing", "failed", "fatal error", "critical error",
	}
)

// Classify maps an error message to its class via case-insensitive
// substring match against three ordered keyword sets: transient,
// configuration, permanent. No match yields ClassUnknown.
func Classify(message string) models.ErrorClass {
	lower := strings.ToLower(message)

	if containsAny(lower, transientKeywords) {
		return models.ClassTransient
	}
	if containsAny(lower, configurationKeywords) {
		return models.ClassConfiguration
	}
	if containsAny(lower, permanentKeywords) {
		return models.ClassPermanent
	}
	return models.ClassUnknown
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// RetryDecision is the Engine's next action for a failed attempt.
type RetryDecision int

const (
	// DecisionRetry means attempt the task again (same or fallback
	// provider, per the caller's own policy).
	DecisionRetry RetryDecision = iota
	// DecisionEscalate means hand the failure to the manual-intervention
	// hook instead of retrying automatically.
	DecisionEscalate
	// DecisionGiveUp means mark the task failed with no further action.
	DecisionGiveUp
)

const (
	defaultMaxRetries         = 3
	configurationRetryCeiling = 2
)

// Decide returns the retry decision for a class, given the attempt
// count already made (1-indexed: the attempt that just failed) and the
// configured maxRetries (0 selects the default of 3).
func Decide(class models.ErrorClass, attempt int, maxRetries int) RetryDecision {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	switch class {
	case models.ClassPermanent:
		return DecisionGiveUp
	case models.ClassConfiguration:
		if attempt < configurationRetryCeiling {
			return DecisionRetry
		}
		return DecisionEscalate
	case models.ClassTransient, models.ClassUnknown:
		if attempt < maxRetries {
			return DecisionRetry
		}
		return DecisionGiveUp
	default:
		return DecisionGiveUp
	}
}

// Backoff returns the exponential delay to apply before the next
// attempt: min(30s, 1s * 2^attempt), applied to every non-permanent
// retry decision.
func Backoff(attempt int) time.Duration {
	const capped = 30 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 { // 1s*2^5 = 32s already exceeds the cap
		return capped
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > capped {
		return capped
	}
	return d
}
