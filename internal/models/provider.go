package models

import "time"

// CircuitState is the state of a Provider Pool's per-provider circuit
// breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the human-readable circuit state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ProviderSpec is the static, configured identity of one external
// code-generating assistant: its CLI invocation template and default
// parameters.
type ProviderSpec struct {
	Name           string            `yaml:"name" json:"name"`
	Command        string            `yaml:"command" json:"command"`
	DefaultParams  map[string]string `yaml:"default_params,omitempty" json:"default_params,omitempty"`
	Timeout        time.Duration     `yaml:"timeout" json:"timeout"`
	HealthArgs     []string          `yaml:"health_args,omitempty" json:"health_args,omitempty"`
}

// ProviderStats are the mutable, per-provider counters the Provider
// Pool owns exclusively.
type ProviderStats struct {
	Attempts           int
	Successes          int
	Failures           int
	ConsecutiveFailures int
	LastFailureAt      time.Time
	Circuit            CircuitState
}

// SuccessRate returns successes/attempts, or 0 when there have been no
// attempts yet.
func (s *ProviderStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// ToolCall is a single structured tool invocation a provider emitted in
// its response, recognised via the TOOL_CALL/END_TOOL_CALL block
// syntax.
type ToolCall struct {
	Name   string
	Params map[string]string
}

// CodeBlock is one fenced code block extracted from a provider's
// response.
type CodeBlock struct {
	Kind     string // the fence's language hint, e.g. "go"
	Content  string
	FileHint string // optional file path the provider associated with the block
}

// ParseResult is the Provider Adapter's interpretation of one raw
// subprocess invocation. parse never errors; malformed output is
// reflected as Success=false with RawError set.
type ParseResult struct {
	Success    bool
	CodeBlocks []CodeBlock
	ToolCalls  []ToolCall
	Response   string
	RawError   string
}

// ProviderOutcome is the tagged result of one Provider Pool attempt:
// exactly one of Parsed or Err is populated.
type ProviderOutcome struct {
	Provider string
	Parsed   *ParseResult
	Err      error
}

// Ok reports whether the outcome represents a successful invocation.
func (o ProviderOutcome) Ok() bool {
	return o.Err == nil && o.Parsed != nil && o.Parsed.Success
}
