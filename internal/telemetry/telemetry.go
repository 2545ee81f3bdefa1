// Package telemetry decouples the engine from its event destinations
// via a narrow sink interface. Redaction of sensitive substrings lives
// here, at the sink boundary, not in the engine.
package telemetry

import (
	"fmt"

	"github.com/harrison/conductor/internal/models"
)

// Sink receives engine events. Implementations must not block the
// engine for long; the console and file sinks in this package write
// synchronously but cheaply.
type Sink interface {
	Emit(event models.Event)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

// Emit forwards event to every sink in the MultiSink.
func (m MultiSink) Emit(event models.Event) {
	for _, s := range m {
		s.Emit(Redact(event))
	}
}

// format renders an event as a single human-readable line for the
// console sink. The file sink writes the event as JSON instead.
func format(event models.Event) string {
	switch event.Kind {
	case models.EventRunStart:
		return "run starting"
	case models.EventTaskSelection:
		return fmt.Sprintf("selected task %s", event.TaskID)
	case models.EventTaskExecution:
		verb := "failed"
		if event.Success {
			verb = "succeeded"
		}
		return fmt.Sprintf("task %s attempt %d via %s %s", event.TaskID, event.Attempt, event.Provider, verb)
	case models.EventProviderFallback:
		return fmt.Sprintf("task %s falling back from %s to %s", event.TaskID, event.FromProvider, event.ToProvider)
	case models.EventRunCompletion:
		return fmt.Sprintf("run complete: %s", event.Message)
	default:
		return event.Message
	}
}
