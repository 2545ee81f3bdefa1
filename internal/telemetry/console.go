package telemetry

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/harrison/conductor/internal/models"
)

// ConsoleSink writes one line per event to a writer, colorizing
// success/failure/fallback when the destination is a terminal.
type ConsoleSink struct {
	writer io.Writer
	mu     sync.Mutex

	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

// NewConsoleSink returns a ConsoleSink writing to w. Color is enabled
// only when w is an *os.File whose descriptor is a TTY.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = isatty.IsTerminal(f.Fd())
	}

	return &ConsoleSink{
		writer:  w,
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}.withColor(enabled)
}

func (c *ConsoleSink) withColor(enabled bool) *ConsoleSink {
	for _, col := range []*color.Color{c.success, c.fail, c.warn, c.label} {
		col.EnableColor()
		if !enabled {
			col.DisableColor()
		}
	}
	return c
}

// Emit writes one formatted, timestamp-prefixed line for event.
func (c *ConsoleSink) Emit(event models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := event.Timestamp.Format("15:04:05")
	taskCol := runewidth.FillRight(event.TaskID, 12)
	line := format(event)

	switch {
	case event.Kind == models.EventTaskExecution && event.Success:
		line = c.success.Sprint(line)
	case event.Kind == models.EventTaskExecution && !event.Success:
		line = c.fail.Sprint(line)
	case event.Kind == models.EventProviderFallback:
		line = c.warn.Sprint(line)
	}

	fmt.Fprintf(c.writer, "[%s] %s %s\n", c.label.Sprint(ts), taskCol, line)
}
