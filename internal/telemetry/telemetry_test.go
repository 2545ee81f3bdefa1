package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/conductor/internal/models"
)

func TestConsoleSinkWritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	sink.Emit(models.Event{Kind: models.EventTaskSelection, TaskID: "t1", Timestamp: time.Now()})

	if !strings.Contains(buf.String(), "t1") {
		t.Fatalf("expected output to mention task id, got %q", buf.String())
	}
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	defer sink.Close()

	sink.Emit(models.Event{Kind: models.EventRunStart, Timestamp: time.Now()})
	sink.Emit(models.Event{Kind: models.EventRunCompletion, Message: "done", Timestamp: time.Now()})

	latest := filepath.Join(dir, "latest.jsonl")
	info, err := os.Lstat(latest)
	if err != nil {
		t.Fatalf("expected latest.jsonl symlink, got error %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("expected latest.jsonl to be a symlink")
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		t.Fatalf("ReadFile(latest) error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	var event models.Event
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("failed to unmarshal first line: %v", err)
	}
	if event.Kind != models.EventRunStart {
		t.Fatalf("Kind = %v, want run_start", event.Kind)
	}
}

func TestRedactScrubsLongTokensAndHomeDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	msg := "token=abcdefghijklmnopqrstuvwxyz1234567890 at " + home + "/project/file.go"
	event := Redact(models.Event{Message: msg})

	if strings.Contains(event.Message, "abcdefghijklmnopqrstuvwxyz1234567890") {
		t.Fatalf("expected long token to be redacted, got %q", event.Message)
	}
	if home != "" && strings.Contains(event.Message, home) {
		t.Fatalf("expected home directory to be redacted, got %q", event.Message)
	}
}
