package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/conductor/internal/models"
)

// FileSink appends one JSON line per event to a timestamped run file
// under dir, and maintains a latest.jsonl symlink pointing to it.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink creates dir if needed, opens a new timestamped run log,
// and refreshes the latest.jsonl symlink to point at it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory %s: %w", dir, err)
	}

	runPath := filepath.Join(dir, fmt.Sprintf("run-%s.jsonl", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry run log: %w", err)
	}

	symlinkPath := filepath.Join(dir, "latest.jsonl")
	os.Remove(symlinkPath)
	if err := os.Symlink(filepath.Base(runPath), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create latest.jsonl symlink: %w", err)
	}

	return &FileSink{file: file}, nil
}

// Emit appends event as a single JSON line.
func (f *FileSink) Emit(event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	f.file.Write(append(line, '\n'))
	f.file.Sync()
}

// Close flushes and closes the run log file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
