// Package checkpoint stores durable snapshots of engine state
// sufficient to resume a run without repeating completed tasks.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conductor/internal/filelock"
	"github.com/harrison/conductor/internal/models"
)

// Store writes and reads checkpoint files in a dedicated directory.
// Filenames are `checkpoint-<isoTimestamp>.yaml`, where the timestamp
// format sorts lexicographically in creation order, so "latest" is
// always the last entry once sorted.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

const timestampLayout = "20060102T150405.000000000Z"

// Save writes cp to a new, uniquely-named checkpoint file using an
// atomic temp-file-then-rename replace.
func (s *Store) Save(cp *models.Checkpoint) (string, error) {
	name := fmt.Sprintf("checkpoint-%s.yaml", cp.Timestamp.UTC().Format(timestampLayout))
	path := filepath.Join(s.dir, name)

	data, err := yaml.Marshal(cp)
	if err != nil {
		return "", models.NewStateError("failed to serialise checkpoint", err)
	}
	if err := filelock.AtomicWrite(path, data); err != nil {
		return "", models.NewStateError("failed to write checkpoint", err)
	}
	return path, nil
}

// Load reads a specific checkpoint file.
func (s *Store) Load(path string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewStateError(fmt.Sprintf("failed to read checkpoint %s", path), err)
	}
	var cp models.Checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, models.NewStateError(fmt.Sprintf("checkpoint %s is malformed", path), err)
	}
	return &cp, nil
}

// Latest returns the most recently written checkpoint in the store's
// directory, or nil if none exist.
func (s *Store) Latest() (*models.Checkpoint, string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, "", models.NewStateError(fmt.Sprintf("failed to list checkpoint directory %s", s.dir), err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "checkpoint-") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, "", nil
	}
	sort.Strings(names)
	latestPath := filepath.Join(s.dir, names[len(names)-1])

	cp, err := s.Load(latestPath)
	if err != nil {
		return nil, "", err
	}
	return cp, latestPath, nil
}
