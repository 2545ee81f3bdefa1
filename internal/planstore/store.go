// Package planstore provides durable, consistent storage for the plan
// document: the ordered collection of Phases and Tasks an engine works
// through. It owns every write to that document; nothing else is
// permitted to write the plan file directly.
package planstore

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conductor/internal/filelock"
	"github.com/harrison/conductor/internal/models"
)

// Store reads and rewrites a plan document at a fixed path. A Store is
// single-writer: callers must serialize calls to Write and UpdateStatus
// themselves, since the engine is the plan's only writer.
type Store struct {
	path string
}

// New returns a Store bound to the plan document at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Read loads and validates the plan document. It fails with a
// ConfigError if the file is absent, unparseable, or violates the
// plan's structural invariants.
func (s *Store) Read() (*models.Plan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewConfigError(fmt.Sprintf("plan document %s does not exist", s.path), err)
		}
		return nil, models.NewConfigError(fmt.Sprintf("failed to read plan document %s", s.path), err)
	}

	var plan models.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, models.NewConfigError(fmt.Sprintf("plan document %s is not valid YAML", s.path), err)
	}
	if err := plan.Validate(); err != nil {
		return nil, models.NewConfigError(fmt.Sprintf("plan document %s violates schema", s.path), err)
	}
	plan.FilePath = s.path
	return &plan, nil
}

// Write atomically replaces the plan document with plan's current
// content, preserving any unrecognised top-level or per-task fields
// the plan carried when it was read.
func (s *Store) Write(plan *models.Plan) error {
	if err := plan.Validate(); err != nil {
		return models.NewStateError("refusing to write an invalid plan", err)
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return models.NewStateError("failed to serialise plan", err)
	}
	if err := filelock.AtomicWrite(s.path, data); err != nil {
		return models.NewStateError("failed to write plan document", err)
	}
	return nil
}

// Attachments carries optional fields UpdateStatus merges into a task
// record alongside its status, such as the error from a failed
// attempt.
type Attachments struct {
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// UpdateStatus loads the plan, validates that moving TaskId from its
// current status to newStatus is legal, applies the transition and any
// attachments, and rewrites the plan document. Any other transition
// fails with a StateError and the document is left untouched.
func (s *Store) UpdateStatus(taskID, newStatus string, attachments *Attachments) error {
	plan, err := s.Read()
	if err != nil {
		return err
	}

	task, ok := plan.Tasks[taskID]
	if !ok {
		return models.NewStateError(fmt.Sprintf("task %q does not exist", taskID), nil)
	}
	if !models.CanTransition(task.Status, newStatus) {
		return models.NewStateError(
			fmt.Sprintf("illegal transition for task %q: %s -> %s", taskID, task.Status, newStatus), nil)
	}

	task.Status = newStatus
	if attachments != nil {
		if attachments.LastError != "" {
			task.LastError = attachments.LastError
		}
		if attachments.StartedAt != nil {
			task.StartedAt = attachments.StartedAt
		}
		if attachments.FinishedAt != nil {
			task.FinishedAt = attachments.FinishedAt
		}
	}
	plan.Tasks[taskID] = task

	return s.Write(plan)
}

// TasksForExecution returns every task eligible to run next: tasks with
// status=todo, plus in_progress tasks left over from a crashed run,
// stably sorted by (phase order, within-phase order). Callers resuming
// from a checkpoint are responsible for excluding in_progress tasks a
// newer checkpoint already accounts for.
func TasksForExecution(plan *models.Plan) []models.Task {
	var eligible []models.Task
	for _, task := range plan.Tasks {
		if task.Status == models.StatusTodo || task.Status == models.StatusInProgress {
			eligible = append(eligible, task)
		}
	}

	order := make(map[string]int, len(plan.Tasks))
	i := 0
	for _, id := range plan.OrderedTaskIDs() {
		order[id] = i
		i++
	}
	// Tasks not referenced by any phase sort after every phase-ordered
	// task, in the stable order they were encountered.
	for _, task := range eligible {
		if _, ok := order[task.ID]; !ok {
			order[task.ID] = len(plan.Tasks) + i
			i++
		}
	}

	sort.SliceStable(eligible, func(a, b int) bool {
		return order[eligible[a].ID] < order[eligible[b].ID]
	})
	return eligible
}
