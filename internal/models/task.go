package models

import (
	"errors"
	"time"

	"gopkg.in/yaml.v3"
)

// Task status constants. Terminal states are Completed and Failed; the
// only legal transitions are Todo->InProgress, InProgress->{Completed,
// Failed}, and Failed->InProgress (a later run retrying the task).
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CheckStep is a single check-step command specification attached to a
// task: a shell command and an optional substring the command's stdout
// must contain for the step to pass.
type CheckStep struct {
	Command        string `yaml:"command" json:"command"`
	ExpectedOutput string `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
}

// Task is a single unit of work dispatched to a provider.
type Task struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`

	AcceptanceCriteria []string    `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	CheckSteps         []CheckStep `yaml:"check_steps,omitempty" json:"check_steps,omitempty"`
	OutputPaths        []string    `yaml:"output_paths,omitempty" json:"output_paths,omitempty"`
	CustomScriptPath   string      `yaml:"custom_script_path,omitempty" json:"custom_script_path,omitempty"`

	Status     string     `yaml:"status" json:"status"`
	Order      int        `yaml:"order" json:"order"`
	LastError  string     `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	StartedAt  *time.Time `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`

	// Extra carries unrecognised fields so Plan Store round-trips forward
	// compatibly with planners that add fields this engine doesn't know
	// about.
	Extra map[string]interface{} `yaml:"-" json:"-"`
}

// taskKnownFields lists the YAML keys this struct understands; anything
// else in a task document is preserved verbatim in Extra.
var taskKnownFields = map[string]bool{
	"id": true, "title": true, "description": true,
	"acceptance_criteria": true, "check_steps": true, "output_paths": true,
	"custom_script_path": true, "status": true, "order": true,
	"last_error": true, "started_at": true, "finished_at": true,
}

// UnmarshalYAML decodes a task while preserving any fields outside the
// known schema in Extra, so Plan Store round-trips forward-compatibly.
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	type taskAlias Task
	var alias taskAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}
	*t = Task(alias)

	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for key, node := range raw {
		if taskKnownFields[key] {
			continue
		}
		var v interface{}
		if err := node.Decode(&v); err != nil {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]interface{})
		}
		t.Extra[key] = v
	}
	return nil
}

// MarshalYAML re-serialises the task, merging Extra fields back in.
func (t Task) MarshalYAML() (interface{}, error) {
	type taskAlias Task
	node := yaml.Node{}
	if err := node.Encode(taskAlias(t)); err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return &node, nil
	}
	var extraNode yaml.Node
	if err := extraNode.Encode(t.Extra); err != nil {
		return nil, err
	}
	node.Content = append(node.Content, extraNode.Content...)
	return &node, nil
}

// Validate checks that a task carries the fields required to execute it.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Title == "" {
		return errors.New("task title is required")
	}
	return nil
}

// IsTerminal reports whether the task's status is a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// legalTransitions enumerates the status transitions Plan Store will
// accept. Any pair not present here is rejected with a StateError.
var legalTransitions = map[string]map[string]bool{
	StatusTodo:       {StatusInProgress: true},
	StatusInProgress: {StatusCompleted: true, StatusFailed: true},
	StatusFailed:     {StatusInProgress: true},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to string) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}
