package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Phase is an ordered group of task IDs within a Plan.
type Phase struct {
	Name    string   `yaml:"name" json:"name"`
	TaskIDs []string `yaml:"task_ids" json:"task_ids"`
}

// Plan is the durable, ordered description of Phases and Tasks the
// engine works through. It is the single source of truth for task
// state and is read and rewritten atomically by the Plan Store.
type Plan struct {
	Project string          `yaml:"project" json:"project"`
	Phases  []Phase         `yaml:"phases" json:"phases"`
	Tasks   map[string]Task `yaml:"tasks" json:"tasks"`

	// Extra preserves top-level fields this engine doesn't interpret,
	// so round-tripping a plan never silently drops planner metadata.
	Extra map[string]interface{} `yaml:"-" json:"-"`

	// FilePath is the source the plan was read from. Not serialised.
	FilePath string `yaml:"-" json:"-"`
}

var planKnownFields = map[string]bool{
	"project": true, "phases": true, "tasks": true,
}

// UnmarshalYAML decodes a plan while preserving any top-level fields
// outside the known schema in Extra.
func (p *Plan) UnmarshalYAML(value *yaml.Node) error {
	type planAlias Plan
	var alias planAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}
	*p = Plan(alias)

	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for key, node := range raw {
		if planKnownFields[key] {
			continue
		}
		var v interface{}
		if err := node.Decode(&v); err != nil {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]interface{})
		}
		p.Extra[key] = v
	}
	return nil
}

// MarshalYAML re-serialises the plan, merging Extra fields back in.
func (p Plan) MarshalYAML() (interface{}, error) {
	type planAlias Plan
	node := yaml.Node{}
	if err := node.Encode(planAlias(p)); err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return &node, nil
	}
	var extraNode yaml.Node
	if err := extraNode.Encode(p.Extra); err != nil {
		return nil, err
	}
	node.Content = append(node.Content, extraNode.Content...)
	return &node, nil
}

// Validate checks the plan's structural invariants: every TaskId
// referenced by a Phase must resolve in the Task table, and every task
// in the table must itself be well-formed.
func (p *Plan) Validate() error {
	if p.Project == "" {
		return fmt.Errorf("plan: project name is required")
	}
	if p.Tasks == nil {
		return fmt.Errorf("plan: task table is required")
	}
	seen := make(map[string]bool)
	for _, phase := range p.Phases {
		for _, id := range phase.TaskIDs {
			if seen[id] {
				return fmt.Errorf("plan: task %q referenced by more than one phase", id)
			}
			seen[id] = true
			if _, ok := p.Tasks[id]; !ok {
				return fmt.Errorf("plan: phase %q references unknown task %q", phase.Name, id)
			}
		}
	}
	for id, task := range p.Tasks {
		if task.ID == "" {
			task.ID = id
			p.Tasks[id] = task
		}
		if err := task.Validate(); err != nil {
			return fmt.Errorf("plan: task %q: %w", id, err)
		}
	}
	return nil
}

// OrderedTaskIDs returns every task ID in the plan's declared phase
// order, flattening phases in sequence.
func (p *Plan) OrderedTaskIDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, phase := range p.Phases {
		ids = append(ids, phase.TaskIDs...)
	}
	return ids
}

// phaseOrder returns the position of a task's owning phase, and its
// position within that phase, for stable (phase order, within-phase
// order) sorting.
func (p *Plan) phaseOrder(taskID string) (phaseIdx, withinIdx int) {
	for pi, phase := range p.Phases {
		for wi, id := range phase.TaskIDs {
			if id == taskID {
				return pi, wi
			}
		}
	}
	return len(p.Phases), 0
}
