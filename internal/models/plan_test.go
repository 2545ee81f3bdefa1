package models

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func validPlan() *Plan {
	return &Plan{
		Project: "demo",
		Phases: []Phase{
			{Name: "setup", TaskIDs: []string{"t1", "t2"}},
		},
		Tasks: map[string]Task{
			"t1": {ID: "t1", Title: "first"},
			"t2": {ID: "t2", Title: "second"},
		},
	}
}

func TestPlanValidate(t *testing.T) {
	plan := validPlan()
	if err := plan.Validate(); err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}
}

func TestPlanValidateRejectsUnknownPhaseReference(t *testing.T) {
	plan := validPlan()
	plan.Phases[0].TaskIDs = append(plan.Phases[0].TaskIDs, "ghost")
	if err := plan.Validate(); err == nil {
		t.Fatal("expected error for phase referencing unknown task")
	}
}

func TestPlanValidateRejectsDuplicatePhaseReference(t *testing.T) {
	plan := validPlan()
	plan.Phases = append(plan.Phases, Phase{Name: "again", TaskIDs: []string{"t1"}})
	if err := plan.Validate(); err == nil {
		t.Fatal("expected error for task referenced by two phases")
	}
}

func TestPlanValidateRequiresProject(t *testing.T) {
	plan := validPlan()
	plan.Project = ""
	if err := plan.Validate(); err == nil {
		t.Fatal("expected error for missing project")
	}
}

func TestPlanOrderedTaskIDs(t *testing.T) {
	plan := validPlan()
	plan.Phases = append(plan.Phases, Phase{Name: "cleanup", TaskIDs: []string{"t3"}})
	plan.Tasks["t3"] = Task{ID: "t3", Title: "third"}

	got := plan.OrderedTaskIDs()
	want := []string{"t1", "t2", "t3"}
	if len(got) != len(want) {
		t.Fatalf("OrderedTaskIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrderedTaskIDs() = %v, want %v", got, want)
		}
	}
}

func TestPlanValidateBackfillsMissingTaskIDIntoTheMap(t *testing.T) {
	plan := &Plan{
		Project: "demo",
		Phases:  []Phase{{Name: "setup", TaskIDs: []string{"t1"}}},
		Tasks:   map[string]Task{"t1": {Title: "first"}},
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}
	if got := plan.Tasks["t1"].ID; got != "t1" {
		t.Fatalf("Tasks[%q].ID = %q, want it backfilled to the map key", "t1", got)
	}
}

func TestPlanUnmarshalYAMLPreservesUnknownTopLevelFields(t *testing.T) {
	doc := `
project: demo
planner_version: "2.3"
phases:
  - name: setup
    task_ids: [t1]
tasks:
  t1:
    id: t1
    title: first
`
	var plan Plan
	if err := yaml.Unmarshal([]byte(doc), &plan); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if plan.Extra["planner_version"] != "2.3" {
		t.Fatalf("expected planner_version preserved, got %+v", plan.Extra)
	}
}
