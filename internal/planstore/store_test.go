package planstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/conductor/internal/models"
)

func writeTestPlan(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.yaml")
	doc := `
project: demo
phases:
  - name: setup
    task_ids: [t1, t2]
tasks:
  t1:
    id: t1
    title: first task
    status: todo
    order: 0
  t2:
    id: t2
    title: second task
    status: todo
    order: 1
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to seed plan: %v", err)
	}
	return path
}

func TestStoreReadValid(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPlan(t, dir)

	plan, err := New(path).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if plan.Project != "demo" {
		t.Fatalf("Project = %q, want demo", plan.Project)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("Tasks = %d, want 2", len(plan.Tasks))
	}
}

func TestStoreReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := New(filepath.Join(dir, "missing.yaml")).Read()
	if err == nil {
		t.Fatal("expected error for missing plan document")
	}
	if !models.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestStoreReadMalformedSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	doc := `
project: demo
phases:
  - name: setup
    task_ids: [ghost]
tasks: {}
`
	os.WriteFile(path, []byte(doc), 0644)

	_, err := New(path).Read()
	if err == nil {
		t.Fatal("expected schema violation error")
	}
	if !models.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestStoreUpdateStatusLegalTransition(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPlan(t, dir)
	store := New(path)

	if err := store.UpdateStatus("t1", models.StatusInProgress, nil); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	plan, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if plan.Tasks["t1"].Status != models.StatusInProgress {
		t.Fatalf("status = %q, want in_progress", plan.Tasks["t1"].Status)
	}
}

func TestStoreUpdateStatusIllegalTransition(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPlan(t, dir)
	store := New(path)

	err := store.UpdateStatus("t1", models.StatusCompleted, nil)
	if err == nil {
		t.Fatal("expected error for illegal transition")
	}
	if !models.IsStateError(err) {
		t.Fatalf("expected StateError, got %T: %v", err, err)
	}

	plan, _ := store.Read()
	if plan.Tasks["t1"].Status != models.StatusTodo {
		t.Fatalf("plan mutated despite illegal transition: %+v", plan.Tasks["t1"])
	}
}

func TestStoreUpdateStatusMergesAttachments(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPlan(t, dir)
	store := New(path)

	store.UpdateStatus("t1", models.StatusInProgress, nil)
	err := store.UpdateStatus("t1", models.StatusFailed, &Attachments{LastError: "boom"})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	plan, _ := store.Read()
	if plan.Tasks["t1"].LastError != "boom" {
		t.Fatalf("LastError = %q, want boom", plan.Tasks["t1"].LastError)
	}
}

func TestTasksForExecutionOrdersByPhase(t *testing.T) {
	plan := &models.Plan{
		Project: "demo",
		Phases: []models.Phase{
			{Name: "a", TaskIDs: []string{"t2", "t1"}},
		},
		Tasks: map[string]models.Task{
			"t1": {ID: "t1", Title: "first", Status: models.StatusTodo},
			"t2": {ID: "t2", Title: "second", Status: models.StatusTodo},
			"t3": {ID: "t3", Title: "done", Status: models.StatusCompleted},
		},
	}

	tasks := TasksForExecution(plan)
	if len(tasks) != 2 {
		t.Fatalf("TasksForExecution() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "t2" || tasks[1].ID != "t1" {
		t.Fatalf("TasksForExecution() order = [%s, %s], want [t2, t1]", tasks[0].ID, tasks[1].ID)
	}
}
