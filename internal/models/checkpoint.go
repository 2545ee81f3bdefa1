package models

import "time"

// TaskSnapshot is the compact (TaskId, status) pair a Checkpoint
// records for every task known at the time it was written.
type TaskSnapshot struct {
	ID     string `yaml:"id" json:"id"`
	Status string `yaml:"status" json:"status"`
}

// Checkpoint is a durable snapshot of engine state sufficient to resume
// a run without repeating completed tasks. The checkpoint is always
// written before the next task's attempt loop begins, so it and the
// plan document are consistent together.
type Checkpoint struct {
	RunID             string         `yaml:"run_id" json:"run_id"`
	Timestamp         time.Time      `yaml:"timestamp" json:"timestamp"`
	ProjectPath       string         `yaml:"project_path" json:"project_path"`
	PlanPath          string         `yaml:"plan_path" json:"plan_path"`
	CurrentTaskIndex  int            `yaml:"current_task_index" json:"current_task_index"`
	CompletedTasks    int            `yaml:"completed_tasks" json:"completed_tasks"`
	FailedTasks       int            `yaml:"failed_tasks" json:"failed_tasks"`
	Tasks             []TaskSnapshot `yaml:"tasks" json:"tasks"`
	ExecutionLog      []ExecutionRecord `yaml:"execution_log" json:"execution_log"`
}
