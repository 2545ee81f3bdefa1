// Package validator runs the fixed pipeline of checks that decides
// whether a task's provider output is accepted: output files,
// acceptance criteria, check-step commands, and an optional custom
// script. All four stages always run and their verdicts conjoin.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/conductor/internal/models"
)

// CommandRunner abstracts shell command execution so the check_steps
// and custom_script stages can be tested without spawning real
// processes.
type CommandRunner interface {
	Run(ctx context.Context, command string, workDir string, env []string) (stdout, stderr string, exitCode int, err error)
}

// ShellCommandRunner executes commands via the system shell.
type ShellCommandRunner struct{}

// Run executes command via `sh -c` in workDir with env appended to the
// current process environment.
func (ShellCommandRunner) Run(ctx context.Context, command, workDir string, env []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	} else if err != nil {
		exitCode = -1
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// Validator runs the four-stage pipeline against a task and its
// provider output.
type Validator struct {
	Runner      CommandRunner
	ProjectPath string
	StepTimeout time.Duration
}

// New returns a Validator rooted at projectPath, running check steps
// through a real shell with the given per-step timeout.
func New(projectPath string, stepTimeout time.Duration) *Validator {
	return &Validator{Runner: ShellCommandRunner{}, ProjectPath: projectPath, StepTimeout: stepTimeout}
}

// Validate runs all four stages for task against parsed, an
// execution record describing the attempt that is being validated.
func (v *Validator) Validate(ctx context.Context, task models.Task, parsed *models.ParseResult, record models.ExecutionRecord) *models.ValidationResult {
	checks := []models.CheckResult{
		v.checkOutputFiles(task),
		v.checkAcceptanceCriteria(task, parsed),
		v.checkSteps(ctx, task),
		v.checkCustomScript(ctx, task, record),
	}

	passed := true
	var failedKinds []string
	for _, c := range checks {
		if !c.Passed {
			passed = false
			failedKinds = append(failedKinds, string(c.Kind))
		}
	}

	summary := "all validation stages passed"
	if !passed {
		summary = fmt.Sprintf("failed stages: %s", strings.Join(failedKinds, ", "))
	}

	return &models.ValidationResult{
		TaskID:  task.ID,
		Checks:  checks,
		Passed:  passed,
		Summary: summary,
	}
}

func (v *Validator) checkOutputFiles(task models.Task) models.CheckResult {
	if len(task.OutputPaths) == 0 {
		return models.CheckResult{Kind: models.CheckOutputFiles, Passed: true, Message: "no output paths declared"}
	}

	var results []models.OutputFileResult
	allPresent := true
	for _, p := range task.OutputPaths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(v.ProjectPath, p)
		}
		info, err := os.Stat(full)
		r := models.OutputFileResult{Path: p}
		if err == nil {
			r.Exists = true
			r.Size = info.Size()
			r.Modified = info.ModTime()
		} else {
			allPresent = false
		}
		results = append(results, r)
	}

	msg := "all declared output paths exist"
	if !allPresent {
		msg = "one or more declared output paths are missing"
	}
	return models.CheckResult{Kind: models.CheckOutputFiles, Passed: allPresent, Message: msg, OutputFiles: results}
}

func (v *Validator) checkAcceptanceCriteria(task models.Task, parsed *models.ParseResult) models.CheckResult {
	if len(task.AcceptanceCriteria) == 0 {
		return models.CheckResult{Kind: models.CheckAcceptanceCriteria, Passed: true, Message: "no acceptance criteria declared"}
	}

	response := ""
	if parsed != nil {
		response = parsed.Response
	}

	var results []models.AcceptanceResult
	allMet := true
	for _, c := range task.AcceptanceCriteria {
		met := strings.Contains(response, c)
		if !met {
			allMet = false
		}
		results = append(results, models.AcceptanceResult{Criterion: c, Passed: met})
	}

	msg := "all acceptance criteria satisfied"
	if !allMet {
		msg = "one or more acceptance criteria not satisfied"
	}
	return models.CheckResult{Kind: models.CheckAcceptanceCriteria, Passed: allMet, Message: msg, Acceptance: results}
}

func (v *Validator) checkSteps(ctx context.Context, task models.Task) models.CheckResult {
	if len(task.CheckSteps) == 0 {
		return models.CheckResult{Kind: models.CheckCheckSteps, Passed: true, Message: "no check steps declared"}
	}

	var results []models.CheckStepResult
	allPassed := true
	for _, step := range task.CheckSteps {
		stepCtx, cancel := context.WithTimeout(ctx, v.StepTimeout)
		start := time.Now()
		stdout, stderr, exitCode, err := v.Runner.Run(stepCtx, step.Command, v.ProjectPath, nil)
		duration := time.Since(start)
		cancel()

		passed := exitCode == 0 && err == nil
		if passed && step.ExpectedOutput != "" {
			passed = strings.Contains(stdout, step.ExpectedOutput)
		}
		if !passed {
			allPassed = false
		}

		results = append(results, models.CheckStepResult{
			Command: step.Command, ExitCode: exitCode, Stdout: stdout, Stderr: stderr,
			Duration: duration, Passed: passed,
		})
	}

	msg := "all check steps passed"
	if !allPassed {
		msg = "one or more check steps failed"
	}
	return models.CheckResult{Kind: models.CheckCheckSteps, Passed: allPassed, Message: msg, CheckSteps: results}
}

// customScriptOutput is the single JSON document a custom validation
// script must print on stdout.
type customScriptOutput struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

func (v *Validator) checkCustomScript(ctx context.Context, task models.Task, record models.ExecutionRecord) models.CheckResult {
	if task.CustomScriptPath == "" {
		return models.CheckResult{Kind: models.CheckCustomScript, Passed: true, Message: "no custom script declared"}
	}

	scriptPath := task.CustomScriptPath
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(v.ProjectPath, scriptPath)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return models.CheckResult{Kind: models.CheckCustomScript, Passed: false,
			Message: fmt.Sprintf("custom script %s not found on disk", task.CustomScriptPath)}
	}

	resultJSON, err := json.Marshal(record)
	if err != nil {
		resultJSON = []byte("{}")
	}

	env := []string{
		"TASK_ID=" + task.ID,
		"TASK_TITLE=" + task.Title,
		"EXECUTION_RESULT=" + string(resultJSON),
		"PROJECT_PATH=" + v.ProjectPath,
	}

	stdout, _, exitCode, err := v.Runner.Run(ctx, scriptPath, v.ProjectPath, env)
	if err != nil {
		return models.CheckResult{Kind: models.CheckCustomScript, Passed: false,
			Message: fmt.Sprintf("custom script failed to run: %v", err)}
	}
	_ = exitCode // the script's verdict comes from its JSON output, not its exit code

	var out customScriptOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &out); err != nil {
		return models.CheckResult{Kind: models.CheckCustomScript, Passed: false,
			Message: fmt.Sprintf("custom script did not print a single JSON document: %v", err)}
	}

	msg := out.Message
	if msg == "" {
		msg = "custom script reported no message"
	}
	return models.CheckResult{Kind: models.CheckCustomScript, Passed: out.Passed, Message: msg}
}
