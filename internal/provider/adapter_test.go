package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/conductor/internal/models"
)

func echoAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	spec := models.ProviderSpec{
		Name:    "fake",
		Command: "sh",
		Timeout: 5 * time.Second,
	}
	a, err := NewAdapter(spec)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	// Run plain sh (the script argument is unused); sh receives the
	// --prompt-file flag the Adapter appends. Tests only care about exit
	// behaviour.
	a.Spec.Command = "sh"
	_ = script
	return a
}

func TestAdapterInvokeCapturesNonZeroExit(t *testing.T) {
	a := echoAdapter(t, "")
	a.Spec.Command = "sh"

	result, err := a.Invoke(context.Background(), "hello", 2*time.Second, nil)
	// sh rejects --prompt-file as an unknown option and exits non-zero,
	// so this exercises the non-zero exit path deterministically.
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatalf("expected non-zero exit for a missing script path")
	}
}

func TestAdapterHealthFailsForUnknownCommand(t *testing.T) {
	spec := models.ProviderSpec{Name: "ghost", Command: "definitely-not-a-real-binary-xyz"}
	a, err := NewAdapter(spec)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if a.Health(context.Background()) {
		t.Fatal("expected Health() to fail for a nonexistent binary")
	}
}

func TestAdapterInvokeTimeout(t *testing.T) {
	// sleep itself would reject the --prompt-file flag and exit at once;
	// a script ignores its arguments and outlives the timeout.
	script := filepath.Join(t.TempDir(), "slow.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	spec := models.ProviderSpec{Name: "sleepy", Command: script}
	a, err := NewAdapter(spec)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	_, err = a.Invoke(context.Background(), "irrelevant", 50*time.Millisecond, map[string]string{})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !models.IsProviderError(err) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
}

func TestParseExtractsCodeBlocksAndToolCalls(t *testing.T) {
	stdout := "Here is the change:\n\n```go\npackage main\n```\n\n" +
		"TOOL_CALL: write_file\npath: out.go\ncontent: package main\nEND_TOOL_CALL\n"

	result := Parse(&InvokeResult{Stdout: stdout, ExitCode: 0})
	if !result.Success {
		t.Fatal("expected Success=true for exit code 0")
	}
	if len(result.CodeBlocks) != 1 || !strings.Contains(result.CodeBlocks[0].Content, "package main") {
		t.Fatalf("expected one code block containing package main, got %+v", result.CodeBlocks)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "write_file" {
		t.Fatalf("expected one write_file tool call, got %+v", result.ToolCalls)
	}
	if result.ToolCalls[0].Params["path"] != "out.go" {
		t.Fatalf("expected path param out.go, got %+v", result.ToolCalls[0].Params)
	}
}

func TestParseNonZeroExitReportsRawError(t *testing.T) {
	result := Parse(&InvokeResult{Stdout: "", Stderr: "boom", ExitCode: 1})
	if result.Success {
		t.Fatal("expected Success=false for non-zero exit")
	}
	if result.RawError != "boom" {
		t.Fatalf("RawError = %q, want boom", result.RawError)
	}
}

func TestPromptIncludesCriteriaAndOutputs(t *testing.T) {
	a := echoAdapter(t, "")
	task := models.Task{
		Title:              "Add retry logic",
		Description:        "Retries transient failures.",
		AcceptanceCriteria: []string{"retries 3 times"},
		OutputPaths:        []string{"internal/retry/retry.go"},
		CheckSteps:         []models.CheckStep{{Command: "go test ./...", ExpectedOutput: "ok"}},
	}

	prompt := a.Prompt(task, "/srv/project")
	for _, want := range []string{"Add retry logic", "retries 3 times", "internal/retry/retry.go", "go test ./...", "/srv/project"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
