// Package provider implements the uniform contract for invoking one
// external command-line assistant as a subprocess: turning a task into
// a prompt, executing the CLI, and parsing its output.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/harrison/conductor/internal/models"
)

// maxCapturedOutput bounds how much of a provider's stdout/stderr the
// Adapter retains in memory.
const maxCapturedOutput = 1 << 20 // 1 MiB

// Adapter turns one Task into one external-process invocation and
// parses its output. An Adapter is bound to a single provider.
type Adapter struct {
	Spec models.ProviderSpec

	// tmpDir is the clean scratch directory prompt files are written
	// into. Kept separate from the system default to avoid picking up
	// editor socket files that crash some provider CLIs when the
	// process environment is passed through unmodified.
	tmpDir string
}

// NewAdapter returns an Adapter bound to the given provider spec. It
// creates (or reuses) a dedicated scratch directory for prompt files.
func NewAdapter(spec models.ProviderSpec) (*Adapter, error) {
	dir := filepath.Join(os.TempDir(), "conductor-"+spec.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory for provider %s: %w", spec.Name, err)
	}
	return &Adapter{Spec: spec, tmpDir: dir}, nil
}

// Prompt renders a task into the single textual document sent to the
// provider. It is deterministic given its inputs.
func (a *Adapter) Prompt(task models.Task, projectPath string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}

	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(task.OutputPaths) > 0 {
		b.WriteString("## Expected outputs\n\n")
		for _, p := range task.OutputPaths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	if len(task.CheckSteps) > 0 {
		b.WriteString("## Checks that will be run\n\n")
		for _, s := range task.CheckSteps {
			fmt.Fprintf(&b, "- `%s`", s.Command)
			if s.ExpectedOutput != "" {
				fmt.Fprintf(&b, " (expects output containing %q)", s.ExpectedOutput)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Project directory: %s\n", projectPath)
	b.WriteString("Do not ask clarifying questions; make a reasonable assumption and proceed.\n")

	return b.String()
}

// InvokeResult is the raw triple a subprocess invocation produces.
type InvokeResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Invoke spawns the provider's CLI with the prompt delivered via a
// scoped temporary file, enforces the given timeout by killing the
// child's process group, and returns the captured triple. It fails
// with a ProviderError carrying ProviderTimeout or ProviderSpawn when
// the process cannot be waited on to completion.
func (a *Adapter) Invoke(ctx context.Context, promptText string, timeout time.Duration, overrides map[string]string) (*InvokeResult, error) {
	promptFile, err := os.CreateTemp(a.tmpDir, "prompt-*.txt")
	if err != nil {
		return nil, models.NewProviderError(a.Spec.Name, models.ProviderSpawn, "failed to create prompt file", err)
	}
	promptPath := promptFile.Name()
	defer os.Remove(promptPath)

	if _, err := promptFile.WriteString(promptText); err != nil {
		promptFile.Close()
		return nil, models.NewProviderError(a.Spec.Name, models.ProviderSpawn, "failed to write prompt file", err)
	}
	if err := promptFile.Close(); err != nil {
		return nil, models.NewProviderError(a.Spec.Name, models.ProviderSpawn, "failed to close prompt file", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--prompt-file", promptPath}
	args = append(args, paramArgs(mergeParams(a.Spec.DefaultParams, overrides))...)

	cmd := exec.CommandContext(callCtx, a.Spec.Command, args...)
	cmd.Env = cleanEnv(a.tmpDir)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &stdout, limit: maxCapturedOutput}
	cmd.Stderr = &boundedWriter{buf: &stderr, limit: maxCapturedOutput}

	runErr := cmd.Run()

	if callCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return nil, models.NewProviderError(a.Spec.Name, models.ProviderTimeout,
			fmt.Sprintf("provider did not exit within %s", timeout), callCtx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errorsAsExitError(runErr, &exitErr) {
			return &InvokeResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}, nil
		}
		return nil, models.NewProviderError(a.Spec.Name, models.ProviderSpawn,
			fmt.Sprintf("failed to run %s", a.Spec.Command), runErr)
	}

	return &InvokeResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}, nil
}

// Health runs the provider's configured health probe (typically
// --version) and reports whether it exits zero within a short, fixed
// timeout.
func (a *Adapter) Health(ctx context.Context) bool {
	args := a.Spec.HealthArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(callCtx, a.Spec.Command, args...)
	cmd.Env = cleanEnv(a.tmpDir)
	return cmd.Run() == nil
}

var toolCallHeader = regexp.MustCompile(`(?m)^TOOL_CALL:\s*(.+)$`)
var toolCallFooter = regexp.MustCompile(`(?m)^END_TOOL_CALL\s*$`)
var codeFence = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\n(.*?)```")

// Parse interprets one raw invocation result. It never errors;
// malformed output is reflected as Success=false with RawError set.
func Parse(result *InvokeResult) *models.ParseResult {
	if result == nil {
		return &models.ParseResult{Success: false, RawError: "no invocation result"}
	}

	pr := &models.ParseResult{
		Success:  result.ExitCode == 0,
		Response: result.Stdout,
	}
	if result.ExitCode != 0 {
		pr.RawError = strings.TrimSpace(result.Stderr)
		if pr.RawError == "" {
			pr.RawError = fmt.Sprintf("provider exited with code %d", result.ExitCode)
		}
	}

	for _, m := range codeFence.FindAllStringSubmatch(result.Stdout, -1) {
		pr.CodeBlocks = append(pr.CodeBlocks, models.CodeBlock{Kind: m[1], Content: m[2]})
	}

	pr.ToolCalls = parseToolCalls(result.Stdout)

	return pr
}

func parseToolCalls(output string) []models.ToolCall {
	var calls []models.ToolCall
	headers := toolCallHeader.FindAllStringSubmatchIndex(output, -1)
	footers := toolCallFooter.FindAllStringIndex(output, -1)

	for _, h := range headers {
		name := strings.TrimSpace(output[h[2]:h[3]])
		bodyStart := h[1]
		bodyEnd := len(output)
		for _, f := range footers {
			if f[0] >= bodyStart {
				bodyEnd = f[0]
				break
			}
		}
		body := output[bodyStart:bodyEnd]
		params := map[string]string{}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if idx := strings.Index(line, ":"); idx > 0 {
				key := strings.TrimSpace(line[:idx])
				val := strings.TrimSpace(line[idx+1:])
				params[key] = val
			}
		}
		calls = append(calls, models.ToolCall{Name: name, Params: params})
	}
	return calls
}

func mergeParams(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func paramArgs(params map[string]string) []string {
	var args []string
	for k, v := range params {
		args = append(args, "--"+k, v)
	}
	return args
}

type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

