// Package parser reads a Markdown-format plan document into a
// models.Plan, as an alternate input format alongside the Plan
// Store's native YAML. A plan document is an optional YAML
// frontmatter block (project name and phase layout) followed by one
// "## Task <id>: <title>" section per task.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/conductor/internal/models"
)

var taskHeadingRe = regexp.MustCompile(`^##\s+Task\s+(\S+):\s*(.+?)\s*$`)
var subsectionRe = regexp.MustCompile(`^###\s+(.+?)\s*$`)

// frontmatter is the YAML header a plan document may open with.
type frontmatter struct {
	Project string         `yaml:"project"`
	Phases  []models.Phase `yaml:"phases"`
}

// ParseMarkdown reads a Markdown plan document from r. Task sections
// are split by scanning lines rather than walking a Markdown AST: a
// fenced fixed-format heading grammar is unambiguous line by line, and
// staying off the AST avoids chasing library-specific byte-range
// quirks across fenced code and list blocks.
func ParseMarkdown(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("markdown plan: failed to read: %w", err)
	}

	body, fm, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("markdown plan: %w", err)
	}

	plan := &models.Plan{Project: fm.Project, Phases: fm.Phases, Tasks: map[string]models.Task{}}

	sections := splitTaskSections(body)
	for _, sec := range sections {
		plan.Tasks[sec.id] = parseTaskSection(sec)
	}

	if len(plan.Phases) == 0 && len(plan.Tasks) > 0 {
		ids := make([]string, 0, len(sections))
		for _, sec := range sections {
			ids = append(ids, sec.id)
		}
		plan.Phases = []models.Phase{{Name: "default", TaskIDs: ids}}
	}

	return plan, nil
}

func splitFrontmatter(content []byte) (body []byte, fm frontmatter, err error) {
	const delim = "---\n"
	if !bytes.HasPrefix(content, []byte(delim)) {
		return content, fm, nil
	}
	rest := content[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil, fm, fmt.Errorf("unterminated frontmatter block")
	}
	raw := rest[:end]
	body = rest[end+len(delim)+1:]

	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return nil, fm, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return body, fm, nil
}

// taskSection is one "## Task <id>: <title>" heading's body lines.
type taskSection struct {
	id, title string
	lines     []string
}

// splitTaskSections scans body line by line, starting a new section at
// each task heading and tracking fenced-code-block state so a "##" or
// "###" appearing inside a check-step example is never mistaken for a
// real heading.
func splitTaskSections(body []byte) []taskSection {
	var sections []taskSection
	var cur *taskSection
	inFence := false

	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			if cur != nil {
				cur.lines = append(cur.lines, line)
			}
			continue
		}
		if !inFence {
			if m := taskHeadingRe.FindStringSubmatch(line); m != nil {
				if cur != nil {
					sections = append(sections, *cur)
				}
				cur = &taskSection{id: m[1], title: m[2]}
				continue
			}
		}
		if cur != nil {
			cur.lines = append(cur.lines, line)
		}
	}
	if cur != nil {
		sections = append(sections, *cur)
	}
	return sections
}

// parseTaskSection splits a section's lines into its free-text
// description and its named "### Acceptance Criteria" / "### Outputs"
// / "### Check Steps" subsections.
func parseTaskSection(sec taskSection) models.Task {
	task := models.Task{ID: sec.id, Title: sec.title, Status: models.StatusTodo}

	var descLines, current []string
	var currentName string
	inFence := false
	flush := func() {
		switch currentName {
		case "acceptance criteria":
			task.AcceptanceCriteria = bulletItems(current)
		case "outputs":
			task.OutputPaths = bulletItems(current)
		case "check steps":
			task.CheckSteps = checkStepLines(fencedLines(current))
		}
		current = nil
	}

	for _, line := range sec.lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			current = append(current, line)
			continue
		}
		if !inFence {
			if m := subsectionRe.FindStringSubmatch(line); m != nil {
				if currentName == "" {
					descLines = current
				} else {
					flush()
				}
				currentName = strings.ToLower(m[1])
				current = nil
				continue
			}
		}
		current = append(current, line)
	}
	if currentName == "" {
		descLines = current
	} else {
		flush()
	}

	task.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
	return task
}

func bulletItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			items = append(items, strings.TrimSpace(trimmed[2:]))
		}
	}
	return items
}

// fencedLines returns the lines inside the first fenced code block, or
// all of lines if none is fenced.
func fencedLines(lines []string) []string {
	start, end := -1, -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start < 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start < 0 || end < 0 {
		return lines
	}
	return lines[start:end]
}

// checkStepLines turns one command per line into CheckSteps. A line
// may declare the substring its output must contain with
// "command # expects: substring".
func checkStepLines(lines []string) []models.CheckStep {
	var steps []models.CheckStep
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "# expects:"); idx >= 0 {
			steps = append(steps, models.CheckStep{
				Command:        strings.TrimSpace(line[:idx]),
				ExpectedOutput: strings.TrimSpace(line[idx+len("# expects:"):]),
			})
			continue
		}
		steps = append(steps, models.CheckStep{Command: line})
	}
	return steps
}
