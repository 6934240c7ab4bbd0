package mission

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"overseer/internal/agent"
	"overseer/internal/gateway"
)

// resultPreviewLen bounds how much of a completed task's result is quoted
// back to the supervisor during re-planning.
const resultPreviewLen = 300

// replanMaxTasks is the cap communicated to the supervisor when revising the
// plan. It is an instruction, not a post-hoc truncation: a response that
// violates it is accepted as-is.
const replanMaxTasks = 5

type plannedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

type plannedTaskList struct {
	Tasks []plannedTask `json:"tasks"`
}

// planSchema is the JSON schema passed to the gateway for planning and
// re-planning calls so the model is constrained to the task-list shape.
func planSchema() map[string]any {
	workers := make([]string, 0, len(agent.All())-1)
	for _, r := range agent.All() {
		if r != agent.RoleSupervisor {
			workers = append(workers, string(r))
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"agent":       map[string]any{"type": "string", "enum": workers},
					},
					"required": []string{"title", "description", "agent"},
				},
			},
		},
		"required": []string{"tasks"},
	}
}

// parsePlannedTasks turns a structured planning response into fresh pending
// tasks. A malformed document is a parse failure; the caller decides whether
// that pauses the mission (planning) or falls back (re-planning).
func parsePlannedTasks(raw string) ([]Task, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var list plannedTaskList
	if err := json.Unmarshal([]byte(clean), &list); err != nil {
		return nil, &gateway.Error{
			Kind:    gateway.KindParseFailure,
			Message: fmt.Sprintf("malformed task list: %v", err),
		}
	}

	tasks := make([]Task, 0, len(list.Tasks))
	for _, pt := range list.Tasks {
		if strings.TrimSpace(pt.Title) == "" {
			continue
		}
		tasks = append(tasks, Task{
			ID:          uuid.New().String()[:8],
			Title:       strings.TrimSpace(pt.Title),
			Description: strings.TrimSpace(pt.Description),
			Agent:       agent.ParseOrDefault(pt.Agent, agent.RoleResearcher),
			Status:      TaskPending,
		})
	}
	return tasks, nil
}

func buildPlanPrompt(supervisorPrompt, objective string) string {
	var sb strings.Builder
	sb.WriteString(supervisorPrompt)
	sb.WriteString("\n\nDecompose the following objective into an ordered list of tasks. ")
	sb.WriteString("Assign each task to exactly one of these agents: ")
	sb.WriteString(workerRoleNames())
	sb.WriteString(".\n")
	sb.WriteString("Respond ONLY with JSON of the shape {\"tasks\": [{\"title\", \"description\", \"agent\"}]}. No extra text.\n\n")
	sb.WriteString(fmt.Sprintf("Objective: %q\n", objective))
	return sb.String()
}

func buildTaskPrompt(rolePrompt, objective, priorContext string, t Task) string {
	var sb strings.Builder
	sb.WriteString(rolePrompt)
	sb.WriteString("\n\nOverall objective: ")
	sb.WriteString(objective)
	sb.WriteString("\n")
	if priorContext != "" {
		sb.WriteString("\nResults from earlier tasks:\n")
		sb.WriteString(priorContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\nYour task: ")
	sb.WriteString(t.Title)
	sb.WriteString("\n")
	if t.Description != "" {
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildReplanPrompt(supervisorPrompt, objective string, completed, remaining []Task) string {
	var sb strings.Builder
	sb.WriteString(supervisorPrompt)
	sb.WriteString("\n\nThe mission is in progress. Review the completed work and revise the remaining plan.\n")
	sb.WriteString(fmt.Sprintf("Objective: %q\n\n", objective))

	sb.WriteString("Completed tasks:\n")
	for _, t := range completed {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", t.Agent, t.Title, preview(t.Result)))
	}
	sb.WriteString("\nCurrent remaining tasks:\n")
	for _, t := range remaining {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", t.Agent, t.Title))
	}

	sb.WriteString("\nReturn the revised list of remaining tasks (the completed ones are fixed). ")
	sb.WriteString(fmt.Sprintf("Return at most %d tasks. ", replanMaxTasks))
	sb.WriteString("If the current remaining tasks are still right, return them unchanged. ")
	sb.WriteString("Assign each task to exactly one of these agents: ")
	sb.WriteString(workerRoleNames())
	sb.WriteString(".\nRespond ONLY with JSON of the shape {\"tasks\": [{\"title\", \"description\", \"agent\"}]}. No extra text.\n")
	return sb.String()
}

func buildSynthesisPrompt(supervisorPrompt, objective, context string) string {
	var sb strings.Builder
	sb.WriteString(supervisorPrompt)
	sb.WriteString("\n\nAll delegated work is finished. Write the final report answering the objective.\n")
	sb.WriteString(fmt.Sprintf("Objective: %q\n", objective))
	if context != "" {
		sb.WriteString("\nTask results:\n")
		sb.WriteString(context)
		sb.WriteString("\n")
	}
	sb.WriteString("\nFinal report: ")
	return sb.String()
}

// taskContext renders titles and results for the given tasks, completed
// tasks only.
func taskContext(tasks []Task) string {
	var sb strings.Builder
	for _, t := range tasks {
		if t.Status != TaskCompleted {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s (%s)\n%s\n\n", t.Title, t.Agent, t.Result))
	}
	return strings.TrimSpace(sb.String())
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	// Cut on rune boundaries so a multi-byte character is never split.
	if r := []rune(s); len(r) > resultPreviewLen {
		return string(r[:resultPreviewLen]) + "..."
	}
	return s
}

func workerRoleNames() string {
	var names []string
	for _, r := range agent.All() {
		if r != agent.RoleSupervisor {
			names = append(names, string(r))
		}
	}
	return strings.Join(names, ", ")
}
