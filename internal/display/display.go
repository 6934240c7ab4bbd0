// Package display renders mission snapshots for the terminal.
package display

import (
	"fmt"
	"strings"
	"time"

	"overseer/internal/mission"
	"overseer/internal/ratelimit"
	"overseer/internal/session"
)

const maxValueLength = 100

const separator = "--------------------------------------------------"

// FormatStatus summarizes the mission and its token budget.
func FormatStatus(st *mission.State, cfg ratelimit.Config, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Mission status:\n")
	sb.WriteString(separator + "\n")
	sb.WriteString(fmt.Sprintf("  Status:    %s\n", st.Status))
	if st.Query != "" {
		sb.WriteString(fmt.Sprintf("  Objective: %s\n", truncate(st.Query)))
	}
	done := 0
	for _, t := range st.Tasks {
		if t.Status == mission.TaskCompleted {
			done++
		}
	}
	if len(st.Tasks) > 0 {
		sb.WriteString(fmt.Sprintf("  Tasks:     %d/%d completed\n", done, len(st.Tasks)))
	}
	budget := int(float64(cfg.MaxTokens) * ratelimit.Threshold)
	sb.WriteString(fmt.Sprintf("  Tokens:    %d used of %d (budget %d per %d %s)\n",
		st.TokenUsage, budget, cfg.MaxTokens, cfg.PeriodValue, cfg.PeriodUnit))
	if !st.WindowStart.IsZero() && st.Status.Active() {
		elapsed := now.Sub(st.WindowStart).Round(time.Second)
		sb.WriteString(fmt.Sprintf("  Window:    %s into the current %s period\n",
			elapsed, cfg.Period()))
	}
	if !st.NextAllowed.IsZero() && now.Before(st.NextAllowed) {
		sb.WriteString(fmt.Sprintf("  Resumes:   %s (in %s)\n",
			st.NextAllowed.Format(time.Kitchen), st.NextAllowed.Sub(now).Round(time.Second)))
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatTasks renders the task list with a marker on the current task.
func FormatTasks(st *mission.State) string {
	if len(st.Tasks) == 0 {
		return "No tasks planned yet."
	}
	var sb strings.Builder
	sb.WriteString("Task list:\n")
	sb.WriteString(separator + "\n")
	for i, t := range st.Tasks {
		marker := " "
		if i == st.CurrentTaskIndex && st.Status.Active() {
			marker = ">"
		}
		sb.WriteString(fmt.Sprintf("%s %2d. [%-11s] %s (%s)\n",
			marker, i+1, t.Status, truncate(t.Title), t.Agent))
		if t.Status == mission.TaskCompleted && t.TokensUsed > 0 {
			sb.WriteString(fmt.Sprintf("        tokens=%d\n", t.TokensUsed))
		}
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatLogs renders the most recent n log entries, oldest first.
func FormatLogs(st *mission.State, n int) string {
	if len(st.Logs) == 0 {
		return "No log entries."
	}
	entries := st.Logs
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Last %d log entries:\n", len(entries)))
	sb.WriteString(separator + "\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("  %s [%-6s] %s: %s\n",
			e.Timestamp.Format("15:04:05"), e.Kind, e.Agent, truncate(e.Message)))
		if srcs, ok := e.Metadata["sources"]; ok {
			for _, line := range strings.Split(srcs, "\n") {
				sb.WriteString(fmt.Sprintf("             %s\n", truncate(line)))
			}
		}
	}
	sb.WriteString(separator)
	return sb.String()
}

// FormatSessions lists saved sessions, most recent first.
func FormatSessions(sessions []session.SavedSession) string {
	if len(sessions) == 0 {
		return "No saved sessions."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d saved session(s):\n", len(sessions)))
	for i, s := range sessions {
		status := mission.StatusIdle
		tasks := 0
		if s.State != nil {
			status = s.State.Status
			tasks = len(s.State.Tasks)
		}
		sb.WriteString(fmt.Sprintf("  %2d. %s  %s  (status=%s, tasks=%d)\n",
			i+1, s.ID, truncate(s.Query), status, tasks))
		sb.WriteString(fmt.Sprintf("      saved %s\n", s.Timestamp.Format("2006-01-02 15:04")))
	}
	return sb.String()
}

// FormatOutput renders the synthesized answer, or a hint if there is none.
func FormatOutput(st *mission.State) string {
	if st.FinalOutput == "" {
		return "No final output yet."
	}
	var sb strings.Builder
	sb.WriteString("Final output:\n")
	sb.WriteString(separator + "\n")
	sb.WriteString(st.FinalOutput)
	sb.WriteString("\n" + separator)
	return sb.String()
}

// Keep display on one line per value, cutting on rune boundaries.
func truncate(value string) string {
	s := strings.ReplaceAll(value, "\n", "\\n")
	if r := []rune(s); len(r) > maxValueLength {
		return string(r[:maxValueLength]) + "..."
	}
	return s
}
