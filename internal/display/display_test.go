package display

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"overseer/internal/mission"
	"overseer/internal/ratelimit"
	"overseer/internal/session"
)

func testState() *mission.State {
	st := mission.NewState()
	st.Status = mission.StatusWorking
	st.Query = "compare caching strategies"
	st.Planned = true
	st.TokenUsage = 350
	st.Tasks = []mission.Task{
		{ID: "t1", Title: "Gather background", Agent: "researcher", Status: mission.TaskCompleted, TokensUsed: 200},
		{ID: "t2", Title: "Analyze trade-offs", Agent: "analyst", Status: mission.TaskInProgress},
		{ID: "t3", Title: "Draft summary", Agent: "writer", Status: mission.TaskPending},
	}
	st.CurrentTaskIndex = 1
	return st
}

func testCfg() ratelimit.Config {
	return ratelimit.Config{MaxTokens: 1000, PeriodValue: 1, PeriodUnit: ratelimit.UnitMinutes, AutoResumeMinutes: 5}
}

func TestFormatStatus(t *testing.T) {
	st := testState()
	st.WindowStart = time.Now().Add(-30 * time.Second)

	out := FormatStatus(st, testCfg(), time.Now())

	if !strings.Contains(out, "Status:    working") {
		t.Errorf("The status output is missing the lifecycle state.")
	}
	if !strings.Contains(out, "compare caching strategies") {
		t.Errorf("The status output is missing the objective.")
	}
	if !strings.Contains(out, "1/3 completed") {
		t.Errorf("The status output is missing the task progress.")
	}
	if !strings.Contains(out, "350 used of 800") {
		t.Errorf("The status output should show usage against the threshold budget, got:\n%s", out)
	}
}

func TestFormatStatus_ShowsResumeTime(t *testing.T) {
	st := testState()
	st.Status = mission.StatusCooldown
	now := time.Now()
	st.NextAllowed = now.Add(45 * time.Second)

	out := FormatStatus(st, testCfg(), now)

	if !strings.Contains(out, "Resumes:") {
		t.Errorf("Expected a resume line for a cooled-down mission, got:\n%s", out)
	}
}

func TestFormatTasks(t *testing.T) {
	out := FormatTasks(testState())

	if !strings.Contains(out, "Gather background") {
		t.Errorf("The task list is missing the first task title.")
	}
	if !strings.Contains(out, ">  2.") {
		t.Errorf("The task list is missing the current-task marker, got:\n%s", out)
	}
	if !strings.Contains(out, "tokens=200") {
		t.Errorf("Completed tasks should show their token count.")
	}

	if got := FormatTasks(mission.NewState()); !strings.Contains(got, "No tasks") {
		t.Errorf("An empty task list should say so, got %q", got)
	}
}

func TestFormatLogs_BoundedAndTruncated(t *testing.T) {
	st := testState()
	long := strings.Repeat("a", 200)
	for i := 0; i < 6; i++ {
		st.Logs = append(st.Logs, mission.LogEntry{
			Timestamp: time.Now(),
			Agent:     "researcher",
			Kind:      mission.LogResult,
			Message:   long,
		})
	}

	out := FormatLogs(st, 4)

	if !strings.Contains(out, "Last 4 log entries") {
		t.Errorf("Expected the log output to be bounded to 4 entries, got:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Errorf("Expected long log messages to be truncated with '...', but they weren't.")
	}
	if strings.Contains(out, long) {
		t.Errorf("Expected long log messages to be truncated, but the full string was found.")
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("ü", maxValueLength) + "tail"
	got := truncate(long)
	if !utf8.ValidString(got) {
		t.Errorf("Expected truncation to cut on a rune boundary, got invalid UTF-8.")
	}
	if n := utf8.RuneCountInString(got); n != maxValueLength+3 {
		t.Errorf("Expected %d runes after truncation, got %d.", maxValueLength+3, n)
	}
}

func TestFormatSessions(t *testing.T) {
	list := []session.SavedSession{
		{ID: "ab12cd34", Timestamp: time.Now(), Query: "first mission", State: testState()},
		{ID: "ef56ab78", Timestamp: time.Now(), Query: "second mission"},
	}

	out := FormatSessions(list)

	if !strings.Contains(out, "Found 2 saved session(s)") {
		t.Errorf("The session list is missing the header.")
	}
	if !strings.Contains(out, "ab12cd34") || !strings.Contains(out, "status=working, tasks=3") {
		t.Errorf("The session list is missing the first entry details, got:\n%s", out)
	}
	if !strings.Contains(out, "status=idle, tasks=0") {
		t.Errorf("A session without state should fall back to idle.")
	}
}

func TestFormatOutput(t *testing.T) {
	st := testState()
	if got := FormatOutput(st); !strings.Contains(got, "No final output") {
		t.Errorf("Expected a hint when output is empty, got %q", got)
	}
	st.FinalOutput = "the synthesized answer"
	if got := FormatOutput(st); !strings.Contains(got, "the synthesized answer") {
		t.Errorf("The output is missing the synthesized answer.")
	}
}
