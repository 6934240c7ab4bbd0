package mission

import (
	"time"

	"github.com/google/uuid"

	"overseer/internal/agent"
)

// Status is the mission lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPlanning   Status = "planning"
	StatusWorking    Status = "working"
	StatusCooldown   Status = "cooldown"    // deferred by the token window
	StatusAutoPaused Status = "auto-paused" // quota failure, resumes on its own
	StatusPaused     Status = "paused"      // manual or failure pause
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Active reports whether the scheduler should keep stepping this mission.
func (s Status) Active() bool {
	return s == StatusPlanning || s == StatusWorking
}

// Resting reports whether a new mission may be started from this status.
func (s Status) Resting() bool {
	return s == StatusIdle || s == StatusCompleted
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of delegated work. Completed tasks are never altered;
// re-planning may only replace the pending tail of the list.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Agent       agent.Role `json:"agent"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	TokensUsed  int        `json:"tokens_used,omitempty"`
}

type LogKind string

const (
	LogPlan   LogKind = "plan"
	LogAction LogKind = "action"
	LogResult LogKind = "result"
	LogError  LogKind = "error"
	LogInfo   LogKind = "info"
)

// LogEntry is an immutable, append-only record. Ordering is by insertion.
type LogEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Agent     agent.Role        `json:"agent"`
	Message   string            `json:"message"`
	Kind      LogKind           `json:"kind"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// State is the mission aggregate root. It is mutated exclusively through
// whole-state replacement: the engine clones, applies a mutation and swaps
// the pointer, so any snapshot a reader holds stays internally consistent.
type State struct {
	Status           Status                `json:"status"`
	Query            string                `json:"query"`
	Tasks            []Task                `json:"tasks"`
	Logs             []LogEntry            `json:"logs"`
	CurrentTaskIndex int                   `json:"current_task_index"`
	TokenUsage       int                   `json:"token_usage"`
	WindowStart      time.Time             `json:"window_start"`
	NextAllowed      time.Time             `json:"next_allowed"`
	FinalOutput      string                `json:"final_output,omitempty"`
	AgentPrompts     map[agent.Role]string `json:"agent_prompts"`
	// Planned records that planning has produced a task list at least once,
	// deciding whether a resume re-enters planning or working.
	Planned bool `json:"planned"`
}

// NewState returns the idle resting state with default prompts.
func NewState() *State {
	return &State{
		Status:       StatusIdle,
		AgentPrompts: agent.Normalize(nil),
	}
}

// Clone deep-copies the aggregate. Metadata maps on log entries are shared;
// entries are immutable once appended.
func (s *State) Clone() *State {
	next := *s
	next.Tasks = make([]Task, len(s.Tasks))
	copy(next.Tasks, s.Tasks)
	next.Logs = make([]LogEntry, len(s.Logs))
	copy(next.Logs, s.Logs)
	next.AgentPrompts = make(map[agent.Role]string, len(s.AgentPrompts))
	for k, v := range s.AgentPrompts {
		next.AgentPrompts[k] = v
	}
	return &next
}

// appendLog appends an entry with a generated id. Call on a clone only.
func (s *State) appendLog(at time.Time, role agent.Role, kind LogKind, msg string, meta map[string]string) {
	s.Logs = append(s.Logs, LogEntry{
		ID:        uuid.New().String()[:8],
		Timestamp: at,
		Agent:     role,
		Message:   msg,
		Kind:      kind,
		Metadata:  meta,
	})
}

// remaining counts tasks not yet executed.
func (s *State) remaining() int {
	if s.CurrentTaskIndex >= len(s.Tasks) {
		return 0
	}
	return len(s.Tasks) - s.CurrentTaskIndex
}
