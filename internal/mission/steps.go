package mission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"overseer/internal/agent"
	"overseer/internal/gateway"
)

// Step executes exactly one orchestration step against the freshest
// committed state. The pacing loop guarantees at most one in-flight step;
// within a step the only suspension point is the awaited model call.
func (e *Engine) Step(ctx context.Context) {
	st := e.Snapshot()
	switch {
	case st.Status == StatusPlanning:
		e.stepPlan(ctx, st)
	case st.Status == StatusWorking && st.CurrentTaskIndex < len(st.Tasks):
		e.stepExecute(ctx, st)
	case st.Status == StatusWorking:
		e.stepSynthesize(ctx, st)
	}
}

// failStep applies the failure transition: an optional rollback of the
// in-flight task mutation, a classified error log entry, and a pause. Quota
// conditions auto-pause and resume after the configured delay; everything
// else waits for the user. The orchestrator itself never retries.
func (e *Engine) failStep(role agent.Role, err error, rollback func(*State)) {
	ge := gateway.AsError(err)
	e.commit(func(s *State) {
		if rollback != nil {
			rollback(s)
		}
		now := e.now()
		if gateway.IsQuota(err) {
			s.Status = StatusAutoPaused
			s.NextAllowed = now.Add(e.cfg.AutoResumeDelay())
			s.appendLog(now, role, LogError,
				fmt.Sprintf("model quota exhausted: %s - auto-pausing until %s",
					ge.Message, s.NextAllowed.Format(time.TimeOnly)), nil)
			return
		}
		s.Status = StatusPaused
		s.appendLog(now, role, LogError,
			fmt.Sprintf("model call failed (%s): %s - mission paused", ge.Kind, ge.Message), nil)
	})
	log.Error().Str("component", "mission").Str("kind", ge.Kind.String()).Str("role", string(role)).
		Msg("step failed, mission paused")
}

func (e *Engine) stepPlan(ctx context.Context, st *State) {
	if !e.permit() {
		return
	}
	prompt := buildPlanPrompt(st.AgentPrompts[agent.RoleSupervisor], st.Query)
	res, err := e.gw.Generate(ctx, agent.RoleSupervisor, prompt, gateway.Options{Schema: planSchema()})
	if err != nil {
		e.failStep(agent.RoleSupervisor, err, nil)
		return
	}
	tasks, err := parsePlannedTasks(res.Text)
	if err != nil {
		e.failStep(agent.RoleSupervisor, err, nil)
		return
	}

	e.commit(func(s *State) {
		// A reset or replacement mission taken while the call was in flight
		// invalidates this plan; nothing of it may land in the new state.
		if s.Status == StatusIdle || s.Query != st.Query {
			return
		}
		s.Tasks = tasks
		s.Planned = true
		s.CurrentTaskIndex = 0
		s.TokenUsage += res.TokenCount
		// A pause taken while the call was in flight sticks; only the
		// planning phase itself advances to working.
		if s.Status == StatusPlanning {
			s.Status = StatusWorking
		}
		now := e.now()
		if len(tasks) == 0 {
			s.appendLog(now, agent.RoleSupervisor, LogInfo, "planner returned no tasks; proceeding to synthesis", nil)
			return
		}
		titles := make([]string, len(tasks))
		for i, t := range tasks {
			titles[i] = fmt.Sprintf("%d. [%s] %s", i+1, t.Agent, t.Title)
		}
		s.appendLog(now, agent.RoleSupervisor, LogPlan,
			fmt.Sprintf("planned %d task(s):\n%s", len(tasks), strings.Join(titles, "\n")), nil)
	})
}

func (e *Engine) stepExecute(ctx context.Context, st *State) {
	idx := st.CurrentTaskIndex
	if !e.permit() {
		return
	}

	cur := e.commit(func(s *State) {
		if idx >= len(s.Tasks) {
			return
		}
		s.Tasks[idx].Status = TaskInProgress
		s.appendLog(e.now(), s.Tasks[idx].Agent, LogAction,
			fmt.Sprintf("task started: %s", s.Tasks[idx].Title), nil)
	})
	if idx >= len(cur.Tasks) {
		return
	}
	task := cur.Tasks[idx]

	prior := taskContext(cur.Tasks[:idx])
	prompt := buildTaskPrompt(cur.AgentPrompts[task.Agent], cur.Query, prior, task)
	opts := gateway.Options{WebSearch: task.Agent == agent.RoleResearcher}

	res, err := e.gw.Generate(ctx, task.Agent, prompt, opts)
	if err == nil && strings.TrimSpace(res.Text) == "" {
		// A completed task always carries a non-empty result; an empty
		// response cannot satisfy that.
		err = &gateway.Error{Kind: gateway.KindUnknown, Message: "model returned an empty result"}
	}
	if err != nil {
		// The failed call's task mutation is not committed: the task goes
		// back to pending in the same commit that pauses the mission.
		e.failStep(task.Agent, err, func(s *State) {
			if idx < len(s.Tasks) && s.Tasks[idx].Status == TaskInProgress {
				s.Tasks[idx].Status = TaskPending
			}
		})
		return
	}

	meta := e.sourceMetadata(ctx, res.Sources)
	e.commit(func(s *State) {
		if idx >= len(s.Tasks) {
			return
		}
		s.Tasks[idx].Status = TaskCompleted
		s.Tasks[idx].Result = res.Text
		s.Tasks[idx].TokensUsed = res.TokenCount
		if s.CurrentTaskIndex == idx {
			s.CurrentTaskIndex = idx + 1
		}
		s.TokenUsage += res.TokenCount
		s.appendLog(e.now(), task.Agent, LogResult,
			fmt.Sprintf("task completed: %s (%d tokens)", task.Title, res.TokenCount), meta)
	})

	// Supervisor re-planning: only while still working, with at least one
	// task left after the one just completed, and only if the limiter
	// would permit another call right now.
	snap := e.Snapshot()
	if snap.Status == StatusWorking && snap.remaining() > 0 && e.peekPermit() {
		e.replan(ctx, snap)
	}
}

// replan asks the supervisor to revise the not-yet-executed tail of the task
// list. Any failure, transport or parse, keeps the prior remaining tasks and
// charges nothing; the completed prefix is never touched.
func (e *Engine) replan(ctx context.Context, st *State) {
	idx := st.CurrentTaskIndex
	completed := st.Tasks[:idx]
	remaining := st.Tasks[idx:]

	prompt := buildReplanPrompt(st.AgentPrompts[agent.RoleSupervisor], st.Query, completed, remaining)
	res, err := e.gw.Generate(ctx, agent.RoleSupervisor, prompt, gateway.Options{Schema: planSchema()})
	var tasks []Task
	if err == nil {
		tasks, err = parsePlannedTasks(res.Text)
	}
	if err != nil {
		ge := gateway.AsError(err)
		e.commit(func(s *State) {
			s.appendLog(e.now(), agent.RoleSupervisor, LogInfo,
				fmt.Sprintf("re-planning failed (%s); keeping current plan", ge.Kind), nil)
		})
		return
	}

	e.commit(func(s *State) {
		if s.CurrentTaskIndex != idx {
			return
		}
		prefix := make([]Task, idx)
		copy(prefix, s.Tasks[:idx])
		s.Tasks = append(prefix, tasks...)
		s.TokenUsage += res.TokenCount
		s.appendLog(e.now(), agent.RoleSupervisor, LogPlan,
			fmt.Sprintf("plan revised: %d remaining task(s)", len(tasks)), nil)
	})
}

func (e *Engine) stepSynthesize(ctx context.Context, st *State) {
	if !e.permit() {
		return
	}
	prompt := buildSynthesisPrompt(st.AgentPrompts[agent.RoleSupervisor], st.Query, taskContext(st.Tasks))
	res, err := e.gw.Generate(ctx, agent.RoleSupervisor, prompt, gateway.Options{})
	if err != nil {
		e.failStep(agent.RoleSupervisor, err, nil)
		return
	}

	done := false
	e.commit(func(s *State) {
		if s.Status == StatusIdle || s.Query != st.Query {
			return
		}
		s.FinalOutput = res.Text
		s.TokenUsage += res.TokenCount
		s.CurrentTaskIndex = len(s.Tasks)
		s.Status = StatusCompleted
		s.appendLog(e.now(), agent.RoleSupervisor, LogResult, "mission completed", nil)
		done = true
	})
	if !done {
		return
	}

	// A terminal mission has nothing to resume.
	e.cancelAutosave()
	if e.saver != nil {
		if err := e.saver.ClearAutosave(); err != nil {
			log.Warn().Str("component", "mission").Err(err).Msg("failed to clear autosave")
		}
	}
	log.Info().Str("component", "mission").Msg("mission completed")
}

// sourceMetadata renders cited URLs for a result log entry, resolving page
// titles when a resolver is configured.
func (e *Engine) sourceMetadata(ctx context.Context, urls []string) map[string]string {
	if len(urls) == 0 {
		return nil
	}
	if e.titles == nil {
		return map[string]string{"sources": strings.Join(urls, "\n")}
	}
	titles := e.titles(ctx, urls)
	lines := make([]string, len(urls))
	for i, u := range urls {
		if t := titles[u]; t != "" {
			lines[i] = fmt.Sprintf("%s - %s", t, u)
		} else {
			lines[i] = u
		}
	}
	return map[string]string{"sources": strings.Join(lines, "\n")}
}
