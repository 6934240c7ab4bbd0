// Package mission drives one mission end to end: planning, sequential task
// execution with supervisor re-planning, and final synthesis, throttled by
// the token window and paused on classified model failures.
package mission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"overseer/internal/agent"
	"overseer/internal/gateway"
	"overseer/internal/ratelimit"
)

const (
	defaultPaceInterval   = time.Second
	defaultResumeInterval = 100 * time.Millisecond
	defaultAutosaveDelay  = 2 * time.Second
)

// Saver is the slice of the persistence adapter the engine needs for the
// always-overwritten autosave slot.
type Saver interface {
	PutAutosave(query string, cfg ratelimit.Config, st *State) error
	ClearAutosave() error
}

// Options are optional collaborators and tuning knobs for an Engine.
// The zero value selects production defaults.
type Options struct {
	Saver          Saver
	Clock          func() time.Time
	PaceInterval   time.Duration
	ResumeInterval time.Duration
	AutosaveDelay  time.Duration
	// ResolveTitles enriches source URLs on result log entries; best effort.
	ResolveTitles func(ctx context.Context, urls []string) map[string]string
}

// Engine owns the mission aggregate. All mutation goes through commit, which
// replaces the whole state pointer, so snapshots handed to readers are never
// mutated underneath them.
type Engine struct {
	mu    sync.Mutex
	state *State
	cfg   ratelimit.Config

	gw     gateway.Generator
	saver  Saver
	now    func() time.Time
	titles func(ctx context.Context, urls []string) map[string]string

	paceInterval   time.Duration
	resumeInterval time.Duration
	autosaveDelay  time.Duration

	asMu          sync.Mutex
	autosaveTimer *time.Timer
}

// New builds an engine in the idle resting state.
func New(gw gateway.Generator, cfg ratelimit.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	e := &Engine{
		state:          NewState(),
		cfg:            cfg,
		gw:             gw,
		saver:          opts.Saver,
		now:            opts.Clock,
		titles:         opts.ResolveTitles,
		paceInterval:   opts.PaceInterval,
		resumeInterval: opts.ResumeInterval,
		autosaveDelay:  opts.AutosaveDelay,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.paceInterval <= 0 {
		e.paceInterval = defaultPaceInterval
	}
	if e.resumeInterval <= 0 {
		e.resumeInterval = defaultResumeInterval
	}
	if e.autosaveDelay <= 0 {
		e.autosaveDelay = defaultAutosaveDelay
	}
	return e, nil
}

// Snapshot returns the current committed state. Callers must treat it as
// read-only; the engine never mutates a published pointer.
func (e *Engine) Snapshot() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RateLimit returns the active budget configuration.
func (e *Engine) RateLimit() ratelimit.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// commit clones the state, applies mutate and swaps the pointer. Every
// commit (re)schedules the debounced autosave.
func (e *Engine) commit(mutate func(*State)) *State {
	e.mu.Lock()
	next := e.state.Clone()
	mutate(next)
	e.state = next
	e.mu.Unlock()
	e.scheduleAutosave(next)
	return next
}

// workPhase is the status an unblocked mission returns to.
func workPhase(s *State) Status {
	if s.Planned {
		return StatusWorking
	}
	return StatusPlanning
}

// Start begins a new mission. Only valid from a resting state; everything
// except the agent prompt configuration is reset.
func (e *Engine) Start(objective string) error {
	e.mu.Lock()
	if !e.state.Status.Resting() {
		st := e.state.Status
		e.mu.Unlock()
		return fmt.Errorf("cannot start a mission while %s", st)
	}
	next := NewState()
	next.AgentPrompts = e.state.AgentPrompts
	next.Status = StatusPlanning
	next.Query = objective
	next.WindowStart = e.now()
	next.appendLog(e.now(), agent.RoleSupervisor, LogInfo, fmt.Sprintf("mission started: %s", objective), nil)
	e.state = next
	e.mu.Unlock()
	e.scheduleAutosave(next)

	log.Info().Str("component", "mission").Str("objective", objective).Msg("mission started")
	return nil
}

// Pause suspends scheduling of further steps. An in-flight model call is not
// aborted; its result still commits, but no step follows it.
func (e *Engine) Pause() {
	e.commit(func(s *State) {
		switch s.Status {
		case StatusPlanning, StatusWorking, StatusCooldown, StatusAutoPaused:
			s.Status = StatusPaused
			s.appendLog(e.now(), agent.RoleSupervisor, LogInfo, "mission paused", nil)
		}
	})
}

// Resume continues a paused mission where it left off.
func (e *Engine) Resume() {
	e.commit(func(s *State) {
		switch s.Status {
		case StatusPaused, StatusAutoPaused, StatusCooldown:
			s.Status = workPhase(s)
			s.NextAllowed = time.Time{}
			s.appendLog(e.now(), agent.RoleSupervisor, LogInfo, "mission resumed", nil)
		}
	})
}

// Reset discards the mission and returns to idle, keeping the agent prompt
// configuration. The autosave slot is cleared: there is nothing to resume.
func (e *Engine) Reset() {
	e.commit(func(s *State) {
		prompts := s.AgentPrompts
		*s = *NewState()
		s.AgentPrompts = prompts
	})
	e.cancelAutosave()
	if e.saver != nil {
		if err := e.saver.ClearAutosave(); err != nil {
			log.Warn().Str("component", "mission").Err(err).Msg("failed to clear autosave")
		}
	}
}

// SetRateLimit replaces the budget. Rejected while the mission is actively
// consuming it; pausing first makes the edit race-free.
func (e *Engine) SetRateLimit(cfg ratelimit.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.Status {
	case StatusIdle, StatusPaused, StatusAutoPaused, StatusCompleted:
		e.cfg = cfg
		return nil
	}
	return fmt.Errorf("rate limit is only editable while idle or paused (mission is %s)", e.state.Status)
}

// SetPrompt updates one role's instruction text. Editable at any time.
func (e *Engine) SetPrompt(role agent.Role, text string) error {
	if _, err := agent.Parse(string(role)); err != nil {
		return err
	}
	e.commit(func(s *State) {
		s.AgentPrompts[role] = text
	})
	return nil
}

// LoadSession replaces the mission with a previously saved one. A session
// captured mid-flight lands in paused so the user resumes explicitly.
func (e *Engine) LoadSession(loaded *State, cfg ratelimit.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("saved session config: %w", err)
	}
	e.mu.Lock()
	if e.state.Status.Active() {
		st := e.state.Status
		e.mu.Unlock()
		return fmt.Errorf("cannot load a session while %s", st)
	}
	next := loaded.Clone()
	next.AgentPrompts = agent.Normalize(next.AgentPrompts)
	switch next.Status {
	case StatusPlanning, StatusWorking, StatusCooldown, StatusAutoPaused, StatusError:
		next.Status = StatusPaused
	}
	e.cfg = cfg
	e.state = next
	e.mu.Unlock()
	return nil
}

// Run drives the two timers: the coarse pacing loop issuing at most one step
// at a time, and the fine resume tick that ends cooldowns and auto-pauses.
// Both re-read the freshest committed state on every tick.
func (e *Engine) Run(ctx context.Context) {
	pace := time.NewTicker(e.paceInterval)
	resume := time.NewTicker(e.resumeInterval)
	defer pace.Stop()
	defer resume.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pace.C:
			if e.Snapshot().Status.Active() {
				e.Step(ctx)
			}
		case <-resume.C:
			e.tickResume()
		}
	}
}

// tickResume transitions cooldown and auto-paused missions back to work once
// their wait elapses. A manual pause taken in the interim always wins: the
// status is re-checked under the commit lock.
func (e *Engine) tickResume() {
	st := e.Snapshot()
	if st.Status != StatusCooldown && st.Status != StatusAutoPaused {
		return
	}
	now := e.now()
	if now.Before(st.NextAllowed) {
		return
	}
	e.commit(func(s *State) {
		switch s.Status {
		case StatusCooldown:
			s.TokenUsage = 0
			s.WindowStart = now
			s.Status = workPhase(s)
			s.NextAllowed = time.Time{}
			s.appendLog(now, agent.RoleSupervisor, LogInfo, "token window reset; resuming", nil)
		case StatusAutoPaused:
			s.Status = workPhase(s)
			s.NextAllowed = time.Time{}
			s.appendLog(now, agent.RoleSupervisor, LogInfo, "auto-pause elapsed; resuming", nil)
		}
	})
}

// permit is the check-then-act gate run synchronously immediately before
// every model call, against the freshest committed state.
func (e *Engine) permit() bool {
	allowed := false
	e.commit(func(s *State) {
		now := e.now()
		d := ratelimit.Check(e.cfg, s.TokenUsage, s.WindowStart, now)
		switch {
		case d.WindowElapsed:
			s.TokenUsage = 0
			s.WindowStart = now
			if s.Status == StatusCooldown {
				s.Status = workPhase(s)
				s.NextAllowed = time.Time{}
			}
			allowed = true
		case d.Allowed:
			allowed = true
		default:
			s.Status = StatusCooldown
			s.NextAllowed = d.ResumeAt
			s.appendLog(now, agent.RoleSupervisor, LogInfo,
				fmt.Sprintf("token budget reached (%d/%d); cooling down until %s",
					s.TokenUsage, e.cfg.MaxTokens, d.ResumeAt.Format(time.TimeOnly)), nil)
		}
	})
	return allowed
}

// peekPermit is a non-mutating read of the limiter, used to decide whether a
// re-planning call is worth attempting.
func (e *Engine) peekPermit() bool {
	e.mu.Lock()
	st, cfg := e.state, e.cfg
	e.mu.Unlock()
	return ratelimit.Check(cfg, st.TokenUsage, st.WindowStart, e.now()).Allowed
}

// scheduleAutosave (re)schedules the debounced autosave write; each new
// state change cancels the previous pending one.
func (e *Engine) scheduleAutosave(st *State) {
	if e.saver == nil || st.Status == StatusIdle || st.Status == StatusCompleted {
		return
	}
	e.asMu.Lock()
	defer e.asMu.Unlock()
	if e.autosaveTimer != nil {
		e.autosaveTimer.Stop()
	}
	e.autosaveTimer = time.AfterFunc(e.autosaveDelay, e.writeAutosave)
}

func (e *Engine) cancelAutosave() {
	e.asMu.Lock()
	defer e.asMu.Unlock()
	if e.autosaveTimer != nil {
		e.autosaveTimer.Stop()
		e.autosaveTimer = nil
	}
}

// writeAutosave persists the state as of write time, not schedule time.
func (e *Engine) writeAutosave() {
	if e.saver == nil {
		return
	}
	e.mu.Lock()
	st, cfg := e.state, e.cfg
	e.mu.Unlock()
	if st.Status == StatusIdle || st.Status == StatusCompleted {
		return
	}
	if err := e.saver.PutAutosave(st.Query, cfg, st); err != nil {
		log.Warn().Str("component", "mission").Err(err).Msg("autosave write failed")
	}
}

// Teardown is the best-effort durability hook for process shutdown: it
// flushes the pending autosave synchronously.
func (e *Engine) Teardown() {
	e.cancelAutosave()
	e.writeAutosave()
}
