// Package ratelimit decides whether a model call may proceed under the
// mission's rolling token window. It is pure decision logic: the mission
// engine owns the mutable usage counters and commits resets itself, so
// every check runs against the freshest committed state.
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Threshold is the fixed fraction of the window budget at which further
// calls are deferred until the window rolls over.
const Threshold = 0.80

type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
)

// ParseUnit accepts the unit names used in config files and saved sessions.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case UnitSeconds:
		return UnitSeconds, nil
	case UnitMinutes:
		return UnitMinutes, nil
	case UnitHours:
		return UnitHours, nil
	}
	return "", fmt.Errorf("unknown period unit: %q", s)
}

// Config is the user-editable budget. It is immutable while a mission is
// active; the engine rejects edits unless the mission is idle or paused.
type Config struct {
	MaxTokens         int  `json:"max_tokens" yaml:"max_tokens"`
	PeriodValue       int  `json:"period_value" yaml:"period_value"`
	PeriodUnit        Unit `json:"period_unit" yaml:"period_unit"`
	AutoResumeMinutes int  `json:"auto_resume_minutes" yaml:"auto_resume_minutes"`
}

// Period converts (PeriodValue, PeriodUnit) to a duration.
func (c Config) Period() time.Duration {
	v := time.Duration(c.PeriodValue)
	switch c.PeriodUnit {
	case UnitSeconds:
		return v * time.Second
	case UnitMinutes:
		return v * time.Minute
	case UnitHours:
		return v * time.Hour
	}
	return 0
}

// AutoResumeDelay is how long a quota-paused mission waits before resuming.
func (c Config) AutoResumeDelay() time.Duration {
	return time.Duration(c.AutoResumeMinutes) * time.Minute
}

func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.PeriodValue <= 0 {
		return fmt.Errorf("period_value must be positive, got %d", c.PeriodValue)
	}
	if _, err := ParseUnit(string(c.PeriodUnit)); err != nil {
		return err
	}
	if c.AutoResumeMinutes <= 0 {
		return fmt.Errorf("auto_resume_minutes must be positive, got %d", c.AutoResumeMinutes)
	}
	return nil
}

// Decision is the outcome of a single pre-call permission check.
type Decision struct {
	// Allowed reports whether the call may be issued now.
	Allowed bool
	// WindowElapsed is set when the rolling window has passed; the caller
	// must commit tokenUsage = 0 and windowStart = now before issuing.
	WindowElapsed bool
	// ResumeAt is the instant the current window ends. Only meaningful
	// when the call is denied.
	ResumeAt time.Time
}

// Check applies the windowed-counter rule: an elapsed window always permits
// (after a reset the caller commits), otherwise usage at or above the
// threshold defers the call until the window ends.
func Check(cfg Config, used int, windowStart time.Time, now time.Time) Decision {
	period := cfg.Period()
	if now.Sub(windowStart) > period {
		return Decision{Allowed: true, WindowElapsed: true}
	}
	if float64(used)/float64(cfg.MaxTokens) >= Threshold {
		return Decision{Allowed: false, ResumeAt: windowStart.Add(period)}
	}
	return Decision{Allowed: true}
}
