package agent

import (
	"fmt"
	"strings"
)

// Role identifies one of the fixed agent specializations. The set is closed:
// planning output is validated against it and prompt maps are always total.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleResearcher Role = "researcher"
	RoleAnalyst    Role = "analyst"
	RoleWriter     Role = "writer"
	RoleEditor     Role = "editor"
	RoleCoder      Role = "coder"
)

// All returns every role in a fixed, stable order.
func All() []Role {
	return []Role{RoleSupervisor, RoleResearcher, RoleAnalyst, RoleWriter, RoleEditor, RoleCoder}
}

// Parse maps a free-form role name (as returned by the model) to a Role.
func Parse(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSupervisor:
		return RoleSupervisor, nil
	case RoleResearcher:
		return RoleResearcher, nil
	case RoleAnalyst:
		return RoleAnalyst, nil
	case RoleWriter:
		return RoleWriter, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleCoder:
		return RoleCoder, nil
	}
	return "", fmt.Errorf("unknown agent role: %q", s)
}

// ParseOrDefault is Parse with a fallback for model outputs that name a role
// outside the closed set. Worker tasks fall back to the researcher.
func ParseOrDefault(s string, fallback Role) Role {
	r, err := Parse(s)
	if err != nil {
		return fallback
	}
	return r
}

func defaultPrompts() map[Role]string {
	return map[Role]string{
		RoleSupervisor: "You are the supervisor of a team of specialist AI agents. " +
			"You decompose objectives into ordered task lists, revise plans as results come in, " +
			"and synthesize final reports. Be decisive and concise.",
		RoleResearcher: "You are a research specialist. Gather factual, up-to-date information " +
			"relevant to the task. Prefer primary sources and cite them.",
		RoleAnalyst: "You are an analyst. Examine the provided material, identify patterns, " +
			"risks and trade-offs, and draw well-reasoned conclusions.",
		RoleWriter: "You are a writer. Produce clear, well-structured prose from the " +
			"provided material. Match tone to the objective.",
		RoleEditor: "You are an editor. Improve clarity, fix inconsistencies and tighten " +
			"the provided text without changing its meaning.",
		RoleCoder: "You are a software engineer. Write correct, idiomatic code with brief " +
			"explanations where intent is not obvious.",
	}
}

// DefaultPrompts returns the built-in instruction text for every role.
func DefaultPrompts() map[Role]string {
	return defaultPrompts()
}

// Normalize returns a prompt map that covers the full role set. Entries present
// in m are kept; missing or empty ones are backfilled from the defaults. Keys
// outside the closed set are dropped. The input map is not modified.
func Normalize(m map[Role]string) map[Role]string {
	out := defaultPrompts()
	for r, text := range m {
		if _, err := Parse(string(r)); err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out[r] = text
	}
	return out
}
