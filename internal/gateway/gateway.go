// Package gateway abstracts the language-model call behind a pool of
// credentials with deterministic failover. A single logical Generate tries
// the role's preferred credential first, then the remaining pool in
// declaration order, stopping at the first success or the first failure that
// rotating credentials cannot fix.
package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	"overseer/internal/agent"
)

// Options tunes a single call. Schema requests schema-constrained JSON
// output (used by planning and re-planning); WebSearch enables the search
// tool where the backend supports it.
type Options struct {
	Schema    any
	WebSearch bool
}

// Result is a successful model response.
type Result struct {
	Text       string
	TokenCount int
	Sources    []string
}

// Generator is the capability the mission engine depends on.
type Generator interface {
	Generate(ctx context.Context, role agent.Role, prompt string, opts Options) (*Result, error)
}

// Credential is one entry of the failover pool.
type Credential struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

// backend is one credential's live connection.
type backend interface {
	name() string
	generate(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// Client fans a logical call out over the credential pool.
type Client struct {
	backends []backend
	// prefs maps a role to the credential name tried first for that role.
	prefs map[agent.Role]string
}

var _ Generator = (*Client)(nil)

// attemptOrder returns the pool with the role's preferred credential moved
// to the front; everything else keeps its declaration order.
func (c *Client) attemptOrder(role agent.Role) []backend {
	pref, ok := c.prefs[role]
	if !ok {
		return c.backends
	}
	order := make([]backend, 0, len(c.backends))
	for _, b := range c.backends {
		if b.name() == pref {
			order = append(order, b)
		}
	}
	for _, b := range c.backends {
		if b.name() != pref {
			order = append(order, b)
		}
	}
	return order
}

// Generate implements the failover contract. Per-key quota hits and
// transient server errors rotate to the next credential; global quota
// exhaustion, content blocks and client errors propagate immediately. When
// the pool is exhausted the last recorded error propagates.
func (c *Client) Generate(ctx context.Context, role agent.Role, prompt string, opts Options) (*Result, error) {
	var lastErr error
	for _, b := range c.attemptOrder(role) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := b.generate(ctx, prompt, opts)
		if err == nil {
			return res, nil
		}
		ge := AsError(err)
		if !ge.Retryable() {
			return nil, err
		}
		lastErr = err
		log.Warn().
			Str("component", "gateway").
			Str("credential", b.name()).
			Str("kind", ge.Kind.String()).
			Msg("credential failed, rotating")
	}
	if lastErr == nil {
		return nil, ErrPoolExhausted
	}
	return nil, lastErr
}
