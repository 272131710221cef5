package engine

import (
	"context"
	"log/slog"
	"sync"
)

// AuthState is the two-valued signal the auth subsystem emits.
type AuthState int

const (
	AuthGuest AuthState = iota
	AuthAuthenticated
)

func (s AuthState) String() string {
	if s == AuthAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// Coordinator reacts to authentication-state changes: login attaches the
// guest cart to the user's cart, logout discards local state. It is the
// only writer of the engine's addressing mode.
type Coordinator struct {
	engine *Engine
	logger *slog.Logger

	mu   sync.Mutex
	last AuthState
}

func NewCoordinator(engine *Engine, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{engine: engine, logger: logger, last: AuthGuest}
}

// HandleAuthChange applies one observed transition. Repeated observations
// of the same state are ignored, and transitions are serialized: an
// attach and a reset must never interleave.
func (c *Coordinator) HandleAuthChange(ctx context.Context, state AuthState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == c.last {
		return
	}
	c.last = state

	switch state {
	case AuthAuthenticated:
		// Attach is best-effort relative to login: a failed merge is
		// logged and the session stands, with the user cart fetched fresh.
		if _, err := c.engine.Attach(ctx); err != nil {
			c.logger.Error("guest cart attach failed", "error", err)
		}
	case AuthGuest:
		// Logout. The user's cart stays server-side for next login; local
		// state and queued operations are dropped, and a new guest token
		// is only allocated on the next mutation.
		c.engine.Reset(ctx)
	}
}

// Run consumes a stream of auth states until ctx is cancelled, for
// composition roots that wire the signal as a channel.
func (c *Coordinator) Run(ctx context.Context, states <-chan AuthState) {
	for {
		select {
		case s, ok := <-states:
			if !ok {
				return
			}
			c.HandleAuthChange(ctx, s)
		case <-ctx.Done():
			return
		}
	}
}
