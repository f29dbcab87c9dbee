package llm

import (
	"context"
	"sync"
)

// turnController issues generation-stamped tokens for conversation turns.
// Beginning a new turn supersedes the previous one: its context is cancelled
// and its token goes stale, so late callbacks become no-ops instead of
// corrupting history.
type turnController struct {
	mu      sync.Mutex
	current uint64
	cancel  context.CancelFunc
	aborted bool
}

// Token identifies one processing generation. All history mutations present
// a token; mutations with a stale token are silently dropped.
type Token struct {
	gen uint64
	ctx context.Context
	c   *turnController
}

func (c *turnController) Begin(parent context.Context) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.current++
	c.cancel = cancel
	c.aborted = false
	return &Token{gen: c.current, ctx: ctx, c: c}
}

// Abort cancels the current generation without issuing a new one. The
// context cancellation tears down any in-flight transport work.
func (c *turnController) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || c.aborted {
		return false
	}
	c.aborted = true
	c.cancel()
	return true
}

// Retire marks the generation finished so a later Abort is a no-op.
func (c *turnController) Retire(t *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t != nil && t.gen == c.current {
		c.cancel = nil
	}
}

func (t *Token) Context() context.Context { return t.ctx }

// Current reports whether this token still names the live generation.
func (t *Token) Current() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.gen == t.c.current
}

// Aborted reports whether the user cancelled this generation (as opposed to
// it being superseded or still running).
func (t *Token) Aborted() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.gen == t.c.current && t.c.aborted
}

// live reports whether mutations stamped with this token may proceed:
// the token is current and the generation has not been aborted.
func (t *Token) live() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.gen == t.c.current && !t.c.aborted
}
