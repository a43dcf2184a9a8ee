package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/helixml/codestore/domain/tracking"
)

var (
	_ tracking.Observer = (*Cooldown)(nil)
	_ io.Closer         = (*Cooldown)(nil)
)

// Cooldown wraps an Observer and limits how often failed invocation events
// reach it for each backend and outcome. A successful invocation passes
// straight through and drops any pending failure for that backend. Throttled
// failures keep only the latest event, which is flushed when the interval
// elapses. All other events pass through unchanged.
type Cooldown struct {
	tracking.Observer
	interval time.Duration
	mu       sync.Mutex
	entries  map[cooldownKey]*cooldownEntry
}

type cooldownKey struct {
	backend string
	outcome tracking.Outcome
}

type cooldownEntry struct {
	lastFlush time.Time
	pending   *tracking.Invocation
	timer     *time.Timer
}

// NewCooldown wraps inner with the given minimum interval between failure
// deliveries per backend and outcome.
func NewCooldown(inner tracking.Observer, interval time.Duration) *Cooldown {
	return &Cooldown{
		Observer: inner,
		interval: interval,
		entries:  make(map[cooldownKey]*cooldownEntry),
	}
}

// OnInvocation throttles failed attempts.
func (c *Cooldown) OnInvocation(ctx context.Context, e tracking.Invocation) {
	c.mu.Lock()

	if e.Outcome == tracking.OutcomeSuccess {
		for key, entry := range c.entries {
			if key.backend != e.Backend {
				continue
			}
			if entry.timer != nil {
				entry.timer.Stop()
			}
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.Observer.OnInvocation(ctx, e)
		return
	}

	key := cooldownKey{backend: e.Backend, outcome: e.Outcome}
	entry, exists := c.entries[key]
	if !exists {
		entry = &cooldownEntry{}
		c.entries[key] = entry
	}

	elapsed := time.Since(entry.lastFlush)
	if elapsed >= c.interval {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
		entry.pending = nil
		entry.lastFlush = time.Now()
		c.mu.Unlock()
		c.Observer.OnInvocation(ctx, e)
		return
	}

	pending := e
	entry.pending = &pending
	if entry.timer == nil {
		entry.timer = time.AfterFunc(c.interval-elapsed, func() {
			c.flushPending(key)
		})
	}
	c.mu.Unlock()
}

// Close flushes pending events and stops all timers.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[cooldownKey]*cooldownEntry)
	c.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.pending != nil {
			c.Observer.OnInvocation(context.Background(), *entry.pending)
		}
	}
	return nil
}

func (c *Cooldown) flushPending(key cooldownKey) {
	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists || entry.pending == nil {
		if exists {
			entry.timer = nil
		}
		c.mu.Unlock()
		return
	}

	e := *entry.pending
	entry.pending = nil
	entry.lastFlush = time.Now()
	entry.timer = nil
	c.mu.Unlock()

	c.Observer.OnInvocation(context.Background(), e)
}
