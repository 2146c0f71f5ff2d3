/*
idempotency.go - Caller-supplied command idempotency

PURPOSE:
  A repeated command with the same idempotency key inside the retention
  window returns the prior result verbatim instead of re-executing. This
  covers FAILURES too: if the first attempt returned a ValidationError,
  the retry returns that same error without touching the aggregate.

  This is command-level idempotency, distinct from replay idempotency
  (replay.go): the former protects against client retries, the latter
  guarantees recomputation determinism.
*/
package loan

import (
	"sync"
	"time"
)

// CommandOutcome is what the cache replays: the result value and the
// error, exactly as first produced.
type CommandOutcome struct {
	Result CommandResult
	Err    error
}

// idempotencyEntry is claimed under the cache lock BEFORE the command
// runs. done closes once outcome is set; a concurrent duplicate finds the
// entry, waits on done, and replays the outcome instead of executing.
type idempotencyEntry struct {
	done    chan struct{}
	outcome CommandOutcome
	at      time.Time
}

// IdempotencyCache replays command outcomes by key within a retention
// window. Safe for concurrent use.
type IdempotencyCache struct {
	mu        sync.Mutex
	retention time.Duration
	entries   map[string]*idempotencyEntry
}

func NewIdempotencyCache(retention time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		retention: retention,
		entries:   make(map[string]*idempotencyEntry),
	}
}

// Do executes fn unless the key has a cached or in-flight outcome. Returns
// the outcome and whether it was replayed. An empty key always executes.
func (c *IdempotencyCache) Do(key string, fn func() CommandOutcome) (CommandOutcome, bool) {
	if key == "" {
		return fn(), false
	}

	now := time.Now()
	c.mu.Lock()
	c.evictLocked(now)
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		// Duplicate while the first attempt is still running: wait for it
		// rather than executing the command a second time.
		<-entry.done
		return entry.outcome, true
	}
	entry := &idempotencyEntry{done: make(chan struct{}), at: now}
	c.entries[key] = entry
	c.mu.Unlock()

	// The per-loan lock serializes the actual work; holding the cache
	// mutex across fn would serialize unrelated loans.
	entry.outcome = fn()
	close(entry.done)
	return entry.outcome, false
}

func (c *IdempotencyCache) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		select {
		case <-entry.done:
			if now.Sub(entry.at) > c.retention {
				delete(c.entries, key)
			}
		default:
			// In-flight entries are never evicted.
		}
	}
}
