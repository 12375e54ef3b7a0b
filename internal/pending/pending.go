// Package pending tracks bash commands the security gate answered with
// "ask" until a later hook resolves them; security.Gate turns a resolved
// approval into a candidate learned rule (§4.5).
package pending

import (
	"sync"
	"time"

	"github.com/marveldaemon/mhd/internal/cmdparse"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Tracker is the in-memory, mutex-guarded pending-decision map keyed by
// normalized command (§3, §4.5: "add(command, reason, description?,
// suggestedRule?) and consume(command) on a normalized command key"). A
// request ID is only an optional, per-request field the external
// dispatcher may or may not reuse between the pre-tool-use hook that
// creates the entry and the post-tool-use hook that resolves it, so it
// cannot serve as the join key (§5 sharing discipline: coarse lock,
// in-memory only — pending decisions do not survive a daemon restart).
type Tracker struct {
	mu    sync.Mutex
	items map[string]entry
}

type entry struct {
	decision wire.PendingDecision
	expires  time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{items: make(map[string]entry)}
}

// Add registers a pending decision for command, expiring after
// wire.PendingTTL unless resolved first (§4.5). An expired entry is simply
// dropped: Resolve reports false for it, so nothing is learned from it.
func (t *Tracker) Add(command string, d wire.PendingDecision) {
	key := cmdparse.Normalize(command)
	t.mu.Lock()
	defer t.mu.Unlock()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	t.items[key] = entry{decision: d, expires: time.Now().Add(wire.PendingTTL)}
}

// Resolve removes and returns the pending decision for command, or false
// if it was never registered or already expired.
func (t *Tracker) Resolve(command string) (wire.PendingDecision, bool) {
	key := cmdparse.Normalize(command)
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[key]
	delete(t.items, key)
	if !ok {
		return wire.PendingDecision{}, false
	}
	if time.Now().After(e.expires) {
		return wire.PendingDecision{}, false
	}
	return e.decision, true
}

// Sweep drops expired entries; call periodically from the daemon's idle
// sweeper alongside the registry TTL sweep (§4.5, §4.9).
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	removed := 0
	for key, e := range t.items {
		if now.After(e.expires) {
			delete(t.items, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of currently tracked pending decisions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
