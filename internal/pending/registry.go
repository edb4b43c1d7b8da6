// Package pending tracks live call sessions between origination and the
// terminal webhook event. Entries are process-local only: the provider's
// client_state round-trip is the durable fallback when an entry is missing.
package pending

import (
	"sync"
	"time"
)

type Status string

const (
	StatusInitiated     Status = "initiated"
	StatusRinging       Status = "ringing"
	StatusAnswered      Status = "answered"
	StatusAMDChecking   Status = "amd_checking"
	StatusHumanDetected Status = "human_detected"
	StatusVoicemail     Status = "voicemail"
	StatusNoAnswer      Status = "no_answer"
	StatusBusy          Status = "busy"
	StatusFailed        Status = "failed"
	StatusEnded         Status = "ended"
)

// IsTerminal reports whether a call in this status still occupies a line.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusVoicemail, StatusNoAnswer, StatusBusy, StatusFailed, StatusEnded:
		return true
	default:
		return false
	}
}

// Call is one live call session.
//
// Invariant: exactly one entry per provider session id. Entries are removed
// on call.hangup or by the staleness sweep; webhook delivery is not
// guaranteed, so the sweep is the only unbounded-growth defense.
type Call struct {
	SessionID string
	ContactID string

	// RunID is empty for manual click-to-call.
	RunID  string
	UserID string

	From string
	To   string

	Status Status

	// AMDResult is set-once: a definitive human/machine classification is
	// never overwritten by a later not_sure or fallback.
	AMDResult string

	StartedAt   time.Time
	AnsweredAt  time.Time
	HangupCause string
}

// Registry is a mutex-guarded map of live sessions. All operations are
// non-blocking map work; webhook deliveries for the same session serialize on
// the registry lock while handlers for different sessions stay concurrent
// outside of it.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call
	clock func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*Call),
		clock: time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Register records a new session. The previous entry for the same session id,
// if any, is replaced; the provider never reuses a live call-control id.
func (r *Registry) Register(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.StartedAt.IsZero() {
		c.StartedAt = r.clock().UTC()
	}
	if c.Status == "" {
		c.Status = StatusInitiated
	}
	stored := c
	r.calls[c.SessionID] = &stored
}

func (r *Registry) Get(sessionID string) (Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[sessionID]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// UpdateStatus moves a session to a new status. Last writer wins; callers
// relying on ordering must tolerate duplicates and reordering from the
// provider. Returns the updated snapshot and whether the session was known.
func (r *Registry) UpdateStatus(sessionID string, status Status) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sessionID]
	if !ok {
		return Call{}, false
	}
	c.Status = status
	if status == StatusAnswered || status == StatusAMDChecking {
		if c.AnsweredAt.IsZero() {
			c.AnsweredAt = r.clock().UTC()
		}
	}
	return *c, true
}

// SetAMDResult records the classification for a session. The field is
// set-once with one exception: a definitive result replaces an earlier
// not_sure, never the other way around. Returns the stored result.
func (r *Registry) SetAMDResult(sessionID, result string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sessionID]
	if !ok {
		return "", false
	}
	if c.AMDResult == "" || (c.AMDResult == "not_sure" && result != "not_sure") {
		c.AMDResult = result
	}
	return c.AMDResult, true
}

// Remove deletes a session and returns its last snapshot.
func (r *Registry) Remove(sessionID string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sessionID]
	if !ok {
		return Call{}, false
	}
	delete(r.calls, sessionID)
	return *c, true
}

// ActiveForRun counts sessions occupying a line for the run. This is the
// authoritative in-flight count for concurrency budgeting; the controller
// must never keep a separate counter.
func (r *Registry) ActiveForRun(runID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.calls {
		if c.RunID == runID && !c.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// SessionsForRun returns snapshots of all non-terminal sessions for a run,
// used by stop() to issue best-effort hangups.
func (r *Registry) SessionsForRun(runID string) []Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Call
	for _, c := range r.calls {
		if c.RunID == runID && !c.Status.IsTerminal() {
			out = append(out, *c)
		}
	}
	return out
}

// Len returns the total number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Sweep removes entries older than maxAge and returns how many were purged.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := r.clock().UTC().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for id, c := range r.calls {
		if c.StartedAt.Before(cutoff) {
			delete(r.calls, id)
			purged++
		}
	}
	return purged
}
