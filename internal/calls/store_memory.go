package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests. It is not intended for
// production use.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]Attempt // keyed by session id
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]Attempt)}
}

func (s *MemoryStore) Create(ctx context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[a.SessionID]; !exists {
		s.order = append(s.order, a.SessionID)
	}
	s.attempts[a.SessionID] = a
	return nil
}

func (s *MemoryStore) Finish(ctx context.Context, sessionID string, status AttemptStatus, amdResult, hangupCause string, durationSeconds int, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[sessionID]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.AMDResult = amdResult
	a.HangupCause = hangupCause
	a.DurationSeconds = durationSeconds
	ended := endedAt
	a.EndedAt = &ended
	s.attempts[sessionID] = a
	return nil
}

func (s *MemoryStore) ListByRun(ctx context.Context, runID string) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, id := range s.order {
		a := s.attempts[id]
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out, nil
}

// All returns every attempt in creation order, for test assertions.
func (s *MemoryStore) All() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attempt, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.attempts[id])
	}
	return out
}
