package dialer

import (
	"context"
	"sync"
)

// MemoryRunStore is an in-memory RunStore for tests.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]Run)}
}

func (s *MemoryRunStore) Create(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *MemoryRunStore) Get(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return cloneRun(r), nil
}

func (s *MemoryRunStore) Update(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return ErrNotFound
	}
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *MemoryRunStore) ListByStatus(ctx context.Context, status RunStatus) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Run
	for _, r := range s.runs {
		if r.Status == status {
			out = append(out, cloneRun(r))
		}
	}
	return out, nil
}

func cloneRun(r Run) Run {
	out := r
	out.CallerIDs = append([]string(nil), r.CallerIDs...)
	return out
}
