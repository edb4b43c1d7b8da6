package disposition

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]Disposition
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Disposition)}
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return Disposition{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Disposition, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	return out, nil
}

func (r *MemoryRepo) Create(ctx context.Context, d Disposition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID] = d
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, d Disposition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return ErrNotFound
	}
	r.items[d.ID] = d
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if d.IsSystem {
		return ErrSystemDisposition
	}
	delete(r.items, id)
	return nil
}
