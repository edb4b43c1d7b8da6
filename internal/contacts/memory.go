package contacts

import (
	"context"
	"sync"
	"time"
)

// MemorySource is an in-memory Source for tests.
type MemorySource struct {
	mu    sync.Mutex
	lists map[string][]Contact
}

func NewMemorySource() *MemorySource {
	return &MemorySource{lists: make(map[string][]Contact)}
}

func (s *MemorySource) SetList(listID string, members []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[listID] = members
}

func (s *MemorySource) Next(ctx context.Context, listID string, cursor int) (Contact, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.lists[listID]
	if cursor < 0 || cursor >= len(members) {
		return Contact{}, cursor, ErrExhausted
	}
	return members[cursor], cursor + 1, nil
}

func (s *MemorySource) Remaining(ctx context.Context, listID string, cursor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.lists[listID]
	if cursor >= len(members) {
		return 0, nil
	}
	return len(members) - cursor, nil
}

// MemoryCRM records disposition side effects for test assertions. It
// implements the collaborator interfaces declared by internal/disposition.
type MemoryCRM struct {
	mu sync.Mutex

	DNC      map[string]string   // contact id -> reason
	Notes    map[string][]string // contact id -> notes
	Tags     map[string][]string
	Tasks    map[string][]string
	Enrolled map[string][]string
	SMS      map[string][]string
	Email    map[string][]string
	Stages   map[string]string
}

func NewMemoryCRM() *MemoryCRM {
	return &MemoryCRM{
		DNC:      make(map[string]string),
		Notes:    make(map[string][]string),
		Tags:     make(map[string][]string),
		Tasks:    make(map[string][]string),
		Enrolled: make(map[string][]string),
		SMS:      make(map[string][]string),
		Email:    make(map[string][]string),
		Stages:   make(map[string]string),
	}
}

func (m *MemoryCRM) SetDoNotCall(ctx context.Context, contactID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DNC[contactID] = reason
	return nil
}

func (m *MemoryCRM) AppendNote(ctx context.Context, contactID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes[contactID] = append(m.Notes[contactID], body)
	return nil
}

func (m *MemoryCRM) AddTag(ctx context.Context, contactID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tags[contactID] {
		if t == tag {
			return nil
		}
	}
	m.Tags[contactID] = append(m.Tags[contactID], tag)
	return nil
}

func (m *MemoryCRM) RemoveTag(ctx context.Context, contactID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Tags[contactID][:0]
	for _, t := range m.Tags[contactID] {
		if t != tag {
			kept = append(kept, t)
		}
	}
	m.Tags[contactID] = kept
	return nil
}

func (m *MemoryCRM) CreateTask(ctx context.Context, contactID, title string, dueAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[contactID] = append(m.Tasks[contactID], title)
	return nil
}

func (m *MemoryCRM) Enroll(ctx context.Context, contactID, sequenceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Enrolled[contactID] = append(m.Enrolled[contactID], sequenceID)
	return nil
}

func (m *MemoryCRM) QueueSMS(ctx context.Context, contactID, templateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SMS[contactID] = append(m.SMS[contactID], templateID)
	return nil
}

func (m *MemoryCRM) QueueEmail(ctx context.Context, contactID, templateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Email[contactID] = append(m.Email[contactID], templateID)
	return nil
}

func (m *MemoryCRM) UpdateStage(ctx context.Context, contactID, stageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stages[contactID] = stageID
	return nil
}
