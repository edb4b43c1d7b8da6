package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogRunLifecycle records a run state transition (started, paused, resumed,
// stopped, completed).
func (s *Service) LogRunLifecycle(ctx context.Context, runID, actorUserID, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeRunLifecycle,
		ActorUserID: actorUserID,
		RunID:       runID,
		Message:     message,
	})
}

// LogDispositionApplied records a disposition application with its full
// per-action result breakdown as metadata.
func (s *Service) LogDispositionApplied(ctx context.Context, actorUserID, contactID, dispositionID, runID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeDispositionApplied,
		ActorUserID:   actorUserID,
		ContactID:     contactID,
		DispositionID: dispositionID,
		RunID:         runID,
		Message:       message,
		Metadata:      metadata,
	})
}
