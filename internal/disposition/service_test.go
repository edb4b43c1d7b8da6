package disposition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/contacts"
)

func newService(t *testing.T, crm CRM, seed ...Disposition) (*Service, *audit.MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	for _, d := range seed {
		if err := repo.Create(context.Background(), d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(repo, NewExecutor(crm, nil), crm, audit.NewService(auditRepo), nil)
	return svc, auditRepo
}

func TestApply_DNCDispositionSetsFlagWithoutDNCAction(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	// "Do Not Call" configured with only a tag action; no ADD_TO_DNC.
	svc, _ := newService(t, crm, Disposition{
		ID:             "disp-dnc",
		Name:           "Do Not Call",
		IsSystem:       true,
		Active:         true,
		MarksDoNotCall: true,
		Actions: []Action{
			{ID: "a-1", Type: ActionAddTag, Config: []byte(`{"tag":"dnc"}`), SortOrder: 1, Active: true},
		},
	})

	res, err := svc.Apply(context.Background(), ApplyRequest{
		ContactID:     "contact-1",
		DispositionID: "disp-dnc",
		ActorUserID:   "agent-1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.ActionsExecuted != 1 {
		t.Fatalf("expected 1 action executed, got %d", res.ActionsExecuted)
	}
	if _, ok := crm.DNC["contact-1"]; !ok {
		t.Fatalf("expected DNC flag set even without an ADD_TO_DNC action")
	}
}

func TestApply_AppendsSummaryNoteAndAudit(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	svc, auditRepo := newService(t, crm, Disposition{
		ID:     "disp-1",
		Name:   "Interested",
		Active: true,
	})

	_, err := svc.Apply(context.Background(), ApplyRequest{
		ContactID:     "contact-1",
		DispositionID: "disp-1",
		ActorUserID:   "agent-1",
		RunID:         "run-1",
		Notes:         "wants a callback Tuesday",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	notes := crm.Notes["contact-1"]
	if len(notes) != 1 || !strings.Contains(notes[0], "Interested") || !strings.Contains(notes[0], "Tuesday") {
		t.Fatalf("unexpected notes: %v", notes)
	}
	events := auditRepo.ByType(audit.EventTypeDispositionApplied)
	if len(events) != 1 || events[0].RunID != "run-1" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
}

func TestApply_PartialFailureStillSucceeds(t *testing.T) {
	crm := &failingCRM{MemoryCRM: contacts.NewMemoryCRM()}
	svc, _ := newService(t, crm, Disposition{
		ID:     "disp-1",
		Name:   "Callback",
		Active: true,
		Actions: []Action{
			{ID: "a-1", Type: ActionAddTag, Config: []byte(`{"tag":"callback"}`), SortOrder: 1, Active: true},
			{ID: "a-2", Type: ActionCreateTask, Config: []byte(`{"title":"call back"}`), SortOrder: 2, Active: true},
		},
	})

	res, err := svc.Apply(context.Background(), ApplyRequest{ContactID: "contact-1", DispositionID: "disp-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.ActionsExecuted != 1 || len(res.Results) != 2 {
		t.Fatalf("expected partial-failure breakdown, got %+v", res)
	}
}

func TestApply_UnknownAndInactiveDispositions(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	svc, _ := newService(t, crm, Disposition{ID: "disp-off", Name: "Retired", Active: false})

	if _, err := svc.Apply(context.Background(), ApplyRequest{ContactID: "c", DispositionID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Apply(context.Background(), ApplyRequest{ContactID: "c", DispositionID: "disp-off"}); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestMemoryRepo_ProtectsSystemDispositions(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), Disposition{ID: "sys", IsSystem: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(context.Background(), "sys"); !errors.Is(err, ErrSystemDisposition) {
		t.Fatalf("expected ErrSystemDisposition, got %v", err)
	}
}
