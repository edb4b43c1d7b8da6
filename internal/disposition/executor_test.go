package disposition

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/contacts"
)

// failingCRM wraps the in-memory CRM and rejects tag adds.
type failingCRM struct {
	*contacts.MemoryCRM
}

func (f *failingCRM) AddTag(ctx context.Context, contactID, tag string) error {
	return errors.New("tagging service unavailable")
}

func cfg(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return b
}

func TestExecute_FailureDoesNotShortCircuit(t *testing.T) {
	crm := &failingCRM{MemoryCRM: contacts.NewMemoryCRM()}
	exec := NewExecutor(crm, nil)

	actions := []Action{
		{ID: "a-1", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "hot-lead"}), SortOrder: 1, Active: true},
		{ID: "a-2", Type: ActionCreateTask, Config: cfg(t, map[string]any{"title": "call back", "due_in_hours": 24}), SortOrder: 2, Active: true},
	}
	results := exec.Execute(context.Background(), actions, "contact-1")

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Fatalf("expected first action to fail with recorded error, got %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("expected second action to run despite first failure, got %+v", results[1])
	}
	if len(crm.Tasks["contact-1"]) != 1 {
		t.Fatalf("expected task created, got %v", crm.Tasks["contact-1"])
	}
}

func TestExecute_OrdersBySortOrder(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	exec := NewExecutor(crm, nil)

	actions := []Action{
		{ID: "a-2", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "second"}), SortOrder: 20, Active: true},
		{ID: "a-1", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "first"}), SortOrder: 10, Active: true},
	}
	results := exec.Execute(context.Background(), actions, "contact-1")

	if results[0].ActionID != "a-1" || results[1].ActionID != "a-2" {
		t.Fatalf("expected execution in sort order, got %+v", results)
	}
	if got := crm.Tags["contact-1"]; len(got) != 2 || got[0] != "first" {
		t.Fatalf("expected tags applied in order, got %v", got)
	}
}

func TestExecute_SkipsInactiveActions(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	exec := NewExecutor(crm, nil)

	actions := []Action{
		{ID: "a-1", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "live"}), SortOrder: 1, Active: true},
		{ID: "a-2", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "dead"}), SortOrder: 2, Active: false},
	}
	results := exec.Execute(context.Background(), actions, "contact-1")

	if len(results) != 1 {
		t.Fatalf("expected inactive action skipped, got %+v", results)
	}
	if got := crm.Tags["contact-1"]; len(got) != 1 || got[0] != "live" {
		t.Fatalf("unexpected tags: %v", got)
	}
}

func TestExecute_UnknownTypeRecordedAsFailure(t *testing.T) {
	exec := NewExecutor(contacts.NewMemoryCRM(), nil)

	results := exec.Execute(context.Background(), []Action{
		{ID: "a-1", Type: ActionType("EXPLODE"), SortOrder: 1, Active: true},
	}, "contact-1")

	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected recorded failure, got %+v", results)
	}
}

func TestExecute_AllActionTypes(t *testing.T) {
	crm := contacts.NewMemoryCRM()
	exec := NewExecutor(crm, nil)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exec.clock = func() time.Time { return base }

	actions := []Action{
		{ID: "a-1", Type: ActionAddTag, Config: cfg(t, map[string]string{"tag": "warm"}), SortOrder: 1, Active: true},
		{ID: "a-2", Type: ActionRemoveTag, Config: cfg(t, map[string]string{"tag": "warm"}), SortOrder: 2, Active: true},
		{ID: "a-3", Type: ActionAddToDNC, Config: cfg(t, map[string]string{"reason": "requested"}), SortOrder: 3, Active: true},
		{ID: "a-4", Type: ActionCreateTask, Config: cfg(t, map[string]any{"title": "follow up", "due_in_hours": 48}), SortOrder: 4, Active: true},
		{ID: "a-5", Type: ActionTriggerSequence, Config: cfg(t, map[string]string{"sequence_id": "seq-9"}), SortOrder: 5, Active: true},
		{ID: "a-6", Type: ActionSendSMS, Config: cfg(t, map[string]string{"template_id": "sms-1"}), SortOrder: 6, Active: true},
		{ID: "a-7", Type: ActionSendEmail, Config: cfg(t, map[string]string{"template_id": "mail-1"}), SortOrder: 7, Active: true},
		{ID: "a-8", Type: ActionUpdateDealStage, Config: cfg(t, map[string]string{"stage_id": "stage-3"}), SortOrder: 8, Active: true},
	}
	results := exec.Execute(context.Background(), actions, "contact-1")

	for _, r := range results {
		if !r.Success {
			t.Fatalf("action %s failed: %s", r.ActionID, r.Error)
		}
	}
	if crm.DNC["contact-1"] != "requested" {
		t.Fatalf("expected DNC set, got %q", crm.DNC["contact-1"])
	}
	if len(crm.Tags["contact-1"]) != 0 {
		t.Fatalf("expected tag removed again, got %v", crm.Tags["contact-1"])
	}
	if crm.Stages["contact-1"] != "stage-3" {
		t.Fatalf("expected stage updated, got %q", crm.Stages["contact-1"])
	}
	if len(crm.Enrolled["contact-1"]) != 1 || len(crm.SMS["contact-1"]) != 1 || len(crm.Email["contact-1"]) != 1 {
		t.Fatalf("expected sequence, sms and email queued")
	}
}
