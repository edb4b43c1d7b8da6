package pending

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_RegisterGetRemove(t *testing.T) {
	r := NewRegistry()
	r.Register(Call{SessionID: "cc-1", ContactID: "c-1", RunID: "run-1", From: "+1", To: "+2"})

	got, ok := r.Get("cc-1")
	if !ok {
		t.Fatalf("expected session cc-1")
	}
	if got.Status != StatusInitiated {
		t.Fatalf("expected initiated default, got %q", got.Status)
	}
	if got.StartedAt.IsZero() {
		t.Fatalf("expected start timestamp")
	}

	removed, ok := r.Remove("cc-1")
	if !ok || removed.ContactID != "c-1" {
		t.Fatalf("expected removed snapshot, got %+v ok=%v", removed, ok)
	}
	if _, ok := r.Get("cc-1"); ok {
		t.Fatalf("expected session gone after remove")
	}
}

func TestRegistry_AMDResultSetOnce(t *testing.T) {
	r := NewRegistry()
	r.Register(Call{SessionID: "cc-1"})

	if res, _ := r.SetAMDResult("cc-1", "human"); res != "human" {
		t.Fatalf("expected human, got %q", res)
	}
	// A later not_sure must never overwrite a definitive result.
	if res, _ := r.SetAMDResult("cc-1", "not_sure"); res != "human" {
		t.Fatalf("expected human preserved, got %q", res)
	}
	// A definitive result may replace an earlier not_sure.
	r.Register(Call{SessionID: "cc-2"})
	r.SetAMDResult("cc-2", "not_sure")
	if res, _ := r.SetAMDResult("cc-2", "machine"); res != "machine" {
		t.Fatalf("expected machine to replace not_sure, got %q", res)
	}
}

func TestRegistry_ActiveForRunExcludesTerminal(t *testing.T) {
	r := NewRegistry()
	r.Register(Call{SessionID: "cc-1", RunID: "run-1"})
	r.Register(Call{SessionID: "cc-2", RunID: "run-1"})
	r.Register(Call{SessionID: "cc-3", RunID: "run-2"})

	if n := r.ActiveForRun("run-1"); n != 2 {
		t.Fatalf("expected 2 active, got %d", n)
	}
	r.UpdateStatus("cc-2", StatusVoicemail)
	if n := r.ActiveForRun("run-1"); n != 1 {
		t.Fatalf("expected 1 active after terminal status, got %d", n)
	}
	if got := r.SessionsForRun("run-1"); len(got) != 1 || got[0].SessionID != "cc-1" {
		t.Fatalf("unexpected sessions for run: %+v", got)
	}
}

func TestRegistry_SweepPurgesStaleEntries(t *testing.T) {
	now := time.Now().UTC()
	r := NewRegistry().WithClock(func() time.Time { return now })

	r.Register(Call{SessionID: "cc-old", StartedAt: now.Add(-11 * time.Minute)})
	r.Register(Call{SessionID: "cc-new", StartedAt: now.Add(-1 * time.Minute)})

	if purged := r.Sweep(10 * time.Minute); purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, ok := r.Get("cc-old"); ok {
		t.Fatalf("expected stale entry purged")
	}
	if _, ok := r.Get("cc-new"); !ok {
		t.Fatalf("expected fresh entry kept")
	}
}

func TestRegistry_ConcurrentUpdatesSameSession(t *testing.T) {
	r := NewRegistry()
	r.Register(Call{SessionID: "cc-1", RunID: "run-1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.UpdateStatus("cc-1", StatusRinging)
			r.SetAMDResult("cc-1", "human")
			r.ActiveForRun("run-1")
		}()
	}
	wg.Wait()

	got, ok := r.Get("cc-1")
	if !ok || got.AMDResult != "human" {
		t.Fatalf("expected human result after concurrent writes, got %+v", got)
	}
}

func TestRegistry_AnsweredTimestampSetOnce(t *testing.T) {
	base := time.Now().UTC()
	now := base
	r := NewRegistry().WithClock(func() time.Time { return now })

	r.Register(Call{SessionID: "cc-1"})
	r.UpdateStatus("cc-1", StatusAnswered)
	first, _ := r.Get("cc-1")

	now = base.Add(30 * time.Second)
	r.UpdateStatus("cc-1", StatusAMDChecking)
	second, _ := r.Get("cc-1")

	if !first.AnsweredAt.Equal(second.AnsweredAt) {
		t.Fatalf("expected answered timestamp preserved: %v != %v", first.AnsweredAt, second.AnsweredAt)
	}
}
