package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/pending"
	"dialer-platform/internal/telephony"
)

type fakeProvider struct {
	mu          sync.Mutex
	originated  []telephony.OriginateRequest
	hangups     []string
	failTo      map[string]bool // originate failures by destination
	failHangup  map[string]bool // hangup failures by session id
	nextSession int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failTo: make(map[string]bool), failHangup: make(map[string]bool)}
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) Originate(ctx context.Context, req telephony.OriginateRequest) (telephony.OriginateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTo[req.To] {
		return telephony.OriginateResult{}, errors.New("fake: originate rejected")
	}
	p.originated = append(p.originated, req)
	p.nextSession++
	return telephony.OriginateResult{SessionID: fmt.Sprintf("cc-%d", p.nextSession)}, nil
}

func (p *fakeProvider) Hangup(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups = append(p.hangups, sessionID)
	if p.failHangup[sessionID] {
		return errors.New("fake: call already ended")
	}
	return nil
}

func (p *fakeProvider) Transfer(ctx context.Context, req telephony.TransferRequest) error { return nil }
func (p *fakeProvider) StartPlayback(ctx context.Context, req telephony.PlaybackRequest) error {
	return nil
}

func (p *fakeProvider) originateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.originated)
}

func (p *fakeProvider) hangupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hangups)
}

type fixture struct {
	ctrl     *Controller
	store    *MemoryRunStore
	source   *contacts.MemorySource
	provider *fakeProvider
	registry *pending.Registry
	claim    *MemoryClaim
	attempts *calls.MemoryStore
}

func newFixture(t *testing.T, numContacts int) *fixture {
	t.Helper()
	source := contacts.NewMemorySource()
	var members []contacts.Contact
	for i := 0; i < numContacts; i++ {
		members = append(members, contacts.Contact{
			ID:    fmt.Sprintf("contact-%d", i+1),
			Phone: fmt.Sprintf("+1555000%04d", i+1),
		})
	}
	source.SetList("list-1", members)

	f := &fixture{
		store:    NewMemoryRunStore(),
		source:   source,
		provider: newFakeProvider(),
		registry: pending.NewRegistry(),
		claim:    NewMemoryClaim(),
		attempts: calls.NewMemoryStore(),
	}
	ctrl, err := NewController(ControllerConfig{
		Store:           f.store,
		Contacts:        f.source,
		Provider:        f.provider,
		Registry:        f.registry,
		Claim:           f.claim,
		Attempts:        f.attempts,
		Log:             slog.Default(),
		WebhookURL:      "https://dialer.example.com/webhooks/telnyx/call",
		AMDTimeout:      5 * time.Second,
		DefaultMaxLines: 3,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	f.ctrl = ctrl
	return f
}

func (f *fixture) createRun(t *testing.T, maxLines int) Run {
	t.Helper()
	run, err := f.ctrl.CreateRun(context.Background(), CreateRunRequest{
		Name:        "afternoon follow-ups",
		ListID:      "list-1",
		OwnerUserID: "agent-1",
		MaxLines:    maxLines,
		CallerIDs:   []string{"+15559990001", "+15559990002"},
		TransferTo:  "sip:agent-1@pbx.example.com",
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

// endCall simulates the hangup webhook path for a tracked session.
func (f *fixture) endCall(t *testing.T, sessionID, amdResult, cause string) {
	t.Helper()
	if amdResult != "" {
		f.registry.SetAMDResult(sessionID, amdResult)
	}
	entry, ok := f.registry.Remove(sessionID)
	if !ok {
		t.Fatalf("session %s not tracked", sessionID)
	}
	f.ctrl.HandleCallEnded(context.Background(), entry, cause)
}

func TestStart_FillsUpToMaxLines(t *testing.T) {
	f := newFixture(t, 5)
	run := f.createRun(t, 2)

	got, err := f.ctrl.Start(context.Background(), run.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("expected running, got %q", got.Status)
	}
	if n := f.registry.ActiveForRun(run.ID); n != 2 {
		t.Fatalf("expected 2 in-flight, got %d", n)
	}
	if got.Stats.Attempted != 2 || got.Cursor != 2 {
		t.Fatalf("expected attempted=2 cursor=2, got %+v", got)
	}

	// Persisted mirror reflects the in-memory copy.
	stored, err := f.store.Get(context.Background(), run.ID)
	if err != nil || stored.Stats.Attempted != 2 {
		t.Fatalf("expected persisted attempted=2, got %+v err=%v", stored, err)
	}
}

func TestFreedLineIsBackfilled(t *testing.T) {
	f := newFixture(t, 5)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	// First line classified machine and hung up: the freed line dials the
	// third contact automatically.
	f.endCall(t, "cc-1", telephony.AMDResultMachine, "normal_clearing")

	if n := f.registry.ActiveForRun(run.ID); n != 2 {
		t.Fatalf("expected backfill to 2 in-flight, got %d", n)
	}
	got, _ := f.ctrl.Get(context.Background(), run.ID)
	if got.Stats.Attempted != 3 || got.Stats.Voicemail != 1 {
		t.Fatalf("expected attempted=3 voicemail=1, got %+v", got.Stats)
	}
}

func TestInFlightNeverExceedsMaxLines(t *testing.T) {
	f := newFixture(t, 20)
	run := f.createRun(t, 3)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 1; i <= 10; i++ {
		if n := f.registry.ActiveForRun(run.ID); n > 3 {
			t.Fatalf("budget exceeded: %d in flight", n)
		}
		f.endCall(t, fmt.Sprintf("cc-%d", i), "", "no_answer")
	}
	if n := f.registry.ActiveForRun(run.ID); n != 3 {
		t.Fatalf("expected 3 in-flight after backfills, got %d", n)
	}
}

func TestOriginateFailureBackfillsImmediately(t *testing.T) {
	f := newFixture(t, 4)
	f.provider.failTo["+15550000002"] = true

	run := f.createRun(t, 2)
	got, err := f.ctrl.Start(context.Background(), run.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Contact 2 was rejected synchronously; contact 3 took its line.
	if n := f.registry.ActiveForRun(run.ID); n != 2 {
		t.Fatalf("expected 2 in-flight, got %d", n)
	}
	if got.Stats.Attempted != 3 || got.Stats.Failed != 1 {
		t.Fatalf("expected attempted=3 failed=1, got %+v", got.Stats)
	}
}

func TestDNCContactsAreSkipped(t *testing.T) {
	f := newFixture(t, 0)
	f.source.SetList("list-1", []contacts.Contact{
		{ID: "c-1", Phone: "+15550000001"},
		{ID: "c-2", Phone: "+15550000002", DoNotCall: true},
		{ID: "c-3", Phone: "+15550000003"},
	})
	run := f.createRun(t, 3)
	got, err := f.ctrl.Start(context.Background(), run.ID, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.Stats.Attempted != 2 {
		t.Fatalf("expected DNC contact skipped, attempted=%d", got.Stats.Attempted)
	}
	if f.provider.originateCount() != 2 {
		t.Fatalf("expected 2 originations, got %d", f.provider.originateCount())
	}
}

func TestPauseResume_CursorDoesNotRewind(t *testing.T) {
	f := newFixture(t, 6)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	paused, err := f.ctrl.Pause(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != StatusPaused || paused.PausedAt == nil {
		t.Fatalf("expected paused with timestamp, got %+v", paused)
	}
	if f.claim.Holder() != "" {
		t.Fatalf("expected claim released on pause")
	}
	cursorAtPause := paused.Cursor

	// In-flight calls complete naturally while paused; no backfill happens.
	f.endCall(t, "cc-1", "", "no_answer")
	if f.provider.originateCount() != 2 {
		t.Fatalf("expected no dialing while paused, got %d originations", f.provider.originateCount())
	}

	resumed, err := f.ctrl.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Cursor < cursorAtPause {
		t.Fatalf("cursor rewound: %d < %d", resumed.Cursor, cursorAtPause)
	}

	// No phone number is dialed twice.
	seen := make(map[string]int)
	for _, req := range f.provider.originated {
		seen[req.To]++
	}
	for to, n := range seen {
		if n > 1 {
			t.Fatalf("contact %s dialed %d times", to, n)
		}
	}
}

func TestPause_InvalidFromNonRunning(t *testing.T) {
	f := newFixture(t, 3)
	run := f.createRun(t, 2)

	_, err := f.ctrl.Pause(context.Background(), run.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != StatusDraft {
		t.Fatalf("expected current state in error, got %+v", invalid)
	}
}

func TestStop_HangsUpAllInFlightEvenIfOneFails(t *testing.T) {
	f := newFixture(t, 5)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.provider.failHangup["cc-1"] = true

	got, err := f.ctrl.Stop(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	if f.provider.hangupCount() != 2 {
		t.Fatalf("expected exactly 2 hangup calls, got %d", f.provider.hangupCount())
	}
	if got.Stats.Canceled != 2 {
		t.Fatalf("expected 2 canceled, got %d", got.Stats.Canceled)
	}
	if f.claim.Holder() != "" {
		t.Fatalf("expected claim released on stop")
	}
}

func TestStop_AllowedFromDraft(t *testing.T) {
	f := newFixture(t, 3)
	run := f.createRun(t, 2)
	got, err := f.ctrl.Stop(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("stop from draft: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err == nil {
		t.Fatalf("expected start after cancel to fail")
	}
}

func TestSingleActiveRunConflictAndForce(t *testing.T) {
	f := newFixture(t, 10)
	first := f.createRun(t, 2)
	second := f.createRun(t, 2)

	if _, err := f.ctrl.Start(context.Background(), first.ID, false); err != nil {
		t.Fatalf("start first: %v", err)
	}

	_, err := f.ctrl.Start(context.Background(), second.ID, false)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.BlockingRunID != first.ID {
		t.Fatalf("expected blocking run %s, got %s", first.ID, conflict.BlockingRunID)
	}

	// Force takes the claim over.
	if _, err := f.ctrl.Start(context.Background(), second.ID, true); err != nil {
		t.Fatalf("forced start: %v", err)
	}
	if f.claim.Holder() != second.ID {
		t.Fatalf("expected claim held by second run")
	}
}

func TestNaturalCompletion(t *testing.T) {
	f := newFixture(t, 3)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.endCall(t, "cc-1", telephony.AMDResultHuman, "normal_clearing")
	f.endCall(t, "cc-2", telephony.AMDResultMachineStart, "normal_clearing")
	f.endCall(t, "cc-3", "", "no_answer")

	got, err := f.ctrl.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatalf("expected completion timestamp")
	}
	if got.Stats.Answered != 1 || got.Stats.Voicemail != 1 || got.Stats.NoAnswer != 1 {
		t.Fatalf("unexpected counters: %+v", got.Stats)
	}
	if f.claim.Holder() != "" {
		t.Fatalf("expected claim released on completion")
	}
}

func TestStart_RequiresRemainingContacts(t *testing.T) {
	f := newFixture(t, 0)
	f.source.SetList("list-1", nil)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); !errors.Is(err, ErrNoContactsRemaining) {
		t.Fatalf("expected ErrNoContactsRemaining, got %v", err)
	}
}

func TestRecover_ParksRunningRunsAsPaused(t *testing.T) {
	f := newFixture(t, 5)
	run := f.createRun(t, 2)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Fresh controller over the same store simulates a restart.
	ctrl2, err := NewController(ControllerConfig{
		Store:           f.store,
		Contacts:        f.source,
		Provider:        f.provider,
		Registry:        pending.NewRegistry(),
		Claim:           f.claim,
		Attempts:        f.attempts,
		Log:             slog.Default(),
		WebhookURL:      "https://dialer.example.com/webhooks/telnyx/call",
		DefaultMaxLines: 3,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctrl2.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	stored, err := f.store.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusPaused || stored.PausedAt == nil {
		t.Fatalf("expected paused after recover, got %+v", stored)
	}
	if f.claim.Holder() != "" {
		t.Fatalf("expected stale claim released")
	}
}

func TestHandleCallEnded_TalkTimeAccumulates(t *testing.T) {
	f := newFixture(t, 1)
	base := time.Now().UTC()
	f.ctrl.WithClock(func() time.Time { return base.Add(90 * time.Second) })

	run := f.createRun(t, 1)
	if _, err := f.ctrl.Start(context.Background(), run.ID, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.registry.UpdateStatus("cc-1", pending.StatusAnswered)
	f.registry.SetAMDResult("cc-1", telephony.AMDResultHuman)
	entry, _ := f.registry.Remove("cc-1")
	entry.AnsweredAt = base
	f.ctrl.HandleCallEnded(context.Background(), entry, "normal_clearing")

	got, _ := f.ctrl.Get(context.Background(), run.ID)
	if got.Stats.TalkTimeSeconds != 90 {
		t.Fatalf("expected 90s talk time, got %d", got.Stats.TalkTimeSeconds)
	}
}
