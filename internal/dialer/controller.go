package dialer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/amd"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/pending"
	"dialer-platform/internal/telephony"

	"github.com/google/uuid"
)

// Controller owns every DialerRun: it is the only writer of run state.
//
// Concurrency model: one mutex per run. The dialing loop, the pause/resume/
// stop API and webhook-triggered backfills all serialize on it, so two
// concurrent entries can never both observe "one free line" and overshoot
// the budget. Different runs (and webhook handlers for different sessions)
// proceed independently.
type Controller struct {
	store    RunStore
	contacts contacts.Source
	provider telephony.CallProvider
	registry *pending.Registry
	claim    Claim
	attempts calls.Store
	audit    *audit.Service

	log   *slog.Logger
	clock func() time.Time

	webhookURL      string
	amdTimeout      time.Duration
	defaultMaxLines int

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	mu  sync.Mutex
	run *Run
}

type ControllerConfig struct {
	Store    RunStore
	Contacts contacts.Source
	Provider telephony.CallProvider
	Registry *pending.Registry
	Claim    Claim
	Attempts calls.Store

	// Audit is optional; lifecycle logging is best-effort.
	Audit *audit.Service

	Log *slog.Logger

	WebhookURL      string
	AMDTimeout      time.Duration
	DefaultMaxLines int
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil || cfg.Contacts == nil || cfg.Provider == nil || cfg.Registry == nil || cfg.Claim == nil || cfg.Attempts == nil {
		return nil, errors.New("dialer: controller dependencies are incomplete")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.DefaultMaxLines <= 0 {
		cfg.DefaultMaxLines = 3
	}
	if cfg.AMDTimeout <= 0 {
		cfg.AMDTimeout = 5 * time.Second
	}
	return &Controller{
		store:           cfg.Store,
		contacts:        cfg.Contacts,
		provider:        cfg.Provider,
		registry:        cfg.Registry,
		claim:           cfg.Claim,
		attempts:        cfg.Attempts,
		audit:           cfg.Audit,
		log:             cfg.Log,
		clock:           time.Now,
		webhookURL:      cfg.WebhookURL,
		amdTimeout:      cfg.AMDTimeout,
		defaultMaxLines: cfg.DefaultMaxLines,
		runs:            make(map[string]*runState),
	}, nil
}

// WithClock overrides the clock for deterministic tests.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

type CreateRunRequest struct {
	Name             string   `json:"name"`
	ListID           string   `json:"list_id"`
	OwnerUserID      string   `json:"owner_user_id"`
	MaxLines         int      `json:"max_lines"`
	CallerIDs        []string `json:"caller_ids"`
	TransferTo       string   `json:"transfer_to"`
	VoicemailDropURL string   `json:"voicemail_drop_url"`
}

func (c *Controller) CreateRun(ctx context.Context, req CreateRunRequest) (Run, error) {
	if req.ListID == "" || req.OwnerUserID == "" || req.TransferTo == "" {
		return Run{}, errors.New("dialer: list_id, owner_user_id and transfer_to are required")
	}
	if len(req.CallerIDs) == 0 {
		return Run{}, ErrNoCallerIDs
	}
	maxLines := req.MaxLines
	if maxLines <= 0 {
		maxLines = c.defaultMaxLines
	}
	now := c.clock().UTC()
	run := Run{
		ID:               uuid.NewString(),
		Name:             req.Name,
		ListID:           req.ListID,
		OwnerUserID:      req.OwnerUserID,
		Status:           StatusDraft,
		MaxLines:         maxLines,
		CallerIDs:        append([]string(nil), req.CallerIDs...),
		TransferTo:       req.TransferTo,
		VoicemailDropURL: req.VoicemailDropURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.store.Create(ctx, run); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (c *Controller) Get(ctx context.Context, runID string) (Run, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	defer rs.mu.Unlock()
	return *rs.run, nil
}

// Start transitions a run to running and begins dialing.
// Allowed from draft, pending or paused.
func (c *Controller) Start(ctx context.Context, runID string, force bool) (Run, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	defer rs.mu.Unlock()
	run := rs.run

	if !canStart(run.Status) {
		return Run{}, &InvalidTransitionError{RunID: runID, From: run.Status, Action: "start"}
	}
	if len(run.CallerIDs) == 0 {
		return Run{}, ErrNoCallerIDs
	}
	remaining, err := c.contacts.Remaining(ctx, run.ListID, run.Cursor)
	if err != nil {
		return Run{}, err
	}
	if remaining == 0 {
		return Run{}, ErrNoContactsRemaining
	}
	if err := c.claim.Acquire(ctx, runID, force); err != nil {
		return Run{}, err
	}

	now := c.clock().UTC()
	run.Status = StatusRunning
	run.PausedAt = nil
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	if err := c.store.Update(ctx, *run); err != nil {
		// Undo the claim so a broken store does not wedge the system.
		_ = c.claim.Release(ctx, runID)
		run.Status = StatusPending
		return Run{}, err
	}
	c.logLifecycle(ctx, run, "run started")

	c.fill(ctx, rs)
	return *run, nil
}

// Pause stops originating new calls. In-flight calls complete naturally.
func (c *Controller) Pause(ctx context.Context, runID string) (Run, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	defer rs.mu.Unlock()
	run := rs.run

	if run.Status != StatusRunning {
		return Run{}, &InvalidTransitionError{RunID: runID, From: run.Status, Action: "pause"}
	}
	now := c.clock().UTC()
	run.Status = StatusPaused
	run.PausedAt = &now
	if err := c.store.Update(ctx, *run); err != nil {
		return Run{}, err
	}
	if err := c.claim.Release(ctx, runID); err != nil {
		c.log.Warn("releasing active-run claim failed", "run_id", runID, "err", err)
	}
	c.logLifecycle(ctx, run, "run paused")
	return *run, nil
}

// Resume continues dialing from the stored cursor.
func (c *Controller) Resume(ctx context.Context, runID string) (Run, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	defer rs.mu.Unlock()
	run := rs.run

	if run.Status != StatusPaused {
		return Run{}, &InvalidTransitionError{RunID: runID, From: run.Status, Action: "resume"}
	}
	if err := c.claim.Acquire(ctx, runID, false); err != nil {
		return Run{}, err
	}
	run.Status = StatusRunning
	run.PausedAt = nil
	if err := c.store.Update(ctx, *run); err != nil {
		_ = c.claim.Release(ctx, runID)
		run.Status = StatusPaused
		return Run{}, err
	}
	c.logLifecycle(ctx, run, "run resumed")

	c.fill(ctx, rs)
	return *run, nil
}

// Stop cancels the run and hangs up every in-flight call best-effort.
// Allowed from any non-terminal state.
func (c *Controller) Stop(ctx context.Context, runID string) (Run, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	defer rs.mu.Unlock()
	run := rs.run

	if run.Status.IsTerminal() {
		return Run{}, &InvalidTransitionError{RunID: runID, From: run.Status, Action: "stop"}
	}

	now := c.clock().UTC()
	for _, sess := range c.registry.SessionsForRun(runID) {
		if err := c.provider.Hangup(ctx, sess.SessionID); err != nil {
			// The call may already be down; cancellation is best-effort.
			c.log.Warn("hangup on stop failed", "run_id", runID, "session_id", sess.SessionID, "err", err)
		}
		c.registry.Remove(sess.SessionID)
		run.Stats.Canceled++
		if err := c.attempts.Finish(ctx, sess.SessionID, calls.AttemptStatusCanceled, sess.AMDResult, "run_stopped", 0, now); err != nil {
			c.log.Warn("finishing canceled attempt failed", "session_id", sess.SessionID, "err", err)
		}
	}

	run.Status = StatusCancelled
	run.CompletedAt = &now
	run.PausedAt = nil
	if err := c.store.Update(ctx, *run); err != nil {
		return Run{}, err
	}
	if err := c.claim.Release(ctx, runID); err != nil {
		c.log.Warn("releasing active-run claim failed", "run_id", runID, "err", err)
	}
	c.logLifecycle(ctx, run, "run stopped")
	return *run, nil
}

// TransferTarget is what the webhook handler needs to act on an AMD decision
// for a dialer call.
type TransferTarget struct {
	To               string
	CallerID         string
	VoicemailDropURL string
}

func (c *Controller) TransferTarget(ctx context.Context, runID string) (TransferTarget, error) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return TransferTarget{}, err
	}
	defer rs.mu.Unlock()
	run := rs.run
	callerID := ""
	if len(run.CallerIDs) > 0 {
		callerID = run.CallerIDs[0]
	}
	return TransferTarget{
		To:               run.TransferTo,
		CallerID:         callerID,
		VoicemailDropURL: run.VoicemailDropURL,
	}, nil
}

// HandleCallEnded reconciles a terminal call session against the run:
// updates counters, finalizes the attempt row and backfills the freed line.
func (c *Controller) HandleCallEnded(ctx context.Context, ended pending.Call, cause string) {
	if ended.RunID == "" {
		return
	}
	rs, err := c.lockRun(ctx, ended.RunID)
	if err != nil {
		c.log.Warn("call ended for unknown run", "run_id", ended.RunID, "session_id", ended.SessionID, "err", err)
		return
	}
	defer rs.mu.Unlock()
	run := rs.run

	now := c.clock().UTC()
	status := outcomeForCall(ended, cause)
	duration := 0
	if status == calls.AttemptStatusAnswered && !ended.AnsweredAt.IsZero() {
		duration = int(now.Sub(ended.AnsweredAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}

	switch status {
	case calls.AttemptStatusAnswered:
		run.Stats.Answered++
		run.Stats.TalkTimeSeconds += duration
	case calls.AttemptStatusVoicemail:
		run.Stats.Voicemail++
	case calls.AttemptStatusNoAnswer:
		run.Stats.NoAnswer++
	case calls.AttemptStatusBusy:
		run.Stats.Busy++
	case calls.AttemptStatusCanceled:
		run.Stats.Canceled++
	default:
		run.Stats.Failed++
	}

	if err := c.attempts.Finish(ctx, ended.SessionID, status, ended.AMDResult, cause, duration, now); err != nil && !errors.Is(err, calls.ErrNotFound) {
		c.log.Warn("finishing attempt failed", "session_id", ended.SessionID, "err", err)
	}
	if err := c.store.Update(ctx, *run); err != nil {
		c.log.Error("persisting run counters failed", "run_id", run.ID, "err", err)
	}

	if run.Status == StatusRunning {
		if err := c.claim.Refresh(ctx, run.ID); err != nil {
			c.log.Warn("refreshing active-run claim failed", "run_id", run.ID, "err", err)
		}
		c.fill(ctx, rs)
	}
}

// Poke re-enters the dialing loop for a run, used when a webhook references
// a session the registry no longer tracks (sweep, restart).
func (c *Controller) Poke(ctx context.Context, runID string) {
	rs, err := c.lockRun(ctx, runID)
	if err != nil {
		return
	}
	defer rs.mu.Unlock()
	if rs.run.Status == StatusRunning {
		c.fill(ctx, rs)
	}
}

// Recover reconciles persisted state after a restart: any run recorded as
// running has lost its in-memory lines and is parked as paused, ready for an
// operator to resume.
func (c *Controller) Recover(ctx context.Context) error {
	running, err := c.store.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return err
	}
	now := c.clock().UTC()
	for _, run := range running {
		run.Status = StatusPaused
		run.PausedAt = &now
		if err := c.store.Update(ctx, run); err != nil {
			return err
		}
		if err := c.claim.Release(ctx, run.ID); err != nil {
			c.log.Warn("releasing stale claim failed", "run_id", run.ID, "err", err)
		}
		c.log.Warn("parked interrupted run as paused", "run_id", run.ID, "cursor", run.Cursor)
	}
	return nil
}

// fill originates calls until the line budget is full or the list runs out.
// Caller must hold rs.mu. The in-flight count comes from the pending
// registry every iteration; a separately maintained counter would drift on
// missed webhooks.
func (c *Controller) fill(ctx context.Context, rs *runState) {
	run := rs.run
	for run.Status == StatusRunning {
		inFlight := c.registry.ActiveForRun(run.ID)
		if inFlight >= run.MaxLines {
			break
		}

		contact, next, err := c.contacts.Next(ctx, run.ListID, run.Cursor)
		if errors.Is(err, contacts.ErrExhausted) {
			if inFlight == 0 {
				c.complete(ctx, run)
			}
			break
		}
		if err != nil {
			c.log.Error("reading next contact failed", "run_id", run.ID, "err", err)
			break
		}
		if contact.DoNotCall {
			run.Cursor = next
			continue
		}

		from := run.CallerIDs[run.Stats.Attempted%len(run.CallerIDs)]
		state := telephony.ClientState{
			CallType:  telephony.CallTypeDialer,
			ContactID: contact.ID,
			RunID:     run.ID,
			UserID:    run.OwnerUserID,
			From:      from,
			To:        contact.Phone,
		}
		res, err := c.provider.Originate(ctx, telephony.OriginateRequest{
			From:        from,
			To:          contact.Phone,
			WebhookURL:  c.webhookURL,
			AMD:         telephony.AMDConfig{Enabled: true, TotalAnalysisTime: c.amdTimeout},
			ClientState: state,
		})

		run.Cursor = next
		run.Stats.Attempted++
		now := c.clock().UTC()

		if err != nil {
			// Synchronous gateway rejection: record it and keep dialing
			// with the next contact instead of stalling the run.
			run.Stats.Failed++
			c.log.Warn("originate failed", "run_id", run.ID, "contact_id", contact.ID, "err", err)
			ended := now
			if err := c.attempts.Create(ctx, calls.Attempt{
				ID:        uuid.NewString(),
				SessionID: "failed-" + uuid.NewString(),
				RunID:     run.ID,
				ContactID: contact.ID,
				UserID:    run.OwnerUserID,
				From:      from,
				To:        contact.Phone,
				Status:    calls.AttemptStatusFailed,
				StartedAt: now,
				EndedAt:   &ended,
			}); err != nil {
				c.log.Warn("recording failed attempt failed", "run_id", run.ID, "err", err)
			}
			continue
		}

		c.registry.Register(pending.Call{
			SessionID: res.SessionID,
			ContactID: contact.ID,
			RunID:     run.ID,
			UserID:    run.OwnerUserID,
			From:      from,
			To:        contact.Phone,
			Status:    pending.StatusInitiated,
			StartedAt: now,
		})
		if err := c.attempts.Create(ctx, calls.Attempt{
			ID:        uuid.NewString(),
			SessionID: res.SessionID,
			RunID:     run.ID,
			ContactID: contact.ID,
			UserID:    run.OwnerUserID,
			From:      from,
			To:        contact.Phone,
			Status:    calls.AttemptStatusDialing,
			StartedAt: now,
		}); err != nil {
			c.log.Warn("recording attempt failed", "run_id", run.ID, "session_id", res.SessionID, "err", err)
		}
	}

	if err := c.store.Update(ctx, *run); err != nil {
		c.log.Error("persisting run failed", "run_id", run.ID, "err", err)
	}
}

// complete marks natural completion: cursor at end of list, no lines in
// flight. Caller must hold rs.mu.
func (c *Controller) complete(ctx context.Context, run *Run) {
	now := c.clock().UTC()
	run.Status = StatusCompleted
	run.CompletedAt = &now
	if err := c.claim.Release(ctx, run.ID); err != nil {
		c.log.Warn("releasing active-run claim failed", "run_id", run.ID, "err", err)
	}
	c.logLifecycle(ctx, run, "run completed")
}

func (c *Controller) lockRun(ctx context.Context, runID string) (*runState, error) {
	c.mu.Lock()
	rs, ok := c.runs[runID]
	if !ok {
		rs = &runState{}
		c.runs[runID] = rs
	}
	c.mu.Unlock()

	rs.mu.Lock()
	if rs.run == nil {
		run, err := c.store.Get(ctx, runID)
		if err != nil {
			rs.mu.Unlock()
			return nil, err
		}
		rs.run = &run
	}
	return rs, nil
}

func (c *Controller) logLifecycle(ctx context.Context, run *Run, message string) {
	c.log.Info(message, "run_id", run.ID, "status", run.Status, "cursor", run.Cursor, "attempted", run.Stats.Attempted)
	if c.audit != nil {
		if err := c.audit.LogRunLifecycle(ctx, run.ID, run.OwnerUserID, message); err != nil {
			c.log.Warn("audit append failed", "run_id", run.ID, "err", err)
		}
	}
}

// outcomeForCall classifies a terminal session into an attempt status.
func outcomeForCall(ended pending.Call, cause string) calls.AttemptStatus {
	if amd.IsHuman(ended.AMDResult) {
		return calls.AttemptStatusAnswered
	}
	if ended.AMDResult != "" {
		return calls.AttemptStatusVoicemail
	}
	switch cause {
	case "user_busy", "busy":
		return calls.AttemptStatusBusy
	case "no_answer", "timeout", "originator_cancel", "unspecified":
		return calls.AttemptStatusNoAnswer
	case "normal_clearing":
		if !ended.AnsweredAt.IsZero() {
			return calls.AttemptStatusAnswered
		}
		return calls.AttemptStatusNoAnswer
	case "run_stopped":
		return calls.AttemptStatusCanceled
	default:
		return calls.AttemptStatusFailed
	}
}
