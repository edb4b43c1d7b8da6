// Package webhook receives call-lifecycle events from the telephony provider
// and reconciles them against the pending registry and the run controller.
//
// The endpoint always acknowledges with 200: the provider does not usefully
// retry on parsing failures, so a malformed payload is logged and dropped
// rather than bounced into a retry flood.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"dialer-platform/internal/amd"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/pending"
	"dialer-platform/internal/telephony"
)

const maxBodyBytes = 1 << 20

// RunControl is the slice of the run controller the handler needs.
type RunControl interface {
	TransferTarget(ctx context.Context, runID string) (dialer.TransferTarget, error)
	HandleCallEnded(ctx context.Context, ended pending.Call, cause string)
	Poke(ctx context.Context, runID string)
}

type Config struct {
	Registry *pending.Registry
	Provider telephony.CallProvider
	Runs     RunControl
	Log      *slog.Logger

	// AMDFallback bounds how long after answer the handler waits for a
	// detection result before treating the call as human. Dropping a real
	// contact is worse than transferring the odd voicemail.
	AMDFallback time.Duration

	// ReleaseManualLine frees the per-user concurrency slot when a manual
	// call ends. Optional.
	ReleaseManualLine func(ctx context.Context, userID string)
}

type Handler struct {
	registry *pending.Registry
	provider telephony.CallProvider
	runs     RunControl
	log      *slog.Logger

	amdFallback       time.Duration
	releaseManualLine func(ctx context.Context, userID string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewHandler(cfg Config) *Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	fallback := cfg.AMDFallback
	if fallback <= 0 {
		fallback = 15 * time.Second
	}
	return &Handler{
		registry:          cfg.Registry,
		provider:          cfg.Provider,
		runs:              cfg.Runs,
		log:               log,
		amdFallback:       fallback,
		releaseManualLine: cfg.ReleaseManualLine,
		timers:            make(map[string]*time.Timer),
	}
}

// HandleCallEvent is the POST /webhooks/telnyx/call endpoint.
func (h *Handler) HandleCallEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("reading webhook body failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	ev, err := telephony.ParseEvent(body)
	if err != nil {
		h.log.Warn("malformed webhook payload", "err", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	h.Process(c.Request.Context(), ev)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Process applies one provider event. Exported separately from the gin
// handler so tests can drive events without HTTP plumbing.
func (h *Handler) Process(ctx context.Context, ev telephony.Event) {
	sessionID := ev.Payload.CallControlID
	if sessionID == "" {
		h.log.Warn("webhook event without call_control_id", "event_type", ev.EventType)
		return
	}

	// client_state is the durable fallback when the registry no longer
	// tracks the session (sweep, restart). Decode defensively; never trust
	// contents.
	state, stateOK := telephony.DecodeClientState(ev.Payload.ClientState)

	entry, tracked := h.registry.Get(sessionID)
	var known *pending.Call
	if tracked {
		known = &entry
	}
	action := amd.Decide(ev, known)

	runID := entry.RunID
	userID := entry.UserID
	if !tracked && stateOK {
		runID = state.RunID
		userID = state.UserID
	}

	switch ev.EventType {
	case telephony.EventCallInitiated:
		h.registry.UpdateStatus(sessionID, action.Status)

	case telephony.EventCallAnswered:
		h.registry.UpdateStatus(sessionID, action.Status)
		if tracked && runID != "" {
			h.armFallback(sessionID, runID)
		}

	case telephony.EventCallMachineEnded:
		h.cancelFallback(sessionID)
		h.registry.SetAMDResult(sessionID, ev.Payload.Result)
		h.registry.UpdateStatus(sessionID, action.Status)
		switch action.Kind {
		case amd.TransferToAgent:
			h.transfer(ctx, sessionID, runID)
		case amd.Hangup:
			h.hangupOrDrop(ctx, sessionID, runID)
		}

	case telephony.EventCallPlaybackEnded:
		// Voicemail drop finished; the line is done.
		if err := h.provider.Hangup(ctx, sessionID); err != nil {
			h.log.Warn("hangup after playback failed", "session_id", sessionID, "err", err)
		}

	case telephony.EventCallHangup:
		h.cancelFallback(sessionID)
		cause := ev.Payload.HangupCause
		if ended, ok := h.registry.Remove(sessionID); ok {
			ended.HangupCause = cause
			if ended.RunID != "" {
				h.runs.HandleCallEnded(ctx, ended, cause)
			} else if h.releaseManualLine != nil {
				h.releaseManualLine(ctx, ended.UserID)
			}
			return
		}
		// Unknown session (swept or restarted process): reconcile from the
		// payload-embedded state alone.
		if !stateOK {
			h.log.Warn("hangup for unknown session", "session_id", sessionID, "cause", cause)
			return
		}
		if runID != "" {
			h.runs.Poke(ctx, runID)
		} else if state.CallType == telephony.CallTypeManual && h.releaseManualLine != nil {
			h.releaseManualLine(ctx, userID)
		}

	default:
		h.log.Debug("ignoring webhook event", "event_type", ev.EventType, "session_id", sessionID)
	}
}

// transfer bridges the human to the agent. Without a run id there is no
// transfer destination; the safe default for an unattributable answered call
// is to hang up, not to leave it ringing into nothing.
func (h *Handler) transfer(ctx context.Context, sessionID, runID string) {
	if runID == "" {
		h.hangup(ctx, sessionID)
		return
	}
	tt, err := h.runs.TransferTarget(ctx, runID)
	if err != nil {
		h.log.Error("resolving transfer target failed", "session_id", sessionID, "run_id", runID, "err", err)
		h.hangup(ctx, sessionID)
		return
	}
	err = h.provider.Transfer(ctx, telephony.TransferRequest{
		SessionID: sessionID,
		To:        tt.To,
		CallerID:  tt.CallerID,
	})
	if err != nil {
		// Duplicate or late transfer against an ended call is tolerated.
		h.log.Warn("transfer failed", "session_id", sessionID, "run_id", runID, "err", err)
	}
}

// hangupOrDrop ends a machine-answered call, playing the configured
// voicemail drop first when the run has one.
func (h *Handler) hangupOrDrop(ctx context.Context, sessionID, runID string) {
	if runID != "" {
		tt, err := h.runs.TransferTarget(ctx, runID)
		if err == nil && tt.VoicemailDropURL != "" {
			err = h.provider.StartPlayback(ctx, telephony.PlaybackRequest{
				SessionID: sessionID,
				AudioURL:  tt.VoicemailDropURL,
				Loop:      1,
			})
			if err == nil {
				// Hangup happens on call.playback.ended.
				return
			}
			h.log.Warn("voicemail drop failed, hanging up", "session_id", sessionID, "err", err)
		}
	}
	h.hangup(ctx, sessionID)
}

func (h *Handler) hangup(ctx context.Context, sessionID string) {
	if err := h.provider.Hangup(ctx, sessionID); err != nil {
		h.log.Warn("hangup failed", "session_id", sessionID, "err", err)
	}
}

// armFallback starts the local AMD timeout for an answered dialer call. If
// the provider never emits a detection result, the timer forces the
// treat-as-human decision.
func (h *Handler) armFallback(sessionID, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.timers[sessionID]; exists {
		return
	}
	h.timers[sessionID] = time.AfterFunc(h.amdFallback, func() {
		h.fallbackFire(sessionID, runID)
	})
}

func (h *Handler) cancelFallback(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.timers[sessionID]; ok {
		t.Stop()
		delete(h.timers, sessionID)
	}
}

func (h *Handler) fallbackFire(sessionID, runID string) {
	h.mu.Lock()
	delete(h.timers, sessionID)
	h.mu.Unlock()

	entry, ok := h.registry.Get(sessionID)
	if !ok || entry.AMDResult != "" {
		return
	}
	h.log.Warn("no AMD result within fallback window, treating as human",
		"session_id", sessionID, "run_id", runID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.registry.SetAMDResult(sessionID, telephony.AMDResultHuman)
	h.registry.UpdateStatus(sessionID, pending.StatusHumanDetected)
	h.transfer(ctx, sessionID, runID)
}
