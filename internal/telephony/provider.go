package telephony

import (
	"context"
	"time"
)

// CallProvider defines the provider-agnostic call-control surface used by the
// dialer core.
//
// Rules:
// - No provider SDK or HTTP calls outside telephony adapters.
// - Every call placed through Originate round-trips an opaque ClientState that
//   comes back on each webhook event for the session; the rest of the system
//   must be able to act on that state alone.
// - Keep request/response types provider-agnostic.
type CallProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Originate places an outbound call and returns the provider-assigned
	// call-session id. All subsequent webhook events carry this id.
	Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error)

	// Hangup terminates a live call session. Hanging up an already-ended
	// session returns an error the caller is expected to swallow.
	Hangup(ctx context.Context, sessionID string) error

	// Transfer bridges the session to a new destination (the agent leg).
	Transfer(ctx context.Context, req TransferRequest) error

	// StartPlayback plays an audio file into the session (voicemail drops).
	StartPlayback(ctx context.Context, req PlaybackRequest) error
}

// OriginateRequest describes one outbound call attempt.
type OriginateRequest struct {
	// From and To are E.164 where possible.
	From string
	To   string

	// WebhookURL receives all lifecycle events for this session.
	WebhookURL string

	AMD AMDConfig

	// ClientState round-trips through every webhook event for this session.
	ClientState ClientState
}

// AMDConfig controls provider-side answering machine detection.
type AMDConfig struct {
	Enabled bool

	// TotalAnalysisTime bounds how long the provider analyses the answer
	// before emitting call.machine.detection.ended.
	TotalAnalysisTime time.Duration
}

type OriginateResult struct {
	// SessionID is the provider call-control id for this call.
	SessionID string
}

type TransferRequest struct {
	SessionID string

	// To is the agent destination (E.164 number or SIP URI).
	To string

	// CallerID is presented to the agent leg; typically the campaign
	// caller-id so the agent recognizes dialer traffic.
	CallerID string
}

type PlaybackRequest struct {
	SessionID string
	AudioURL  string

	// Loop <= 1 plays once.
	Loop int
}
