package calls

import "time"

// Attempt is the persisted record of one originated call, dialer or manual.
//
// NOTE: This is a domain model only. Provider-specific payloads belong in
// metadata, not in this core model. The in-memory pending registry is the
// fast path during a live call; this row is the durable record that feeds run
// counters and summaries.
type Attempt struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`

	// RunID is empty for manual click-to-call.
	RunID     string `json:"run_id,omitempty" db:"run_id"`
	ContactID string `json:"contact_id" db:"contact_id"`
	UserID    string `json:"user_id,omitempty" db:"user_id"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status AttemptStatus `json:"status" db:"status"`

	// AMDResult is the final classification, empty when detection never ran.
	AMDResult string `json:"amd_result,omitempty" db:"amd_result"`

	HangupCause string `json:"hangup_cause,omitempty" db:"hangup_cause"`

	// DurationSeconds is talk time for answered calls, zero otherwise.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type AttemptStatus string

const (
	AttemptStatusDialing   AttemptStatus = "dialing"
	AttemptStatusAnswered  AttemptStatus = "answered"
	AttemptStatusVoicemail AttemptStatus = "voicemail"
	AttemptStatusNoAnswer  AttemptStatus = "no_answer"
	AttemptStatusBusy      AttemptStatus = "busy"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusCanceled  AttemptStatus = "canceled"
)

// IsFinal reports whether the attempt has reached its terminal status.
func (s AttemptStatus) IsFinal() bool {
	return s != AttemptStatusDialing && s != ""
}
