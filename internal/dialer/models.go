package dialer

import "time"

// RunStatus is the lifecycle state of a power-dialer run.
//
// draft -> pending -> running <-> paused -> completed
// cancelled is reachable from any non-terminal state.
type RunStatus string

const (
	StatusDraft     RunStatus = "draft"
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// canStart reports whether a run may transition to running.
func canStart(from RunStatus) bool {
	switch from {
	case StatusDraft, StatusPending, StatusPaused:
		return true
	default:
		return false
	}
}

// RunStats are the aggregate counters for one run. The controller is the
// only writer; the persisted copy is the source of truth across restarts.
type RunStats struct {
	Attempted int `json:"attempted" db:"attempted"`
	Answered  int `json:"answered" db:"answered"`
	NoAnswer  int `json:"no_answer" db:"no_answer"`
	Voicemail int `json:"voicemail" db:"voicemail"`
	Busy      int `json:"busy" db:"busy"`
	Failed    int `json:"failed" db:"failed"`
	Canceled  int `json:"canceled" db:"canceled"`

	TalkTimeSeconds int `json:"talk_time_seconds" db:"talk_time_seconds"`
}

// Run is one execution of a power-dialer campaign against a contact list.
type Run struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// ListID is the target call list.
	ListID string `json:"list_id" db:"list_id"`

	// OwnerUserID is the agent the dialer transfers humans to.
	OwnerUserID string `json:"owner_user_id" db:"owner_user_id"`

	Status RunStatus `json:"status" db:"status"`

	// MaxLines is the concurrent outbound line budget for this run.
	MaxLines int `json:"max_lines" db:"max_lines"`

	// CallerIDs are rotated across originations.
	CallerIDs []string `json:"caller_ids" db:"caller_ids"`

	// TransferTo is the agent leg destination (E.164 or SIP URI).
	TransferTo string `json:"transfer_to" db:"transfer_to"`

	// VoicemailDropURL, when set, is played into machine-answered calls
	// instead of an immediate hangup.
	VoicemailDropURL string `json:"voicemail_drop_url,omitempty" db:"voicemail_drop_url"`

	// Cursor is the position of the next un-dialed contact in the list.
	// Monotonically non-decreasing for the lifetime of the run.
	Cursor int `json:"cursor" db:"cursor"`

	Stats RunStats `json:"stats"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty" db:"paused_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
