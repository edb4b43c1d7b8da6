package reporting

// RunSummary aggregates the final outcome of one dialer run from its
// persisted call attempts. Derived from immutable attempt rows rather than
// the run's live counters so it stays correct even if a webhook was missed.
type RunSummary struct {
	RunID     string `json:"run_id"`
	RunName   string `json:"run_name"`
	RunStatus string `json:"run_status"`

	TotalAttempts int `json:"total_attempts"`
	Answered      int `json:"answered"`
	Voicemail     int `json:"voicemail"`
	NoAnswer      int `json:"no_answer"`
	Busy          int `json:"busy"`
	Failed        int `json:"failed"`
	Canceled      int `json:"canceled"`

	TotalTalkSeconds   int `json:"total_talk_seconds"`
	AverageTalkSeconds int `json:"average_talk_seconds"`

	// ConnectRate is answered attempts over total attempts, 0 when no
	// attempts were made.
	ConnectRate float64 `json:"connect_rate"`
}
