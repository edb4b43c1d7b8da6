package telephony

import (
	"encoding/base64"
	"encoding/json"
)

// Call types stamped into ClientState so webhook handling can tell dialer
// traffic from manual click-to-call.
const (
	CallTypeDialer = "dialer"
	CallTypeManual = "manual"
)

// ClientState is the typed context this system attaches to every originate
// request. The provider stores it opaquely and re-delivers it on each webhook
// event for the session, so call context survives even when the in-memory
// pending-call registry has no entry (restart, sweep).
type ClientState struct {
	CallType  string `json:"call_type"`
	ContactID string `json:"contact_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// Encode serializes the state as base64 JSON, the wire form the provider
// expects for client_state.
func (s ClientState) Encode() string {
	raw, err := json.Marshal(s)
	if err != nil {
		// ClientState is plain strings; Marshal cannot fail in practice.
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeClientState decodes a client_state blob coming back from the
// provider. The counterparty is an external, uncontrolled system: malformed
// input returns ok=false and must never panic or error out a webhook handler.
func DecodeClientState(raw string) (ClientState, bool) {
	if raw == "" {
		return ClientState{}, false
	}
	buf, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ClientState{}, false
	}
	var s ClientState
	if err := json.Unmarshal(buf, &s); err != nil {
		return ClientState{}, false
	}
	if s.CallType == "" {
		return ClientState{}, false
	}
	return s, true
}
