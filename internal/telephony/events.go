package telephony

import "encoding/json"

// Webhook event types delivered by the provider. Only the events the dialer
// core reconciles are listed; anything else is ignored by the handler.
const (
	EventCallInitiated     = "call.initiated"
	EventCallAnswered      = "call.answered"
	EventCallMachineEnded  = "call.machine.detection.ended"
	EventCallHangup        = "call.hangup"
	EventCallPlaybackEnded = "call.playback.ended"
)

// AMD classification results carried on call.machine.detection.ended.
const (
	AMDResultHuman         = "human"
	AMDResultHumanDetected = "human_detected"
	AMDResultMachine       = "machine"
	AMDResultMachineStart  = "machine_start"
	AMDResultFax           = "fax"
	AMDResultNotSure       = "not_sure"
)

// Event is the webhook envelope posted by the provider.
//
// The envelope is external, uncontrolled input: callers must treat every
// field as possibly missing or malformed.
type Event struct {
	EventType string       `json:"event_type"`
	Payload   EventPayload `json:"payload"`
}

type EventPayload struct {
	// CallControlID is the call-session id assigned at origination.
	CallControlID string `json:"call_control_id"`

	// ClientState is the opaque base64 blob round-tripped from Originate.
	ClientState string `json:"client_state,omitempty"`

	// Result is the AMD classification, present only on
	// call.machine.detection.ended.
	Result string `json:"result,omitempty"`

	// HangupCause is present only on call.hangup.
	HangupCause string `json:"hangup_cause,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// ParseEvent decodes a webhook body. It is strict about JSON shape but not
// about content; content validation belongs to the handler.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
