// Package amd holds the answering-machine-detection decision logic.
//
// Decide is a pure function over the webhook event (and the known session
// state, when available). All provider-facing side effects belong to the
// webhook handler; keeping the engine side-effect free keeps it independently
// testable.
package amd

import (
	"dialer-platform/internal/pending"
	"dialer-platform/internal/telephony"
)

type ActionKind int

const (
	// Wait means no provider-facing action; only observability updates.
	Wait ActionKind = iota

	// TransferToAgent bridges the answered human to the live agent.
	TransferToAgent

	// Hangup ends the call (machine, fax or unclassifiable answer).
	Hangup
)

func (k ActionKind) String() string {
	switch k {
	case TransferToAgent:
		return "transfer_to_agent"
	case Hangup:
		return "hangup"
	default:
		return "wait"
	}
}

// Action is the decision for one webhook event.
type Action struct {
	Kind ActionKind

	// Status is the pending-registry status the session should move to.
	Status pending.Status
}

// IsHuman classifies an AMD result string.
func IsHuman(result string) bool {
	switch result {
	case telephony.AMDResultHuman, telephony.AMDResultHumanDetected:
		return true
	default:
		return false
	}
}

// Decide maps a provider event to the action the caller must take.
//
// Rules:
//   - call.machine.detection.ended with a human result: transfer to agent.
//   - call.machine.detection.ended with any machine/fax/unknown result:
//     hang up. A missed voicemail costs seconds; a dropped human costs a lead,
//     so only definitive human results transfer here (the local fallback
//     timer covers the no-result case separately).
//   - every other event: wait, updating only the session status.
//
// known may be nil: after a sweep or restart the handler still needs a
// decision, acting on payload-embedded data alone.
func Decide(ev telephony.Event, known *pending.Call) Action {
	switch ev.EventType {
	case telephony.EventCallInitiated:
		return Action{Kind: Wait, Status: pending.StatusRinging}

	case telephony.EventCallAnswered:
		return Action{Kind: Wait, Status: pending.StatusAMDChecking}

	case telephony.EventCallMachineEnded:
		if IsHuman(ev.Payload.Result) {
			return Action{Kind: TransferToAgent, Status: pending.StatusHumanDetected}
		}
		return Action{Kind: Hangup, Status: pending.StatusVoicemail}

	case telephony.EventCallHangup:
		return Action{Kind: Wait, Status: pending.StatusEnded}

	default:
		status := pending.StatusInitiated
		if known != nil {
			status = known.Status
		}
		return Action{Kind: Wait, Status: status}
	}
}
