package amd

import (
	"testing"

	"dialer-platform/internal/pending"
	"dialer-platform/internal/telephony"
)

func detectionEvent(result string) telephony.Event {
	return telephony.Event{
		EventType: telephony.EventCallMachineEnded,
		Payload:   telephony.EventPayload{CallControlID: "cc-1", Result: result},
	}
}

func TestDecide_DetectionResults(t *testing.T) {
	cases := []struct {
		result string
		want   ActionKind
	}{
		{telephony.AMDResultHuman, TransferToAgent},
		{telephony.AMDResultHumanDetected, TransferToAgent},
		{telephony.AMDResultMachine, Hangup},
		{telephony.AMDResultMachineStart, Hangup},
		{telephony.AMDResultFax, Hangup},
		{telephony.AMDResultNotSure, Hangup},
		{"", Hangup},
		{"something_new", Hangup},
	}
	for _, tc := range cases {
		got := Decide(detectionEvent(tc.result), nil)
		if got.Kind != tc.want {
			t.Fatalf("result %q: expected %s, got %s", tc.result, tc.want, got.Kind)
		}
	}
}

func TestDecide_IsPure(t *testing.T) {
	ev := detectionEvent(telephony.AMDResultHuman)
	first := Decide(ev, nil)
	second := Decide(ev, nil)
	if first != second {
		t.Fatalf("expected identical decisions, got %+v and %+v", first, second)
	}
}

func TestDecide_LifecycleEventsOnlyWait(t *testing.T) {
	cases := []struct {
		eventType string
		want      pending.Status
	}{
		{telephony.EventCallInitiated, pending.StatusRinging},
		{telephony.EventCallAnswered, pending.StatusAMDChecking},
		{telephony.EventCallHangup, pending.StatusEnded},
	}
	for _, tc := range cases {
		got := Decide(telephony.Event{EventType: tc.eventType}, nil)
		if got.Kind != Wait {
			t.Fatalf("%s: expected wait, got %s", tc.eventType, got.Kind)
		}
		if got.Status != tc.want {
			t.Fatalf("%s: expected status %q, got %q", tc.eventType, tc.want, got.Status)
		}
	}
}

func TestDecide_UnknownEventKeepsKnownStatus(t *testing.T) {
	known := &pending.Call{SessionID: "cc-1", Status: pending.StatusAnswered}
	got := Decide(telephony.Event{EventType: "call.playback.started"}, known)
	if got.Kind != Wait || got.Status != pending.StatusAnswered {
		t.Fatalf("expected wait with preserved status, got %+v", got)
	}
}

func TestDecide_WorksWithoutRegistryEntry(t *testing.T) {
	// After a sweep or restart the handler still needs a safe decision from
	// payload data alone.
	got := Decide(detectionEvent(telephony.AMDResultMachineStart), nil)
	if got.Kind != Hangup {
		t.Fatalf("expected hangup for unknown session, got %s", got.Kind)
	}
}
