package telephony

import (
	"encoding/base64"
	"testing"
)

func TestClientState_RoundTrip(t *testing.T) {
	in := ClientState{
		CallType:  CallTypeDialer,
		ContactID: "contact-1",
		RunID:     "run-1",
		UserID:    "user-1",
		From:      "+15550001111",
		To:        "+15552223333",
	}
	out, ok := DecodeClientState(in.Encode())
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeClientState_Defensive(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not base64", "!!not-base64!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"json but wrong shape", base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`))},
		{"missing call type", base64.StdEncoding.EncodeToString([]byte(`{"contact_id":"c"}`))},
	}
	for _, tc := range cases {
		if _, ok := DecodeClientState(tc.raw); ok {
			t.Fatalf("%s: expected decode to fail", tc.name)
		}
	}
}

func TestParseEvent_RejectsMalformedBody(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"event_type":`)); err == nil {
		t.Fatalf("expected parse error")
	}
	ev, err := ParseEvent([]byte(`{"event_type":"call.hangup","payload":{"call_control_id":"cc-1","hangup_cause":"normal_clearing"}}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.EventType != EventCallHangup || ev.Payload.CallControlID != "cc-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
