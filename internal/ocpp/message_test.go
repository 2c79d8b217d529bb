package ocpp

import (
	"encoding/json"
	"testing"
)

func TestCallRoundTrip(t *testing.T) {
	call, err := NewCall("Heartbeat", struct{}{})
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	data, err := call.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil || len(arr) != 4 {
		t.Fatalf("expected 4-element array, got %s (err=%v)", data, err)
	}

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	got, ok := msg.(*Call)
	if !ok {
		t.Fatalf("expected *Call, got %T", msg)
	}
	if got.UniqueID != call.UniqueID || got.Action != "Heartbeat" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestCallResultRoundTrip(t *testing.T) {
	res, err := NewCallResult("abc-123", map[string]string{"currentTime": "2024-01-01T00:00:00.000Z"})
	if err != nil {
		t.Fatalf("NewCallResult: %v", err)
	}
	data, _ := res.ToBytes()
	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	got := msg.(*CallResult)
	if got.UniqueID != "abc-123" {
		t.Errorf("UniqueID = %q, want abc-123", got.UniqueID)
	}
}

func TestCallErrorRoundTrip(t *testing.T) {
	ce, err := NewCallError("xyz", ErrorCodeNotImplemented, "unknown action", nil)
	if err != nil {
		t.Fatalf("NewCallError: %v", err)
	}
	data, _ := ce.ToBytes()
	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	got := msg.(*CallError)
	if got.ErrorCode != ErrorCodeNotImplemented || string(got.ErrorDetails) != "{}" {
		t.Errorf("unexpected call error: %+v", got)
	}
}

func TestGenerateMessageIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateMessageID()
		if seen[id] {
			t.Fatalf("duplicate message id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestRecoverMessageID(t *testing.T) {
	// A structurally valid array but with a payload that would fail a
	// stricter schema still yields its uniqueId.
	raw := []byte(`[2,"req-1","BootNotification",{"bad":`)
	if _, ok := RecoverMessageID(raw); ok {
		t.Fatal("expected recovery to fail on truncated JSON")
	}

	raw = []byte(`[2,"req-1","BootNotification",{"chargePointVendor":"x"}]`)
	id, ok := RecoverMessageID(raw)
	if !ok || id != "req-1" {
		t.Errorf("RecoverMessageID = %q,%v want req-1,true", id, ok)
	}
}

func TestParseMessageRejectsShortArray(t *testing.T) {
	if _, err := ParseMessage([]byte(`[2,"id"]`)); err == nil {
		t.Error("expected error for short array")
	}
}
