package core

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/transport"
)

func bootNotificationID(t *testing.T, frame []byte) string {
	t.Helper()
	var arr []json.RawMessage
	if err := json.Unmarshal(frame, &arr); err != nil || len(arr) != 4 {
		t.Fatalf("expected a 4-element Call frame, got %s (%v)", frame, err)
	}
	var id string
	if err := json.Unmarshal(arr[1], &id); err != nil {
		t.Fatalf("unmarshal message id: %v", err)
	}
	return id
}

func TestNewRegistersAggregateAndPhysicalConnectors(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	if len(sys.connectors) != 2 {
		t.Fatalf("len(connectors) = %d, want 2 (aggregate + one physical)", len(sys.connectors))
	}
	if _, ok := sys.connectors[0]; !ok {
		t.Fatal("expected aggregate connector 0")
	}
	if got, ok := sys.registry.GetInt("NumberOfConnectors"); !ok || got != 1 {
		t.Fatalf("NumberOfConnectors = %d, want 1", got)
	}
}

func TestStepSendsBootNotificationOnFirstTick(t *testing.T) {
	sys, ft, fc := newTestSystem(t)
	sys.Step(fc.now)
	if len(ft.sent) != 1 {
		t.Fatalf("expected one BootNotification.req frame, got %d", len(ft.sent))
	}
	if sys.booted {
		t.Fatal("should not be booted before the CS replies")
	}
}

func TestStepBootstrapAcceptedStartsHeartbeatSchedule(t *testing.T) {
	sys, ft, fc := newTestSystem(t)
	sys.Step(fc.now)
	id := bootNotificationID(t, ft.sent[0])

	resp := fmt.Sprintf(`[3,%q,{"status":"Accepted","currentTime":"2026-01-01T00:00:00Z","interval":90}]`, id)
	ft.inbox = []transport.Frame{{Kind: transport.FrameText, Data: []byte(resp)}}
	sys.Step(fc.advance(time.Second))

	if !sys.booted {
		t.Fatal("expected booted after Accepted response")
	}
	if sys.heartbeatIntv != 90*time.Second {
		t.Fatalf("heartbeatIntv = %v, want 90s", sys.heartbeatIntv)
	}
	if got, _ := sys.registry.GetInt("HeartbeatInterval"); got != 90 {
		t.Fatalf("persisted HeartbeatInterval = %d, want 90", got)
	}
}

func TestStepBootstrapRejectedRetriesLater(t *testing.T) {
	sys, ft, fc := newTestSystem(t)
	sys.Step(fc.now)
	id := bootNotificationID(t, ft.sent[0])

	resp := fmt.Sprintf(`[3,%q,{"status":"Rejected","currentTime":"2026-01-01T00:00:00Z","interval":0}]`, id)
	ft.inbox = []transport.Frame{{Kind: transport.FrameText, Data: []byte(resp)}}
	sys.Step(fc.advance(time.Second))

	if sys.booted {
		t.Fatal("Rejected must not set booted")
	}
	if !sys.bootDue.After(fc.now) {
		t.Fatal("expected a future retry time after Rejected")
	}

	sys.Step(fc.advance(time.Millisecond)) // still before bootDue, must not resend
	if len(ft.sent) != 1 {
		t.Fatalf("expected no retry before bootDue, got %d sent frames", len(ft.sent))
	}
}

func TestBeginTransactionRejectsWhenAlreadyRunning(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	if !sys.BeginTransaction("tag-1", 1) {
		t.Fatal("expected BeginTransaction to accept the first session")
	}
	if !sys.IsTransactionRunning(1) {
		t.Fatal("expected a running transaction after Begin")
	}
	if sys.BeginTransaction("tag-2", 1) {
		t.Fatal("expected a second Begin on the same connector to be rejected")
	}
	_ = fc
}

func TestBeginTransactionUnknownConnectorIsNoop(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	if sys.BeginTransaction("tag-1", 99) {
		t.Fatal("expected BeginTransaction on an unknown connector to fail")
	}
}

func TestGetTransactionIDDefaultsToMinusOne(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	if got := sys.GetTransactionID(1); got != -1 {
		t.Fatalf("GetTransactionID = %d, want -1 before any session", got)
	}
}

func TestSetConnectorPluggedInputWiresConnectorInputs(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	sys.SetConnectorPluggedInput(1, func() bool { return true })
	if sys.connectors[1].conn.Inputs.Plug == nil || !sys.connectors[1].conn.Inputs.Plug() {
		t.Fatal("expected Plug input to be wired and return true")
	}
}
