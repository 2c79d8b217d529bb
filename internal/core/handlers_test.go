package core

import (
	"testing"

	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

func TestOnRemoteStartTransactionPicksFirstAvailableConnector(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	resp, err := sys.onRemoteStartTransaction("CP1", &v16.RemoteStartTransactionRequest{IdTag: "tag-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.RemoteStartStopStatusAccepted {
		t.Fatalf("status = %v, want Accepted", resp.Status)
	}
	if !sys.IsTransactionRunning(1) {
		t.Fatal("expected connector 1 to have a running transaction")
	}
}

func TestOnRemoteStartTransactionRejectsWhenConnectorBusy(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	connID := 1
	if !sys.BeginTransaction("tag-0", connID) {
		t.Fatal("setup: expected first Begin to succeed")
	}
	resp, err := sys.onRemoteStartTransaction("CP1", &v16.RemoteStartTransactionRequest{ConnectorId: &connID, IdTag: "tag-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.RemoteStartStopStatusRejected {
		t.Fatalf("status = %v, want Rejected", resp.Status)
	}
}

func TestOnRemoteStopTransactionMatchesByTransactionID(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	sys.BeginTransaction("tag-1", 1)

	resp, err := sys.onRemoteStopTransaction("CP1", &v16.RemoteStopTransactionRequest{TransactionId: -999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.RemoteStartStopStatusRejected {
		t.Fatalf("status = %v, want Rejected for unknown transaction id", resp.Status)
	}

	txID := int(sys.GetTransactionID(1))
	resp, err = sys.onRemoteStopTransaction("CP1", &v16.RemoteStopTransactionRequest{TransactionId: txID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.RemoteStartStopStatusAccepted {
		t.Fatalf("status = %v, want Accepted", resp.Status)
	}
}

func TestOnResetVetoedByNotify(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	var executed bool
	sys.SetOnResetNotify(func(hard bool) bool { return false })
	sys.SetOnResetExecute(func(hard bool) { executed = true })

	resp, err := sys.onReset("CP1", &v16.ResetRequest{Type: v16.ResetTypeHard})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.ResetStatusRejected {
		t.Fatalf("status = %v, want Rejected", resp.Status)
	}
	if executed {
		t.Fatal("OnResetExecute must not run when OnResetNotify vetoes")
	}
}

func TestOnResetAcceptedRunsExecute(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	var gotHard bool
	sys.SetOnResetNotify(func(hard bool) bool { return true })
	sys.SetOnResetExecute(func(hard bool) { gotHard = hard })

	resp, err := sys.onReset("CP1", &v16.ResetRequest{Type: v16.ResetTypeSoft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.ResetStatusAccepted {
		t.Fatalf("status = %v, want Accepted", resp.Status)
	}
	if gotHard {
		t.Fatal("expected Soft reset to pass hard=false")
	}
}

func TestOnUnlockConnectorMapsResult(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	sys.SetOnUnlockConnectorInOut(1, func() connector.UnlockResult { return connector.UnlockAccepted })

	resp, err := sys.onUnlockConnector("CP1", &v16.UnlockConnectorRequest{ConnectorId: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.UnlockStatusUnlocked {
		t.Fatalf("status = %v, want Unlocked", resp.Status)
	}
}

func TestOnUnlockConnectorNotSupportedWhenUnwired(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	resp, err := sys.onUnlockConnector("CP1", &v16.UnlockConnectorRequest{ConnectorId: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.UnlockStatusNotSupported {
		t.Fatalf("status = %v, want NotSupported", resp.Status)
	}
}

func TestOnChangeConfigurationDelegatesToRegistry(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	resp, err := sys.onChangeConfiguration("CP1", &v16.ChangeConfigurationRequest{Key: "HeartbeatInterval", Value: "120"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.ConfigurationStatusAccepted {
		t.Fatalf("status = %v, want Accepted", resp.Status)
	}
	if got, _ := sys.registry.GetInt("HeartbeatInterval"); got != 120 {
		t.Fatalf("HeartbeatInterval = %d, want 120", got)
	}
}

func TestOnReserveNowRejectsOccupiedConnector(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	sys.BeginTransaction("tag-1", 1)

	resp, err := sys.onReserveNow("CP1", &v16.ReserveNowRequest{
		ConnectorId:   1,
		IdTag:         "tag-2",
		ReservationId: 5,
		ExpiryDate:    v16.DateTime{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.ReservationStatusOccupied {
		t.Fatalf("status = %v, want Occupied", resp.Status)
	}
}

func TestOnTriggerMessageBootNotificationForcesReboot(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	sys.booted = true

	resp, err := sys.onTriggerMessage("CP1", &v16.TriggerMessageRequest{RequestedMessage: v16.TriggerMessageBootNotification})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.TriggerMessageStatusAccepted {
		t.Fatalf("status = %v, want Accepted", resp.Status)
	}
	if sys.booted {
		t.Fatal("expected booted to be cleared")
	}
	_ = fc
}

func TestOnTriggerMessageUnhandledIsNotImplemented(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	resp, err := sys.onTriggerMessage("CP1", &v16.TriggerMessageRequest{RequestedMessage: v16.TriggerMessageFirmwareStatusNotification})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != v16.TriggerMessageStatusNotImplemented {
		t.Fatalf("status = %v, want NotImplemented", resp.Status)
	}
}
