package connector

import (
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

func newTestConnector() *Connector {
	c := New(1, nil)
	c.Inputs.Plug = func() bool { return false }
	c.Inputs.EVReady = func() bool { return true }
	c.Inputs.EVSEReady = func() bool { return true }
	c.Inputs.ErrorCode = func() (v16.ChargePointErrorCode, string) { return v16.ChargePointErrorNoError, "" }
	return c
}

func TestInferStatusAvailableWhenIdle(t *testing.T) {
	c := newTestConnector()
	if got := c.inferStatus(false); got != v16.ChargePointStatusAvailable {
		t.Fatalf("status = %v, want Available", got)
	}
}

func TestInferStatusFaultedTakesPrecedence(t *testing.T) {
	c := newTestConnector()
	c.Inputs.ErrorCode = func() (v16.ChargePointErrorCode, string) { return v16.ChargePointErrorGroundFailure, "ground fault" }
	if got := c.inferStatus(false); got != v16.ChargePointStatusFaulted {
		t.Fatalf("status = %v, want Faulted", got)
	}
}

func TestInferStatusUnavailableWhenInoperative(t *testing.T) {
	c := newTestConnector()
	c.ChangeAvailability(v16.AvailabilityTypeInoperative)
	if got := c.inferStatus(false); got != v16.ChargePointStatusUnavailable {
		t.Fatalf("status = %v, want Unavailable", got)
	}
}

func TestInferStatusPreparingWhenPlugged(t *testing.T) {
	c := newTestConnector()
	c.Inputs.Plug = func() bool { return true }
	if got := c.inferStatus(false); got != v16.ChargePointStatusPreparing {
		t.Fatalf("status = %v, want Preparing", got)
	}
}

func TestStatusNotificationDebounced(t *testing.T) {
	c := newTestConnector()
	c.SetMinimumStatusDuration(30)
	var reported []v16.ChargePointStatus
	c.Outputs.OnStatusChange = func(id int, status v16.ChargePointStatus, code v16.ChargePointErrorCode, info string) {
		reported = append(reported, status)
	}

	now := time.Now()
	c.Step(now, false) // initial Available flush

	c.Inputs.Plug = func() bool { return true }
	c.Step(now.Add(1*time.Second), false) // transitions to Preparing, but debounced
	if len(reported) != 1 {
		t.Fatalf("expected only the initial flush, got %d reports: %v", len(reported), reported)
	}

	c.Step(now.Add(35*time.Second), false) // debounce window elapsed
	if len(reported) != 2 || reported[1] != v16.ChargePointStatusPreparing {
		t.Fatalf("expected Preparing to flush after debounce, got %v", reported)
	}
}

func TestChargingTransactionDrivesChargingStatus(t *testing.T) {
	mem := fsadapter.NewMem()
	store := txstore.New(mem, 4)
	policy := &Policy{AuthorizationTimeout: 5 * time.Second}
	sess := NewSession(1, store, policy)
	sess.SetCollaborators(nil, nil, nil, nil)

	c := newTestConnector()
	c.Inputs.Plug = func() bool { return true }
	c.AttachSession(sess)

	now := time.Now()
	sess.Begin(now, "TAG1", true) // silent, since no authorize collaborator
	sess.tx.Authorized = true

	c.Step(now, false)
	if got := c.inferStatus(false); got != v16.ChargePointStatusCharging {
		t.Fatalf("status = %v, want Charging", got)
	}
}
