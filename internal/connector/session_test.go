package connector

import (
	"strconv"
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

func newTestSession(t *testing.T, policy *Policy) (*Session, *fsadapter.Mem) {
	t.Helper()
	mem := fsadapter.NewMem()
	store := txstore.New(mem, 4)
	return NewSession(1, store, policy), mem
}

func slotCommitted(mem *fsadapter.Mem, connectorID, txNr int) bool {
	_, ok := mem.Stat("tx-" + strconv.Itoa(connectorID) + "-" + strconv.Itoa(txNr) + ".json")
	return ok
}

// TestBeginCommitsImmediately verifies a transaction is durable as
// soon as Begin records it, not only once the session finishes.
func TestBeginCommitsImmediately(t *testing.T) {
	sess, mem := newTestSession(t, &Policy{AuthorizationTimeout: 5 * time.Second})
	sess.SetCollaborators(nil, nil, nil, nil)

	now := time.Now()
	if !sess.Begin(now, "TAG1", false) {
		t.Fatal("Begin returned false")
	}
	if !slotCommitted(mem, 1, 0) {
		t.Fatal("expected tx slot to be committed immediately after Begin")
	}
}

// TestSessionTxExposesLiveRunningTransaction verifies Tx() returns the
// live pointer while a transaction is running, not a nil/stale snapshot.
func TestSessionTxExposesLiveRunningTransaction(t *testing.T) {
	sess, _ := newTestSession(t, &Policy{AuthorizationTimeout: 5 * time.Second})
	sess.SetCollaborators(nil, nil, nil, nil)

	now := time.Now()
	sess.Begin(now, "TAG1", true)
	sess.tx.Authorized = true
	sess.Step(now, TickInputs{PlugSet: true, Plug: true, Operative: true, StartTxReady: true})

	if !sess.Running() {
		t.Fatal("expected session to be running")
	}
	tx := sess.Tx()
	if tx == nil {
		t.Fatal("Tx() returned nil for a running session")
	}
	if tx != sess.tx {
		t.Fatal("Tx() must return the session's own live pointer")
	}
	if tx.StartTimestamp.IsZero() {
		t.Fatal("expected StartTimestamp to be populated on the live transaction")
	}
}

// TestMidSessionDeAuthorizationEndsSession: a non-Accepted
// StartTransaction.conf status must immediately end the session when
// StopTransactionOnInvalidId is set.
func TestMidSessionDeAuthorizationEndsSession(t *testing.T) {
	sess, _ := newTestSession(t, &Policy{
		AuthorizationTimeout:       5 * time.Second,
		StopTransactionOnInvalidId: true,
	})

	startCalled := false
	sess.SetCollaborators(nil, nil,
		func(connectorID int, idTag string, meterStart int32, timestamp time.Time) func() (int32, v16.AuthorizationStatus, bool) {
			startCalled = true
			return func() (int32, v16.AuthorizationStatus, bool) {
				return 42, v16.AuthorizationStatusBlocked, true
			}
		},
		nil,
	)

	now := time.Now()
	sess.Begin(now, "TAG1", false)
	sess.tx.Authorized = true
	sess.Step(now, TickInputs{PlugSet: true, Plug: true, Operative: true, StartTxReady: true})
	if !startCalled {
		t.Fatal("expected StartTransaction to have been submitted")
	}

	sess.Step(now.Add(time.Second), TickInputs{PlugSet: true, Plug: true, Operative: true, StartTxReady: true})

	if sess.Running() {
		t.Fatal("expected the session to end on a Blocked StartTransaction.conf")
	}
	if sess.tx != nil {
		// stepStop only finishes once stop_tx_ready; confirm the
		// end-of-session bookkeeping happened even though finish() hasn't run.
		if sess.tx.StopReason != txstore.StopReasonDeAuthorized {
			t.Fatalf("stop reason = %v, want DeAuthorized", sess.tx.StopReason)
		}
		if !sess.tx.IdTagDeauthorized {
			t.Fatal("expected IdTagDeauthorized to be set")
		}
	}
}

// TestTxNotificationStream verifies StartTx and StopTx notifications
// fire as a session progresses.
func TestTxNotificationStream(t *testing.T) {
	sess, _ := newTestSession(t, &Policy{AuthorizationTimeout: 5 * time.Second})
	sess.SetCollaborators(nil, nil, nil, nil)

	var kinds []TxNotificationKind
	sess.SetNotifyOutput(func(n TxNotification) {
		kinds = append(kinds, n.Kind)
	})

	now := time.Now()
	sess.Begin(now, "TAG1", true)
	sess.tx.Authorized = true
	sess.commit()

	sess.Step(now, TickInputs{PlugSet: true, Plug: true, Operative: true, StartTxReady: true})
	if len(kinds) != 1 || kinds[0] != TxNotificationStartTx {
		t.Fatalf("expected a single StartTx notification after the silent start, got %v", kinds)
	}

	sess.End(now.Add(time.Minute), txstore.StopReasonLocal)
	sess.Step(now.Add(time.Minute), TickInputs{PlugSet: true, Plug: true, Operative: true, StopTxReady: true})

	if len(kinds) != 2 || kinds[1] != TxNotificationStopTx {
		t.Fatalf("expected StopTx to follow StartTx, got %v", kinds)
	}
}

// TestFinishNeverTouchesRingForSilentFallback guards the persisted-flag
// fix alongside (a): a silent fallback transaction (ring full, no real
// slot) must never collide with slot 0 on Remove/Commit.
func TestFinishNeverTouchesRingForSilentFallback(t *testing.T) {
	mem := fsadapter.NewMem()
	store := txstore.New(mem, 1)
	policy := &Policy{AuthorizationTimeout: 5 * time.Second, SilentOfflineTransactions: true}
	sess := NewSession(1, store, policy)
	sess.SetCollaborators(nil, nil, nil, nil)

	now := time.Now()
	// Occupy the only slot with a still-running transaction so Create fails.
	first := NewSession(1, store, policy)
	first.SetCollaborators(nil, nil, nil, nil)
	first.Begin(now, "TAG0", false)
	first.tx.Authorized = true

	if !slotCommitted(mem, 1, 0) {
		t.Fatal("expected slot 0 to hold the first transaction")
	}

	if !sess.Begin(now, "TAG1", false) {
		t.Fatal("expected the silent fallback to still start a session")
	}
	if sess.persisted {
		t.Fatal("the silent fallback transaction must not be marked persisted")
	}
	sess.tx.Authorized = true

	sess.End(now.Add(time.Minute), txstore.StopReasonLocal)
	sess.Step(now.Add(time.Minute), TickInputs{StopTxReady: true})

	if !slotCommitted(mem, 1, 0) {
		t.Fatal("finishing the silent fallback must not remove the real slot 0 record")
	}
}
