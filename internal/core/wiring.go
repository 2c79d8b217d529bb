package core

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/dictionary"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// wireConnectorProbes installs the cross-connector visibility each
// Connector needs but shouldn't reach for directly: connector 0's
// "no running transaction anywhere" operative clause and every
// connector's "do I have an active reservation" status input.
func (sys *System) wireConnectorProbes() {
	for id, cs := range sys.connectors {
		connID := id
		cs.conn.SetAggregateRunningTxProbe(sys.anyConnectorRunning)
		cs.conn.SetReservationProbe(func() bool {
			now := sys.clock.Now()
			_, ok := sys.reservations.ActiveFor(connID, now)
			return ok
		})
		seconds, _ := sys.registry.GetInt("MinimumStatusDuration")
		cs.conn.SetMinimumStatusDuration(seconds)
		if cs.sess != nil {
			sys.wireSessionCollaborators(connID, cs)
		}
	}
}

func (sys *System) anyConnectorRunning() bool {
	for id, cs := range sys.connectors {
		if id == 0 || cs.sess == nil {
			continue
		}
		if cs.sess.Running() {
			return true
		}
	}
	return false
}

func (sys *System) wireSessionCollaborators(connectorID int, cs *connectorState) {
	cs.sess.SetCollaborators(
		sys.localAuthProbe,
		sys.authorizeFunc,
		sys.startTxFunc,
		func(tx *txstore.Transaction, stopValues []txstore.MeterSnapshot) {
			sys.stopTxFunc(connectorID, cs, tx, stopValues)
		},
	)
	if sys.onTxNotify != nil {
		cs.sess.SetNotifyOutput(sys.onTxNotify)
	}
}

func (sys *System) localAuthProbe(idTag string) (cached, valid bool) {
	return sys.authCache.Lookup(idTag)
}

func (sys *System) callTimeout() time.Duration {
	seconds, ok := sys.registry.GetInt("AuthorizationTimeoutSeconds")
	if !ok || seconds <= 0 {
		seconds = 20
	}
	return time.Duration(seconds) * time.Second
}

// authorizeFunc submits Authorize.req and exposes the eventual outcome
// through a poll function, matching connector.AuthorizeFunc's contract.
func (sys *System) authorizeFunc(idTag string) (func() connector.AuthResult, func()) {
	state := connector.AuthPending
	id, err := dictionary.SubmitAuthorize(sys.engine, &v16.AuthorizeRequest{IdTag: idTag}, sys.callTimeout(), func(r dictionary.Result[v16.AuthorizeResponse]) {
		switch {
		case r.Response != nil && r.Response.IdTagInfo.Status == v16.AuthorizationStatusAccepted:
			sys.cacheIdTagInfo(idTag, r.Response.IdTagInfo)
			state = connector.AuthAccepted
		case r.Response != nil:
			sys.cacheIdTagInfo(idTag, r.Response.IdTagInfo)
			state = connector.AuthRejected
		default:
			state = connector.AuthTimedOut
		}
	})
	if err != nil {
		return func() connector.AuthResult { return connector.AuthRejected }, func() {}
	}
	return func() connector.AuthResult { return state }, func() { sys.engine.Abort(id) }
}

func (sys *System) cacheIdTagInfo(idTag string, info v16.IdTagInfo) {
	var expiry *time.Time
	if info.ExpiryDate != nil {
		t := info.ExpiryDate.Time
		expiry = &t
	}
	_ = sys.authCache.Put(idTag, info.Status, info.ParentIdTag, expiry)
}

// startTxFunc submits StartTransaction.req. The reservation id, if the
// connector currently holds one for idTag, rides along with the request.
func (sys *System) startTxFunc(connectorID int, idTag string, meterStart int32, timestamp time.Time) func() (int32, v16.AuthorizationStatus, bool) {
	var transactionID int32
	var status v16.AuthorizationStatus
	done := false

	req := &v16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  int(meterStart),
		Timestamp:   v16.DateTime{Time: timestamp},
	}
	if r, ok := sys.reservations.ActiveFor(connectorID, timestamp); ok && r.MatchesIdTag(idTag) {
		id := r.ReservationId
		req.ReservationId = &id
	}

	_, err := dictionary.SubmitStartTransaction(sys.engine, req, sys.callTimeout(), func(r dictionary.Result[v16.StartTransactionResponse]) {
		done = true
		if r.Response != nil {
			transactionID = int32(r.Response.TransactionId)
			status = r.Response.IdTagInfo.Status
			sys.cacheIdTagInfo(idTag, r.Response.IdTagInfo)
			return
		}
		status = v16.AuthorizationStatusInvalid
	})
	if err != nil {
		done = true
		status = v16.AuthorizationStatusInvalid
	}
	return func() (int32, v16.AuthorizationStatus, bool) { return transactionID, status, done }
}

// stopTxFunc submits StopTransaction.req and confirms the session once
// the CS has replied (or the call times out / is aborted, which this
// core treats as confirmed since the record is already durable).
func (sys *System) stopTxFunc(connectorID int, cs *connectorState, tx *txstore.Transaction, stopValues []txstore.MeterSnapshot) {
	req := &v16.StopTransactionRequest{
		IdTag:         tx.StopIdTag,
		MeterStop:     int(tx.MeterStop),
		Timestamp:     v16.DateTime{Time: tx.StopTimestamp},
		TransactionId: int(tx.TransactionID),
		Reason:        v16.Reason(tx.StopReason),
	}
	req.TransactionData = snapshotsToMeterValues(stopValues)

	_, err := dictionary.SubmitStopTransaction(sys.engine, req, sys.callTimeout(), func(r dictionary.Result[v16.StopTransactionResponse]) {
		cs.sess.ConfirmStop()
	})
	if err != nil {
		cs.sess.ConfirmStop()
	}
}

func snapshotsToMeterValues(snaps []txstore.MeterSnapshot) []v16.MeterValue {
	out := make([]v16.MeterValue, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotToMeterValue(s))
	}
	return out
}

func snapshotToMeterValue(s txstore.MeterSnapshot) v16.MeterValue {
	mv := v16.MeterValue{Timestamp: v16.DateTime{Time: s.Timestamp}}
	for _, sample := range s.Samples {
		mv.SampledValue = append(mv.SampledValue, v16.SampledValue{
			Value:     sample.Value,
			Context:   v16.ReadingContext(sample.Context),
			Measurand: v16.Measurand(sample.Measurand),
			Unit:      v16.UnitOfMeasure(sample.Unit),
			Location:  v16.Location(sample.Location),
			Phase:     sample.Phase,
		})
	}
	return mv
}
