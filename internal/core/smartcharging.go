package core

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// applySmartChargingLimit re-infers connectorID's charging-profile stack
// at now and pushes the result out as both the OCPPPermitsCharge gate
// (SuspendedEVSE when the limit is zero) and the host-facing current
// limit in amps.
func (sys *System) applySmartChargingLimit(connectorID int, now time.Time) {
	cs := sys.connectors[connectorID]
	if cs.sess == nil {
		return
	}

	var sessionStart time.Time
	var txID *int32
	if cs.sess.Running() {
		if tx := cs.sess.Tx(); tx != nil {
			sessionStart = tx.StartTimestamp
		}
		id := cs.sess.CurrentTransactionID()
		txID = &id
	}

	limit, _ := sys.profiles.Infer(connectorID, now, sessionStart, txID)
	if limit.Unit != "" {
		cs.sess.SetOCPPPermitsCharge(limit.Value != 0)
	}

	if cs.conn.Outputs.OnLimitChange == nil {
		return
	}
	amps := limit.Value
	if limit.Unit == v16.ChargingRateUnitWatts && sys.voltageV > 0 {
		amps = limit.Value / sys.voltageV
	}
	cs.conn.Outputs.OnLimitChange(amps)
}
