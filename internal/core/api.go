package core

import (
	"context"
	"strconv"
	"time"

	"github.com/gridwire/ocpp16core/internal/connector"
	"github.com/gridwire/ocpp16core/internal/dictionary"
	"github.com/gridwire/ocpp16core/internal/meter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// Init builds a System from opts; it is the library's entry point,
// taking a transport, filesystem adapter, credentials, and voltage and
// returning a ready-to-drive handle.
func Init(opts Options) (*System, error) {
	return New(opts)
}

// Deinit releases sys's resources. ctx bounds any outstanding telemetry
// flush.
func (sys *System) Deinit(ctx context.Context) error {
	return sys.Close(ctx)
}

// Loop drives sys forever on the given tick period, returning when stop
// is closed; most hosts will call Step directly from their own ticker
// instead.
func (sys *System) Loop(tick time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			sys.Step(now)
		}
	}
}

// BeginTransaction starts the authorization phase of a new session on
// connectorID.
func (sys *System) BeginTransaction(idTag string, connectorID int) bool {
	cs, ok := sys.sessionedConnector(connectorID)
	if !ok {
		return false
	}
	return cs.sess.Begin(sys.clock.Now(), idTag, false)
}

// EndTransaction ends connectorID's running transaction with reason.
func (sys *System) EndTransaction(reason txstore.StopReason, connectorID int) {
	if cs, ok := sys.sessionedConnector(connectorID); ok {
		cs.sess.End(sys.clock.Now(), reason)
	}
}

// IsTransactionRunning reports whether connectorID currently has an
// active, non-completed transaction.
func (sys *System) IsTransactionRunning(connectorID int) bool {
	cs, ok := sys.sessionedConnector(connectorID)
	return ok && cs.sess.Running()
}

// OCPPPermitsCharge reports the smart-charging gate last computed for
// connectorID (false drives SuspendedEVSE).
func (sys *System) OCPPPermitsCharge(connectorID int) bool {
	cs, ok := sys.sessionedConnector(connectorID)
	return ok && cs.sess.OCPPPermitsCharge()
}

// GetTransactionID returns the CS-assigned transaction id for
// connectorID, or -1 if none is running.
func (sys *System) GetTransactionID(connectorID int) int32 {
	cs, ok := sys.sessionedConnector(connectorID)
	if !ok {
		return -1
	}
	return cs.sess.CurrentTransactionID()
}

// --- Input wiring ---------------------------------------------------

func (sys *System) SetConnectorPluggedInput(connectorID int, cb func() bool) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Inputs.Plug = cb
	}
}

func (sys *System) SetEVReadyInput(connectorID int, cb func() bool) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Inputs.EVReady = cb
	}
}

func (sys *System) SetEVSEReadyInput(connectorID int, cb func() bool) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Inputs.EVSEReady = cb
	}
}

func (sys *System) SetEnergyMeterInput(connectorID int, cb func() (int32, bool)) {
	cs, ok := sys.connectors[connectorID]
	if !ok {
		return
	}
	cs.conn.Inputs.EnergyRegisterWh = cb
	if cs.meter == nil {
		return
	}
	cs.meter.AddInput(string(v16.MeasurandEnergyActiveImportRegister), func() (string, bool) {
		wh, ok := cb()
		if !ok {
			return "", false
		}
		return strconv.FormatInt(int64(wh), 10), true
	}, string(v16.UnitOfMeasureWh), string(v16.LocationOutlet), "")
}

func (sys *System) SetPowerMeterInput(connectorID int, cb func() (float32, bool)) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Inputs.PowerW = cb
	}
}

// AddErrorCodeInput wires the connector's fault-reporting probe.
func (sys *System) AddErrorCodeInput(connectorID int, cb func() (v16.ChargePointErrorCode, string)) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Inputs.ErrorCode = cb
	}
}

// AddMeterValueInput registers an additional metering sampler beyond
// the energy/power built-ins.
func (sys *System) AddMeterValueInput(connectorID int, sampler meter.Sampler, measurand, unit, location, phase string) {
	if cs, ok := sys.connectors[connectorID]; ok && cs.meter != nil {
		cs.meter.AddInput(measurand, sampler, unit, location, phase)
	}
}

// --- Output wiring ----------------------------------------------------

func (sys *System) SetSmartChargingOutput(connectorID int, cb func(limitA float64)) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Outputs.OnLimitChange = cb
	}
}

func (sys *System) SetConnectorLockInOut(connectorID int, cb func(trigger bool) connector.TxEnable) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Outputs.OnConnectorLock = cb
	}
}

func (sys *System) SetTxBasedMeterInOut(connectorID int, cb func(trigger bool) connector.TxEnable) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Outputs.OnTxBasedMeter = cb
	}
}

func (sys *System) SetOnUnlockConnectorInOut(connectorID int, cb func() connector.UnlockResult) {
	if cs, ok := sys.connectors[connectorID]; ok {
		cs.conn.Outputs.OnUnlockConnector = cb
	}
}

// SetOnResetNotify wires the charge point's (connector 0) reset
// confirmation hook: returning false vetoes the reset.
func (sys *System) SetOnResetNotify(cb func(hard bool) bool) {
	sys.connectors[0].conn.Outputs.OnResetNotify = cb
}

// SetOnResetExecute wires the host's actual reset side effect.
func (sys *System) SetOnResetExecute(cb func(hard bool)) {
	sys.connectors[0].conn.Outputs.OnResetExecute = cb
}

// SetTxNotifyOutput wires the host-facing transaction lifecycle stream
// (Authorized, DeAuthorized, StartTx, StopTx, and the rest of
// connector.TxNotificationKind) across every sessioned connector.
func (sys *System) SetTxNotifyOutput(cb connector.NotifyFunc) {
	sys.onTxNotify = cb
	for _, cs := range sys.connectors {
		if cs.sess != nil {
			cs.sess.SetNotifyOutput(cb)
		}
	}
}

// --- Direct operations ------------------------------------------------

// BootCallbacks bundles the terminal outcomes of a direct
// BootNotification call: on_conf, on_abort, on_timeout, on_error, and
// a per-call timeout override.
type BootCallbacks struct {
	OnConf    func(*v16.BootNotificationResponse)
	OnAbort   func()
	OnTimeout func()
	OnError   func(err error)
	Timeout   time.Duration
}

// BootNotification submits a BootNotification.req directly, bypassing
// the automatic retry-until-Accepted sequence in stepBootstrap — for
// hosts that want to drive boot themselves.
func (sys *System) BootNotification(cb BootCallbacks) (string, error) {
	timeout := cb.Timeout
	if timeout <= 0 {
		timeout = sys.protocolTimeout()
	}
	req := &v16.BootNotificationRequest{
		ChargePointVendor:       sys.credentials.ChargePointVendor,
		ChargePointModel:        sys.credentials.ChargePointModel,
		ChargePointSerialNumber: sys.credentials.ChargePointSerialNumber,
		ChargeBoxSerialNumber:   sys.credentials.ChargeBoxSerialNumber,
		FirmwareVersion:         sys.credentials.FirmwareVersion,
		Iccid:                   sys.credentials.Iccid,
		Imsi:                    sys.credentials.Imsi,
		MeterType:               sys.credentials.MeterType,
		MeterSerialNumber:       sys.credentials.MeterSerialNumber,
	}
	return dictionary.SubmitBootNotification(sys.engine, req, timeout, func(r dictionary.Result[v16.BootNotificationResponse]) {
		switch {
		case r.Response != nil && cb.OnConf != nil:
			cb.OnConf(r.Response)
		case r.Timedout && cb.OnTimeout != nil:
			cb.OnTimeout()
		case r.Aborted && cb.OnAbort != nil:
			cb.OnAbort()
		case r.Err != nil && cb.OnError != nil:
			cb.OnError(r.Err)
		}
	})
}

// AuthorizeCallbacks bundles the terminal outcomes of a direct
// Authorize call.
type AuthorizeCallbacks struct {
	OnConf    func(*v16.AuthorizeResponse)
	OnAbort   func()
	OnTimeout func()
	OnError   func(err error)
	Timeout   time.Duration
}

// Authorize submits an Authorize.req directly.
func (sys *System) Authorize(idTag string, cb AuthorizeCallbacks) (string, error) {
	timeout := cb.Timeout
	if timeout <= 0 {
		timeout = sys.callTimeout()
	}
	return dictionary.SubmitAuthorize(sys.engine, &v16.AuthorizeRequest{IdTag: idTag}, timeout, func(r dictionary.Result[v16.AuthorizeResponse]) {
		switch {
		case r.Response != nil && cb.OnConf != nil:
			cb.OnConf(r.Response)
		case r.Timedout && cb.OnTimeout != nil:
			cb.OnTimeout()
		case r.Aborted && cb.OnAbort != nil:
			cb.OnAbort()
		case r.Err != nil && cb.OnError != nil:
			cb.OnError(r.Err)
		}
	})
}
