// Package connector implements the per-connector state machine: status
// inference, debounced StatusNotification, and the transaction lifecycle
// (split out into session.go), driven by the same cooperative step()
// model as the rest of the core.
package connector

import (
	"log/slog"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// Inputs are polled by the connector every Step call.
type Inputs struct {
	Plug             func() bool
	EVReady          func() bool
	EVSEReady        func() bool
	EnergyRegisterWh func() (int32, bool)
	PowerW           func() (float32, bool)
	ErrorCode        func() (v16.ChargePointErrorCode, string)
	StartTxReady     func() bool
	StopTxReady      func() bool
	Occupied         func() bool
}

// TxEnable mirrors the tri-state output of on_connector_lock/on_tx_based_meter.
type TxEnable int

const (
	TxEnableInactive TxEnable = iota
	TxEnableActive
	TxEnablePending
)

// UnlockResult is the outcome of on_unlock_connector.
type UnlockResult int

const (
	UnlockPending UnlockResult = iota
	UnlockAccepted
	UnlockRejected
)

// Outputs are the host-facing side effects a connector drives.
type Outputs struct {
	OnLimitChange     func(limitA float64)
	OnUnlockConnector func() UnlockResult
	OnConnectorLock   func(trigger bool) TxEnable
	OnTxBasedMeter    func(trigger bool) TxEnable
	OnResetNotify     func(hard bool) bool
	OnResetExecute    func(hard bool)
	OnStatusChange    func(connectorID int, status v16.ChargePointStatus, errCode v16.ChargePointErrorCode, info string)
}

// Availability tracks ChangeAvailability state, separate from fault state.
type Availability struct {
	Scheduled v16.AvailabilityType // latched at tx completion
	Effective v16.AvailabilityType // in force right now
}

// Connector is one physical EVSE connector (or, for ID 0, the Charge
// Point aggregate).
type Connector struct {
	ID     int
	logger *slog.Logger

	Inputs  Inputs
	Outputs Outputs

	availability Availability

	currentStatus   v16.ChargePointStatus
	pendingStatus   v16.ChargePointStatus
	pendingSince    time.Time
	lastSentStatus  v16.ChargePointStatus
	lastSentAt      time.Time
	minStatusDur    time.Duration
	hasSentAnything bool

	session *Session

	// aggregate reports whether any connector in the station has a
	// running transaction; connector 0's operative computation needs it.
	aggregateHasRunningTx func() bool

	hasReservation func() bool
}

// New creates a connector in the Available state.
func New(id int, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		ID:             id,
		logger:         logger,
		availability:   Availability{Scheduled: v16.AvailabilityTypeOperative, Effective: v16.AvailabilityTypeOperative},
		currentStatus:  v16.ChargePointStatusAvailable,
		lastSentStatus: v16.ChargePointStatusAvailable,
	}
}

// SetMinimumStatusDuration configures the StatusNotification debounce window.
func (c *Connector) SetMinimumStatusDuration(seconds int) {
	c.minStatusDur = time.Duration(seconds) * time.Second
}

// SetAggregateRunningTxProbe wires connector 0's "no running transaction
// anywhere" operative clause.
func (c *Connector) SetAggregateRunningTxProbe(fn func() bool) {
	c.aggregateHasRunningTx = fn
}

// SetReservationProbe wires step 7's "active reservation" check.
func (c *Connector) SetReservationProbe(fn func() bool) {
	c.hasReservation = fn
}

// AttachSession wires this connector's transaction lifecycle handler.
func (c *Connector) AttachSession(s *Session) { c.session = s }

// Session returns the attached transaction-lifecycle handler, if any.
func (c *Connector) Session() *Session { return c.session }

// ChangeAvailability schedules (or immediately applies, if no tx is
// running) an availability change.
func (c *Connector) ChangeAvailability(target v16.AvailabilityType) v16.AvailabilityStatus {
	c.availability.Scheduled = target
	if c.session == nil || !c.session.Running() {
		c.availability.Effective = target
		return v16.AvailabilityStatusAccepted
	}
	return v16.AvailabilityStatusScheduled
}

func (c *Connector) isFaulted() bool {
	if c.Inputs.ErrorCode == nil {
		return false
	}
	code, _ := c.Inputs.ErrorCode()
	return code != "" && code != v16.ChargePointErrorNoError
}

func (c *Connector) isOperative() bool {
	if c.availability.Effective != v16.AvailabilityTypeOperative {
		return false
	}
	if c.isFaulted() {
		return false
	}
	if c.ID == 0 && c.aggregateHasRunningTx != nil && c.aggregateHasRunningTx() {
		return false
	}
	return true
}

// inferStatus runs the nine-step status precedence chain.
func (c *Connector) inferStatus(stopOnEVDisconnect bool) v16.ChargePointStatus {
	if c.isFaulted() {
		return v16.ChargePointStatusFaulted
	}
	if !c.isOperative() {
		return v16.ChargePointStatusUnavailable
	}

	running := c.session != nil && c.session.Running()
	plug := c.Inputs.Plug != nil && c.Inputs.Plug()

	if running && !plug && !stopOnEVDisconnect {
		return v16.ChargePointStatusSuspendedEV
	}
	if running {
		evsePermits := c.session.OCPPPermitsCharge()
		evseReady := c.Inputs.EVSEReady == nil || c.Inputs.EVSEReady()
		if !evsePermits || !evseReady {
			return v16.ChargePointStatusSuspendedEVSE
		}
		evReady := c.Inputs.EVReady == nil || c.Inputs.EVReady()
		if !evReady {
			return v16.ChargePointStatusSuspendedEV
		}
		return v16.ChargePointStatusCharging
	}

	if c.hasReservation != nil && c.hasReservation() {
		return v16.ChargePointStatusReserved
	}

	occupied := c.Inputs.Occupied != nil && c.Inputs.Occupied()
	if !plug && !occupied {
		return v16.ChargePointStatusAvailable
	}

	switch c.currentStatus {
	case v16.ChargePointStatusCharging, v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusFinishing:
		return v16.ChargePointStatusFinishing
	default:
		return v16.ChargePointStatusPreparing
	}
}

// Step advances status inference/debounce and the transaction lifecycle
// by one cooperative tick.
func (c *Connector) Step(now time.Time, stopOnEVDisconnect bool) {
	if c.availability.Effective != c.availability.Scheduled && (c.session == nil || !c.session.Running()) {
		c.availability.Effective = c.availability.Scheduled
	}

	next := c.inferStatus(stopOnEVDisconnect)
	if next != c.currentStatus {
		c.currentStatus = next
		c.pendingStatus = next
		c.pendingSince = now
	}

	if c.session != nil {
		plug := c.Inputs.Plug != nil && c.Inputs.Plug()
		c.session.Step(now, TickInputs{
			PlugSet:      c.Inputs.Plug != nil,
			Plug:         plug,
			Operative:    c.isOperative(),
			StartTxReady: c.Inputs.StartTxReady == nil || c.Inputs.StartTxReady(),
			StopTxReady:  c.Inputs.StopTxReady == nil || c.Inputs.StopTxReady(),
			EnergyWh:     c.Inputs.EnergyRegisterWh,
		})
	}

	c.flushStatus(now)
}

func (c *Connector) flushStatus(now time.Time) {
	if c.currentStatus == c.lastSentStatus && c.hasSentAnything {
		return
	}
	if c.minStatusDur > 0 && now.Sub(c.pendingSince) < c.minStatusDur {
		return
	}
	errCode, info := v16.ChargePointErrorNoError, ""
	if c.Inputs.ErrorCode != nil {
		errCode, info = c.Inputs.ErrorCode()
	}
	c.lastSentStatus = c.currentStatus
	c.lastSentAt = now
	c.hasSentAnything = true
	if c.Outputs.OnStatusChange != nil {
		c.Outputs.OnStatusChange(c.ID, c.currentStatus, errCode, info)
	}
}

// CurrentStatus returns the locally-inferred status (may lag the
// debounced value actually reported to the CS).
func (c *Connector) CurrentStatus() v16.ChargePointStatus { return c.currentStatus }

// LastReportedStatus returns the last status actually sent upstream.
func (c *Connector) LastReportedStatus() v16.ChargePointStatus { return c.lastSentStatus }
