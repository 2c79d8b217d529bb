package connector

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// AuthResult is what the host's Authorize.req dispatch eventually yields.
type AuthResult int

const (
	AuthPending AuthResult = iota
	AuthAccepted
	AuthRejected
	AuthTimedOut
)

// AuthorizeFunc submits Authorize.req and reports back via the returned
// poll function; poll returns AuthPending until the CS responds or the
// deadline (driven by the session's own timeout bookkeeping) passes.
type AuthorizeFunc func(idTag string) (result func() AuthResult, cancel func())

// LocalAuthProbe answers whether a cached entry permits offline charging
// for idTag right now (internal/reservation's Authorization Cache).
type LocalAuthProbe func(idTag string) (cached bool, valid bool)

// StartTxFunc submits StartTransaction.req; result() reports the
// assigned transactionId once known, ok=false while pending.
type StartTxFunc func(connectorID int, idTag string, meterStart int32, timestamp time.Time) (result func() (transactionID int32, idStatus v16.AuthorizationStatus, ok bool))

// StopTxFunc submits StopTransaction.req.
type StopTxFunc func(tx *txstore.Transaction, stopValues []txstore.MeterSnapshot)

// TxNotificationKind enumerates the host-facing transaction lifecycle
// events a Session reports, independent of whatever OCPP wire exchange
// (if any) accompanies them.
type TxNotificationKind int

const (
	TxNotificationAuthorized TxNotificationKind = iota
	TxNotificationAuthorizationRejected
	TxNotificationAuthorizationTimeout
	TxNotificationDeAuthorized
	TxNotificationConnectionTimeout
	TxNotificationReservationConflict
	TxNotificationStartTx
	TxNotificationStopTx
)

func (k TxNotificationKind) String() string {
	switch k {
	case TxNotificationAuthorized:
		return "Authorized"
	case TxNotificationAuthorizationRejected:
		return "AuthorizationRejected"
	case TxNotificationAuthorizationTimeout:
		return "AuthorizationTimeout"
	case TxNotificationDeAuthorized:
		return "DeAuthorized"
	case TxNotificationConnectionTimeout:
		return "ConnectionTimeout"
	case TxNotificationReservationConflict:
		return "ReservationConflict"
	case TxNotificationStartTx:
		return "StartTx"
	case TxNotificationStopTx:
		return "StopTx"
	default:
		return "Unknown"
	}
}

// TxNotification is one host-facing transaction lifecycle event, fired
// as the session's internal state machine crosses it.
type TxNotification struct {
	Kind          TxNotificationKind
	ConnectorID   int
	IdTag         string
	TransactionID int32
	Timestamp     time.Time
}

// NotifyFunc receives TxNotification events as a session's transaction
// progresses; hosts wire this in to surface authorization and
// start/stop outcomes without polling.
type NotifyFunc func(TxNotification)

// Policy bundles the configuration-driven knobs session behaviour reads
// (AuthorizationTimeout, LocalPreAuthorize, etc).
type Policy struct {
	AuthorizationTimeout         time.Duration
	LocalPreAuthorize            bool
	LocalAuthorizeOffline        bool
	AllowOfflineTxForUnknownId   bool
	StopTransactionOnInvalidId   bool
	SilentOfflineTransactions    bool
	ConnectionTimeout            time.Duration
	FreeVendActive               bool
	FreeVendIdTag                string
	IsOnline                     func() bool
}

// Session drives one connector's transaction lifecycle: authorization,
// start, metering, and stop.
type Session struct {
	connectorID int
	policy      *Policy
	store       *txstore.Store

	tx *txstore.Transaction

	localAuth LocalAuthProbe
	authorize AuthorizeFunc
	startTx   StartTxFunc
	stopTx    StopTxFunc
	notify    NotifyFunc

	authPoll   func() AuthResult
	authCancel func()
	authDue    time.Time

	startPoll func() (int32, v16.AuthorizationStatus, bool)

	ocppPermits bool

	// persisted reports whether tx is backed by a real ring slot
	// (txstore.Store.Create succeeded). Silent fallback transactions
	// created when the ring is full aren't, and must never be
	// committed or removed through the store.
	persisted bool

	lastPlug bool
}

// NewSession creates the per-connector session. store is shared with
// the rest of the core; policy is a live pointer so configuration
// changes (ChangeConfiguration) take effect immediately.
func NewSession(connectorID int, store *txstore.Store, policy *Policy) *Session {
	return &Session{connectorID: connectorID, store: store, policy: policy, ocppPermits: true}
}

func (s *Session) SetCollaborators(localAuth LocalAuthProbe, authorize AuthorizeFunc, startTx StartTxFunc, stopTx StopTxFunc) {
	s.localAuth, s.authorize, s.startTx, s.stopTx = localAuth, authorize, startTx, stopTx
}

// SetNotifyOutput wires the host callback fired on every transaction
// lifecycle event.
func (s *Session) SetNotifyOutput(notify NotifyFunc) { s.notify = notify }

// Tx returns the session's live, in-memory transaction record, or nil
// when none is running. Callers get the same pointer the session is
// mutating, not a stale disk snapshot.
func (s *Session) Tx() *txstore.Transaction { return s.tx }

func (s *Session) emit(kind TxNotificationKind, now time.Time) {
	if s.notify == nil || s.tx == nil {
		return
	}
	s.notify(TxNotification{
		Kind:          kind,
		ConnectorID:   s.connectorID,
		IdTag:         s.tx.IdTag,
		TransactionID: s.tx.TransactionID,
		Timestamp:     now,
	})
}

// commit persists the live transaction's current state, guarded so a
// non-ring-backed silent fallback transaction is never written through
// to the store.
func (s *Session) commit() {
	if s.tx == nil || !s.persisted || s.store == nil {
		return
	}
	s.store.Commit(s.tx)
}

// Running reports whether a transaction is currently active (not yet
// ended), matching the "at most one non-completed transaction" invariant.
func (s *Session) Running() bool {
	return s.tx != nil && s.tx.Active
}

// OCPPPermitsCharge reflects the smart-charging limit: false when the
// inferred limit is zero, driving SuspendedEVSE.
func (s *Session) OCPPPermitsCharge() bool { return s.ocppPermits }

// SetOCPPPermitsCharge is called by the core whenever the smart-charging
// scheduler's inferred limit for this connector changes sign.
func (s *Session) SetOCPPPermitsCharge(permits bool) { s.ocppPermits = permits }

// CurrentTransactionID returns the CS-assigned id of the running
// transaction, or -1 if none / not yet assigned.
func (s *Session) CurrentTransactionID() int32 {
	if s.tx == nil {
		return -1
	}
	return s.tx.TransactionID
}

// Begin starts the authorization phase of a new session. silent forces
// the offline do-not-report mode.
func (s *Session) Begin(now time.Time, idTag string, silent bool) bool {
	if s.Running() {
		return false
	}
	tx, ok := s.store.Create(s.connectorID)
	if !ok {
		if s.policy.SilentOfflineTransactions {
			silent = true
			tx = &txstore.Transaction{ConnectorID: s.connectorID, Active: true, Silent: true}
		} else {
			return false
		}
	}
	tx.IdTag = idTag
	tx.BeginTimestamp = now
	tx.Active = true
	tx.Silent = silent
	tx.TransactionID = -1
	s.tx = tx
	s.persisted = ok
	s.commit()

	if s.policy.LocalPreAuthorize && s.localAuth != nil {
		if cached, valid := s.localAuth(idTag); cached && valid {
			s.tx.Authorized = true
			s.commit()
			s.emit(TxNotificationAuthorized, now)
			return true
		}
	}

	if s.authorize != nil {
		s.authPoll, s.authCancel = s.authorize(idTag)
		s.authDue = now.Add(s.policy.AuthorizationTimeout)
	}
	return true
}

// beginFreeVend auto-starts a pre-authorized session on a plug rising
// edge, per FreeVend mode.
func (s *Session) beginFreeVend(now time.Time) {
	idTag := s.policy.FreeVendIdTag
	if idTag == "" {
		idTag = "A0000000"
	}
	if s.Begin(now, idTag, false) && !s.tx.Authorized {
		s.tx.Authorized = true
		s.commit()
		s.emit(TxNotificationAuthorized, now)
	}
}

func (s *Session) stepAuthorize(now time.Time) {
	if s.tx == nil || s.tx.Authorized || s.tx.IdTagDeauthorized {
		return
	}
	timedOut := false
	if s.authPoll != nil {
		switch s.authPoll() {
		case AuthAccepted:
			s.tx.Authorized = true
			s.authPoll = nil
			s.commit()
			s.emit(TxNotificationAuthorized, now)
			return
		case AuthRejected:
			s.tx.IdTagDeauthorized = true
			s.authPoll = nil
			s.commit()
			s.emit(TxNotificationAuthorizationRejected, now)
			return
		case AuthPending:
			offline := s.policy.IsOnline != nil && !s.policy.IsOnline()
			if !offline && now.Before(s.authDue) {
				return
			}
			if s.authCancel != nil {
				s.authCancel()
			}
			s.authPoll = nil
			timedOut = true
		}
	}
	// Authorize.timeout fallback policy.
	cached, valid := false, false
	if s.localAuth != nil {
		cached, valid = s.localAuth(s.tx.IdTag)
	}
	switch {
	case cached && !valid:
		s.tx.IdTagDeauthorized = true
	case cached && valid && s.policy.LocalAuthorizeOffline:
		s.tx.Authorized = true
	case s.policy.AllowOfflineTxForUnknownId:
		s.tx.Authorized = true
	default:
		s.tx.IdTagDeauthorized = true
	}
	s.commit()
	if timedOut {
		s.emit(TxNotificationAuthorizationTimeout, now)
	}
	if s.tx.Authorized {
		s.emit(TxNotificationAuthorized, now)
	} else {
		s.emit(TxNotificationDeAuthorized, now)
	}
}

func (s *Session) startCondition(plugSet, plug, operative, startTxReady bool) bool {
	if s.tx == nil {
		return false
	}
	return s.tx.Active && s.tx.Authorized && (plug || !plugSet) && operative && startTxReady
}

func (s *Session) stepStart(now time.Time, plugSet, plug, operative, startTxReady bool, energyWh func() (int32, bool)) {
	if s.tx == nil || s.tx.StartedSync != txstore.SyncNotRequested {
		return
	}
	if s.tx.IdTagDeauthorized {
		return
	}
	if !s.startCondition(plugSet, plug, operative, startTxReady) {
		return
	}
	if s.tx.Silent {
		s.tx.StartTimestamp = now
		s.tx.StartedSync = txstore.SyncConfirmed
		s.commit()
		s.emit(TxNotificationStartTx, now)
		return
	}
	if s.startTx == nil {
		return
	}
	var meterStart int32
	if energyWh != nil {
		meterStart, _ = energyWh()
	}
	s.tx.MeterStart = meterStart
	s.tx.StartTimestamp = now
	s.tx.StartedSync = txstore.SyncRequested
	s.commit()
	s.startPoll = s.startTx(s.connectorID, s.tx.IdTag, meterStart, now)
}

func (s *Session) stepStartPoll(now time.Time) {
	if s.tx == nil || s.startPoll == nil || s.tx.StartedSync != txstore.SyncRequested {
		return
	}
	id, status, ok := s.startPoll()
	if !ok {
		return
	}
	s.tx.TransactionID = id
	s.tx.StartedSync = txstore.SyncConfirmed
	s.startPoll = nil
	if status != "" && status != v16.AuthorizationStatusAccepted {
		s.tx.IdTagDeauthorized = true
		s.commit()
		s.emit(TxNotificationDeAuthorized, now)
		if s.policy.StopTransactionOnInvalidId {
			s.End(now, txstore.StopReasonDeAuthorized)
		}
		return
	}
	s.commit()
	s.emit(TxNotificationStartTx, now)
}

// End marks the session for termination; StopTransaction.req is
// dispatched once stop_tx_ready() is satisfied (see stepStop).
func (s *Session) End(now time.Time, reason txstore.StopReason) {
	if s.tx == nil || !s.tx.Active {
		return
	}
	s.tx.Active = false
	s.tx.StopReason = reason
	s.tx.StopTimestamp = now
	s.commit()
}

func (s *Session) stepStop(now time.Time, stopTxReady bool, energyWh func() (int32, bool)) {
	if s.tx == nil || s.tx.Active || s.tx.StoppedSync != txstore.SyncNotRequested {
		return
	}
	if !stopTxReady {
		return
	}
	var meterStop int32
	if energyWh != nil {
		meterStop, _ = energyWh()
	}
	s.tx.MeterStop = meterStop

	if s.tx.Silent || s.tx.StartedSync != txstore.SyncConfirmed {
		s.tx.StoppedSync = txstore.SyncConfirmed
		s.finish()
		return
	}
	s.tx.StoppedSync = txstore.SyncRequested
	s.commit()
	if s.stopTx != nil {
		s.stopTx(s.tx, s.tx.StopTxData)
	}
	// The RPC engine's on_response callback is expected to call
	// ConfirmStop; until then the transaction stays pending in the ring.
}

// ConfirmStop is invoked by the core once StopTransaction.conf arrives.
func (s *Session) ConfirmStop() {
	if s.tx == nil {
		return
	}
	s.tx.StoppedSync = txstore.SyncConfirmed
	s.finish()
}

func (s *Session) finish() {
	s.emit(TxNotificationStopTx, s.tx.StopTimestamp)
	if s.persisted {
		if s.tx.IsCompleted() {
			s.store.Remove(s.connectorID, s.tx.TxNr)
		} else {
			s.store.Commit(s.tx)
		}
	}
	s.tx = nil
	s.persisted = false
	s.authPoll = nil
	s.startPoll = nil
}

// TickInputs carries the host-polled signals the session needs each
// step; Connector gathers these from its own Inputs each tick.
type TickInputs struct {
	PlugSet      bool
	Plug         bool
	Operative    bool
	StartTxReady bool
	StopTxReady  bool
	EnergyWh     func() (int32, bool)
}

// Step advances authorization, start, and stop transitions for one tick.
func (s *Session) Step(now time.Time, in TickInputs) {
	if s.policy.FreeVendActive && s.tx == nil && in.Plug && !s.lastPlug {
		s.beginFreeVend(now)
	}
	s.lastPlug = in.Plug

	if s.tx == nil {
		return
	}
	s.stepAuthorize(now)
	s.stepStart(now, in.PlugSet, in.Plug, in.Operative, in.StartTxReady, in.EnergyWh)
	s.stepStartPoll(now)
	s.stepStop(now, in.StopTxReady, in.EnergyWh)
	if s.policy.ConnectionTimeout > 0 && s.tx != nil && s.tx.StartedSync == txstore.SyncNotRequested && !s.tx.BeginTimestamp.IsZero() {
		if now.Sub(s.tx.BeginTimestamp) > s.policy.ConnectionTimeout {
			s.End(now, txstore.StopReasonConnectionTimeout)
			s.emit(TxNotificationConnectionTimeout, now)
		}
	}
}
