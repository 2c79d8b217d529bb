// Package txstore implements a per-connector ring-buffered persistent
// transaction store: bounded slots of JSON records, with meter-value side
// data attached to each transaction and crash recovery by re-enumerating
// slot files on boot.
package txstore

import (
	"time"
)

// SyncState tracks whether a StartTransaction/StopTransaction request
// has been sent to and confirmed by the CS.
type SyncState int

const (
	SyncNotRequested SyncState = iota
	SyncRequested
	SyncConfirmed
)

func (s SyncState) String() string {
	switch s {
	case SyncRequested:
		return "Requested"
	case SyncConfirmed:
		return "Confirmed"
	default:
		return "NotRequested"
	}
}

// StopReason enumerates why a transaction ended.
type StopReason string

const (
	StopReasonLocal             StopReason = "Local"
	StopReasonRemote            StopReason = "Remote"
	StopReasonEVDisconnected    StopReason = "EVDisconnected"
	StopReasonDeAuthorized      StopReason = "DeAuthorized"
	StopReasonPowerLoss         StopReason = "PowerLoss"
	StopReasonReboot            StopReason = "Reboot"
	StopReasonHardReset         StopReason = "HardReset"
	StopReasonSoftReset         StopReason = "SoftReset"
	StopReasonEmergencyStop     StopReason = "EmergencyStop"
	StopReasonUnlockCommand     StopReason = "UnlockCommand"
	StopReasonOther             StopReason = "Other"
	StopReasonConnectionTimeout StopReason = "ConnectionTimeout"
)

// SampleContext mirrors OCPP's ReadingContext for a MeterValue.
type SampleContext string

const (
	ContextSamplePeriodic     SampleContext = "Sample.Periodic"
	ContextSampleClock        SampleContext = "Sample.Clock"
	ContextTransactionBegin   SampleContext = "Transaction.Begin"
	ContextTransactionEnd     SampleContext = "Transaction.End"
	ContextTrigger            SampleContext = "Trigger"
	ContextOther              SampleContext = "Other"
)

// SampledValue is one measurand reading of a MeterValue.
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Location  string `json:"location,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Format    string `json:"format,omitempty"`
}

// MeterSnapshot is a timestamped collection of SampledValues, the unit
// stored in a transaction's stop_tx_data ring.
type MeterSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Context   SampleContext  `json:"context"`
	Samples   []SampledValue `json:"samples"`
}

// Transaction is the persistent record of one charging session.
type Transaction struct {
	TxNr          int        `json:"txNr"`
	ConnectorID   int        `json:"connectorId"`
	IdTag         string     `json:"idTag"`
	StopIdTag     string     `json:"stopIdTag,omitempty"`
	TransactionID int32      `json:"transactionId"`
	MeterStart    int32      `json:"meterStart"`
	MeterStop     int32      `json:"meterStop"`
	BeginTimestamp time.Time `json:"beginTimestamp"`
	StartTimestamp time.Time `json:"startTimestamp,omitempty"`
	StopTimestamp  time.Time `json:"stopTimestamp,omitempty"`
	StartBootNr   int        `json:"startBootNr"`
	StopBootNr    int        `json:"stopBootNr,omitempty"`
	StopReason    StopReason `json:"stopReason,omitempty"`
	ReservationID *int       `json:"reservationId,omitempty"`

	Active            bool `json:"active"`
	Authorized        bool `json:"authorized"`
	IdTagDeauthorized bool `json:"idTagDeauthorized"`
	Silent            bool `json:"silent"`

	StartedSync SyncState `json:"startedSync"`
	StoppedSync SyncState `json:"stoppedSync"`

	StopTxData []MeterSnapshot `json:"stopTxData,omitempty"`
}

// IsAborted reports a transaction that never reached the CS at all:
// inactive, StartTransaction never sent, and not a silent/offline session.
func (t *Transaction) IsAborted() bool {
	return !t.Active && t.StartedSync == SyncNotRequested && !t.Silent
}

// IsCompleted reports whether the transaction has fully round-tripped
// its StopTransaction and is eligible for ring trimming from tx_begin.
func (t *Transaction) IsCompleted() bool {
	if t.Active {
		return false
	}
	if t.Silent {
		return true
	}
	return t.StoppedSync == SyncConfirmed
}

// AppendStopTxData appends a meter snapshot to the transaction's
// stop_tx_data ring, evicting under maxSize using the neighbour-distance
// rule: the Transaction.Begin and Transaction.End snapshots are never
// evicted; among the rest the one whose two neighbours are temporally
// closest is dropped.
func (t *Transaction) AppendStopTxData(snap MeterSnapshot, maxSize int) {
	t.StopTxData = append(t.StopTxData, snap)
	for len(t.StopTxData) > maxSize {
		idx := evictionCandidate(t.StopTxData)
		if idx < 0 {
			break
		}
		t.StopTxData = append(t.StopTxData[:idx], t.StopTxData[idx+1:]...)
	}
}

// evictionCandidate finds the non-boundary entry whose neighbours are
// temporally closest together, i.e. dropping it loses the least
// resolution. Returns -1 if only boundary entries remain.
func evictionCandidate(data []MeterSnapshot) int {
	best := -1
	var bestGap time.Duration = -1
	for i := 1; i < len(data)-1; i++ {
		if data[i].Context == ContextTransactionBegin || data[i].Context == ContextTransactionEnd {
			continue
		}
		gap := data[i+1].Timestamp.Sub(data[i-1].Timestamp)
		if bestGap < 0 || gap < bestGap {
			bestGap = gap
			best = i
		}
	}
	return best
}
