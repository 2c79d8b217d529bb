// Package meter implements the metering service: periodic and
// clock-aligned sample capture, stop-tx ring contributions, and
// TriggerMessage.MeterValues synthesis, one instance per connector.
package meter

import (
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gridwire/ocpp16core/internal/clock"
	"github.com/gridwire/ocpp16core/internal/txstore"
)

// Sampler reads one measurand. ok=false means the reading is currently
// unavailable and the measurand is skipped for that sample.
type Sampler func() (value string, ok bool)

type input struct {
	measurand string
	sampler   Sampler
	unit      string
	location  string
	phase     string
}

// Collection names the four selectable measurand sets:
// MeterValuesSampledData, MeterValuesAlignedData, StopTxnSampledData,
// StopTxnAlignedData.
type Collection int

const (
	CollectionSampled Collection = iota
	CollectionAligned
	CollectionStopTxnSampled
	CollectionStopTxnAligned
)

// Service is the per-connector metering sub-instance.
type Service struct {
	inputs     map[string]*input
	energyName string

	selected map[Collection]map[string]bool

	sampleInterval time.Duration
	alignedInterval time.Duration
	stopTxnPeriodic bool

	nextPeriodic    time.Time
	lastAlignedAt   time.Time

	maxStopTxSize int

	// Emit is invoked with a completed periodic/aligned/trigger snapshot;
	// the core wires this to a MeterValues.req submission.
	Emit func(snap txstore.MeterSnapshot)

	powerSamples []float64
}

// New creates a Service. maxStopTxSize bounds each transaction's
// stop_tx_data ring (MO_STOPTXDATA_MAX_SIZE).
func New(maxStopTxSize int) *Service {
	if maxStopTxSize <= 0 {
		maxStopTxSize = 24
	}
	return &Service{
		inputs:        make(map[string]*input),
		maxStopTxSize: maxStopTxSize,
		selected: map[Collection]map[string]bool{
			CollectionSampled:        {},
			CollectionAligned:        {},
			CollectionStopTxnSampled: {},
			CollectionStopTxnAligned: {},
		},
	}
}

// AddInput registers a measurand sampler. The distinguished energy
// register measurand ("Energy.Active.Import.Register") additionally
// backs EnergyRegister().
func (s *Service) AddInput(measurand string, sampler Sampler, unit, location, phase string) {
	s.inputs[measurand] = &input{measurand: measurand, sampler: sampler, unit: unit, location: location, phase: phase}
	if measurand == "Energy.Active.Import.Register" {
		s.energyName = measurand
	}
}

// SetSampleInterval sets MeterValueSampleInterval, seconds.
func (s *Service) SetSampleInterval(seconds int) {
	s.sampleInterval = time.Duration(seconds) * time.Second
}

// SetClockAlignedInterval sets ClockAlignedDataInterval, seconds. Zero
// disables clock-aligned sampling.
func (s *Service) SetClockAlignedInterval(seconds int) {
	s.alignedInterval = time.Duration(seconds) * time.Second
}

// SetStopTxnDataCapturePeriodic toggles whether periodic sampling also
// appends to the active transaction's stop_tx_data ring.
func (s *Service) SetStopTxnDataCapturePeriodic(enabled bool) {
	s.stopTxnPeriodic = enabled
}

// SetSelection parses a comma-separated measurand list (as sent by
// ChangeConfiguration for e.g. MeterValuesSampledData) and recomputes
// the active set for that collection.
func (s *Service) SetSelection(c Collection, commaList string) {
	set := make(map[string]bool)
	for _, m := range strings.Split(commaList, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			set[m] = true
		}
	}
	s.selected[c] = set
}

// EnergyRegister reads the distinguished energy-meter sampler, if any.
func (s *Service) EnergyRegister() (int32, bool) {
	if s.energyName == "" {
		return 0, false
	}
	in, ok := s.inputs[s.energyName]
	if !ok {
		return 0, false
	}
	raw, ok := in.sampler()
	if !ok {
		return 0, false
	}
	var v int32
	if _, err := parseInt32(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func (s *Service) readCollection(c Collection, ctx txstore.SampleContext, now time.Time) txstore.MeterSnapshot {
	snap := txstore.MeterSnapshot{Timestamp: now, Context: ctx}
	var names []string
	for name := range s.selected[c] {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		in, ok := s.inputs[name]
		if !ok {
			continue
		}
		val, ok := in.sampler()
		if !ok {
			continue
		}
		sample := txstore.SampledValue{
			Value:     val,
			Context:   string(ctx),
			Measurand: name,
			Unit:      in.unit,
			Location:  in.location,
			Phase:     in.phase,
		}
		snap.Samples = append(snap.Samples, sample)
		if name == s.energyName {
			if f, err := parseFloat(val); err == nil {
				s.powerSamples = append(s.powerSamples, f)
				if len(s.powerSamples) > 256 {
					s.powerSamples = s.powerSamples[len(s.powerSamples)-256:]
				}
			}
		}
	}
	return snap
}

// Step advances periodic and clock-aligned sampling. activeTx is the
// connector's running transaction, or nil when idle; its stop_tx_data
// ring is appended to when the relevant capture flags are set.
func (s *Service) Step(now time.Time, activeTx *txstore.Transaction) {
	s.stepPeriodic(now, activeTx)
	s.stepAligned(now, activeTx)
}

func (s *Service) stepPeriodic(now time.Time, activeTx *txstore.Transaction) {
	if s.sampleInterval <= 0 {
		return
	}
	if s.nextPeriodic.IsZero() {
		s.nextPeriodic = now.Add(s.sampleInterval)
		return
	}
	if now.Before(s.nextPeriodic) {
		return
	}
	s.nextPeriodic = now.Add(s.sampleInterval)

	snap := s.readCollection(CollectionSampled, txstore.ContextSamplePeriodic, now)
	if len(snap.Samples) > 0 && s.Emit != nil {
		s.Emit(snap)
	}

	if s.stopTxnPeriodic && activeTx != nil {
		stopSnap := s.readCollection(CollectionStopTxnSampled, txstore.ContextSamplePeriodic, now)
		if len(stopSnap.Samples) > 0 {
			activeTx.AppendStopTxData(stopSnap, s.maxStopTxSize)
		}
	}
}

func (s *Service) stepAligned(now time.Time, activeTx *txstore.Transaction) {
	if s.alignedInterval <= 0 || !clock.IsSet(now) {
		return
	}
	boundary := clock.AlignedBoundary(now, s.alignedInterval)
	if boundary.Equal(s.lastAlignedAt) {
		return
	}
	if now.Sub(boundary) > 60*time.Second {
		// Outside tolerance: wait for the next boundary instead of
		// firing late against a stale one.
		return
	}
	s.lastAlignedAt = boundary

	snap := s.readCollection(CollectionAligned, txstore.ContextSampleClock, now)
	if len(snap.Samples) > 0 && s.Emit != nil {
		s.Emit(snap)
	}
	if activeTx != nil {
		stopSnap := s.readCollection(CollectionStopTxnAligned, txstore.ContextSampleClock, now)
		if len(stopSnap.Samples) > 0 {
			activeTx.AppendStopTxData(stopSnap, s.maxStopTxSize)
		}
	}
}

// CaptureTransactionBoundary reads the stop-txn measurand set and
// appends a Transaction.Begin or Transaction.End snapshot; these two
// are exempt from stop_tx_data eviction.
func (s *Service) CaptureTransactionBoundary(tx *txstore.Transaction, ctx txstore.SampleContext, now time.Time) {
	snap := s.readCollection(CollectionStopTxnSampled, ctx, now)
	tx.AppendStopTxData(snap, s.maxStopTxSize)
}

// Trigger synthesises a Sample.Trigger reading, used by
// TriggerMessage.MeterValues.
func (s *Service) Trigger(now time.Time) txstore.MeterSnapshot {
	return s.readCollection(CollectionSampled, txstore.ContextTrigger, now)
}

// RollingStats reports mean and standard deviation over the recent
// energy-register readings, used for diagnostic telemetry.
func (s *Service) RollingStats() (mean, stddev float64, ok bool) {
	if len(s.powerSamples) < 2 {
		return 0, 0, false
	}
	m, err := stats.Mean(s.powerSamples)
	if err != nil {
		return 0, 0, false
	}
	sd, err := stats.StandardDeviation(s.powerSamples)
	if err != nil {
		return 0, 0, false
	}
	return m, sd, true
}
