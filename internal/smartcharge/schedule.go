package smartcharge

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/clock"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// Limit is the outcome of resolving a profile stack at a point in time:
// a rate limit in the profile's own unit plus an optional phase cap.
type Limit struct {
	Unit         v16.ChargingRateUnitType
	Value        float64
	NumberPhases *int
}

// periodHit is what activePeriod returns: the period in effect, the
// boundary at which it next changes, and whether a period applied at all.
type periodHit struct {
	limit      float64
	phases     *int
	nextChange time.Time
	ok         bool
}

// scheduleOrigin resolves a profile's schedule time base: Absolute uses
// the schedule's own StartSchedule (or the profile's
// ValidFrom, or the zero time if neither is set, which activePeriod
// treats as no schedule); Relative anchors to the
// session start; Recurring Daily/Weekly anchors to the most recent
// recurrence boundary at or before t.
func scheduleOrigin(p *v16.ChargingProfile, t, sessionStart time.Time) time.Time {
	switch p.ChargingProfileKind {
	case v16.ChargingProfileKindRelative:
		return sessionStart
	case v16.ChargingProfileKindRecurring:
		var anchor time.Time
		if p.ChargingSchedule.StartSchedule != nil {
			anchor = p.ChargingSchedule.StartSchedule.Time
		} else if p.ValidFrom != nil {
			anchor = p.ValidFrom.Time
		}
		if p.RecurrencyKind == v16.RecurrencyKindWeekly {
			return clock.WeeklyBoundary(t, anchor)
		}
		return clock.DailyBoundary(t, anchor)
	default: // Absolute
		if p.ChargingSchedule.StartSchedule != nil {
			return p.ChargingSchedule.StartSchedule.Time
		}
		if p.ValidFrom != nil {
			return p.ValidFrom.Time
		}
		return time.Time{}
	}
}

// withinValidity reports whether t falls inside the profile's
// validFrom/validTo window, when set.
func withinValidity(p *v16.ChargingProfile, t time.Time) bool {
	if p.ValidFrom != nil && t.Before(p.ValidFrom.Time) {
		return false
	}
	if p.ValidTo != nil && t.After(p.ValidTo.Time) {
		return false
	}
	return true
}

// activePeriod finds the ChargingSchedulePeriod in effect at t for
// profile p: resolve the origin, locate elapsed time since that origin (wrapped to the recurrence cycle for
// Recurring kinds), and pick the last period whose StartPeriod has
// passed but the schedule's Duration (if any) hasn't yet elapsed.
func activePeriod(p *v16.ChargingProfile, t, sessionStart time.Time) periodHit {
	if !withinValidity(p, t) {
		return periodHit{}
	}
	origin := scheduleOrigin(p, t, sessionStart)
	if origin.IsZero() && p.ChargingProfileKind != v16.ChargingProfileKindRecurring {
		return periodHit{}
	}

	elapsed := t.Sub(origin)
	if elapsed < 0 {
		return periodHit{nextChange: origin, ok: false}
	}

	elapsedSeconds := int(elapsed.Seconds())
	if p.ChargingSchedule.Duration != nil && elapsedSeconds >= *p.ChargingSchedule.Duration {
		if p.ChargingProfileKind == v16.ChargingProfileKindRecurring {
			// Cycle has finished; the next cycle restarts at +1 day/week.
			var next time.Time
			if p.RecurrencyKind == v16.RecurrencyKindWeekly {
				next = origin.Add(7 * 24 * time.Hour)
			} else {
				next = origin.Add(24 * time.Hour)
			}
			return periodHit{nextChange: next, ok: false}
		}
		return periodHit{ok: false}
	}

	periods := p.ChargingSchedule.ChargingSchedulePeriod
	if len(periods) == 0 {
		return periodHit{}
	}
	idx := -1
	for i, per := range periods {
		if per.StartPeriod <= elapsedSeconds {
			idx = i
		} else {
			break
		}
	}
	if idx < 0 {
		return periodHit{nextChange: origin.Add(time.Duration(periods[0].StartPeriod) * time.Second), ok: false}
	}

	var next time.Time
	if idx+1 < len(periods) {
		next = origin.Add(time.Duration(periods[idx+1].StartPeriod) * time.Second)
	} else if p.ChargingSchedule.Duration != nil {
		next = origin.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)
	}

	return periodHit{limit: periods[idx].Limit, phases: periods[idx].NumberPhases, nextChange: next, ok: true}
}

// earliestNonZero returns the earliest of the given times, ignoring
// zero values; ok is false if every input was zero.
func earliestNonZero(times ...time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if !found || t.Before(best) {
			best = t
			found = true
		}
	}
	return best, found
}

// selectFromStack walks a profile stack from the highest level down and
// returns the first one yielding an active period — the highest stack
// level with a currently-defined limit wins.
func selectFromStack(stack []*v16.ChargingProfile, t, sessionStart time.Time, txID *int32) (periodHit, v16.ChargingRateUnitType) {
	for _, p := range stack {
		if p.TransactionId != nil {
			if txID == nil || int32(*p.TransactionId) != *txID {
				continue
			}
		}
		if hit := activePeriod(p, t, sessionStart); hit.ok {
			return hit, p.ChargingSchedule.ChargingRateUnit
		}
	}
	return periodHit{}, ""
}

// Infer computes the combined charging limit at connectorID at time t
// via layered resolution:
//  1. TxProfile stack at connectorID (transaction-scoped only).
//  2. TxDefaultProfile stack at connectorID, falling back to the
//     CP-aggregate TxDefaultProfile stack at connector 0.
//  3. ChargePointMaxProfile stack at connector 0, always a ceiling.
//
// The TxProfile/TxDefaultProfile outcome and the ChargePointMaxProfile
// ceiling are combined by taking the smaller of the two when expressed
// in the same unit; a unit mismatch defers to the tx-scoped unit, since
// the ceiling's unit conversion depends on voltage/phase information
// the scheduler does not own (left as an Open Question, see DESIGN.md).
func (s *Store) Infer(connectorID int, t, sessionStart time.Time, txID *int32) (Limit, time.Time) {
	var hit periodHit
	var unit v16.ChargingRateUnitType

	if connectorID > 0 {
		hit, unit = selectFromStack(s.StackAt(v16.ChargingProfilePurposeTxProfile, connectorID), t, sessionStart, txID)
	}
	if !hit.ok && connectorID > 0 {
		hit, unit = selectFromStack(s.StackAt(v16.ChargingProfilePurposeTxDefaultProfile, connectorID), t, sessionStart, txID)
	}
	if !hit.ok {
		hit, unit = selectFromStack(s.StackAt(v16.ChargingProfilePurposeTxDefaultProfile, 0), t, sessionStart, txID)
	}

	cpHit, cpUnit := selectFromStack(s.StackAt(v16.ChargingProfilePurposeChargePointMaxProfile, 0), t, sessionStart, nil)

	limit := Limit{}
	hasLimit := false
	if hit.ok {
		limit = Limit{Unit: unit, Value: hit.limit, NumberPhases: hit.phases}
		hasLimit = true
	}
	if cpHit.ok {
		if !hasLimit {
			limit = Limit{Unit: cpUnit, Value: cpHit.limit, NumberPhases: cpHit.phases}
			hasLimit = true
		} else if cpUnit == limit.Unit && cpHit.limit < limit.Value {
			limit.Value = cpHit.limit
			if cpHit.phases != nil {
				limit.NumberPhases = cpHit.phases
			}
		}
	}

	next, ok := earliestNonZero(hit.nextChange, cpHit.nextChange)
	if !ok {
		next = time.Time{}
	}
	return limit, next
}
