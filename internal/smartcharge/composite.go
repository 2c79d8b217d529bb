package smartcharge

import (
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// maxCompositePeriods bounds GetCompositeSchedule.conf's period count
// (MO_ChargingScheduleMaxPeriods), preventing an unbounded walk when a
// profile stack oscillates rapidly.
const maxCompositePeriods = 24

// CompositeSchedule walks the limit at connectorID forward from `from`
// for up to `duration`, emitting one period each time the combined
// limit changes. Limits are reported as Infer returns them, in their
// profile's own unit; no Amps/Watts conversion is made, so unitWanted
// only sets the schedule's ChargingRateUnit. unitWanted may be empty,
// in which case the unit of the first defined limit is used (Watts when
// no limit is defined).
func (s *Store) CompositeSchedule(connectorID int, from time.Time, duration time.Duration, sessionStart time.Time, txID *int32, unitWanted v16.ChargingRateUnitType) *v16.ChargingSchedule {
	deadline := from.Add(duration)
	sched := &v16.ChargingSchedule{ChargingRateUnit: unitWanted}

	t := from
	var lastValue float64
	haveLast := false
	durationSeconds := int(duration.Seconds())
	sched.Duration = &durationSeconds

	for len(sched.ChargingSchedulePeriod) < maxCompositePeriods && t.Before(deadline) {
		limit, next := s.Infer(connectorID, t, sessionStart, txID)
		value := limit.Value
		if sched.ChargingRateUnit == "" && limit.Unit != "" {
			sched.ChargingRateUnit = limit.Unit
		}

		if !haveLast || value != lastValue {
			sched.ChargingSchedulePeriod = append(sched.ChargingSchedulePeriod, v16.ChargingSchedulePeriod{
				StartPeriod:  int(t.Sub(from).Seconds()),
				Limit:        value,
				NumberPhases: limit.NumberPhases,
			})
			lastValue = value
			haveLast = true
		}

		if next.IsZero() || !next.After(t) {
			break
		}
		if next.After(deadline) {
			break
		}
		t = next
	}

	if sched.ChargingRateUnit == "" {
		sched.ChargingRateUnit = v16.ChargingRateUnitWatts
	}
	if len(sched.ChargingSchedulePeriod) == 0 {
		sched.ChargingSchedulePeriod = append(sched.ChargingSchedulePeriod, v16.ChargingSchedulePeriod{StartPeriod: 0, Limit: lastValue})
	}
	return sched
}
