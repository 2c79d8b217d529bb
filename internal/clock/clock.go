// Package clock provides the core's view of time: a monotonic uptime
// source and a wall clock with OCPP's ISO-8601 Zulu encoding.
//
// The host owns the real clock; Clock is the interface the core
// consumes. SystemClock is a thin reference implementation over the
// standard library, useful for hosts that don't need a simulated or
// externally-disciplined clock.
package clock

import (
	"fmt"
	"time"
)

// ocppLayout is the 24-char ISO-8601 Zulu form OCPP 1.6-J uses for all
// timestamps, e.g. "2023-05-01T12:34:56.789Z".
const ocppLayout = "2006-01-02T15:04:05.000Z"

// epochCutoff is the earliest wall-clock time the core considers
// "set". A Start or Stop timestamp at or before this is undefined.
var epochCutoff = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is the host-supplied time source.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// UptimeMillis returns a monotonically increasing millisecond
	// counter, stable across wall-clock adjustments.
	UptimeMillis() int64
}

// SystemClock is a reference Clock backed by the Go runtime.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a Clock anchored at process start.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) UptimeMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// IsSet reports whether t is past the epoch cutoff, i.e. it represents
// a wall clock the host has actually synchronised (typically on
// BootNotification.conf or Heartbeat.conf).
func IsSet(t time.Time) bool {
	return t.After(epochCutoff)
}

// FormatISO8601 renders t in the OCPP wire format.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ocppLayout)
}

// ParseISO8601 parses the OCPP wire format, falling back to RFC3339 for
// CS implementations that omit milliseconds or use an explicit offset.
func ParseISO8601(s string) (time.Time, error) {
	if t, err := time.Parse(ocppLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: parse iso8601 %q: %w", s, err)
	}
	return t, nil
}

// DeltaSeconds returns the whole-second difference b-a, matching the
// host clock contract's delta(a,b) → Option<i32 seconds>. Returns false
// if either timestamp is unset.
func DeltaSeconds(a, b time.Time) (int32, bool) {
	if !IsSet(a) || !IsSet(b) {
		return 0, false
	}
	return int32(b.Sub(a).Seconds()), true
}

// Add returns t advanced by secs seconds.
func Add(t time.Time, secs int) time.Time {
	return t.Add(time.Duration(secs) * time.Second)
}

// AlignedBoundary returns the latest clock-aligned boundary at or
// before t for the given interval, measured from midnight UTC, as used
// by ClockAlignedDataInterval sampling.
func AlignedBoundary(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := t.Sub(midnight)
	steps := elapsed / interval
	return midnight.Add(steps * interval)
}

// NextAlignedBoundary returns the next clock-aligned boundary after t.
func NextAlignedBoundary(t time.Time, interval time.Duration) time.Time {
	return AlignedBoundary(t, interval).Add(interval)
}

// DailyBoundary returns the last daily recurrence boundary of
// startSchedule at or before t, for Recurring/Daily charging profiles.
func DailyBoundary(t, startSchedule time.Time) time.Time {
	if !startSchedule.Before(t) {
		return startSchedule
	}
	elapsed := t.Sub(startSchedule)
	day := 24 * time.Hour
	steps := elapsed / day
	return startSchedule.Add(steps * day)
}

// WeeklyBoundary returns the last weekly recurrence boundary of
// startSchedule at or before t, for Recurring/Weekly charging profiles.
func WeeklyBoundary(t, startSchedule time.Time) time.Time {
	if !startSchedule.Before(t) {
		return startSchedule
	}
	elapsed := t.Sub(startSchedule)
	week := 7 * 24 * time.Hour
	steps := elapsed / week
	return startSchedule.Add(steps * week)
}
