package clock

import (
	"testing"
	"time"
)

func TestISO8601RoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(2023, 5, 1, 12, 34, 56, 789_000_000, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2030, 2, 28, 0, 0, 0, 1_000_000, time.UTC),
	}
	for _, want := range cases {
		encoded := FormatISO8601(want)
		if len(encoded) != 24 {
			t.Errorf("FormatISO8601(%v) = %q, want 24 chars", want, encoded)
		}
		got, err := ParseISO8601(encoded)
		if err != nil {
			t.Fatalf("ParseISO8601(%q): %v", encoded, err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip = %v, want %v", got, want)
		}
	}
}

func TestIsSet(t *testing.T) {
	if IsSet(time.Time{}) {
		t.Error("zero time should not be set")
	}
	if IsSet(epochCutoff) {
		t.Error("cutoff itself should not be set (exclusive)")
	}
	if !IsSet(epochCutoff.Add(time.Second)) {
		t.Error("time after cutoff should be set")
	}
}

func TestAlignedBoundary(t *testing.T) {
	midnight := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	interval := 15 * time.Minute
	tm := midnight.Add(37 * time.Minute)
	got := AlignedBoundary(tm, interval)
	want := midnight.Add(30 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("AlignedBoundary = %v, want %v", got, want)
	}
	next := NextAlignedBoundary(tm, interval)
	if !next.Equal(midnight.Add(45 * time.Minute)) {
		t.Errorf("NextAlignedBoundary = %v, want %v", next, midnight.Add(45*time.Minute))
	}
}

func TestDeltaSeconds(t *testing.T) {
	a := epochCutoff.Add(time.Hour)
	b := a.Add(90 * time.Second)
	d, ok := DeltaSeconds(a, b)
	if !ok || d != 90 {
		t.Errorf("DeltaSeconds = %d,%v want 90,true", d, ok)
	}
	if _, ok := DeltaSeconds(time.Time{}, b); ok {
		t.Error("expected false for unset timestamp")
	}
}
