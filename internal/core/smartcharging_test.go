package core

import (
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

func absoluteTxDefaultProfile(id int, start time.Time, limit float64) *v16.ChargingProfile {
	return &v16.ChargingProfile{
		ChargingProfileId:      id,
		ChargingProfilePurpose: v16.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    v16.ChargingProfileKindAbsolute,
		ChargingSchedule: v16.ChargingSchedule{
			StartSchedule:          &v16.DateTime{Time: start},
			ChargingRateUnit:       v16.ChargingRateUnitAmps,
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{{StartPeriod: 0, Limit: limit}},
		},
	}
}

func TestApplySmartChargingLimitDefaultsUnrestrictedWithNoProfile(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	cs := sys.connectors[1]
	if !cs.sess.OCPPPermitsCharge() {
		t.Fatal("expected a fresh session to permit charging by default")
	}
	sys.applySmartChargingLimit(1, fc.now)
	if !cs.sess.OCPPPermitsCharge() {
		t.Fatal("expected no installed profile to leave charging permitted")
	}
}

func TestApplySmartChargingLimitSuspendsOnZeroLimitProfile(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	sys.profiles.Set(1, absoluteTxDefaultProfile(1, fc.now.Add(-time.Hour), 0))

	sys.applySmartChargingLimit(1, fc.now)
	if sys.connectors[1].sess.OCPPPermitsCharge() {
		t.Fatal("expected a zero-amp profile to suspend charging")
	}
}

func TestApplySmartChargingLimitUsesLiveSessionStart(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	if !sys.BeginTransaction("tag-1", 1) {
		t.Fatal("setup: expected Begin to succeed")
	}
	cs := sys.connectors[1]
	if !cs.sess.Running() {
		t.Fatal("setup: expected the session to be running")
	}
	sys.profiles.Set(1, absoluteTxDefaultProfile(1, fc.now.Add(-time.Hour), 16))

	sys.applySmartChargingLimit(1, fc.now)
	if tx := cs.sess.Tx(); tx == nil {
		t.Fatal("expected Tx() to return the live transaction for a running session")
	}
	if !cs.sess.OCPPPermitsCharge() {
		t.Fatal("expected a positive limit to permit charging")
	}
}

func TestApplySmartChargingLimitPushesAmpsToOutput(t *testing.T) {
	sys, _, fc := newTestSystem(t)
	sys.profiles.Set(1, absoluteTxDefaultProfile(1, fc.now.Add(-time.Hour), 16))

	var gotLimit float64
	sys.SetSmartChargingOutput(1, func(limitA float64) { gotLimit = limitA })
	sys.applySmartChargingLimit(1, fc.now)

	if gotLimit != 16 {
		t.Fatalf("OnLimitChange got %v, want 16", gotLimit)
	}
	if !sys.connectors[1].sess.OCPPPermitsCharge() {
		t.Fatal("expected a positive limit to permit charging")
	}
}
