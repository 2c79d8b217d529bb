// Package smartcharge implements the layered charging-profile stacks
// and limit inference algorithm: ChargePointMaxProfile,
// ChargePointTxDefaultProfile, TxDefaultProfile, and TxProfile, combined
// into a single time-varying limit and a composite schedule.
package smartcharge

import (
	"fmt"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// ProfileRef identifies a stack slot, using a value key into a map
// ("arena + typed indices") rather than pointer back-chains.
type ProfileRef struct {
	Purpose     v16.ChargingProfilePurposeType
	StackLevel  int
	ConnectorID int
}

// Store owns every installed profile, persisted one file per slot.
type Store struct {
	fs       fsadapter.FS
	profiles map[ProfileRef]*v16.ChargingProfile
}

// New creates an empty Store.
func New(fs fsadapter.FS) *Store {
	return &Store{fs: fs, profiles: make(map[ProfileRef]*v16.ChargingProfile)}
}

func (s *Store) path(ref ProfileRef) string {
	switch ref.Purpose {
	case v16.ChargingProfilePurposeChargePointMaxProfile:
		return fmt.Sprintf("sc-cm-%d.json", ref.StackLevel)
	case v16.ChargingProfilePurposeTxDefaultProfile:
		return fmt.Sprintf("sc-td-%d-%d.json", ref.ConnectorID, ref.StackLevel)
	default:
		return fmt.Sprintf("sc-tx-%d-%d.json", ref.ConnectorID, ref.StackLevel)
	}
}

// Set installs a profile, replacing whatever previously occupied its
// (purpose, stack_level, connector_id) slot. Validates the purpose/
// connector pairing: ChargePointMaxProfile only at connector 0, TxProfile
// only at a real connector.
func (s *Store) Set(connectorID int, p *v16.ChargingProfile) v16.ChargingProfileStatus {
	if p.ChargingProfilePurpose == v16.ChargingProfilePurposeChargePointMaxProfile && connectorID != 0 {
		return v16.ChargingProfileStatusRejected
	}
	if p.ChargingProfilePurpose == v16.ChargingProfilePurposeTxProfile && connectorID == 0 {
		return v16.ChargingProfileStatusRejected
	}
	if len(p.ChargingSchedule.ChargingSchedulePeriod) == 0 {
		return v16.ChargingProfileStatusRejected
	}

	ref := ProfileRef{Purpose: p.ChargingProfilePurpose, StackLevel: p.StackLevel, ConnectorID: connectorID}
	s.profiles[ref] = p
	if s.fs != nil {
		if data, err := marshalProfile(p); err == nil {
			_ = fsadapter.WriteAll(s.fs, s.path(ref), data)
		}
	}
	return v16.ChargingProfileStatusAccepted
}

// Clear removes every profile matching the supplied filters (nil = wildcard).
func (s *Store) Clear(id *int, connectorID *int, purpose *v16.ChargingProfilePurposeType, stackLevel *int) v16.ClearChargingProfileStatus {
	removed := 0
	for ref, p := range s.profiles {
		if id != nil && p.ChargingProfileId != *id {
			continue
		}
		if connectorID != nil && ref.ConnectorID != *connectorID {
			continue
		}
		if purpose != nil && ref.Purpose != *purpose {
			continue
		}
		if stackLevel != nil && ref.StackLevel != *stackLevel {
			continue
		}
		delete(s.profiles, ref)
		if s.fs != nil {
			s.fs.Remove(s.path(ref))
		}
		removed++
	}
	if removed > 0 {
		return v16.ClearChargingProfileStatusAccepted
	}
	return v16.ClearChargingProfileStatusUnknown
}

// StackAt returns the profiles for (purpose, connectorID), ordered from
// highest stack level to lowest, so callers can walk the stack from the
// highest level down.
func (s *Store) StackAt(purpose v16.ChargingProfilePurposeType, connectorID int) []*v16.ChargingProfile {
	var out []*v16.ChargingProfile
	for ref, p := range s.profiles {
		if ref.Purpose == purpose && ref.ConnectorID == connectorID {
			out = append(out, p)
		}
	}
	// Insertion sort by descending stack level; profile counts per
	// connector are small so this stays cheap and allocation-free.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StackLevel > out[j-1].StackLevel; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Reload re-reads every persisted profile file, discarding ones that
// fail to parse.
func (s *Store) Reload(connectorIDs []int, maxStackLevel int) {
	for _, conn := range connectorIDs {
		for lvl := 0; lvl <= maxStackLevel; lvl++ {
			if conn == 0 {
				s.tryLoad(ProfileRef{Purpose: v16.ChargingProfilePurposeChargePointMaxProfile, StackLevel: lvl, ConnectorID: 0})
			}
			s.tryLoad(ProfileRef{Purpose: v16.ChargingProfilePurposeTxDefaultProfile, StackLevel: lvl, ConnectorID: conn})
			if conn != 0 {
				s.tryLoad(ProfileRef{Purpose: v16.ChargingProfilePurposeTxProfile, StackLevel: lvl, ConnectorID: conn})
			}
		}
	}
}

func (s *Store) tryLoad(ref ProfileRef) {
	data, err := fsadapter.ReadAll(s.fs, s.path(ref))
	if err != nil {
		return
	}
	p, err := unmarshalProfile(data)
	if err != nil {
		s.fs.Remove(s.path(ref))
		return
	}
	s.profiles[ref] = p
}
