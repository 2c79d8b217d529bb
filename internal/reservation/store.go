package reservation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

// Reservation is the persisted record of one ReserveNow grant.
type Reservation struct {
	ReservationId int       `json:"reservationId"`
	ConnectorId   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	ParentIdTag   string    `json:"parentIdTag,omitempty"`
	ExpiryDate    time.Time `json:"expiryDate"`
}

// Store holds at most one reservation per connector, persisted one file
// per connector slot.
type Store struct {
	fs           fsadapter.FS
	reservations map[int]*Reservation
}

// New creates an empty reservation Store.
func New(fs fsadapter.FS) *Store {
	return &Store{fs: fs, reservations: make(map[int]*Reservation)}
}

func path(connectorID int) string {
	return fmt.Sprintf("reservation-%d.json", connectorID)
}

// Reload re-reads every connector's reservation file, dropping ones that
// are corrupt or already expired.
func (s *Store) Reload(connectorIDs []int, now time.Time) {
	for _, id := range connectorIDs {
		data, err := fsadapter.ReadAll(s.fs, path(id))
		if err != nil {
			continue
		}
		var r Reservation
		if err := json.Unmarshal(data, &r); err != nil {
			s.fs.Remove(path(id))
			continue
		}
		if !r.ExpiryDate.After(now) {
			s.fs.Remove(path(id))
			continue
		}
		s.reservations[id] = &r
	}
}

// Reserve installs a reservation on connectorID, rejecting if the slot
// already holds an unexpired reservation for a different id.
func (s *Store) Reserve(r Reservation, now time.Time) v16.ReservationStatus {
	if existing, ok := s.reservations[r.ConnectorId]; ok && existing.ExpiryDate.After(now) && existing.ReservationId != r.ReservationId {
		return v16.ReservationStatusOccupied
	}
	data, err := json.Marshal(r)
	if err != nil {
		return v16.ReservationStatusRejected
	}
	if err := fsadapter.WriteAll(s.fs, path(r.ConnectorId), data); err != nil {
		return v16.ReservationStatusRejected
	}
	cp := r
	s.reservations[r.ConnectorId] = &cp
	return v16.ReservationStatusAccepted
}

// Cancel removes a reservation by id, returning Accepted if one was
// found and removed, else Rejected.
func (s *Store) Cancel(reservationID int) v16.CancelReservationStatus {
	for connID, r := range s.reservations {
		if r.ReservationId == reservationID {
			delete(s.reservations, connID)
			s.fs.Remove(path(connID))
			return v16.CancelReservationStatusAccepted
		}
	}
	return v16.CancelReservationStatusRejected
}

// ActiveFor returns connectorID's reservation if it is unexpired —
// backing the connector status-inference "active reservation" check and
// the transaction start-condition's reservation gate. It does no idTag
// matching.
func (s *Store) ActiveFor(connectorID int, now time.Time) (*Reservation, bool) {
	r, ok := s.reservations[connectorID]
	if !ok || !r.ExpiryDate.After(now) {
		return nil, false
	}
	return r, true
}

// MatchesIdTag reports whether idTag is the reservation holder or its
// parent tag.
func (r *Reservation) MatchesIdTag(idTag string) bool {
	return r.IdTag == idTag || (r.ParentIdTag != "" && r.ParentIdTag == idTag)
}

// ExpireAll removes reservations past expiry, called once per boot or
// periodically from step().
func (s *Store) ExpireAll(now time.Time) {
	for connID, r := range s.reservations {
		if !r.ExpiryDate.After(now) {
			delete(s.reservations, connID)
			s.fs.Remove(path(connID))
		}
	}
}
