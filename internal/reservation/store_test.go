package reservation

import (
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
)

func TestReserveThenOccupiedRejectsSecond(t *testing.T) {
	s := New(fsadapter.NewMem())
	now := time.Now()
	r := Reservation{ReservationId: 1, ConnectorId: 1, IdTag: "TAG1", ExpiryDate: now.Add(time.Hour)}
	if status := s.Reserve(r, now); status != v16.ReservationStatusAccepted {
		t.Fatalf("status = %v, want Accepted", status)
	}
	r2 := Reservation{ReservationId: 2, ConnectorId: 1, IdTag: "TAG2", ExpiryDate: now.Add(time.Hour)}
	if status := s.Reserve(r2, now); status != v16.ReservationStatusOccupied {
		t.Fatalf("status = %v, want Occupied", status)
	}
}

func TestCancelRemovesReservation(t *testing.T) {
	s := New(fsadapter.NewMem())
	now := time.Now()
	s.Reserve(Reservation{ReservationId: 5, ConnectorId: 2, IdTag: "TAG", ExpiryDate: now.Add(time.Hour)}, now)
	if status := s.Cancel(5); status != v16.CancelReservationStatusAccepted {
		t.Fatalf("status = %v, want Accepted", status)
	}
	if _, ok := s.ActiveFor(2, now); ok {
		t.Fatal("expected reservation removed")
	}
}

func TestCancelUnknownRejected(t *testing.T) {
	s := New(fsadapter.NewMem())
	if status := s.Cancel(42); status != v16.CancelReservationStatusRejected {
		t.Fatalf("status = %v, want Rejected", status)
	}
}

func TestReloadDropsExpired(t *testing.T) {
	mem := fsadapter.NewMem()
	now := time.Now()
	writer := New(mem)
	writer.Reserve(Reservation{ReservationId: 1, ConnectorId: 1, IdTag: "TAG", ExpiryDate: now.Add(-time.Minute)}, now.Add(-time.Hour))

	reader := New(mem)
	reader.Reload([]int{1}, now)
	if _, ok := reader.ActiveFor(1, now); ok {
		t.Fatal("expected expired reservation to be dropped on reload")
	}
}

func TestCacheLookupAfterPut(t *testing.T) {
	c := NewCache(fsadapter.NewMem(), "cache.json", 10)
	if err := c.Put("TAG1", v16.AuthorizationStatusAccepted, "", nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	cached, valid := c.Lookup("TAG1")
	if !cached || !valid {
		t.Fatalf("Lookup = %v,%v want true,true", cached, valid)
	}
	if _, valid := c.Lookup("UNKNOWN"); valid {
		t.Fatal("expected unknown tag to be invalid")
	}
}

func TestCacheEvictsLRUWhenFull(t *testing.T) {
	c := NewCache(fsadapter.NewMem(), "cache.json", 2)
	c.Put("TAG1", v16.AuthorizationStatusAccepted, "", nil)
	c.Put("TAG2", v16.AuthorizationStatusAccepted, "", nil)
	c.Lookup("TAG2") // refresh TAG2, making TAG1 the LRU victim
	c.Put("TAG3", v16.AuthorizationStatusAccepted, "", nil)

	if cached, _ := c.Lookup("TAG1"); cached {
		t.Fatal("expected TAG1 to have been evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheExpiredEntryInvalid(t *testing.T) {
	c := NewCache(fsadapter.NewMem(), "cache.json", 10)
	past := time.Now().Add(-time.Hour)
	c.Put("TAG1", v16.AuthorizationStatusAccepted, "", &past)
	cached, valid := c.Lookup("TAG1")
	if !cached || valid {
		t.Fatalf("Lookup = %v,%v want true,false (expired)", cached, valid)
	}
}

func TestCacheRoundTripsThroughCheckpoint(t *testing.T) {
	mem := fsadapter.NewMem()
	writer := NewCache(mem, "cache.json", 10)
	writer.Put("TAG1", v16.AuthorizationStatusAccepted, "", nil)

	reader := NewCache(mem, "cache.json", 10)
	if err := reader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cached, valid := reader.Lookup("TAG1")
	if !cached || !valid {
		t.Fatalf("Lookup after reload = %v,%v want true,true", cached, valid)
	}
}
