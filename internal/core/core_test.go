package core

import (
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/transport"
)

// fakeTransport mirrors dictionary_test.go's double: no network, just a
// queue of inbound frames and a record of what was sent.
type fakeTransport struct {
	connected bool
	sent      [][]byte
	inbox     []transport.Frame
}

func (f *fakeTransport) SendText(data []byte) bool {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return true
}
func (f *fakeTransport) IsConnected() bool { return f.connected }
func (f *fakeTransport) Poll() []transport.Frame {
	out := f.inbox
	f.inbox = nil
	return out
}

// fakeClock is a settable clock.Clock for deterministic Step sequencing.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time       { return c.now }
func (c *fakeClock) UptimeMillis() int64  { return c.now.UnixMilli() }
func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestSystem(t *testing.T) (*System, *fakeTransport, *fakeClock) {
	t.Helper()
	ft := &fakeTransport{connected: true}
	fc := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sys, err := New(Options{
		Clock:        fc,
		FS:           fsadapter.NewMem(),
		Transport:    ft,
		StationID:    "CP1",
		Credentials:  Credentials{ChargePointVendor: "acme", ChargePointModel: "x1"},
		ConnectorIDs: []int{1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys, ft, fc
}
