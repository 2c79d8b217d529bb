package dictionary

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/rpc"
	"github.com/gridwire/ocpp16core/internal/transport"
)

type fakeTransport struct {
	connected bool
	sent      [][]byte
	inbox     []transport.Frame
}

func (f *fakeTransport) SendText(data []byte) bool {
	f.sent = append(f.sent, data)
	return true
}
func (f *fakeTransport) IsConnected() bool { return f.connected }
func (f *fakeTransport) Poll() []transport.Frame {
	out := f.inbox
	f.inbox = nil
	return out
}

func TestRegisterInboundDispatchesReset(t *testing.T) {
	h := v16.NewHandler(nil)
	var gotType v16.ResetType
	h.OnReset = func(stationID string, req *v16.ResetRequest) (*v16.ResetResponse, error) {
		gotType = req.Type
		return &v16.ResetResponse{Status: v16.ResetStatusAccepted}, nil
	}

	e := rpc.New(nil, time.Second, 10*time.Second)
	RegisterInbound(e, h, "CP1")

	ft := &fakeTransport{connected: true}
	ft.inbox = []transport.Frame{{
		Kind: transport.FrameText,
		Data: []byte(`[2,"1","Reset",{"type":"Hard"}]`),
	}}
	e.Step(time.Now(), ft)

	if gotType != v16.ResetType("Hard") {
		t.Fatalf("OnReset got type %q, want Hard", gotType)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected one reply frame, got %d", len(ft.sent))
	}
}

func TestRegisterInboundUnimplementedRejects(t *testing.T) {
	h := v16.NewHandler(nil)
	e := rpc.New(nil, time.Second, 10*time.Second)
	RegisterInbound(e, h, "CP1")

	ft := &fakeTransport{connected: true}
	ft.inbox = []transport.Frame{{
		Kind: transport.FrameText,
		Data: []byte(`[2,"2","ClearCache",{}]`),
	}}
	e.Step(time.Now(), ft)

	if len(ft.sent) != 1 {
		t.Fatalf("expected one reply frame, got %d", len(ft.sent))
	}
}

func TestSubmitBootNotificationRoundTrips(t *testing.T) {
	e := rpc.New(nil, time.Second, 10*time.Second)
	var result Result[v16.BootNotificationResponse]
	_, err := SubmitBootNotification(e, &v16.BootNotificationRequest{ChargePointVendor: "acme", ChargePointModel: "x1"}, 5*time.Second, func(r Result[v16.BootNotificationResponse]) {
		result = r
	})
	if err != nil {
		t.Fatalf("SubmitBootNotification: %v", err)
	}

	ft := &fakeTransport{connected: true}
	e.Step(time.Now(), ft)
	if len(ft.sent) != 1 {
		t.Fatalf("expected BootNotification.req to be sent, got %d frames", len(ft.sent))
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(ft.sent[0], &arr); err != nil || len(arr) != 4 {
		t.Fatalf("expected 4-element call array: %v", err)
	}
	var id string
	json.Unmarshal(arr[1], &id)

	resultFrame := []byte(fmt.Sprintf(`[3,%q,{"status":"Accepted","currentTime":"2026-01-01T00:00:00Z","interval":60}]`, id))
	ft.inbox = []transport.Frame{{Kind: transport.FrameText, Data: resultFrame}}
	e.Step(time.Now(), ft)

	if result.Response == nil {
		t.Fatal("expected a response")
	}
	if result.Response.Status != v16.RegistrationStatusAccepted {
		t.Fatalf("status = %v, want Accepted", result.Response.Status)
	}
}
