package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp"
	"github.com/gridwire/ocpp16core/internal/transport"
)

type fakeTransport struct {
	connected bool
	sent      [][]byte
	inbox     []transport.Frame
	refuse    bool
}

func (f *fakeTransport) SendText(data []byte) bool {
	if f.refuse {
		return false
	}
	f.sent = append(f.sent, data)
	return true
}
func (f *fakeTransport) IsConnected() bool { return f.connected }
func (f *fakeTransport) Poll() []transport.Frame {
	out := f.inbox
	f.inbox = nil
	return out
}

func TestSubmitAndResolve(t *testing.T) {
	e := New(nil, time.Second, 10*time.Second)
	var gotResp json.RawMessage
	_, err := e.Submit("Heartbeat", struct{}{}, Callbacks{
		OnResponse: func(p json.RawMessage) { gotResp = p },
	}, TimeoutFixed, 5*time.Second)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ft := &fakeTransport{connected: true}
	e.Step(time.Now(), ft)
	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(ft.sent))
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(ft.sent[0], &arr); err != nil || len(arr) != 4 {
		t.Fatalf("expected 4-element call array: %v", err)
	}
	var id string
	json.Unmarshal(arr[1], &id)

	resultFrame, _ := json.Marshal([]interface{}{3, id, map[string]string{"currentTime": "2024-01-01T00:00:00.000Z"}})
	ft.inbox = append(ft.inbox, transport.Frame{Kind: transport.FrameText, Data: resultFrame})
	e.Step(time.Now(), ft)

	if gotResp == nil {
		t.Fatal("expected OnResponse to fire")
	}
	if e.PendingCount() != 0 {
		t.Fatalf("expected queue drained, got %d", e.PendingCount())
	}
}

func TestFixedTimeoutFiresRegardlessOfConnectivity(t *testing.T) {
	e := New(nil, time.Second, 10*time.Second)
	timedOut := false
	aborted := false
	_, _ = e.Submit("Heartbeat", struct{}{}, Callbacks{
		OnTimeout: func() { timedOut = true },
		OnAbort:   func() { aborted = true },
	}, TimeoutFixed, 2*time.Second)

	ft := &fakeTransport{connected: false}
	now := time.Now()
	e.Step(now, ft)
	e.Step(now.Add(3*time.Second), ft)

	if !timedOut || !aborted {
		t.Fatalf("expected timeout+abort, got timedOut=%v aborted=%v", timedOut, aborted)
	}
}

func TestOfflineSensitiveTimeoutFreezesWhileDisconnected(t *testing.T) {
	e := New(nil, time.Second, 10*time.Second)
	timedOut := false
	_, _ = e.Submit("Heartbeat", struct{}{}, Callbacks{
		OnTimeout: func() { timedOut = true },
	}, TimeoutOfflineSensitive, 2*time.Second)

	ft := &fakeTransport{connected: false}
	now := time.Now()
	e.Step(now, ft)
	e.Step(now.Add(5*time.Second), ft)
	if timedOut {
		t.Fatal("timeout should be frozen while disconnected")
	}

	ft.connected = true
	e.Step(now.Add(5*time.Second), ft)
	e.Step(now.Add(8*time.Second), ft)
	if !timedOut {
		t.Fatal("expected timeout to resume once connected")
	}
}

func TestInboundUnknownActionRepliesNotImplemented(t *testing.T) {
	e := New(nil, time.Second, 10*time.Second)
	ft := &fakeTransport{connected: true}
	call, _ := json.Marshal([]interface{}{2, "req-1", "FooBar", map[string]string{}})
	ft.inbox = append(ft.inbox, transport.Frame{Kind: transport.FrameText, Data: call})
	e.Step(time.Now(), ft)

	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(ft.sent))
	}
	var arr []json.RawMessage
	json.Unmarshal(ft.sent[0], &arr)
	if len(arr) != 5 {
		t.Fatalf("expected a CallError (5 elements), got %d", len(arr))
	}
}

func TestInboundFIFOOrdering(t *testing.T) {
	e := New(nil, time.Second, 10*time.Second)
	e.Register("Heartbeat", func(payload json.RawMessage) (interface{}, *ocpp.CallError) {
		return map[string]string{}, nil
	})
	ft := &fakeTransport{connected: true}
	c1, _ := json.Marshal([]interface{}{2, "id-1", "Heartbeat", map[string]string{}})
	c2, _ := json.Marshal([]interface{}{2, "id-2", "Heartbeat", map[string]string{}})
	ft.inbox = append(ft.inbox, transport.Frame{Kind: transport.FrameText, Data: c1}, transport.Frame{Kind: transport.FrameText, Data: c2})
	e.Step(time.Now(), ft)

	if len(ft.sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(ft.sent))
	}
	var arr1, arr2 []json.RawMessage
	json.Unmarshal(ft.sent[0], &arr1)
	json.Unmarshal(ft.sent[1], &arr2)
	var id1, id2 string
	json.Unmarshal(arr1[1], &id1)
	json.Unmarshal(arr2[1], &id2)
	if id1 != "id-1" || id2 != "id-2" {
		t.Fatalf("expected FIFO order id-1,id-2; got %s,%s", id1, id2)
	}
}
