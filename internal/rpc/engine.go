// Package rpc implements the OCPP-J RPC engine: a single FIFO outbound
// queue with retry/backoff and offline-sensitive timeouts, and an ordered
// inbound dispatcher that answers calls in arrival order. Every method is
// driven from Step and must never block.
package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp"
	"github.com/gridwire/ocpp16core/internal/transport"
)

// TimeoutPolicy selects how a pending outbound call's clock behaves
// while the transport is disconnected.
type TimeoutPolicy int

const (
	// TimeoutFixed ticks regardless of connectivity.
	TimeoutFixed TimeoutPolicy = iota
	// TimeoutOfflineSensitive freezes while the transport is disconnected.
	TimeoutOfflineSensitive
)

// Callbacks are invoked by the engine as an outbound call resolves.
// At most one of OnResponse/OnError fires, and OnTimeout/OnAbort may
// follow a timeout; an explicit Abort always fires OnAbort alone.
type Callbacks struct {
	OnResponse func(payload json.RawMessage)
	OnError    func(code ocpp.ErrorCode, desc string, details json.RawMessage)
	OnTimeout  func()
	OnAbort    func()
}

// InboundHandler implements one Central-System-initiated operation. A
// non-nil CallError short-circuits to an error frame; otherwise resp is
// marshalled as the CallResult payload.
type InboundHandler func(payload json.RawMessage) (resp interface{}, callErr *ocpp.CallError)

type outboundCall struct {
	id      string
	action  string
	payload json.RawMessage
	cb      Callbacks

	policy  TimeoutPolicy
	timeout time.Duration
	elapsed time.Duration

	attempts      int
	retryInterval time.Duration
	nextAttemptAt time.Time
}

type pendingInbound struct {
	id       string
	response interface{ ToBytes() ([]byte, error) }
	ready    bool
}

// Engine is the RPC engine. It owns no transport; Step is handed one
// each tick so the same engine can survive a transport swap.
type Engine struct {
	logger *slog.Logger

	dictionary map[string]InboundHandler

	outbound []*outboundCall
	inbound  []*pendingInbound

	retryBase time.Duration
	retryMax  time.Duration

	lastTick time.Time

	droppedUnknownResults int
}

// New creates an empty Engine. retryBase/retryMax bound the backoff
// applied to unanswered outbound calls.
func New(logger *slog.Logger, retryBase, retryMax time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if retryBase <= 0 {
		retryBase = 2 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 60 * time.Second
	}
	return &Engine{
		logger:     logger,
		dictionary: make(map[string]InboundHandler),
		retryBase:  retryBase,
		retryMax:   retryMax,
	}
}

// Register binds an inbound handler to an action name. Re-registering an
// action replaces its handler.
func (e *Engine) Register(action string, handler InboundHandler) {
	e.dictionary[action] = handler
}

// Submit enqueues an outbound call. The returned id is also the OCPP-J
// messageId and is unique for the process lifetime.
func (e *Engine) Submit(action string, payload interface{}, cb Callbacks, policy TimeoutPolicy, timeout time.Duration) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("rpc: marshal %s payload: %w", action, err)
	}
	oc := &outboundCall{
		id:      ocpp.GenerateMessageID(),
		action:  action,
		payload: body,
		cb:      cb,
		policy:  policy,
		timeout: timeout,
	}
	e.outbound = append(e.outbound, oc)
	return oc.id, nil
}

// Abort cancels a queued call by id, firing OnAbort. No-op if unknown.
func (e *Engine) Abort(id string) {
	for i, oc := range e.outbound {
		if oc.id == id {
			e.removeOutbound(i)
			if oc.cb.OnAbort != nil {
				oc.cb.OnAbort()
			}
			return
		}
	}
}

// PendingCount reports the outbound queue depth, for diagnostics/tests.
func (e *Engine) PendingCount() int { return len(e.outbound) }

// Step advances the engine by one tick: drains transport frames, pumps
// the outbound queue head, ticks timeouts, and flushes any inbound
// responses that have become ready, in arrival order.
func (e *Engine) Step(now time.Time, t transport.Transport) {
	if e.lastTick.IsZero() {
		e.lastTick = now
	}
	dt := now.Sub(e.lastTick)
	e.lastTick = now

	for _, f := range t.Poll() {
		e.handleFrame(f)
	}

	connected := t.IsConnected()
	e.pumpOutbound(now, t)
	e.tickTimeouts(dt, connected)
	e.drainInbound(t)
}

func (e *Engine) handleFrame(f transport.Frame) {
	switch f.Kind {
	case transport.FrameConnected:
		e.logger.Info("rpc: transport connected")
	case transport.FrameDisconnected:
		e.logger.Info("rpc: transport disconnected")
	case transport.FrameText:
		e.handleInbound(f.Data)
	case transport.FrameBinary:
		e.logger.Warn("rpc: rejecting binary frame")
	case transport.FrameFragment:
		e.logger.Warn("rpc: rejecting fragment frame")
	case transport.FramePing, transport.FramePong:
		// transport layer already answers at the WebSocket control-frame
		// level; nothing to do at the RPC layer.
	}
}

// maxInboundFrameBytes bounds how large an inbound frame this engine
// will attempt to deserialise; an oversized frame is rejected with
// OutOfMemory instead of risking an unbounded decode allocation.
const maxInboundFrameBytes = 256 * 1024

func (e *Engine) handleInbound(data []byte) {
	if len(data) > maxInboundFrameBytes {
		id, ok := ocpp.RecoverMessageID(data)
		if !ok {
			e.logger.Warn("rpc: dropping oversized unparsable frame", "size", len(data))
			return
		}
		ce, _ := ocpp.NewCallError(id, ocpp.ErrorCodeOutOfMemory, "payload exceeds size ceiling", nil)
		e.inbound = append(e.inbound, &pendingInbound{id: id, response: ce, ready: true})
		return
	}
	msg, err := ocpp.ParseMessage(data)
	if err != nil {
		id, ok := ocpp.RecoverMessageID(data)
		if !ok {
			e.logger.Warn("rpc: dropping unparsable frame", "error", err)
			return
		}
		ce, _ := ocpp.NewCallError(id, ocpp.ErrorCodeProtocolError, "malformed payload", nil)
		e.inbound = append(e.inbound, &pendingInbound{id: id, response: ce, ready: true})
		return
	}

	switch m := msg.(type) {
	case *ocpp.Call:
		e.handleCall(m)
	case *ocpp.CallResult:
		e.resolveOutbound(m.UniqueID, m.Payload, "", "")
	case *ocpp.CallError:
		e.resolveOutboundError(m.UniqueID, m.ErrorCode, m.ErrorDesc, m.ErrorDetails)
	}
}

func (e *Engine) handleCall(call *ocpp.Call) {
	pending := &pendingInbound{id: call.UniqueID}
	e.inbound = append(e.inbound, pending)

	handler, ok := e.dictionary[call.Action]
	if !ok {
		ce, _ := ocpp.NewCallError(call.UniqueID, ocpp.ErrorCodeNotImplemented, "unknown action: "+call.Action, nil)
		pending.response = ce
		pending.ready = true
		return
	}

	resp, callErr := handler(call.Payload)
	if callErr != nil {
		callErr.UniqueID = call.UniqueID
		pending.response = callErr
	} else {
		cr, err := ocpp.NewCallResult(call.UniqueID, resp)
		if err != nil {
			ce, _ := ocpp.NewCallError(call.UniqueID, ocpp.ErrorCodeInternalError, "failed to marshal response", nil)
			pending.response = ce
		} else {
			pending.response = cr
		}
	}
	pending.ready = true
}

func (e *Engine) drainInbound(t transport.Transport) {
	for len(e.inbound) > 0 && e.inbound[0].ready {
		p := e.inbound[0]
		data, err := p.response.ToBytes()
		if err != nil {
			e.logger.Error("rpc: failed to serialise inbound response", "error", err)
			e.inbound = e.inbound[1:]
			continue
		}
		if !t.SendText(data) {
			// Back-pressure: leave at the head, retry next step.
			return
		}
		e.inbound = e.inbound[1:]
	}
}

func (e *Engine) resolveOutbound(id string, payload json.RawMessage, _ ocpp.ErrorCode, _ string) {
	if len(e.outbound) == 0 || e.outbound[0].id != id {
		e.droppedUnknownResults++
		e.logger.Warn("rpc: dropping result for unknown or out-of-order id", "id", id)
		return
	}
	oc := e.outbound[0]
	e.removeOutbound(0)
	if oc.cb.OnResponse != nil {
		oc.cb.OnResponse(payload)
	}
}

func (e *Engine) resolveOutboundError(id string, code ocpp.ErrorCode, desc string, details json.RawMessage) {
	if len(e.outbound) == 0 || e.outbound[0].id != id {
		e.droppedUnknownResults++
		e.logger.Warn("rpc: dropping error for unknown or out-of-order id", "id", id)
		return
	}
	oc := e.outbound[0]
	e.removeOutbound(0)
	if oc.cb.OnError != nil {
		oc.cb.OnError(code, desc, details)
	}
}

func (e *Engine) pumpOutbound(now time.Time, t transport.Transport) {
	if len(e.outbound) == 0 {
		return
	}
	head := e.outbound[0]
	if head.attempts > 0 && now.Before(head.nextAttemptAt) {
		return
	}

	call := &ocpp.Call{UniqueID: head.id, Action: head.action, Payload: head.payload}
	data, err := call.ToBytes()
	if err != nil {
		e.logger.Error("rpc: failed to serialise outbound call", "error", err)
		return
	}
	if !t.SendText(data) {
		return
	}

	head.attempts++
	if head.retryInterval == 0 {
		head.retryInterval = e.retryBase
	} else {
		head.retryInterval *= 2
		if head.retryInterval > e.retryMax {
			head.retryInterval = e.retryMax
		}
	}
	head.nextAttemptAt = now.Add(head.retryInterval)
}

func (e *Engine) tickTimeouts(dt time.Duration, connected bool) {
	for i := 0; i < len(e.outbound); i++ {
		oc := e.outbound[i]
		if oc.timeout <= 0 {
			continue
		}
		if oc.policy == TimeoutOfflineSensitive && !connected {
			continue
		}
		oc.elapsed += dt
		if oc.elapsed >= oc.timeout {
			e.removeOutbound(i)
			if oc.cb.OnTimeout != nil {
				oc.cb.OnTimeout()
			}
			if oc.cb.OnAbort != nil {
				oc.cb.OnAbort()
			}
			return
		}
	}
}

func (e *Engine) removeOutbound(i int) {
	e.outbound = append(e.outbound[:i], e.outbound[i+1:]...)
}
