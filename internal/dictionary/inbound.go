// Package dictionary binds the wire-level OCPP 1.6 action names to the
// concrete request/response types and handler methods in
// internal/ocpp/v16, giving internal/rpc.Engine the per-action
// InboundHandler it dispatches Central-System-initiated Calls through
// and typed Submit helpers for the Charge-Point-initiated side.
package dictionary

import (
	"encoding/json"
	"fmt"

	"github.com/gridwire/ocpp16core/internal/ocpp"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/rpc"
)

// csInitiated lists every action the Central System may send to the
// charge point.
var csInitiated = []v16.Action{
	v16.ActionRemoteStartTransaction,
	v16.ActionRemoteStopTransaction,
	v16.ActionReset,
	v16.ActionUnlockConnector,
	v16.ActionChangeAvailability,
	v16.ActionChangeConfiguration,
	v16.ActionGetConfiguration,
	v16.ActionClearCache,
	v16.ActionDataTransfer,
	v16.ActionSetChargingProfile,
	v16.ActionClearChargingProfile,
	v16.ActionGetCompositeSchedule,
	v16.ActionTriggerMessage,
	v16.ActionReserveNow,
	v16.ActionCancelReservation,
	v16.ActionGetDiagnostics,
	v16.ActionUpdateFirmware,
	v16.ActionGetLocalListVersion,
	v16.ActionSendLocalList,
}

// RegisterInbound wires every CS-initiated action into engine's
// dictionary, adapting handler's stationID-keyed HandleCall into the
// single-station payload-in/payload-out shape internal/rpc.Engine
// expects. handler's On* callback fields still carry the actual
// operation semantics; RegisterInbound only bridges dispatch.
func RegisterInbound(engine *rpc.Engine, handler *v16.Handler, stationID string) {
	for _, action := range csInitiated {
		engine.Register(string(action), inboundAdapter(handler, stationID, action))
	}
}

func inboundAdapter(handler *v16.Handler, stationID string, action v16.Action) rpc.InboundHandler {
	return func(payload json.RawMessage) (interface{}, *ocpp.CallError) {
		call := &ocpp.Call{Action: string(action), Payload: payload}
		resp, err := handler.HandleCall(stationID, call)
		if err != nil {
			ce, _ := ocpp.NewCallError("", ocpp.ErrorCodeFormationViolation, err.Error(), nil)
			return nil, ce
		}
		return resp, nil
	}
}

// unexpectedAction is returned by Submit* wrappers when the engine
// reports a transport-level error reply with no typed payload to parse.
func unexpectedAction(action v16.Action, code ocpp.ErrorCode, desc string) error {
	return fmt.Errorf("dictionary: %s rejected: %s: %s", action, code, desc)
}
