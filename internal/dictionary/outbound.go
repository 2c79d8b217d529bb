package dictionary

import (
	"encoding/json"
	"time"

	"github.com/gridwire/ocpp16core/internal/ocpp"
	"github.com/gridwire/ocpp16core/internal/ocpp/v16"
	"github.com/gridwire/ocpp16core/internal/rpc"
)

// Result carries a Charge-Point-initiated call's outcome back to the
// caller: exactly one of Response/Err is set on a terminal callback,
// and Timedout/Aborted report the other two terminal states (a nil
// Response with a nil Err and both flags false never happens).
type Result[T any] struct {
	Response *T
	Err      error
	Timedout bool
	Aborted  bool
}

func submit[T any](engine *rpc.Engine, action v16.Action, req interface{}, policy rpc.TimeoutPolicy, timeout time.Duration, onDone func(Result[T])) (string, error) {
	return engine.Submit(string(action), req, rpc.Callbacks{
		OnResponse: func(payload json.RawMessage) {
			var resp T
			if err := json.Unmarshal(payload, &resp); err != nil {
				onDone(Result[T]{Err: err})
				return
			}
			onDone(Result[T]{Response: &resp})
		},
		OnError: func(code ocpp.ErrorCode, desc string, _ json.RawMessage) {
			onDone(Result[T]{Err: unexpectedAction(action, code, desc)})
		},
		OnTimeout: func() { onDone(Result[T]{Timedout: true}) },
		OnAbort:   func() { onDone(Result[T]{Aborted: true}) },
	}, policy, timeout)
}

// SubmitBootNotification sends a BootNotification.req; policy is
// typically TimeoutFixed since it runs before the station is considered
// online.
func SubmitBootNotification(engine *rpc.Engine, req *v16.BootNotificationRequest, timeout time.Duration, onDone func(Result[v16.BootNotificationResponse])) (string, error) {
	return submit[v16.BootNotificationResponse](engine, v16.ActionBootNotification, req, rpc.TimeoutFixed, timeout, onDone)
}

// SubmitHeartbeat sends a Heartbeat.req.
func SubmitHeartbeat(engine *rpc.Engine, timeout time.Duration, onDone func(Result[v16.HeartbeatResponse])) (string, error) {
	return submit[v16.HeartbeatResponse](engine, v16.ActionHeartbeat, struct{}{}, rpc.TimeoutOfflineSensitive, timeout, onDone)
}

// SubmitStatusNotification sends a StatusNotification.req.
func SubmitStatusNotification(engine *rpc.Engine, req *v16.StatusNotificationRequest, timeout time.Duration, onDone func(Result[v16.StatusNotificationResponse])) (string, error) {
	return submit[v16.StatusNotificationResponse](engine, v16.ActionStatusNotification, req, rpc.TimeoutOfflineSensitive, timeout, onDone)
}

// SubmitAuthorize sends an Authorize.req.
func SubmitAuthorize(engine *rpc.Engine, req *v16.AuthorizeRequest, timeout time.Duration, onDone func(Result[v16.AuthorizeResponse])) (string, error) {
	return submit[v16.AuthorizeResponse](engine, v16.ActionAuthorize, req, rpc.TimeoutFixed, timeout, onDone)
}

// SubmitStartTransaction sends a StartTransaction.req.
func SubmitStartTransaction(engine *rpc.Engine, req *v16.StartTransactionRequest, timeout time.Duration, onDone func(Result[v16.StartTransactionResponse])) (string, error) {
	return submit[v16.StartTransactionResponse](engine, v16.ActionStartTransaction, req, rpc.TimeoutOfflineSensitive, timeout, onDone)
}

// SubmitStopTransaction sends a StopTransaction.req.
func SubmitStopTransaction(engine *rpc.Engine, req *v16.StopTransactionRequest, timeout time.Duration, onDone func(Result[v16.StopTransactionResponse])) (string, error) {
	return submit[v16.StopTransactionResponse](engine, v16.ActionStopTransaction, req, rpc.TimeoutOfflineSensitive, timeout, onDone)
}

// SubmitMeterValues sends a MeterValues.req.
func SubmitMeterValues(engine *rpc.Engine, req *v16.MeterValuesRequest, timeout time.Duration, onDone func(Result[v16.MeterValuesResponse])) (string, error) {
	return submit[v16.MeterValuesResponse](engine, v16.ActionMeterValues, req, rpc.TimeoutOfflineSensitive, timeout, onDone)
}

// SubmitDataTransfer sends a Charge-Point-initiated DataTransfer.req.
func SubmitDataTransfer(engine *rpc.Engine, req *v16.DataTransferRequest, timeout time.Duration, onDone func(Result[v16.DataTransferResponse])) (string, error) {
	return submit[v16.DataTransferResponse](engine, v16.ActionDataTransfer, req, rpc.TimeoutFixed, timeout, onDone)
}

// SubmitDiagnosticsStatusNotification sends a
// DiagnosticsStatusNotification.req.
func SubmitDiagnosticsStatusNotification(engine *rpc.Engine, req *v16.DiagnosticsStatusNotificationRequest, timeout time.Duration, onDone func(Result[v16.DiagnosticsStatusNotificationResponse])) (string, error) {
	return submit[v16.DiagnosticsStatusNotificationResponse](engine, v16.ActionDiagnosticsStatusNotification, req, rpc.TimeoutFixed, timeout, onDone)
}

// SubmitFirmwareStatusNotification sends a FirmwareStatusNotification.req.
func SubmitFirmwareStatusNotification(engine *rpc.Engine, req *v16.FirmwareStatusNotificationRequest, timeout time.Duration, onDone func(Result[v16.FirmwareStatusNotificationResponse])) (string, error) {
	return submit[v16.FirmwareStatusNotificationResponse](engine, v16.ActionFirmwareStatusNotification, req, rpc.TimeoutFixed, timeout, onDone)
}
