// Package ocpp implements the OCPP-J wire envelope: the three message
// shapes ([2,id,action,payload], [3,id,payload], [4,id,code,desc,details])
// that every higher-level operation in internal/ocpp/v16 rides on.
package ocpp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	// MessageTypeCall is a request, in either direction.
	// Format: [2, "uniqueId", "Action", {payload}]
	MessageTypeCall MessageType = 2

	// MessageTypeCallResult is a successful response.
	// Format: [3, "uniqueId", {payload}]
	MessageTypeCallResult MessageType = 3

	// MessageTypeCallError is an error response.
	// Format: [4, "uniqueId", "ErrorCode", "ErrorDescription", {errorDetails}]
	MessageTypeCallError MessageType = 4
)

// ErrorCode enumerates the OCPP 1.6 RPC framework error codes (not to
// be confused with OCPP operation-level status strings).
type ErrorCode string

const (
	ErrorCodeNotImplemented                ErrorCode = "NotImplemented"
	ErrorCodeNotSupported                  ErrorCode = "NotSupported"
	ErrorCodeInternalError                 ErrorCode = "InternalError"
	ErrorCodeProtocolError                 ErrorCode = "ProtocolError"
	ErrorCodeSecurityError                 ErrorCode = "SecurityError"
	ErrorCodeFormationViolation            ErrorCode = "FormationViolation"
	ErrorCodePropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrorCodeOccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	ErrorCodeTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	ErrorCodeGenericError                  ErrorCode = "GenericError"
	// ErrorCodeOutOfMemory is raised when a payload can't be
	// deserialised within the configured memory ceiling.
	ErrorCodeOutOfMemory ErrorCode = "OutOfMemory"
)

// Call is an OCPP-J request message, in either direction.
type Call struct {
	UniqueID string
	Action   string
	Payload  json.RawMessage

	// Timestamp is never serialised onto the wire; NewCall and
	// ParseMessage leave it zero.
	Timestamp time.Time
}

// CallResult is a successful response.
type CallResult struct {
	UniqueID string
	Payload  json.RawMessage
}

// CallError is an error response.
type CallError struct {
	UniqueID     string
	ErrorCode    ErrorCode
	ErrorDesc    string
	ErrorDetails json.RawMessage
}

// NewCall builds a Call, marshalling payload and assigning a fresh
// unique message ID.
func NewCall(action string, payload interface{}) (*Call, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: marshal %s payload: %w", action, err)
	}
	return &Call{
		UniqueID: GenerateMessageID(),
		Action:   action,
		Payload:  body,
	}, nil
}

// NewCallResult builds a CallResult replying to uniqueID.
func NewCallResult(uniqueID string, payload interface{}) (*CallResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: marshal result payload: %w", err)
	}
	return &CallResult{UniqueID: uniqueID, Payload: body}, nil
}

// NewCallError builds a CallError replying to uniqueID. A nil details
// value serialises as "{}", matching OCPP-J's requirement that
// errorDetails always be an object.
func NewCallError(uniqueID string, code ErrorCode, desc string, details interface{}) (*CallError, error) {
	raw := json.RawMessage("{}")
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("ocpp: marshal error details: %w", err)
		}
		raw = b
	}
	return &CallError{UniqueID: uniqueID, ErrorCode: code, ErrorDesc: desc, ErrorDetails: raw}, nil
}

// MarshalJSON renders the Call as the 4-element OCPP-J array.
func (c *Call) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCall, c.UniqueID, c.Action, c.Payload})
}

// UnmarshalJSON parses a 4-element OCPP-J Call array.
func (c *Call) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("ocpp: call must have 4 elements, got %d", len(arr))
	}
	var msgType MessageType
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return err
	}
	if msgType != MessageTypeCall {
		return fmt.Errorf("ocpp: expected call type %d, got %d", MessageTypeCall, msgType)
	}
	if err := json.Unmarshal(arr[1], &c.UniqueID); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[2], &c.Action); err != nil {
		return err
	}
	c.Payload = arr[3]
	return nil
}

func (cr *CallResult) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCallResult, cr.UniqueID, cr.Payload})
}

func (cr *CallResult) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("ocpp: call result must have 3 elements, got %d", len(arr))
	}
	var msgType MessageType
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return err
	}
	if msgType != MessageTypeCallResult {
		return fmt.Errorf("ocpp: expected result type %d, got %d", MessageTypeCallResult, msgType)
	}
	if err := json.Unmarshal(arr[1], &cr.UniqueID); err != nil {
		return err
	}
	cr.Payload = arr[2]
	return nil
}

func (ce *CallError) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{MessageTypeCallError, ce.UniqueID, ce.ErrorCode, ce.ErrorDesc, ce.ErrorDetails})
}

func (ce *CallError) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 5 {
		return fmt.Errorf("ocpp: call error must have 5 elements, got %d", len(arr))
	}
	var msgType MessageType
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return err
	}
	if msgType != MessageTypeCallError {
		return fmt.Errorf("ocpp: expected error type %d, got %d", MessageTypeCallError, msgType)
	}
	if err := json.Unmarshal(arr[1], &ce.UniqueID); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[2], &ce.ErrorCode); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[3], &ce.ErrorDesc); err != nil {
		return err
	}
	ce.ErrorDetails = arr[4]
	return nil
}

func (c *Call) ToBytes() ([]byte, error)        { return json.Marshal(c) }
func (cr *CallResult) ToBytes() ([]byte, error) { return json.Marshal(cr) }
func (ce *CallError) ToBytes() ([]byte, error)  { return json.Marshal(ce) }

// ParseMessage decodes a raw frame into a *Call, *CallResult, or
// *CallError, dispatching on the leading message type.
func ParseMessage(data []byte) (interface{}, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("ocpp: invalid frame: %w", err)
	}
	if len(arr) < 3 {
		return nil, fmt.Errorf("ocpp: frame too short: %d elements", len(arr))
	}
	var msgType MessageType
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return nil, fmt.Errorf("ocpp: invalid message type: %w", err)
	}
	switch msgType {
	case MessageTypeCall:
		var c Call
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("ocpp: invalid call: %w", err)
		}
		return &c, nil
	case MessageTypeCallResult:
		var cr CallResult
		if err := json.Unmarshal(data, &cr); err != nil {
			return nil, fmt.Errorf("ocpp: invalid call result: %w", err)
		}
		return &cr, nil
	case MessageTypeCallError:
		var ce CallError
		if err := json.Unmarshal(data, &ce); err != nil {
			return nil, fmt.Errorf("ocpp: invalid call error: %w", err)
		}
		return &ce, nil
	default:
		return nil, fmt.Errorf("ocpp: unknown message type %d", msgType)
	}
}

// RecoverMessageID performs a "minimal re-parse" for when a frame fails
// full validation: it only needs the array's second element to still
// reply with a ProtocolError against the right uniqueId. Returns
// ok=false if even that can't be recovered.
func RecoverMessageID(data []byte) (id string, ok bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil || len(arr) < 2 {
		return "", false
	}
	if err := json.Unmarshal(arr[1], &id); err != nil {
		return "", false
	}
	return id, true
}

// GenerateMessageID returns a fresh, process-wide-unique message ID.
func GenerateMessageID() string {
	return uuid.New().String()
}
