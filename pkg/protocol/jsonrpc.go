package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the fixed protocol literal carried by every message.
	JSONRPCVersion = "2.0"
)

// ErrorCode represents a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard error codes as per the JSON-RPC 2.0 specification.
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// Engine-specific error codes, grouped by concern in the -32000 range.
const (
	// RequestCancelled indicates an in-flight request was cancelled.
	RequestCancelled ErrorCode = -32000
	// RequestTimeout indicates a request deadline elapsed without a response.
	RequestTimeout ErrorCode = -32001
	// CapabilityViolation indicates a method was used outside the negotiated
	// capability set.
	CapabilityViolation ErrorCode = -32102
	// VersionMismatch indicates the peers share no protocol version.
	VersionMismatch ErrorCode = -32103
	// SessionNotReady indicates a non-handshake message was sent or received
	// before the session reached the ready state.
	SessionNotReady ErrorCode = -32200
	// SessionClosed indicates an operation was attempted on a closed session.
	SessionClosed ErrorCode = -32201
)

// Message is the tagged union over the three JSON-RPC message variants.
// Exactly *Request, *Response, and *Notification implement it.
type Message interface {
	message()
}

// Request is a JSON-RPC 2.0 request. ID is always present; Notification
// covers the id-less form.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (*Request) message() {}

// NewRequest creates a request with marshaled params.
func NewRequest(id RequestID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// Response is a JSON-RPC 2.0 response carrying exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (*Response) message() {}

// NewResponse creates a success response with marshaled result.
func NewResponse(id RequestID, result interface{}) (*Response, error) {
	resultJSON, err := marshalOptional(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if resultJSON == nil {
		// JSON-RPC requires the result member on success responses.
		resultJSON = json.RawMessage(`null`)
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id RequestID, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// Notification is a JSON-RPC 2.0 notification; it never carries an id and
// never receives a response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (*Notification) message() {}

// NewNotification creates a notification with marshaled params.
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so wire errors can travel through
// Go error returns.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: code = %d desc = %s", e.Code, e.Message)
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
