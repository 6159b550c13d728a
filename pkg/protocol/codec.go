package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeError describes a malformed inbound payload. It carries the JSON-RPC
// error code a peer would receive if the failure could be attributed to a
// request id.
type DecodeError struct {
	Code   ErrorCode
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed (code %d): %s", e.Code, e.Reason)
}

func decodeErrorf(code ErrorCode, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// envelope captures the raw top-level members of a JSON-RPC object so the
// codec can classify it before committing to a variant. Unknown members are
// ignored for forward compatibility.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Encode converts a typed message to its JSON-RPC 2.0 textual form.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request, *Response, *Notification:
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
}

// Decode validates a raw payload and converts it into exactly one message
// variant. Failures return a *DecodeError and never panic; callers surface
// them as protocol-error events rather than crashing the session.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErrorf(ParseError, "invalid JSON: %v", err)
	}

	if env.JSONRPC != JSONRPCVersion {
		return nil, decodeErrorf(InvalidRequest, "jsonrpc version must be %q, got %q", JSONRPCVersion, env.JSONRPC)
	}

	idPresent := len(env.ID) > 0
	idNull := idPresent && bytes.Equal(env.ID, []byte("null"))
	hasID := idPresent && !idNull
	hasResult := len(env.Result) > 0
	hasError := env.Error != nil

	switch {
	case env.Method != "" && idNull:
		// An explicit null id is not a notification; it is a malformed
		// request the sender cannot be answered on.
		return nil, decodeErrorf(InvalidRequest, "request id must be a string or integer, not null")

	case env.Method != "" && !hasID:
		if hasResult || hasError {
			return nil, decodeErrorf(InvalidRequest, "notification cannot carry result or error")
		}
		return &Notification{
			JSONRPC: env.JSONRPC,
			Method:  env.Method,
			Params:  env.Params,
		}, nil

	case env.Method != "":
		if hasResult || hasError {
			return nil, decodeErrorf(InvalidRequest, "request cannot carry result or error")
		}
		id, err := decodeID(env.ID)
		if err != nil {
			return nil, err
		}
		return &Request{
			JSONRPC: env.JSONRPC,
			ID:      id,
			Method:  env.Method,
			Params:  env.Params,
		}, nil

	case hasResult || hasError:
		if hasResult && hasError {
			return nil, decodeErrorf(InvalidRequest, "response must carry exactly one of result and error")
		}
		if !hasID {
			return nil, decodeErrorf(InvalidRequest, "response is missing an id")
		}
		id, err := decodeID(env.ID)
		if err != nil {
			return nil, err
		}
		return &Response{
			JSONRPC: env.JSONRPC,
			ID:      id,
			Result:  env.Result,
			Error:   env.Error,
		}, nil

	default:
		return nil, decodeErrorf(InvalidRequest, "message has neither method nor result/error")
	}
}

func decodeID(raw json.RawMessage) (RequestID, error) {
	var id RequestID
	if err := json.Unmarshal(raw, &id); err != nil {
		return RequestID{}, decodeErrorf(InvalidRequest, "%v", err)
	}
	return id, nil
}
