package errors

import (
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

// ToWireError converts any error to a JSON-RPC error object. Non-engine
// errors are wrapped as internal errors so raw faults never cross the
// transport boundary.
func ToWireError(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	if ee, ok := AsEngineError(err); ok {
		return &protocol.Error{
			Code:    protocol.ErrorCode(ee.Code()),
			Message: ee.Message(),
			Data:    ee.Data(),
		}
	}

	return &protocol.Error{
		Code:    protocol.ErrorCode(CodeInternalError),
		Message: err.Error(),
	}
}

// FromWireError converts a received JSON-RPC error object into an
// EngineError, classifying it through the code registry.
func FromWireError(wireErr *protocol.Error) EngineError {
	if wireErr == nil {
		return nil
	}

	ee := New(int(wireErr.Code), wireErr.Message)
	if wireErr.Data != nil {
		ee = ee.WithData(wireErr.Data)
	}
	return ee
}

// ToErrorResponse builds the error response sent back for a failed inbound
// request.
func ToErrorResponse(id protocol.RequestID, err error) *protocol.Response {
	wireErr := ToWireError(err)
	return protocol.NewErrorResponse(id, wireErr.Code, wireErr.Message, wireErr.Data)
}
