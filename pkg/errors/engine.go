package errors

import (
	"fmt"
	"time"
)

// CorrelationErrorData describes a response that could not be matched to a
// pending request.
type CorrelationErrorData struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason,omitempty"`
}

// TimeoutErrorData describes a request that outlived its deadline.
type TimeoutErrorData struct {
	Method  string `json:"method"`
	Timeout string `json:"timeout"`
}

// CapabilityErrorData describes a method used outside the negotiated set.
type CapabilityErrorData struct {
	Method     string `json:"method"`
	Capability string `json:"capability"`
	Direction  string `json:"direction,omitempty"`
}

// HandshakeErrorData describes why the initialize exchange failed.
type HandshakeErrorData struct {
	LocalVersion string `json:"local_version,omitempty"`
	PeerVersion  string `json:"peer_version,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Codec errors

// CodecError wraps a decode failure of an inbound payload. Recovered
// locally and reported as a protocol-error event; never fatal.
func CodecError(err error) EngineError {
	return Wrap(err, CodeParseError, "malformed inbound message")
}

// Correlation errors

// UnknownRequestID creates the error logged when a response arrives for an
// id that was never issued.
func UnknownRequestID(id string) EngineError {
	return Newf(CodeUnknownRequestID, "no pending request with id %s", id).
		WithData(&CorrelationErrorData{RequestID: id})
}

// AlreadyResolved creates the error for a resolution attempt on an issued id
// that has already completed via response, timeout, or cancellation.
func AlreadyResolved(id string) EngineError {
	return Newf(CodeUnknownRequestID, "request %s already resolved", id).
		WithData(&CorrelationErrorData{RequestID: id, Reason: "duplicate resolution"})
}

// Handshake errors are always fatal to the session.

// VersionMismatch creates the error for peers with no shared protocol
// revision.
func VersionMismatch(local, peer string) EngineError {
	return Newf(CodeVersionMismatch, "no mutually supported protocol version (local %s, peer %s)", local, peer).
		WithData(&HandshakeErrorData{LocalVersion: local, PeerVersion: peer})
}

// HandshakeFailed creates the error for a malformed or rejected initialize
// exchange.
func HandshakeFailed(reason string) EngineError {
	return New(CodeHandshakeFailed, "initialize handshake failed").
		WithDetail(reason).
		WithData(&HandshakeErrorData{Reason: reason})
}

// Request lifecycle errors

// RequestTimeout creates the error resolving a pending request whose
// deadline elapsed.
func RequestTimeout(method string, timeout time.Duration) EngineError {
	return Newf(CodeRequestTimeout, "%s request timed out after %s", method, timeout).
		WithData(&TimeoutErrorData{Method: method, Timeout: timeout.String()})
}

// RequestCancelled creates the error resolving a request cancelled by the
// local caller or by session closure.
func RequestCancelled(method, reason string) EngineError {
	return Newf(CodeRequestCancelled, "%s request cancelled: %s", method, reason)
}

// Capability errors

// CapabilityViolation creates the error for a method tied to a capability
// absent from the negotiated intersection.
func CapabilityViolation(method, capability string) EngineError {
	return Newf(CodeCapabilityViolation, "method %s requires capability %q which was not negotiated", method, capability).
		WithData(&CapabilityErrorData{Method: method, Capability: capability})
}

// Handler errors

// MethodNotFoundError creates the error synthesized for unknown methods.
func MethodNotFoundError(method string) EngineError {
	return Newf(CodeMethodNotFound, "method not found: %s", method)
}

// HandlerFailure wraps a domain handler error so it can cross the wire as an
// error response; non-fatal to the session.
func HandlerFailure(method string, err error) EngineError {
	if ee, ok := AsEngineError(err); ok {
		return ee
	}
	return Wrap(err, CodeInternalError, fmt.Sprintf("handler for %s failed", method))
}

// HandlerPanic creates the error produced when a handler panics. The panic
// value is reported in the message; the stack stays in the local log.
func HandlerPanic(method string, recovered interface{}) EngineError {
	return Newf(CodeInternalError, "internal error processing %s", method).
		WithDetail(fmt.Sprintf("panic: %v", recovered))
}

// Session lifecycle errors

// SessionNotReady creates the error for traffic attempted before the
// handshake completed.
func SessionNotReady(state, method string) EngineError {
	return Newf(CodeSessionNotReady, "cannot send %s while session is %s", method, state)
}

// SessionClosedError creates the error returned by operations on a closed
// session.
func SessionClosedError() EngineError {
	return New(CodeSessionClosed, "session closed")
}

// Transport errors are fatal: the channel is presumed broken.

// TransportFailure wraps a send/receive failure.
func TransportFailure(op string, err error) EngineError {
	return Wrap(err, CodeTransportError, fmt.Sprintf("transport %s failed", op))
}

// ConnectionLost creates the error for a peer disconnect.
func ConnectionLost() EngineError {
	return New(CodeConnectionLost, "peer disconnected")
}
