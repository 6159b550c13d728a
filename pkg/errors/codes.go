package errors

// JSON-RPC 2.0 standard error codes. These mirror the protocol package so
// the error taxonomy stays independent of wire types.
const (
	// CodeParseError indicates invalid JSON was received
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the payload is not a valid JSON-RPC object
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// CodeInternalError indicates an internal fault while handling a message
	CodeInternalError int = -32603
)

// Engine-specific error codes.
const (
	// Request lifecycle (-32000 to -32099)
	CodeRequestCancelled int = -32000 // In-flight request was cancelled
	CodeRequestTimeout   int = -32001 // Deadline elapsed without a response

	// Capability negotiation (-32100 to -32199)
	CodeCapabilityViolation int = -32102 // Method outside the negotiated set
	CodeVersionMismatch     int = -32103 // No mutually supported revision

	// Session lifecycle (-32200 to -32299)
	CodeSessionNotReady int = -32200 // Traffic before the handshake completed
	CodeSessionClosed   int = -32201 // Operation on a closed session
	CodeHandshakeFailed int = -32202 // Malformed or rejected initialize

	// Correlation (-32300 to -32399)
	CodeUnknownRequestID int = -32300 // Response with no matching pending request

	// Transport (-32500 to -32599)
	CodeTransportError int = -32500 // Generic send/receive failure
	CodeConnectionLost int = -32502 // Peer disconnected mid-session
)

// CodeInfo provides human-readable information about an error code.
type CodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var codeRegistry = map[int]CodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryCodec, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid JSON-RPC object", CategoryCodec, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryHandler, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryHandler, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal error handling message", CategoryHandler, SeverityError},

	CodeRequestCancelled: {CodeRequestCancelled, "RequestCancelled", "Request was cancelled", CategoryCancelled, SeverityInfo},
	CodeRequestTimeout:   {CodeRequestTimeout, "RequestTimeout", "Request deadline elapsed", CategoryTimeout, SeverityError},

	CodeCapabilityViolation: {CodeCapabilityViolation, "CapabilityViolation", "Method outside negotiated capabilities", CategoryCapability, SeverityError},
	CodeVersionMismatch:     {CodeVersionMismatch, "VersionMismatch", "No mutually supported protocol version", CategoryHandshake, SeverityCritical},

	CodeSessionNotReady: {CodeSessionNotReady, "SessionNotReady", "Session has not completed the handshake", CategoryState, SeverityError},
	CodeSessionClosed:   {CodeSessionClosed, "SessionClosed", "Session is closed", CategoryState, SeverityError},
	CodeHandshakeFailed: {CodeHandshakeFailed, "HandshakeFailed", "Initialize handshake failed", CategoryHandshake, SeverityCritical},

	CodeUnknownRequestID: {CodeUnknownRequestID, "UnknownRequestID", "Response does not match a pending request", CategoryCorrelation, SeverityWarning},

	CodeTransportError: {CodeTransportError, "TransportError", "Transport send/receive failure", CategoryTransport, SeverityCritical},
	CodeConnectionLost: {CodeConnectionLost, "ConnectionLost", "Peer disconnected", CategoryTransport, SeverityError},
}

// GetCodeInfo returns information about an error code.
func GetCodeInfo(code int) (CodeInfo, bool) {
	info, ok := codeRegistry[code]
	return info, ok
}

// CodeCategory returns the category an error code belongs to.
func CodeCategory(code int) Category {
	if info, ok := codeRegistry[code]; ok {
		return info.Category
	}
	return CategoryHandler
}

// CodeSeverity returns the severity registered for an error code.
func CodeSeverity(code int) Severity {
	if info, ok := codeRegistry[code]; ok {
		return info.Severity
	}
	return SeverityError
}
