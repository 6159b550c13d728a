// Package transport provides byte-oriented message transports for the
// session engine. A Transport moves opaque framed payloads between two
// peers; the session layer handles encoding, correlation, and lifecycle
// on top of it.
//
// Four implementations are provided:
//
//   - Pipe: an in-process pair of connected transports, used by tests
//     and embedded peers.
//   - Stdio: newline-delimited messages over standard streams, the
//     conventional transport for subprocess peers.
//   - WebSocket: one message per text frame over a WebSocket connection.
//   - SSEClient: server-sent events inbound, HTTP POST outbound.
//
// All implementations satisfy the Transport interface and report a closed
// receive channel when the peer disconnects.
package transport
