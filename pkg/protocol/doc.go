// Package protocol defines the JSON-RPC 2.0 wire representation used by the
// session engine: the message variants (request, response, notification), the
// codec that validates and classifies raw payloads, capability sets with
// intersection semantics, and the initialize handshake types.
//
// The package is transport-agnostic. It never performs I/O; it only converts
// between bytes and typed messages and enforces structural well-formedness.
package protocol
