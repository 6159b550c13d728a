// Package transport defines the boundary contract the session engine
// consumes, along with concrete implementations: an in-process pipe, a
// newline-delimited stdio transport, a WebSocket transport, and an SSE
// client transport.
//
// Transports carry opaque payloads and perform no correlation or dispatch;
// each delivery corresponds to exactly one logical message.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the transport has been closed.
var ErrClosed = errors.New("transport closed")

// Transport delivers and accepts discrete messages.
type Transport interface {
	// Send delivers one logical message to the peer.
	Send(ctx context.Context, data []byte) error

	// Receive returns the stream of inbound payloads. The channel is closed
	// when the connection ends; per-connection delivery is finite.
	Receive() <-chan []byte

	// Close tears down the connection. Safe to call multiple times.
	Close() error
}
