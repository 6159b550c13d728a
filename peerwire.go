package peerwire

import (
	"github.com/peerwire/peerwire-go/pkg/session"
	"github.com/peerwire/peerwire-go/pkg/transport"
)

// Version is the current version of the engine.
const Version = "0.1.0"

// Convenience exports of the core constructors.
var (
	// NewSession creates a session over a transport.
	NewSession = session.New

	// NewRegistry creates a registry for tracking concurrent sessions.
	NewRegistry = session.NewRegistry

	// NewStdioTransport creates a newline-delimited transport over the
	// process's standard streams.
	NewStdioTransport = transport.NewStdio

	// NewPipeTransports creates a connected in-process transport pair.
	NewPipeTransports = transport.Pipe

	// DialSSE connects an SSE client transport.
	DialSSE = transport.DialSSE
)
