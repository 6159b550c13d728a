// Package pkg groups the engine's component packages.
//
//   - protocol: JSON-RPC 2.0 wire types, the codec, and capability sets
//   - session: the session state machine, correlator, negotiator, dispatcher
//   - transport: pipe, stdio, WebSocket, and SSE transports
//   - errors: the structured error taxonomy
//   - logging: leveled structured logging
//   - observability: Prometheus metrics and OpenTelemetry tracing
//   - utils: shared test helpers
package pkg
