// Package peerwire implements a bidirectional JSON-RPC 2.0 session layer:
// two symmetric peers exchange requests, responses, and notifications over
// a single transport after a capability-negotiating handshake.
//
// This package is the root of the module and re-exports the most common
// entry points. The sub-packages hold the actual machinery:
//
//   - pkg/protocol: wire types, the codec, request IDs, capability sets
//   - pkg/session: the session state machine, correlator, and dispatcher
//   - pkg/transport: pipe, stdio, WebSocket, and SSE transports
//   - pkg/errors: the structured error taxonomy
//   - pkg/logging: leveled structured logging
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Connecting two peers
//
// The initiating side opens a transport, builds a session, and runs the
// handshake:
//
//	tr := peerwire.NewStdioTransport()
//	sess := peerwire.NewSession(tr,
//		session.WithPeerInfo(protocol.PeerInfo{Name: "worker", Version: "1.0.0"}),
//		session.WithCapabilities(protocol.Capabilities{
//			"jobs": {Enabled: true},
//		}),
//	)
//	if err := sess.Start(); err != nil {
//		log.Fatal(err)
//	}
//	result, err := sess.Initialize(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The responding side registers handlers before starting; it reaches Ready
// once the initiator confirms the handshake:
//
//	sess := peerwire.NewSession(tr)
//	sess.OnRequest("jobs/run", runJob)
//	if err := sess.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// Either peer may then issue requests in both directions:
//
//	raw, err := sess.SendRequest(ctx, "jobs/run", params, 30*time.Second)
//
// # Capabilities
//
// Peers advertise capability sets during the handshake; the session
// enforces their intersection for its whole lifetime. Handlers registered
// with session.RequiresCapability are never invoked for peers outside the
// negotiated set, and outbound methods gated with
// session.WithCapabilityRequirement fail locally before touching the wire.
package peerwire
