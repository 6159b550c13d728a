// Package session implements the engine core: the session state machine,
// request correlation, capability negotiation, and handler dispatch over a
// transport.
//
// A Session is symmetric. Either peer may issue requests and notifications
// once the handshake completes; the initiator/responder distinction exists
// only during initialization. Construct a Session with New, register
// handlers, call Start, and on the initiating side call Initialize:
//
//	sess := session.New(tr,
//		session.WithPeerInfo(protocol.PeerInfo{Name: "worker", Version: "1.0.0"}),
//		session.WithCapabilities(caps),
//	)
//	sess.OnRequest("jobs/run", runJob)
//	if err := sess.Start(); err != nil { ... }
//	result, err := sess.Initialize(ctx)
//
// Multiple concurrent sessions are tracked by a Registry.
package session
