package session

import (
	"sync"

	"github.com/peerwire/peerwire-go/pkg/protocol"
)

// PeerContext carries what a session knows about its remote peer. It is
// populated during the handshake and handed to every handler invocation.
// Handlers must treat it as read-only.
type PeerContext struct {
	// PeerID identifies the peer within a Registry.
	PeerID string

	mu              sync.RWMutex
	info            protocol.PeerInfo
	capabilities    protocol.Capabilities
	protocolVersion string
	state           func() State
}

// Info returns the peer's self-description from the handshake. The zero
// value is returned before the handshake completes.
func (pc *PeerContext) Info() protocol.PeerInfo {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.info
}

// Capabilities returns the negotiated capability set, the intersection of
// both peers' advertised sets. Empty before the handshake completes.
func (pc *PeerContext) Capabilities() protocol.Capabilities {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.capabilities.Clone()
}

// ProtocolVersion returns the negotiated protocol revision.
func (pc *PeerContext) ProtocolVersion() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.protocolVersion
}

// State reports the owning session's current lifecycle state.
func (pc *PeerContext) State() State {
	if pc.state == nil {
		return Uninitialized
	}
	return pc.state()
}

// Supports reports whether the negotiated set includes a capability. The
// key is either a bare name ("tools") or dotted ("resources.subscribe").
func (pc *PeerContext) Supports(key string) bool {
	pc.mu.RLock()
	caps := pc.capabilities
	pc.mu.RUnlock()
	return capabilityAllowed(caps, key)
}

func (pc *PeerContext) setNegotiated(info protocol.PeerInfo, caps protocol.Capabilities, version string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.info = info
	pc.capabilities = caps
	pc.protocolVersion = version
}
