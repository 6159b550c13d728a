package session

import (
	"strings"
	"sync"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

// negotiator holds the local side of the handshake: what this peer
// advertises, and the method-to-capability table that gates traffic after
// negotiation.
type negotiator struct {
	localInfo    protocol.PeerInfo
	localCaps    protocol.Capabilities
	instructions string

	mu           sync.RWMutex
	requirements map[string]string // method -> capability key
}

func newNegotiator(info protocol.PeerInfo, caps protocol.Capabilities, instructions string) *negotiator {
	return &negotiator{
		localInfo:    info,
		localCaps:    caps,
		instructions: instructions,
		requirements: make(map[string]string),
	}
}

// require records that a method may only be used when the negotiated set
// includes the given capability. An empty key means unrestricted.
func (n *negotiator) require(method, capability string) {
	if capability == "" {
		return
	}
	n.mu.Lock()
	n.requirements[method] = capability
	n.mu.Unlock()
}

// initializeParams builds the opening request of the initiator path.
func (n *negotiator) initializeParams() *protocol.InitializeParams {
	return &protocol.InitializeParams{
		ProtocolVersion: protocol.LatestVersion,
		Capabilities:    n.localCaps.Clone(),
		ClientInfo:      n.localInfo,
	}
}

// acceptResult validates the responder's initialize reply on the initiator
// side. The echoed version must be one this engine speaks; anything else is
// a fatal handshake error.
func (n *negotiator) acceptResult(res *protocol.InitializeResult) (protocol.Capabilities, error) {
	if !protocol.VersionSupported(res.ProtocolVersion) {
		return nil, engineerrors.VersionMismatch(protocol.LatestVersion, res.ProtocolVersion)
	}
	return protocol.Intersect(n.localCaps, res.Capabilities), nil
}

// acceptInitialize handles an inbound initialize request on the responder
// side: negotiate a version, advertise local capabilities, and return the
// intersection the session will enforce.
func (n *negotiator) acceptInitialize(params *protocol.InitializeParams) (*protocol.InitializeResult, protocol.Capabilities, error) {
	if params.ProtocolVersion == "" {
		return nil, nil, engineerrors.HandshakeFailed("initialize params missing protocolVersion")
	}

	version := protocol.NegotiateVersion(params.ProtocolVersion)
	result := &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    n.localCaps.Clone(),
		ServerInfo:      n.localInfo,
		Instructions:    n.instructions,
	}
	return result, protocol.Intersect(n.localCaps, params.Capabilities), nil
}

// allowed checks a method against the negotiated capability set. Handshake
// methods and methods with no registered requirement always pass.
func (n *negotiator) allowed(method string, negotiated protocol.Capabilities) error {
	n.mu.RLock()
	key, ok := n.requirements[method]
	n.mu.RUnlock()
	if !ok {
		return nil
	}
	if !capabilityAllowed(negotiated, key) {
		return engineerrors.CapabilityViolation(method, key)
	}
	return nil
}

// capabilityAllowed resolves a capability key against a set. "tools" checks
// the top-level flag, "resources.subscribe" checks a sub-capability.
func capabilityAllowed(caps protocol.Capabilities, key string) bool {
	if name, sub, found := strings.Cut(key, "."); found {
		return caps.SupportsSub(name, sub)
	}
	return caps.Supports(key)
}
