package protocol

// Reserved method names. Everything else is an opaque domain method routed
// through the dispatcher.
const (
	// MethodInitialize opens the handshake; valid only before the session is
	// ready.
	MethodInitialize = "initialize"

	// MethodPing is answered by every session regardless of capabilities.
	MethodPing = "ping"

	// NotificationInitialized confirms the handshake from the initiating
	// peer; receipt moves the responding session to ready.
	NotificationInitialized = "notifications/initialized"

	// NotificationCancelled asks the peer to abandon an in-flight request.
	NotificationCancelled = "notifications/cancelled"

	// NotificationProgress reports partial progress for a long-running
	// request.
	NotificationProgress = "notifications/progress"
)

// SupportedVersions lists the protocol revisions this engine speaks, newest
// first.
var SupportedVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// LatestVersion is the revision offered by an initiating peer.
const LatestVersion = "2025-06-18"

// VersionSupported reports whether the given revision is one this engine
// speaks.
func VersionSupported(version string) bool {
	for _, v := range SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

// NegotiateVersion picks the revision a responding peer should answer with:
// the requested one when supported, otherwise the newest this engine speaks.
// The initiator rejects the reply if the chosen revision is outside its own
// supported set.
func NegotiateVersion(requested string) string {
	if VersionSupported(requested) {
		return requested
	}
	return LatestVersion
}

// PeerInfo identifies an endpoint implementation.
type PeerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the body of the initialize request sent by the
// initiating peer.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ClientInfo      PeerInfo     `json:"clientInfo"`
}

// InitializeResult is the responding peer's half of the handshake.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      PeerInfo     `json:"serverInfo"`
	Instructions    string       `json:"instructions,omitempty"`
}

// InitializedParams is the (empty) body of notifications/initialized.
type InitializedParams struct{}

// CancelledParams is the body of notifications/cancelled.
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// PingParams is the optional body of a ping request.
type PingParams struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// PingResult echoes the sender's timestamp when one was provided.
type PingResult struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ProgressParams is the body of notifications/progress.
type ProgressParams struct {
	ProgressToken string  `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}
