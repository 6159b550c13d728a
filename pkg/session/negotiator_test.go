package session

import (
	"testing"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

func TestNegotiatorAcceptResultRejectsUnknownVersion(t *testing.T) {
	n := newNegotiator(protocol.PeerInfo{Name: "a"}, protocol.Capabilities{}, "")

	_, err := n.acceptResult(&protocol.InitializeResult{ProtocolVersion: "2099-01-01"})
	if !engineerrors.IsCode(err, engineerrors.CodeVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if !engineerrors.IsFatal(err) {
		t.Fatal("handshake errors must be fatal")
	}
}

func TestNegotiatorAdvertisesPeerInfo(t *testing.T) {
	info := protocol.PeerInfo{Name: "alpha", Version: "1.2.3"}
	n := newNegotiator(info, protocol.Capabilities{}, "")

	params := n.initializeParams()
	if params.ClientInfo != info {
		t.Fatalf("expected client info %+v, got %+v", info, params.ClientInfo)
	}

	result, _, err := n.acceptInitialize(&protocol.InitializeParams{
		ProtocolVersion: protocol.LatestVersion,
	})
	if err != nil {
		t.Fatalf("acceptInitialize: %v", err)
	}
	if result.ServerInfo != info {
		t.Fatalf("expected server info %+v, got %+v", info, result.ServerInfo)
	}
}

func TestNegotiatorAcceptInitializeFallsBackToLatest(t *testing.T) {
	n := newNegotiator(protocol.PeerInfo{Name: "b"}, protocol.Capabilities{}, "")

	// Unknown requested version: offer our latest and let the peer decide.
	result, _, err := n.acceptInitialize(&protocol.InitializeParams{
		ProtocolVersion: "2099-01-01",
	})
	if err != nil {
		t.Fatalf("acceptInitialize: %v", err)
	}
	if result.ProtocolVersion != protocol.LatestVersion {
		t.Fatalf("expected latest version, got %s", result.ProtocolVersion)
	}
}

func TestNegotiatorAcceptInitializeEchoesSupportedVersion(t *testing.T) {
	n := newNegotiator(protocol.PeerInfo{Name: "b"}, protocol.Capabilities{}, "")

	result, _, err := n.acceptInitialize(&protocol.InitializeParams{
		ProtocolVersion: "2024-11-05",
	})
	if err != nil {
		t.Fatalf("acceptInitialize: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Fatalf("expected echoed version, got %s", result.ProtocolVersion)
	}
}

func TestNegotiatorAllowed(t *testing.T) {
	n := newNegotiator(protocol.PeerInfo{}, protocol.Capabilities{}, "")
	n.require("resources/list", "resources")
	n.require("resources/subscribe", "resources.subscribe")

	negotiated := protocol.Capabilities{
		"resources": {Enabled: true, Sub: map[string]bool{"subscribe": false}},
	}

	if err := n.allowed("resources/list", negotiated); err != nil {
		t.Fatalf("resources/list should pass: %v", err)
	}
	if err := n.allowed("resources/subscribe", negotiated); !engineerrors.IsCode(err, engineerrors.CodeCapabilityViolation) {
		t.Fatalf("expected capability violation, got %v", err)
	}
	// Unregistered methods are unrestricted.
	if err := n.allowed("jobs/run", negotiated); err != nil {
		t.Fatalf("unregistered method should pass: %v", err)
	}
}
