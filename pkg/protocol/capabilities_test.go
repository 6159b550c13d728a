package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestIntersectCommutative(t *testing.T) {
	a := Capabilities{
		"tools":     {Enabled: true, Sub: map[string]bool{"listChanged": true}},
		"resources": {Enabled: true},
	}
	b := Capabilities{
		"tools":   {Enabled: true, Sub: map[string]bool{"listChanged": true, "subscribe": true}},
		"prompts": {Enabled: true},
	}

	ab := Intersect(a, b)
	ba := Intersect(b, a)

	if !reflect.DeepEqual(ab, ba) {
		t.Errorf("Intersection not commutative: %v vs %v", ab, ba)
	}

	if !ab.Supports("tools") {
		t.Error("Expected tools to survive intersection")
	}
	if ab.Supports("resources") || ab.Supports("prompts") {
		t.Error("One-sided capabilities must not survive intersection")
	}
	if !ab.SupportsSub("tools", "listChanged") {
		t.Error("Expected listChanged sub-feature to survive")
	}
	if ab.SupportsSub("tools", "subscribe") {
		t.Error("One-sided sub-features must not survive")
	}
}

func TestIntersectDisabledCapability(t *testing.T) {
	// Scenario from the negotiation contract: {"tools": true} against
	// {"tools": true, "resources": false} yields {"tools": true}.
	var a, b Capabilities
	if err := json.Unmarshal([]byte(`{"tools": true}`), &a); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"tools": true, "resources": false}`), &b); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	got := Intersect(a, b)
	if !got.Supports("tools") {
		t.Error("Expected tools capability")
	}
	if got.Supports("resources") {
		t.Error("Disabled capability must not survive intersection")
	}
}

func TestCapabilityWireForms(t *testing.T) {
	var caps Capabilities
	data := []byte(`{"tools":{"listChanged":true},"logging":true,"sampling":false}`)
	if err := json.Unmarshal(data, &caps); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if !caps.Supports("tools") || !caps.SupportsSub("tools", "listChanged") {
		t.Errorf("Object form mis-parsed: %+v", caps["tools"])
	}
	if !caps.Supports("logging") {
		t.Error("Boolean true form mis-parsed")
	}
	if caps.Supports("sampling") {
		t.Error("Boolean false form mis-parsed")
	}

	// Marshal emits the compact boolean form when there are no sub-features.
	out, err := json.Marshal(Capabilities{"logging": {Enabled: true}})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(out) != `{"logging":true}` {
		t.Errorf("Unexpected wire form: %s", out)
	}
}

func TestNegotiateVersion(t *testing.T) {
	if got := NegotiateVersion("2025-06-18"); got != "2025-06-18" {
		t.Errorf("Expected requested version to be kept, got %s", got)
	}
	if got := NegotiateVersion("1999-01-01"); got != LatestVersion {
		t.Errorf("Expected fallback to latest, got %s", got)
	}
	if VersionSupported("1999-01-01") {
		t.Error("Unknown version reported as supported")
	}
}
