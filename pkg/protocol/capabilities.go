package protocol

import (
	"encoding/json"
	"fmt"
)

// Capability describes one negotiable feature: whether it is supported at
// all, plus optional nested sub-features (e.g. listChanged, subscribe).
type Capability struct {
	Enabled bool
	Sub     map[string]bool
}

// MarshalJSON emits the compact wire form: a bare boolean when there are no
// sub-features, otherwise an object of sub-feature flags.
func (c Capability) MarshalJSON() ([]byte, error) {
	if len(c.Sub) == 0 {
		return json.Marshal(c.Enabled)
	}
	return json.Marshal(c.Sub)
}

// UnmarshalJSON accepts both wire forms: a boolean, or an object whose
// presence implies the capability is enabled.
func (c *Capability) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		*c = Capability{Enabled: enabled}
		return nil
	}

	var sub map[string]bool
	if err := json.Unmarshal(data, &sub); err == nil {
		*c = Capability{Enabled: true, Sub: sub}
		return nil
	}

	return fmt.Errorf("capability must be a boolean or an object of flags, got %s", string(data))
}

// Capabilities is a set of named feature flags advertised by a peer. The
// negotiated set for a session is the intersection of both peers' sets; a
// capability absent from the intersection must not be exercised by either
// side for the life of the session.
type Capabilities map[string]Capability

// Supports reports whether the named capability is present and enabled.
func (c Capabilities) Supports(name string) bool {
	cap, ok := c[name]
	return ok && cap.Enabled
}

// SupportsSub reports whether a nested sub-feature of a capability is
// enabled.
func (c Capabilities) SupportsSub(name, sub string) bool {
	cap, ok := c[name]
	return ok && cap.Enabled && cap.Sub[sub]
}

// Clone returns a deep copy.
func (c Capabilities) Clone() Capabilities {
	out := make(Capabilities, len(c))
	for name, cap := range c {
		cp := Capability{Enabled: cap.Enabled}
		if cap.Sub != nil {
			cp.Sub = make(map[string]bool, len(cap.Sub))
			for k, v := range cap.Sub {
				cp.Sub[k] = v
			}
		}
		out[name] = cp
	}
	return out
}

// Intersect computes the field-wise intersection of two capability sets.
// A capability survives only if both sides declare it enabled; sub-features
// survive only if both sides declare them. The operation is commutative.
func Intersect(a, b Capabilities) Capabilities {
	out := make(Capabilities)
	for name, ca := range a {
		cb, ok := b[name]
		if !ok || !ca.Enabled || !cb.Enabled {
			continue
		}
		merged := Capability{Enabled: true}
		for k, v := range ca.Sub {
			if v && cb.Sub[k] {
				if merged.Sub == nil {
					merged.Sub = make(map[string]bool)
				}
				merged.Sub[k] = true
			}
		}
		out[name] = merged
	}
	return out
}
