package handle

import (
	"fmt"
	"strings"
)

// Policy decides whether a handle may be passed to a call dispatched to a
// runtime other than its owner.
type Policy uint8

const (
	// PolicyTrust forwards every handle opaquely. Some valid flows move a
	// handle minted by one plugin into another plugin's call as a token.
	PolicyTrust Policy = iota
	// PolicyStrict only forwards handles owned by the target runtime or by
	// the host.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyTrust:
		return "trust"
	case PolicyStrict:
		return "strict"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy reads "trust" or "strict"; an empty string is PolicyTrust.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "trust":
		return PolicyTrust, nil
	case "strict":
		return PolicyStrict, nil
	}
	return PolicyTrust, fmt.Errorf("unknown handle policy %q", s)
}

// Allows reports whether h may be passed to a call on target when the
// host runtime is host. The zero handle is always allowed.
func (p Policy) Allows(h Handle, target, host RuntimeID) bool {
	if p == PolicyTrust || h.IsZero() {
		return true
	}
	return h.Owner == target || h.Owner == host
}
