package engine

import (
	"fmt"
	"strings"
)

// OncePolicy decides what happens to a "once" alarm after it rings.
type OncePolicy int

const (
	// OncePolicyDisable turns the alarm off after its first ring.
	OncePolicyDisable OncePolicy = iota
	// OncePolicyKeep leaves the alarm enabled; it rings again every day
	// until the user turns it off.
	OncePolicyKeep
)

// String returns the config name of the policy.
func (p OncePolicy) String() string {
	switch p {
	case OncePolicyDisable:
		return "disable"
	case OncePolicyKeep:
		return "keep"
	default:
		return "unknown"
	}
}

// ParseOncePolicy parses "disable" or "keep".
func ParseOncePolicy(s string) (OncePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disable":
		return OncePolicyDisable, nil
	case "keep":
		return OncePolicyKeep, nil
	default:
		return OncePolicyDisable, fmt.Errorf("unknown once policy %q (want disable or keep)", s)
	}
}
