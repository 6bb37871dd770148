package evcs

import (
	"fmt"
	"strings"
	"time"
)

// LimitMode selects the unit a charge limit is sent in.
type LimitMode int

const (
	LimitModePower LimitMode = iota
	LimitModeCurrent
)

func (m LimitMode) String() string {
	if m == LimitModeCurrent {
		return "current"
	}
	return "power"
}

// ParseLimitMode parses "power" or "current"; empty means power.
func ParseLimitMode(s string) (LimitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "power", "w":
		return LimitModePower, nil
	case "current", "a":
		return LimitModeCurrent, nil
	default:
		return LimitModePower, fmt.Errorf("evcs: unknown limit mode %q", s)
	}
}

// ChargingProperty is the last charging directive acknowledged by the station.
type ChargingProperty struct {
	Mode LimitMode
	// Power is the limit in W.
	Power int
	// Current is the per-phase limit in A derived from Power.
	Current   float64
	Phases    int
	Timestamp time.Time
}

// Equal reports whether p limits to the same power in the same mode as other.
func (p *ChargingProperty) Equal(other *ChargingProperty) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Mode == other.Mode && p.Power == other.Power && p.Phases == other.Phases
}
