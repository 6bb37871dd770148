package evcs

import (
	"fmt"
	"strconv"
)

type debugKind int

const (
	debugPower debugKind = iota
	debugLimit
)

// DebugSnapshot is the observability view of a component. Limit is set for
// managed components, Power otherwise.
type DebugSnapshot struct {
	Managed bool
	Limit   *int64
	Power   int64
	Status  Status
}

func (s DebugSnapshot) String() string {
	if s.Managed {
		limit := "null"
		if s.Limit != nil {
			limit = strconv.FormatInt(*s.Limit, 10)
		}
		return fmt.Sprintf("Limit:%s|%s", limit, s.Status.Name())
	}
	return fmt.Sprintf("Power:%d|%s", s.Power, s.Status.Name())
}

// DebugSnapshot returns the current debug view.
func (c *Component) DebugSnapshot() DebugSnapshot {
	s := DebugSnapshot{Status: c.channels.Status()}
	switch c.debug {
	case debugLimit:
		s.Managed = true
		if v, ok := c.channels.Get(SetChargePowerLimit).Int(); ok {
			s.Limit = &v
		}
	default:
		v, _ := c.channels.Get(ChargePower).Int()
		s.Power = v
	}
	return s
}

// DebugLog returns the one line debug string, e.g. "Power:7400|Charging".
func (c *Component) DebugLog() string {
	return c.DebugSnapshot().String()
}
