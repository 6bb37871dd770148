package evcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugLogManaged(t *testing.T) {
	c := newTestComponent(t, testConfig())
	assert.Equal(t, "Limit:null|Undefined", c.DebugLog())

	c.Channels().Set(SetChargePowerLimit, 7400)
	c.Channels().SetStatus(StatusCharging)
	assert.Equal(t, "Limit:7400|Charging", c.DebugLog())
}

func TestDebugLogUnmanaged(t *testing.T) {
	cfg := testConfig()
	cfg.Managed = false
	c := newTestComponent(t, cfg)
	c.Channels().SetStatus(StatusReadyForCharging)
	assert.Equal(t, "Power:0|Ready for Charging", c.DebugLog())

	c.Channels().Set(ChargePower, 3680.4)
	assert.Equal(t, "Power:3680|Ready for Charging", c.DebugLog())

	s := c.DebugSnapshot()
	assert.False(t, s.Managed)
	assert.Nil(t, s.Limit)
}
