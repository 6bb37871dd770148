package evcs

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

type writeFixture struct {
	component *Component
	handler   *WriteHandler
	server    *fakeServer
	sessionID uuid.UUID
	now       time.Time
}

func newWriteFixture(t *testing.T, cfg Config) *writeFixture {
	t.Helper()
	c := newTestComponent(t, cfg)
	f := &writeFixture{
		component: c,
		handler:   c.writer.(*WriteHandler),
		server:    &fakeServer{},
		sessionID: uuid.New(),
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.handler.now = func() time.Time { return f.now }
	c.NewSession(f.server, f.sessionID)
	return f
}

func (f *writeFixture) cycle() {
	f.component.OnExecuteWrite(context.Background())
}

func TestWriteHandlerSendsLimitAndStoresProperty(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, 11000)

	f.cycle()

	limits := f.server.limits()
	require.Len(t, limits, 1)
	schedule := limits[0].Profile.ChargingSchedule
	assert.Equal(t, protocol.ChargingRateUnitW, schedule.ChargingRateUnit)
	assert.Equal(t, 11000.0, schedule.ChargingSchedulePeriod[0].Limit)
	assert.Equal(t, 1, limits[0].ConnectorID)

	last := f.component.LastChargingProperty()
	require.NotNil(t, last)
	assert.Equal(t, 11000, last.Power)
	assert.Equal(t, 15.9, last.Current)
	assert.Equal(t, f.now, last.Timestamp)
}

func TestWriteHandlerSkipsUnchangedLimitUntilResendInterval(t *testing.T) {
	cfg := testConfig()
	cfg.ResendInterval = time.Minute
	f := newWriteFixture(t, cfg)
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, 11000)

	f.cycle()
	f.now = f.now.Add(30 * time.Second)
	f.cycle()
	assert.Len(t, f.server.limits(), 1)

	f.now = f.now.Add(31 * time.Second)
	f.cycle()
	assert.Len(t, f.server.limits(), 2)
}

func TestWriteHandlerResendsOnChange(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, 11000)
	f.cycle()

	f.component.Channels().Set(SetChargePowerLimit, 7400)
	f.now = f.now.Add(time.Second)
	f.cycle()

	limits := f.server.limits()
	require.Len(t, limits, 2)
	assert.Equal(t, 7400.0, limits[1].Profile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
	assert.Equal(t, 7400, f.component.LastChargingProperty().Power)
}

func TestWriteHandlerClampsToHardwareBounds(t *testing.T) {
	cases := []struct {
		name  string
		limit float64
		want  float64
	}{
		{name: "above maximum", limit: 50000, want: 22000},
		{name: "below minimum", limit: 1000, want: 4200},
		{name: "within bounds", limit: 9000, want: 9000},
		{name: "zero", limit: 0, want: 0},
		{name: "negative", limit: -500, want: 0},
		{name: "beyond int64", limit: 1e20, want: 22000},
		{name: "positive infinity", limit: math.Inf(1), want: 22000},
		{name: "negative infinity", limit: math.Inf(-1), want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWriteFixture(t, testConfig())
			f.server.autoReply(Response{Accepted: true})
			f.component.Channels().Set(SetChargePowerLimit, tc.limit)

			f.cycle()

			limits := f.server.limits()
			require.Len(t, limits, 1)
			assert.Equal(t, tc.want, limits[0].Profile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
		})
	}
}

func TestWriteHandlerCurrentMode(t *testing.T) {
	cfg := testConfig()
	cfg.LimitMode = LimitModeCurrent
	f := newWriteFixture(t, cfg)
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, 6900)

	f.cycle()

	limits := f.server.limits()
	require.Len(t, limits, 1)
	schedule := limits[0].Profile.ChargingSchedule
	assert.Equal(t, protocol.ChargingRateUnitA, schedule.ChargingRateUnit)
	assert.Equal(t, 10.0, schedule.ChargingSchedulePeriod[0].Limit)
	require.NotNil(t, schedule.ChargingSchedulePeriod[0].NumberPhases)
	assert.Equal(t, 3, *schedule.ChargingSchedulePeriod[0].NumberPhases)
}

func TestWriteHandlerEnergyLimitReached(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().SetStatus(StatusCharging)
	f.component.Channels().Set(SetChargePowerLimit, 11000)
	f.component.Channels().Set(SetEnergyLimit, 10000)
	f.component.Channels().Set(EnergySession, 10500)

	f.cycle()

	assert.Equal(t, StatusEnergyLimitReached, f.component.Channels().Status())
	limits := f.server.limits()
	require.Len(t, limits, 1)
	assert.Equal(t, 0.0, limits[0].Profile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
	power, _ := f.component.Channels().Get(ChargePower).Int()
	assert.EqualValues(t, 0, power)
}

func TestWriteHandlerRejectedLimitIsRetried(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.server.autoReply(Response{Accepted: false})
	f.component.Channels().Set(SetChargePowerLimit, 11000)

	f.cycle()
	assert.Nil(t, f.component.LastChargingProperty())

	f.server.autoReply(Response{Err: errBoom})
	f.cycle()
	assert.Nil(t, f.component.LastChargingProperty())

	f.server.autoReply(Response{Accepted: true})
	f.cycle()
	assert.Len(t, f.server.limits(), 3)
	require.NotNil(t, f.component.LastChargingProperty())
}

func TestWriteHandlerOneLimitInFlight(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.component.Channels().Set(SetChargePowerLimit, 11000)

	f.cycle()
	f.cycle()
	limits := f.server.byAction(protocol.ActionSetChargingProfile)
	require.Len(t, limits, 1)

	limits[0].cb(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, 7400)
	f.cycle()
	assert.Len(t, f.server.limits(), 2)
}

func TestWriteHandlerNewSessionReleasesPendingLimit(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.component.Channels().Set(SetChargePowerLimit, 11000)
	f.cycle()

	f.component.NewSession(f.server, uuid.New())
	f.cycle()

	assert.Len(t, f.server.limits(), 2)
}

func TestWriteHandlerSendErrorReleasesPendingLimit(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.component.Channels().Set(SetChargePowerLimit, 11000)
	f.server.sendErr = errBoom
	f.cycle()

	f.server.sendErr = nil
	f.cycle()

	assert.Len(t, f.server.limits(), 1)
}

func TestWriteHandlerUnmanagedSendsOnlyPolling(t *testing.T) {
	cfg := testConfig()
	cfg.Managed = false
	cfg.RequestInterval = 10 * time.Second
	f := newWriteFixture(t, cfg)
	f.component.Channels().Set(SetChargePowerLimit, 11000)

	f.cycle()
	assert.Empty(t, f.server.limits())
	assert.Len(t, f.server.byAction(protocol.ActionTriggerMessage), 2)

	f.now = f.now.Add(5 * time.Second)
	f.cycle()
	assert.Len(t, f.server.byAction(protocol.ActionTriggerMessage), 2)

	f.now = f.now.Add(5 * time.Second)
	f.cycle()
	assert.Len(t, f.server.byAction(protocol.ActionTriggerMessage), 4)
}

func TestWriteHandlerNoLimitNoProfile(t *testing.T) {
	f := newWriteFixture(t, testConfig())

	f.cycle()

	assert.Empty(t, f.server.limits())
}

func TestWriteHandlerNaNLimitSendsNoProfile(t *testing.T) {
	f := newWriteFixture(t, testConfig())
	f.server.autoReply(Response{Accepted: true})
	f.component.Channels().Set(SetChargePowerLimit, math.NaN())

	f.cycle()

	assert.Empty(t, f.server.limits())
}
