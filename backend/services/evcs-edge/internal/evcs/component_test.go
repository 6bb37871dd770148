package evcs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresIDAndProfile(t *testing.T) {
	_, err := New(Config{}, GenericProfile{})
	require.Error(t, err)

	_, err = New(Config{ID: "evcs0"}, nil)
	require.Error(t, err)
}

func TestNewPublishesHardwareBounds(t *testing.T) {
	c := newTestComponent(t, testConfig())

	maxPower, ok := c.Channels().Get(MaximumHardwarePower).Int()
	require.True(t, ok)
	assert.EqualValues(t, 22000, maxPower)

	minPower, ok := c.Channels().Get(MinimumHardwarePower).Int()
	require.True(t, ok)
	assert.EqualValues(t, 4200, minPower)

	assert.Equal(t, StatusUndefined, c.Channels().Status())
	assert.Nil(t, c.LastChargingProperty())
}

func TestNewSessionAttachesServerAndIdentity(t *testing.T) {
	c := newTestComponent(t, testConfig())
	c.Channels().SetCommunicationFailed(true)

	for i := 0; i < 3; i++ {
		id := uuid.New()
		c.NewSession(&fakeServer{}, id)

		got, ok := c.SessionID()
		require.True(t, ok)
		assert.Equal(t, id, got)
		_, _, hasServer := c.currentSession()
		assert.True(t, hasServer)
		assert.Equal(t, StatusNotReadyForCharging, c.Channels().Status())
		assert.False(t, c.Channels().CommunicationFailed())
	}
}

func TestNewSessionWithoutServerDetaches(t *testing.T) {
	c := newTestComponent(t, testConfig())
	c.NewSession(&fakeServer{}, uuid.New())

	c.NewSession(nil, uuid.New())

	id, ok := c.SessionID()
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, StatusUndefined, c.Channels().Status())
	assert.True(t, c.Channels().CommunicationFailed())
}

func TestLostSessionIsIdempotent(t *testing.T) {
	for _, status := range Statuses {
		t.Run(status.String(), func(t *testing.T) {
			c := newTestComponent(t, testConfig())
			c.NewSession(&fakeServer{}, uuid.New())
			c.Channels().SetStatus(status)

			c.LostSession()
			assert.Equal(t, StatusUndefined, c.Channels().Status())
			assert.True(t, c.Channels().CommunicationFailed())
			_, ok := c.SessionID()
			assert.False(t, ok)

			c.LostSession()
			assert.Equal(t, StatusUndefined, c.Channels().Status())
			assert.True(t, c.Channels().CommunicationFailed())
		})
	}
}

func TestLostSessionKeepsLastChargingProperty(t *testing.T) {
	c := newTestComponent(t, testConfig())
	c.NewSession(&fakeServer{}, uuid.New())
	c.setLastChargingProperty(&ChargingProperty{Power: 7400, Phases: 3, Timestamp: time.Now()})

	c.LostSession()

	last := c.LastChargingProperty()
	require.NotNil(t, last)
	assert.Equal(t, 7400, last.Power)
}

func TestExecuteWriteWithoutSessionSkipsWriter(t *testing.T) {
	writer := &recordingWriter{}
	c := newTestComponent(t, testConfig(), WithWriter(writer))
	c.Channels().SetCommunicationFailed(false)
	c.Channels().SetStatus(StatusCharging)

	c.OnExecuteWrite(context.Background())

	assert.Equal(t, 0, writer.count())
	assert.True(t, c.Channels().CommunicationFailed())
	assert.Equal(t, StatusUndefined, c.Channels().Status())
}

func TestExecuteWriteDoesNotDropConcurrentSession(t *testing.T) {
	for i := 0; i < 2000; i++ {
		c := newTestComponent(t, testConfig(), WithWriter(&recordingWriter{}))
		id := uuid.New()

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			c.OnExecuteWrite(context.Background())
		}()
		go func() {
			defer wg.Done()
			<-start
			c.NewSession(&fakeServer{}, id)
		}()
		close(start)
		wg.Wait()

		got, ok := c.SessionID()
		require.True(t, ok, "iteration %d", i)
		require.Equal(t, id, got)
		require.False(t, c.Channels().CommunicationFailed(), "iteration %d", i)
		require.Equal(t, StatusNotReadyForCharging, c.Channels().Status(), "iteration %d", i)
	}
}

func TestSessionChannelsFollowSessionState(t *testing.T) {
	for i := 0; i < 2000; i++ {
		c := newTestComponent(t, testConfig())
		c.NewSession(&fakeServer{}, uuid.New())

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			c.LostSession()
		}()
		go func() {
			defer wg.Done()
			<-start
			c.NewSession(&fakeServer{}, uuid.New())
		}()
		close(start)
		wg.Wait()

		_, attached := c.SessionID()
		require.Equal(t, attached, !c.Channels().CommunicationFailed(), "iteration %d", i)
		if attached {
			require.Equal(t, StatusNotReadyForCharging, c.Channels().Status())
		} else {
			require.Equal(t, StatusUndefined, c.Channels().Status())
		}
	}
}

func TestExecuteWriteChargingFinishedResetsMeasurements(t *testing.T) {
	writer := &recordingWriter{}
	c := newTestComponent(t, testConfig(), WithWriter(writer))
	c.NewSession(&fakeServer{}, uuid.New())
	for i, id := range MeasuredChannels {
		c.Channels().Set(id, float64(i+1))
	}
	c.Channels().Set(ChargePower, 11000)
	c.Channels().SetStatus(StatusChargingFinished)

	c.OnExecuteWrite(context.Background())

	for _, id := range MeasuredChannels {
		assert.False(t, c.Channels().Get(id).Defined(), "channel %s", id)
	}
	power, ok := c.Channels().Get(ChargePower).Int()
	require.True(t, ok)
	assert.EqualValues(t, 0, power)
	assert.Equal(t, 1, writer.count())
}

func TestExecuteWriteZeroesPowerOutsideCharging(t *testing.T) {
	for _, status := range Statuses {
		if status == StatusCharging || status == StatusChargingFinished {
			continue
		}
		t.Run(status.String(), func(t *testing.T) {
			writer := &recordingWriter{}
			c := newTestComponent(t, testConfig(), WithWriter(writer))
			c.NewSession(&fakeServer{}, uuid.New())
			c.Channels().Set(ChargePower, 7400)
			c.Channels().Set(VoltageL1, 231)
			c.Channels().Set(CurrentL2, 16)
			c.Channels().SetStatus(status)

			c.OnExecuteWrite(context.Background())

			power, _ := c.Channels().Get(ChargePower).Int()
			assert.EqualValues(t, 0, power)
			voltage, ok := c.Channels().Get(VoltageL1).Float()
			assert.True(t, ok)
			assert.Equal(t, 231.0, voltage)
			current, ok := c.Channels().Get(CurrentL2).Float()
			assert.True(t, ok)
			assert.Equal(t, 16.0, current)
			require.Equal(t, 1, writer.count())
			assert.Equal(t, status, writer.calls[0].Status)
		})
	}
}

func TestExecuteWriteChargingDelegatesOnce(t *testing.T) {
	writer := &recordingWriter{}
	server := &fakeServer{}
	c := newTestComponent(t, testConfig(), WithWriter(writer))
	id := uuid.New()
	c.NewSession(server, id)
	c.Channels().SetStatus(StatusCharging)
	c.Channels().Set(ChargePower, 7400)
	c.Channels().Set(CurrentL1, 10.5)
	before := c.Channels().Snapshot()

	c.OnExecuteWrite(context.Background())

	assert.Equal(t, before, c.Channels().Snapshot())
	require.Equal(t, 1, writer.count())
	call := writer.calls[0]
	assert.Equal(t, StatusCharging, call.Status)
	assert.Equal(t, id, call.SessionID)
	assert.Same(t, server, call.Server)
	assert.Nil(t, call.LastChargingProperty)
}

func TestAfterProcessImageSkipsLookupWhenEnergySet(t *testing.T) {
	td := &fakeTimedata{}
	c := newTestComponent(t, testConfig(), WithTimedata(td))
	c.Channels().Set(ActiveConsumptionEnergy, 5000)

	c.OnAfterProcessImage(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, td.callCount())
}

func TestAfterProcessImageIssuesOneLookup(t *testing.T) {
	td := &fakeTimedata{result: lookupResult{value: 1234, ok: true}}
	c := newTestComponent(t, testConfig(), WithTimedata(td))

	c.OnAfterProcessImage(context.Background())

	waitFor(t, time.Second, func() bool { return c.Channels().Get(ActiveConsumptionEnergy).Defined() })
	assert.Equal(t, 1, td.callCount())
	assert.Equal(t, ChannelAddress{Component: "evcs0", Channel: ActiveConsumptionEnergy}, td.calls[0])
}

func TestAfterProcessImageSeedsEnergy(t *testing.T) {
	cases := []struct {
		name   string
		result lookupResult
		want   int64
	}{
		{name: "value", result: lookupResult{value: 1234, ok: true}, want: 1234},
		{name: "float value", result: lookupResult{value: 1234.4, ok: true}, want: 1234},
		{name: "string value", result: lookupResult{value: "1234", ok: true}, want: 1234},
		{name: "empty", result: lookupResult{ok: false}, want: 0},
		{name: "not numeric", result: lookupResult{value: "n/a", ok: true}, want: 0},
		{name: "unsupported type", result: lookupResult{value: struct{}{}, ok: true}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			td := &fakeTimedata{result: tc.result}
			c := newTestComponent(t, testConfig(), WithTimedata(td))

			c.OnAfterProcessImage(context.Background())

			waitFor(t, time.Second, func() bool { return c.Channels().Get(ActiveConsumptionEnergy).Defined() })
			got, _ := c.Channels().Get(ActiveConsumptionEnergy).Int()
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAfterProcessImageLookupErrorLeavesEnergyUnset(t *testing.T) {
	td := &fakeTimedata{result: lookupResult{err: errBoom}}
	c := newTestComponent(t, testConfig(), WithTimedata(td))

	c.OnAfterProcessImage(context.Background())

	waitFor(t, time.Second, func() bool { return td.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Channels().Get(ActiveConsumptionEnergy).Defined())
}

func TestAfterProcessImageDoesNotBlockCycle(t *testing.T) {
	release := make(chan struct{})
	td := &fakeTimedata{result: lookupResult{value: int64(42), ok: true}, release: release}
	c := newTestComponent(t, testConfig(), WithTimedata(td))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.OnAfterProcessImage(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read phase blocked on lookup")
	}

	cancel()
	c.LostSession()
	close(release)

	waitFor(t, time.Second, func() bool { return c.Channels().Get(ActiveConsumptionEnergy).Defined() })
	got, _ := c.Channels().Get(ActiveConsumptionEnergy).Int()
	assert.EqualValues(t, 42, got)
}

func TestAfterProcessImageSkipsLookupWhileOneIsPending(t *testing.T) {
	release := make(chan struct{})
	td := &fakeTimedata{result: lookupResult{value: int64(42), ok: true}, release: release}
	c := newTestComponent(t, testConfig(), WithTimedata(td))

	for i := 0; i < 10; i++ {
		c.OnAfterProcessImage(context.Background())
	}
	waitFor(t, time.Second, func() bool { return td.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, td.callCount())

	close(release)
	waitFor(t, time.Second, func() bool { return c.Channels().Get(ActiveConsumptionEnergy).Defined() })
	c.OnAfterProcessImage(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, td.callCount())
}

func TestAfterProcessImageLookupTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	td := &fakeTimedata{result: lookupResult{value: int64(42), ok: true}, release: release}
	c := newTestComponent(t, testConfig(), WithTimedata(td))
	c.lookupTimeout = 20 * time.Millisecond

	c.OnAfterProcessImage(context.Background())
	waitFor(t, time.Second, func() bool { return !c.lookupInFlight.Load() && td.callCount() == 1 })
	assert.False(t, c.Channels().Get(ActiveConsumptionEnergy).Defined())

	c.OnAfterProcessImage(context.Background())
	waitFor(t, time.Second, func() bool { return td.callCount() == 2 })
}
