package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishInSubscriptionOrder(t *testing.T) {
	bus := NewBus[int]("test", nil)
	var got []string

	bus.Subscribe(func(v int) { got = append(got, "a") })
	bus.Subscribe(func(v int) { got = append(got, "b") })
	bus.Subscribe(func(v int) { got = append(got, "c") })

	assert.Equal(t, 0, bus.Publish(1))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewBus[string]("state", zap.New(core))

	var received []string
	bus.Subscribe(func(s string) { panic("boom") })
	bus.Subscribe(func(s string) { received = append(received, s) })

	failed := bus.Publish("registered")

	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"registered"}, received)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "state", logs.All()[0].ContextMap()["bus"])
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus[int]("test", nil)
	calls := 0
	cancel := bus.Subscribe(func(int) { calls++ })

	bus.Publish(1)
	cancel()
	cancel()
	bus.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestSubscribeDuringPublish(t *testing.T) {
	bus := NewBus[int]("test", nil)
	late := 0
	bus.Subscribe(func(int) {
		bus.Subscribe(func(int) { late++ })
	})

	bus.Publish(1)
	assert.Equal(t, 0, late)
	bus.Publish(2)
	assert.Equal(t, 1, late)
}
