package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ts2/railctl/internal/topology"
)

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	b := New()
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	b.Publish(Event{Kind: TrainGranted, Signal: 81, Train: 1})

	evA := <-a.Events()
	evC := <-c.Events()
	assert.Equal(t, TrainGranted, evA.Kind)
	assert.Equal(t, TrainGranted, evC.Kind)
	assert.Equal(t, topology.TrainAddress(1), evA.Train)
}

// TestPublishDropsOnFullMailbox exercises §4.6/§5's best-effort delivery: a
// subscriber that never drains has later publishes dropped rather than
// blocking the publisher.
func TestPublishDropsOnFullMailbox(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Kind: UpdateSensor, Sensor: topology.SensorAddress(i)})
	}

	assert.Len(t, sub.Events(), subscriberBuffer, "mailbox should fill but never exceed its buffer")
}

func TestSubscriptionCloseStopsDeliveryAndClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	// A publish after close must not panic or deliver.
	b.Publish(Event{Kind: RailOn})

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after Close")
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Close()
	assert.NotPanics(t, func() { sub.Close() })
}

func TestKindStringNamesEveryKind(t *testing.T) {
	kinds := []Kind{RailOn, RailOff, TrainSpeed, SwitchCommand, SwitchAck, UpdateSensor, UpdateSignal, TrainGranted, TrainOnSensor}
	for _, k := range kinds {
		assert.NotEqual(t, "Unknown", k.String())
	}
	assert.Equal(t, "Unknown", Kind(99).String())
}
