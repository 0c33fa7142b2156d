package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

func TestLoopbackTransportSendRecords(t *testing.T) {
	lb := NewLoopbackTransport(4)
	err := lb.Send(context.Background(), bus.Event{Kind: bus.TrainSpeed, Train: 1, Speed: topology.Drive(3)})
	require.NoError(t, err)
	sent := lb.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, bus.TrainSpeed, sent[0].Kind)
	assert.Equal(t, topology.TrainAddress(1), sent[0].Train)
}

func TestLoopbackTransportRecvInjected(t *testing.T) {
	lb := NewLoopbackTransport(4)
	ctx := context.Background()
	lb.Inject(ctx, InboundEvent{Kind: EventUpdateSensor, Sensor: 7, Level: bus.LevelOccupied})

	ev, err := lb.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventUpdateSensor, ev.Kind)
	assert.Equal(t, topology.SensorAddress(7), ev.Sensor)
}

func TestLoopbackTransportRecvClosed(t *testing.T) {
	lb := NewLoopbackTransport(1)
	lb.Close()

	_, err := lb.Recv(context.Background())
	assert.Equal(t, Closed, err)
}
