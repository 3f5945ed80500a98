package events

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var completed, all []*Event
	bus.Subscribe(func(e *Event) { completed = append(completed, e) }, RunCompleted)
	unsubscribe := bus.Subscribe(func(e *Event) { all = append(all, e) })

	bus.Emit("weights", &RunStartedData{RunID: "r1"})
	bus.Emit("weights", &RunCompletedData{RunID: "r1", Steps: 3})

	require.Len(t, completed, 1)
	assert.Equal(t, RunCompleted, completed[0].Type)
	assert.Equal(t, "weights", completed[0].Module)
	assert.False(t, completed[0].Timestamp.IsZero())
	assert.Len(t, all, 2)

	unsubscribe()
	bus.Emit("weights", &RunFailedData{RunID: "r2"})
	assert.Len(t, all, 2)
	assert.Equal(t, 0, bus.SubscriberCount(RunFailed))
	assert.Equal(t, 1, bus.SubscriberCount(RunCompleted))
}

func TestJobStatusData_EventType(t *testing.T) {
	assert.Equal(t, JobStarted, (&JobStatusData{Status: "started"}).EventType())
	assert.Equal(t, JobCompleted, (&JobStatusData{Status: "completed"}).EventType())
	assert.Equal(t, JobFailed, (&JobStatusData{Status: "failed"}).EventType())
}

func TestEvent_JSONRoundTripKeepsDataType(t *testing.T) {
	original := &Event{
		Type:   RunCompleted,
		Module: "weights",
		Data: &RunCompletedData{
			RunID:  "abc",
			Steps:  10,
			Assets: 3,
			Latest: map[string]float64{"BONK": 0.5, "USDC": 0.5},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.IsType(t, &RunCompletedData{}, decoded.Data)
	assert.Equal(t, original.Data, decoded.Data)
}

func TestEvent_UnmarshalUnknownType(t *testing.T) {
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"custom","module":"x","data":{"k":1}}`), &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("custom"), generic.EventType())
	assert.Equal(t, float64(1), generic.Data["k"])
}
