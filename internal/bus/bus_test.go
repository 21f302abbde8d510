package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDelivers(t *testing.T) {
	b := NewEventBus()
	var got []Event
	var mu sync.Mutex
	b.Subscribe(EventTypeSigningPose, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	b.PublishSync(NewEvent(EventTypeSigningPose, map[string]any{"key": "a"}))
	b.PublishSync(NewEvent(EventTypeSigningSlide, nil))

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Data["key"])
	assert.False(t, got[0].Time.IsZero())
}

func TestPublishAsync(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventTypeStatus, func(e Event) { done <- e })

	b.Publish(NewEvent(EventTypeStatus, map[string]any{"text": "Animation Complete"}))

	select {
	case e := <-done:
		assert.Equal(t, "Animation Complete", e.Data["text"])
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	var calls atomic.Int32
	cancel := b.SubscribeMultiple(AllEventTypes, func(Event) { calls.Add(1) })
	other := b.Subscribe(EventTypeStatus, func(Event) { calls.Add(10) })

	b.PublishSync(NewEvent(EventTypeStatus, nil))
	assert.Equal(t, int32(11), calls.Load())

	cancel()
	b.PublishSync(NewEvent(EventTypeStatus, nil))
	b.PublishSync(NewEvent(EventTypeSigningStarted, nil))
	assert.Equal(t, int32(21), calls.Load())

	other()
	other()
	b.PublishSync(NewEvent(EventTypeStatus, nil))
	assert.Equal(t, int32(21), calls.Load())
}
