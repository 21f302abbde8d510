package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/bus"
)

const recorderBuffer = 256

// Recorder writes signing events into a Store from its own goroutine, so the
// engine never waits on the database. Events that overflow the buffer are
// dropped with a warning.
type Recorder struct {
	store *Store
	log   zerolog.Logger

	mu          sync.Mutex
	closed      bool
	queue       chan bus.Event
	done        chan struct{}
	unsubscribe func()
}

// NewRecorder subscribes to the session events on events.
func NewRecorder(store *Store, events *bus.EventBus, log zerolog.Logger) *Recorder {
	r := &Recorder{
		store: store,
		log:   log,
		queue: make(chan bus.Event, recorderBuffer),
		done:  make(chan struct{}),
	}
	r.unsubscribe = events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeSigningStarted,
		bus.EventTypeSigningPose,
		bus.EventTypeSigningSlide,
		bus.EventTypeSigningSkipped,
		bus.EventTypeSigningCompleted,
		bus.EventTypeSigningStopped,
	}, r.enqueue)

	go r.run()
	return r
}

func (r *Recorder) enqueue(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn().Str("type", string(e.Type)).Msg("history queue full, event dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.apply(e); err != nil {
			r.log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to record session event")
		}
	}
}

func (r *Recorder) apply(e bus.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, _ := e.Data["session"].(string)
	if id == "" {
		return nil
	}

	switch e.Type {
	case bus.EventTypeSigningStarted:
		text, _ := e.Data["text"].(string)
		seq, _ := e.Data["sequence"].([]string)
		return r.store.Begin(ctx, id, text, seq, e.Time)
	case bus.EventTypeSigningPose:
		return r.store.Increment(ctx, id, CounterSigns)
	case bus.EventTypeSigningSlide:
		return r.store.Increment(ctx, id, CounterSlides)
	case bus.EventTypeSigningSkipped:
		return r.store.Increment(ctx, id, CounterSkipped)
	case bus.EventTypeSigningCompleted:
		return r.store.Finish(ctx, id, OutcomeCompleted, e.Time)
	case bus.EventTypeSigningStopped:
		return r.store.Finish(ctx, id, OutcomeStopped, e.Time)
	}
	return nil
}

// Close stops listening and waits until queued events are written. It does
// not close the store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.unsubscribe()
	<-r.done
}
