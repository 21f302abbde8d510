package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signsynth/internal/bus"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Begin(ctx, "s1", "ball", []string{"b", "a", "l", "l"}, start))
	require.NoError(t, s.Increment(ctx, "s1", CounterSigns))
	require.NoError(t, s.Increment(ctx, "s1", CounterSigns))
	require.NoError(t, s.Increment(ctx, "s1", CounterSigns))
	require.NoError(t, s.Increment(ctx, "s1", CounterSlides))
	require.NoError(t, s.Finish(ctx, "s1", OutcomeCompleted, start.Add(6*time.Second)))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, Session{
		ID:        "s1",
		Text:      "ball",
		Sequence:  []string{"b", "a", "l", "l"},
		StartedAt: start,
		EndedAt:   start.Add(6 * time.Second),
		Outcome:   OutcomeCompleted,
		Signs:     3,
		Slides:    1,
	}, got)
}

func TestStoreFinishOnlyOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx, "s1", "hi", []string{"h", "i"}, time.Now()))
	require.NoError(t, s.Finish(ctx, "s1", OutcomeStopped, time.Now()))
	assert.ErrorIs(t, s.Finish(ctx, "s1", OutcomeCompleted, time.Now()), ErrNotFound)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, got.Outcome)
}

func TestStoreUnknownSession(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Increment(ctx, "missing", CounterSkipped), ErrNotFound)
	assert.Error(t, s.Increment(ctx, "missing", Counter("text")))
}

func TestStoreRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Begin(ctx, id, id, []string{id}, base.Add(time.Duration(i)*time.Second)))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
	assert.Equal(t, OutcomeRunning, recent[0].Outcome)
	assert.True(t, recent[0].EndedAt.IsZero())
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Begin(context.Background(), "s1", "hi", nil, time.Now()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Sequence)
}

func TestRecorder(t *testing.T) {
	s := openStore(t)
	events := bus.NewEventBus()
	r := NewRecorder(s, events, zerolog.Nop())

	at := time.UnixMilli(1_700_000_000_000)
	publish := func(typ bus.EventType, data map[string]any) {
		events.PublishSync(bus.Event{Type: typ, Time: at, Data: data})
	}
	publish(bus.EventTypeSigningStarted, map[string]any{
		"session": "s1", "text": "hello", "sequence": []string{"hello"},
	})
	publish(bus.EventTypeSigningPose, map[string]any{"session": "s1", "key": "hello"})
	publish(bus.EventTypeSigningSkipped, map[string]any{"session": "s1", "key": "q"})
	publish(bus.EventTypeSigningCompleted, map[string]any{"session": "s1"})
	// no session id: ignored
	publish(bus.EventTypeSigningPose, map[string]any{"key": "x"})

	r.Close()
	r.Close()

	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, []string{"hello"}, got.Sequence)
	assert.Equal(t, 1, got.Signs)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, OutcomeCompleted, got.Outcome)

	// events after Close are not recorded
	publish(bus.EventTypeSigningStarted, map[string]any{"session": "s2", "text": "late"})
	_, err = s.Get(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrNotFound)
}
