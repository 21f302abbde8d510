package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/config"
)

type countingPresser struct {
	presses int
	err     error
}

func (p *countingPresser) Press(context.Context) error {
	if p.err != nil {
		return p.err
	}
	p.presses++
	return nil
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newController(t *testing.T, mutate func(*config.MediaConfig)) (*Controller, *countingPresser) {
	t.Helper()
	cfg := config.DefaultConfig().Media
	if mutate != nil {
		mutate(&cfg)
	}
	p := &countingPresser{}
	c := NewController(cfg, p, nil, zerolog.Nop())
	c.spawn = func(fn func()) { fn() }
	return c, p
}

// gatedPresser blocks each press until release is signalled.
type gatedPresser struct {
	started chan struct{}
	release chan error
}

func newGatedPresser() *gatedPresser {
	return &gatedPresser{started: make(chan struct{}, 8), release: make(chan error)}
}

func (p *gatedPresser) Press(ctx context.Context) error {
	p.started <- struct{}{}
	select {
	case err := <-p.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedPresser) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(time.Second):
		t.Fatal("press did not start")
	}
}

func TestStartupThenPlayThenPause(t *testing.T) {
	c, p := newController(t, nil)
	assert.Equal(t, StateInactive, c.State())

	c.Tick(t0)
	assert.Equal(t, StateInactive, c.State(), "inactive controller ignores ticks")

	assert.Equal(t, StateStarting, c.Toggle(t0))

	c.Tick(t0.Add(2 * time.Second))
	assert.Equal(t, StateStarting, c.State())

	c.Tick(t0.Add(3 * time.Second))
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 1, p.presses)

	c.Tick(t0.Add(7 * time.Second))
	assert.Equal(t, StatePlaying, c.State())

	c.Tick(t0.Add(8 * time.Second))
	assert.Equal(t, StatePaused, c.State())
	assert.Equal(t, 2, p.presses)

	c.Tick(t0.Add(time.Minute))
	assert.Equal(t, StatePaused, c.State(), "paused stays paused unless cycling")
}

func TestCyclePauses(t *testing.T) {
	c, p := newController(t, func(cfg *config.MediaConfig) { cfg.CyclePauses = true })
	c.Toggle(t0)
	c.Tick(t0.Add(3 * time.Second))
	c.Tick(t0.Add(8 * time.Second))
	require.Equal(t, StatePaused, c.State())

	c.Tick(t0.Add(13 * time.Second))
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 3, p.presses)
}

func TestSigningSuspendsAndResumes(t *testing.T) {
	c, p := newController(t, nil)
	c.Toggle(t0)
	c.Tick(t0.Add(3 * time.Second))
	require.Equal(t, StatePlaying, c.State())

	c.SuspendForSigning()
	assert.True(t, c.IsBusy())
	assert.Equal(t, StatePaused, c.State())

	c.Tick(t0.Add(time.Hour))
	assert.Equal(t, StatePaused, c.State(), "no timed transitions while signing")

	c.ResumeAfterSigning()
	assert.False(t, c.IsBusy())
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 3, p.presses)
}

func TestSuspendWhileInactive(t *testing.T) {
	c, p := newController(t, nil)
	c.SuspendForSigning()
	c.ResumeAfterSigning()
	assert.Equal(t, StateInactive, c.State())
	assert.Zero(t, p.presses)
}

func TestToggleOff(t *testing.T) {
	c, _ := newController(t, nil)
	c.Toggle(t0)
	assert.True(t, c.Active())
	assert.Equal(t, StateInactive, c.Toggle(t0.Add(time.Second)))
	assert.False(t, c.Active())
}

func TestFailedPressKeepsState(t *testing.T) {
	c, p := newController(t, nil)
	c.Toggle(t0)
	p.err = errors.New("no display")
	c.Tick(t0.Add(3 * time.Second))
	assert.Equal(t, StateStarting, c.State())
}

func TestStateChangePublished(t *testing.T) {
	events := bus.NewEventBus()
	got := make(chan bus.Event, 4)
	events.Subscribe(bus.EventTypeMediaStateChanged, func(e bus.Event) { got <- e })

	c := NewController(config.DefaultConfig().Media, &countingPresser{}, events, zerolog.Nop())
	c.Toggle(t0)

	select {
	case e := <-got:
		assert.Equal(t, "inactive", e.Data["from"])
		assert.Equal(t, "starting", e.Data["to"])
	case <-time.After(time.Second):
		t.Fatal("no media event")
	}
}

func TestNopGate(t *testing.T) {
	var g Gate = NopGate{}
	g.SuspendForSigning()
	g.ResumeAfterSigning()
	assert.False(t, g.IsBusy())
}

func TestPressDoesNotBlockCaller(t *testing.T) {
	p := newGatedPresser()
	c := NewController(config.DefaultConfig().Media, p, nil, zerolog.Nop())
	c.Toggle(t0)

	done := make(chan struct{})
	go func() {
		c.Tick(t0.Add(3 * time.Second))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick waited on the key press")
	}

	p.waitStarted(t)
	assert.True(t, c.Pressing())
	assert.Equal(t, StateStarting, c.State(), "state moves only once the press lands")

	c.Tick(t0.Add(time.Minute))
	p.release <- nil
	assert.Eventually(t, func() bool { return c.State() == StatePlaying && !c.Pressing() },
		time.Second, 5*time.Millisecond)
}

func TestSuspendDuringPressSettlesPaused(t *testing.T) {
	p := newGatedPresser()
	c := NewController(config.DefaultConfig().Media, p, nil, zerolog.Nop())
	c.Toggle(t0)
	c.Tick(t0.Add(3 * time.Second))
	p.waitStarted(t)

	// signing starts while the play press is still in flight
	c.SuspendForSigning()
	p.release <- nil

	p.waitStarted(t)
	p.release <- nil
	assert.Eventually(t, func() bool { return c.State() == StatePaused && !c.Pressing() },
		time.Second, 5*time.Millisecond)
	assert.True(t, c.IsBusy())

	c.ResumeAfterSigning()
	p.waitStarted(t)
	p.release <- nil
	assert.Eventually(t, func() bool { return c.State() == StatePlaying && !c.Pressing() },
		time.Second, 5*time.Millisecond)
}

func TestToggleOffDropsInFlightPress(t *testing.T) {
	p := newGatedPresser()
	c := NewController(config.DefaultConfig().Media, p, nil, zerolog.Nop())
	c.Toggle(t0)
	c.Tick(t0.Add(3 * time.Second))
	p.waitStarted(t)

	assert.Equal(t, StateInactive, c.Toggle(t0.Add(4*time.Second)))
	p.release <- nil
	assert.Eventually(t, func() bool { return !c.Pressing() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateInactive, c.State())
}
