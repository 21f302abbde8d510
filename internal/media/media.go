// Package media coordinates an external player with signing: playback is
// paused while a sign sequence runs and resumed afterwards, and a controller
// can cycle play/pause on a timer by pressing the player's toggle key.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/config"
)

// Gate is what the signing engine sees of the media side.
type Gate interface {
	SuspendForSigning()
	ResumeAfterSigning()
	// IsBusy reports that a sign sequence is in flight.
	IsBusy() bool
}

// NopGate absorbs every call.
type NopGate struct{}

func (NopGate) SuspendForSigning()  {}
func (NopGate) ResumeAfterSigning() {}
func (NopGate) IsBusy() bool        { return false }

// State is the controller's view of the player.
type State string

const (
	StateInactive State = "inactive"
	StateStarting State = "starting"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
)

// KeyPresser sends the player's play/pause toggle.
type KeyPresser interface {
	Press(ctx context.Context) error
}

// LogPresser only logs the key press.
type LogPresser struct {
	Log zerolog.Logger
}

func (p LogPresser) Press(context.Context) error {
	p.Log.Info().Msg("media toggle key pressed")
	return nil
}

// CommandPresser runs an external command, e.g. "xdotool key space".
type CommandPresser struct {
	Name string
	Args []string
}

func (p CommandPresser) Press(ctx context.Context) error {
	if err := exec.CommandContext(ctx, p.Name, p.Args...).Run(); err != nil {
		return fmt.Errorf("press media key: %w", err)
	}
	return nil
}

const pressTimeout = 2 * time.Second

// Controller implements Gate over a toggle-key driven player. Key presses run
// off the caller's goroutine; the state moves once a press lands, and only one
// press is in flight at a time.
type Controller struct {
	mu         sync.Mutex
	cfg        config.MediaConfig
	presser    KeyPresser
	events     *bus.EventBus
	log        zerolog.Logger
	state      State
	lastAction time.Time
	lastTick   time.Time
	signing    bool
	resume     bool // resume the player once an in-flight press lands
	pressing   bool
	gen        uint64 // bumped by Toggle; stale presses are discarded

	spawn func(fn func())
}

// pressJob is a key press decided under mu and run after it is released.
type pressJob struct {
	next State
	gen  uint64
}

// NewController creates an inactive controller. events may be nil.
func NewController(cfg config.MediaConfig, presser KeyPresser, events *bus.EventBus, log zerolog.Logger) *Controller {
	if presser == nil {
		presser = LogPresser{Log: log}
	}
	return &Controller{
		cfg:     cfg,
		presser: presser,
		events:  events,
		log:     log,
		state:   StateInactive,
		spawn:   func(fn func()) { go fn() },
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the controller is driving the player.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateInactive
}

// Pressing reports whether a key press is in flight.
func (c *Controller) Pressing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressing
}

// Toggle starts or stops media control. Starting waits StartupDelay before
// the first press so the user can focus the player.
func (c *Controller) Toggle(now time.Time) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.lastTick = now
	if c.state == StateInactive {
		c.lastAction = now
		c.setState(StateStarting)
	} else {
		c.resume = false
		c.setState(StateInactive)
	}
	return c.state
}

// Tick advances the timers. Nothing changes while signing or pressing.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	c.lastTick = now
	job := c.tickLocked(now)
	c.mu.Unlock()

	c.run(job)
}

func (c *Controller) tickLocked(now time.Time) *pressJob {
	if c.state == StateInactive || c.signing || c.pressing {
		return nil
	}

	elapsed := now.Sub(c.lastAction)
	switch {
	case c.state == StateStarting && elapsed >= c.cfg.StartupDelay:
		return c.pressLocked(StatePlaying)
	case c.state == StatePlaying && elapsed >= c.cfg.PlayInterval:
		return c.pressLocked(StatePaused)
	case c.state == StatePaused && c.cfg.CyclePauses && elapsed >= c.cfg.PauseInterval:
		return c.pressLocked(StatePlaying)
	}
	return nil
}

// SuspendForSigning pauses the player if it is playing.
func (c *Controller) SuspendForSigning() {
	c.mu.Lock()
	c.signing = true
	c.resume = false
	job := c.settleLocked()
	c.mu.Unlock()

	c.run(job)
}

// ResumeAfterSigning resumes the player if it is paused.
func (c *Controller) ResumeAfterSigning() {
	c.mu.Lock()
	c.signing = false
	c.resume = true
	job := c.settleLocked()
	c.mu.Unlock()

	c.run(job)
}

func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signing
}

// settleLocked picks the press that brings the player in line with signing.
func (c *Controller) settleLocked() *pressJob {
	if c.pressing || c.state == StateInactive {
		return nil
	}
	switch {
	case c.signing && c.state == StatePlaying:
		return c.pressLocked(StatePaused)
	case c.resume && c.state == StatePaused:
		c.resume = false
		return c.pressLocked(StatePlaying)
	}
	c.resume = false
	return nil
}

func (c *Controller) pressLocked(next State) *pressJob {
	c.pressing = true
	return &pressJob{next: next, gen: c.gen}
}

func (c *Controller) run(job *pressJob) {
	if job == nil {
		return
	}
	c.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pressTimeout)
		err := c.presser.Press(ctx)
		cancel()
		c.land(job, err)
	})
}

// land applies a finished press. A failed press leaves the state alone.
func (c *Controller) land(job *pressJob, err error) {
	c.mu.Lock()
	c.pressing = false
	var follow *pressJob
	switch {
	case job.gen != c.gen:
		c.log.Debug().Str("target", string(job.next)).Msg("media toggled during key press, result dropped")
	case err != nil:
		c.log.Warn().Err(err).Str("target", string(job.next)).Msg("media key press failed")
	default:
		c.lastAction = c.lastTick
		c.setState(job.next)
		follow = c.settleLocked()
	}
	c.mu.Unlock()

	c.run(follow)
}

func (c *Controller) setState(next State) {
	prev := c.state
	c.state = next
	c.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("media state changed")
	if c.events != nil {
		c.events.Publish(bus.NewEvent(bus.EventTypeMediaStateChanged, map[string]any{
			"from": string(prev),
			"to":   string(next),
		}))
	}
}
