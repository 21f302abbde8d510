// Package signer runs signing sessions: it expands text into pose keys and
// steps through them on a cooperative scheduler, playing each sign on the rig
// with a dwell pause in between.
package signer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/clock"
	"github.com/normanking/signsynth/internal/config"
	"github.com/normanking/signsynth/internal/gloss"
	"github.com/normanking/signsynth/internal/media"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/rig"
	"github.com/normanking/signsynth/internal/timeline"
)

// ErrNothingToSign is returned by Start when no word of the text resolves.
var ErrNothingToSign = errors.New("no valid signs found in text")

// Status texts shown to the user.
const (
	StatusNoSigns  = "No valid signs found in text"
	StatusComplete = "Animation Complete"
)

// Diagnostics observes sign resolution.
type Diagnostics interface {
	KeySkipped(key string)
	SignPlayed(key string, slide bool)
}

// NopDiagnostics discards everything.
type NopDiagnostics struct{}

func (NopDiagnostics) KeySkipped(string)       {}
func (NopDiagnostics) SignPlayed(string, bool) {}

// StepResult tells the scheduler whether to run again and after how long.
type StepResult struct {
	Done  bool
	Delay time.Duration
}

// Deps are the collaborators a Signer drives. Library, Scheduler and Builder
// are required; the rest default to no-ops.
type Deps struct {
	Library     *pose.Library
	Rig         rig.Rig
	Builder     *timeline.Builder
	Scheduler   clock.Scheduler
	Gate        media.Gate
	Events      *bus.EventBus
	Log         zerolog.Logger
	Diagnostics Diagnostics
	Timing      config.TimingConfig

	// OnStatus receives every status text change.
	OnStatus func(text string)
	// OnComplete runs when a session plays to the end.
	OnComplete func()
}

// State is a snapshot of the playback state.
type State struct {
	SessionID  string   `json:"session_id,omitempty"`
	Text       string   `json:"text"`
	Sequence   []string `json:"sequence"`
	Index      int      `json:"index"`
	CurrentKey string   `json:"current_key"`
	Animating  bool     `json:"animating"`
	Status     string   `json:"status"`
}

// Signer is the playback state machine. Start, Stop and Step must run on the
// scheduler's goroutine; State and SetLibrary are safe from anywhere.
type Signer struct {
	deps Deps

	mu         sync.RWMutex
	lib        *pose.Library
	nextLib    *pose.Library
	st         State
	stepToken  clock.Token
	clearToken clock.Token
}

// New validates deps and returns an idle signer.
func New(deps Deps) (*Signer, error) {
	if deps.Library == nil {
		return nil, errors.New("signer: library is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("signer: scheduler is required")
	}
	if deps.Builder == nil {
		return nil, errors.New("signer: timeline builder is required")
	}
	if deps.Rig == nil {
		deps.Rig = rig.Nop{}
	}
	if deps.Gate == nil {
		deps.Gate = media.NopGate{}
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = NopDiagnostics{}
	}
	return &Signer{deps: deps, lib: deps.Library}, nil
}

// State returns a copy of the current playback state.
func (s *Signer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.st
	st.Sequence = append([]string(nil), s.st.Sequence...)
	return st
}

// Animating reports whether a session is in flight.
func (s *Signer) Animating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Animating
}

// Library is the library the next session will use.
func (s *Signer) Library() *pose.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextLib != nil {
		return s.nextLib
	}
	return s.lib
}

// SetLibrary swaps in a reloaded library. A running session keeps the
// library it started with.
func (s *Signer) SetLibrary(lib *pose.Library) {
	if lib == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLib = lib
}

// Start begins signing text, replacing any running session. It returns
// ErrNothingToSign, after reporting it through the status text, when nothing
// in text resolves to a pose.
func (s *Signer) Start(text string) error {
	var effects []func()
	defer func() { run(effects) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	interrupted := s.st.Animating
	if interrupted {
		effects = append(effects, s.stopLocked(false)...)
	}
	if s.clearToken != 0 {
		s.deps.Scheduler.Cancel(s.clearToken)
		s.clearToken = 0
	}
	if s.nextLib != nil {
		s.lib, s.nextLib = s.nextLib, nil
	}

	text = strings.TrimSpace(text)
	seq := gloss.ExpandText(text, s.lib)
	if len(seq) == 0 {
		if interrupted {
			effects = append(effects, s.deps.Gate.ResumeAfterSigning)
		}
		effects = append(effects, s.setStatusLocked(StatusNoSigns))
		s.deps.Log.Info().Str("text", text).Msg("nothing to sign")
		return ErrNothingToSign
	}

	s.st = State{
		SessionID: uuid.NewString(),
		Text:      text,
		Sequence:  seq,
		Animating: true,
	}
	if !interrupted {
		effects = append(effects, s.deps.Gate.SuspendForSigning)
	}
	effects = append(effects, s.setStatusLocked(fmt.Sprintf("Signing: %s", text)))

	s.scheduleLocked(s.st.SessionID, 0)

	s.deps.Log.Info().
		Str("session", s.st.SessionID).
		Str("text", text).
		Strs("sequence", seq).
		Msg("signing started")
	effects = append(effects, s.publish(bus.EventTypeSigningStarted, map[string]any{
		"session":  s.st.SessionID,
		"text":     text,
		"sequence": append([]string(nil), seq...),
	}))
	return nil
}

// Stop cancels the pending step and any tweens still in flight, leaving the
// rig where it is, and releases the media gate. Calling it while idle does
// nothing.
func (s *Signer) Stop() {
	var effects []func()
	defer func() { run(effects) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	effects = s.stopLocked(true)
}

// stopLocked ends the running session. The gate is released only when
// release is set; a restart keeps it held for the next session.
func (s *Signer) stopLocked(release bool) []func() {
	if s.stepToken != 0 {
		s.deps.Scheduler.Cancel(s.stepToken)
		s.stepToken = 0
	}
	if !s.st.Animating {
		return nil
	}
	s.st.Animating = false
	s.deps.Rig.ClearTweens()
	s.deps.Log.Info().Str("session", s.st.SessionID).Int("index", s.st.Index).Msg("signing stopped")

	var effects []func()
	if release {
		effects = append(effects, s.deps.Gate.ResumeAfterSigning)
	}
	return append(effects, s.publish(bus.EventTypeSigningStopped, map[string]any{
		"session": s.st.SessionID,
		"index":   s.st.Index,
	}))
}

// Step advances the session by one key. It never blocks.
func (s *Signer) Step() StepResult {
	var effects []func()
	defer func() { run(effects) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.st.Animating {
		return StepResult{Done: true}
	}

	if s.st.Index >= len(s.st.Sequence) {
		effects = s.completeLocked()
		return StepResult{Done: true}
	}

	session := s.st.SessionID
	key := s.st.Sequence[s.st.Index]
	index := s.st.Index

	if key == s.st.CurrentKey && utf8.RuneCountInString(key) == 1 {
		left, right := s.deps.Builder.ArmTransforms(s.deps.Rig)
		s.deps.Rig.Play(s.deps.Builder.Slide(left, right))
		s.st.Index++
		s.deps.Diagnostics.SignPlayed(key, true)
		effects = append(effects, s.publish(bus.EventTypeSigningSlide, map[string]any{
			"session": session, "key": key, "index": index,
		}))
		return StepResult{Delay: s.deps.Timing.Dwell}
	}

	s.st.CurrentKey = key
	entry, ok := s.lib.Lookup(key)
	if !ok {
		s.st.Index++
		s.deps.Diagnostics.KeySkipped(key)
		s.deps.Log.Debug().Str("session", session).Str("key", key).Msg("skipping unknown key")
		effects = append(effects, s.publish(bus.EventTypeSigningSkipped, map[string]any{
			"session": session, "key": key, "index": index,
		}))
		return StepResult{}
	}

	tweens := s.deps.Builder.Build(entry, timeline.Sequence)
	// a long clip may still be running; the new sign replaces it
	s.deps.Rig.ClearTweens()
	s.deps.Rig.Play(tweens)
	s.st.Index++
	s.deps.Diagnostics.SignPlayed(key, false)

	effects = append(effects,
		s.setStatusLocked(fmt.Sprintf("Signing: %s ('%s')", s.st.Text, key)),
		s.publish(bus.EventTypeSigningPose, map[string]any{
			"session":  session,
			"key":      key,
			"index":    index,
			"clip":     entry.Clip,
			"tweens":   len(tweens),
			"duration": timeline.Duration(tweens).String(),
		}),
	)
	return StepResult{Delay: s.deps.Timing.Dwell}
}

func (s *Signer) completeLocked() []func() {
	s.deps.Rig.ClearTweens()
	s.deps.Builder.Snap(s.deps.Rig, s.lib.Default().First())

	session := s.st.SessionID
	s.st.Animating = false
	s.st.Index = 0
	s.st.CurrentKey = ""
	s.stepToken = 0

	s.clearToken = s.deps.Scheduler.After(s.deps.Timing.ClearStatusDelay, s.clearStatus)

	s.deps.Log.Info().Str("session", session).Msg("signing complete")

	effects := []func(){
		s.deps.Gate.ResumeAfterSigning,
		s.setStatusLocked(StatusComplete),
		s.publish(bus.EventTypeSigningCompleted, map[string]any{"session": session}),
	}
	if s.deps.OnComplete != nil {
		effects = append(effects, s.deps.OnComplete)
	}
	return effects
}

func (s *Signer) clearStatus() {
	var effect func()
	s.mu.Lock()
	s.clearToken = 0
	effect = s.setStatusLocked("")
	s.mu.Unlock()
	effect()
}

// scheduleLocked registers the next step for session.
func (s *Signer) scheduleLocked(session string, delay time.Duration) {
	s.stepToken = s.deps.Scheduler.After(delay, func() { s.runStep(session) })
}

func (s *Signer) runStep(session string) {
	res := s.Step()

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Done || !s.st.Animating || s.st.SessionID != session {
		return
	}
	s.scheduleLocked(session, res.Delay)
}

func (s *Signer) setStatusLocked(text string) func() {
	s.st.Status = text
	return func() {
		if s.deps.OnStatus != nil {
			s.deps.OnStatus(text)
		}
		if s.deps.Events != nil {
			s.deps.Events.PublishSync(bus.NewEvent(bus.EventTypeStatus, map[string]any{"text": text}))
		}
	}
}

func (s *Signer) publish(t bus.EventType, data map[string]any) func() {
	return func() {
		if s.deps.Events != nil {
			s.deps.Events.PublishSync(bus.NewEvent(t, data))
		}
	}
}

func run(effects []func()) {
	for _, fn := range effects {
		fn()
	}
}
