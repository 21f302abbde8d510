// Package speech turns a live audio stream into text for the signing engine.
// Recognition runs on its own goroutine; recognized text reaches the engine
// only through a Poster.
package speech

import (
	"context"
	"errors"
	"io"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("speech provider unavailable")
	ErrAlreadyRunning      = errors.New("listener already running")
)

// Transcript is one recognizer result.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Provider streams audio to a recognizer. The returned channel is closed
// when the audio ends, the recognizer hangs up or ctx is cancelled.
type Provider interface {
	Name() string
	Stream(ctx context.Context, audio io.Reader) (<-chan Transcript, error)
}

// Poster hands work to the engine's goroutine. *clock.Loop satisfies it.
type Poster interface {
	Post(fn func())
}

// Target is what the listener drives. *signer.Signer satisfies it.
type Target interface {
	Animating() bool
	Start(text string) error
}
