package speech

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/gloss"
)

// ListenerConfig wires a Listener.
type ListenerConfig struct {
	Provider Provider
	Filter   *Filter
	Mapper   *gloss.Mapper
	Poster   Poster
	Target   Target
	Events   *bus.EventBus
	Logger   zerolog.Logger
	// SignGloss signs the gloss rendering instead of the cleaned transcript.
	SignGloss bool
}

// Listener feeds final transcripts to the signing engine. Results that arrive
// while a sequence is being signed are dropped.
type Listener struct {
	cfg ListenerConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Filter == nil {
		cfg.Filter = NewFilter(nil)
	}
	if cfg.Mapper == nil {
		cfg.Mapper = gloss.NewMapper(nil)
	}
	return &Listener{cfg: cfg}
}

// Start begins listening on audio. It fails with ErrAlreadyRunning if a
// previous Start has not finished.
func (l *Listener) Start(ctx context.Context, audio io.Reader) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}
	if l.cfg.Provider == nil {
		return ErrProviderUnavailable
	}
	if l.cancel != nil {
		l.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	results, err := l.cfg.Provider.Stream(ctx, audio)
	if err != nil {
		cancel()
		return err
	}

	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(results, l.done)

	l.cfg.Logger.Info().Str("provider", l.cfg.Provider.Name()).Msg("speech listener started")
	return nil
}

func (l *Listener) run(results <-chan Transcript, done chan struct{}) {
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		close(done)
		l.cfg.Logger.Info().Msg("speech listener stopped")
	}()

	for t := range results {
		if !t.Final {
			l.cfg.Logger.Debug().Str("partial", t.Text).Msg("partial transcript")
			continue
		}
		l.handleFinal(t.Text)
	}
}

func (l *Listener) handleFinal(raw string) {
	text, ok := l.cfg.Filter.Clean(raw)
	if !ok {
		return
	}
	glossText := l.cfg.Mapper.ToGloss(text)

	l.cfg.Logger.Info().Str("text", text).Str("gloss", glossText).Msg("transcript")
	if l.cfg.Events != nil {
		l.cfg.Events.Publish(bus.NewEvent(bus.EventTypeTranscript, map[string]any{
			"text":  text,
			"gloss": glossText,
		}))
	}

	// a transcript made only of dropped words has nothing to sign in
	// either mode
	if glossText == "" || l.cfg.Poster == nil || l.cfg.Target == nil {
		return
	}
	toSign := text
	if l.cfg.SignGloss {
		toSign = glossText
	}

	target := l.cfg.Target
	log := l.cfg.Logger
	l.cfg.Poster.Post(func() {
		if target.Animating() {
			log.Debug().Str("text", toSign).Msg("busy signing, transcript dropped")
			return
		}
		if err := target.Start(toSign); err != nil {
			log.Info().Err(err).Str("text", toSign).Msg("transcript not signed")
		}
	})
}

// Stop cancels listening and waits for the worker. Safe to call when idle.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current run ends. It is nil before the first Start.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Running reports whether the worker is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// IsUnavailable reports whether err means the recognizer could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
