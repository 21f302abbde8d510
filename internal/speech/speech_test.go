package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/config"
)

func TestFilterClean(t *testing.T) {
	f := NewFilter(nil)

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"simple filler", "um hello world", "hello world", true},
		{"multiple fillers", "uh I want you know milk hmm", "I want milk", true},
		{"case insensitive", "UM yes", "yes", true},
		{"filler only", "um uh hmm", "", false},
		{"punctuation left", "um, uh.", "", false},
		{"empty", "", "", false},
		{"gloss words kept", "like okay so", "like okay so", true},
		{"no partial word match", "umbrella", "umbrella", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.Clean(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestFilterCustomWords(t *testing.T) {
	f := NewFilter([]string{"Foo", " ", "bar"})
	assert.ElementsMatch(t, []string{"foo", "bar"}, f.FillerWords())

	got, ok := f.Clean("foo um bar")
	assert.True(t, ok)
	assert.Equal(t, "um", got)

	f.SetFillerWords(nil)
	got, _ = f.Clean("foo")
	assert.Equal(t, "foo", got)
}

// fakeVosk speaks the vosk-server protocol: a partial per audio chunk and a
// final result on eof.
type fakeVosk struct {
	mu         sync.Mutex
	sampleRate int
	chunks     int
	bytes      int
	final      string
}

func (v *fakeVosk) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				v.mu.Lock()
				v.chunks++
				v.bytes += len(msg)
				v.mu.Unlock()
				conn.WriteJSON(map[string]string{"partial": "hel"})
				continue
			}

			var ctrl map[string]any
			if err := json.Unmarshal(msg, &ctrl); err != nil {
				t.Errorf("bad control message %q: %v", msg, err)
				return
			}
			if c, ok := ctrl["config"].(map[string]any); ok {
				v.mu.Lock()
				v.sampleRate = int(c["sample_rate"].(float64))
				v.mu.Unlock()
				continue
			}
			if _, ok := ctrl["eof"]; ok {
				conn.WriteJSON(map[string]string{"text": v.final})
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func collect(t *testing.T, ch <-chan Transcript) []Transcript {
	t.Helper()
	var out []Transcript
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

func TestVoskStream(t *testing.T) {
	vosk := &fakeVosk{final: "hello world"}
	srv := httptest.NewServer(vosk.handler(t))
	defer srv.Close()

	cfg := config.DefaultConfig().Speech
	cfg.ServerURL = wsURL(srv)
	cfg.ChunkSize = 100
	p := NewVoskProvider(cfg, zerolog.Nop())
	assert.Equal(t, "vosk", p.Name())

	audio := bytes.NewReader(make([]byte, 250))
	results, err := p.Stream(context.Background(), audio)
	require.NoError(t, err)

	got := collect(t, results)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, Transcript{Text: "hello world", Final: true}, last)
	for _, tr := range got[:len(got)-1] {
		assert.False(t, tr.Final)
	}

	vosk.mu.Lock()
	defer vosk.mu.Unlock()
	assert.Equal(t, 16000, vosk.sampleRate)
	assert.Equal(t, 3, vosk.chunks)
	assert.Equal(t, 250, vosk.bytes)
}

func TestVoskUnavailable(t *testing.T) {
	cfg := config.DefaultConfig().Speech
	cfg.ServerURL = "ws://127.0.0.1:1"
	cfg.DialTimeout = time.Second

	_, err := NewVoskProvider(cfg, zerolog.Nop()).Stream(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

type chanProvider struct {
	ch chan Transcript
}

func (p *chanProvider) Name() string { return "chan" }

func (p *chanProvider) Stream(ctx context.Context, _ io.Reader) (<-chan Transcript, error) {
	out := make(chan Transcript)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-p.ch:
				if !ok {
					return
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Stream(context.Context, io.Reader) (<-chan Transcript, error) {
	return nil, ErrProviderUnavailable
}

// syncPoster runs posted functions immediately, serialized.
type syncPoster struct{ mu sync.Mutex }

func (p *syncPoster) Post(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

type fakeTarget struct {
	mu        sync.Mutex
	animating bool
	started   []string
	signal    chan string
}

func (f *fakeTarget) Animating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.animating
}

func (f *fakeTarget) Start(text string) error {
	f.mu.Lock()
	f.started = append(f.started, text)
	f.mu.Unlock()
	f.signal <- text
	return nil
}

func (f *fakeTarget) setAnimating(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.animating = v
}

func newListenerFixture(signGloss bool) (*Listener, *chanProvider, *fakeTarget) {
	p := &chanProvider{ch: make(chan Transcript)}
	target := &fakeTarget{signal: make(chan string, 8)}
	l := NewListener(ListenerConfig{
		Provider:  p,
		Poster:    &syncPoster{},
		Target:    target,
		Logger:    zerolog.Nop(),
		SignGloss: signGloss,
	})
	return l, p, target
}

func expectStart(t *testing.T, target *fakeTarget) string {
	t.Helper()
	select {
	case s := <-target.signal:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("target not started")
		return ""
	}
}

func TestListenerSignsFinalTranscripts(t *testing.T) {
	l, p, target := newListenerFixture(false)
	require.NoError(t, l.Start(context.Background(), nil))
	defer l.Stop()

	p.ch <- Transcript{Text: "hel"}
	p.ch <- Transcript{Text: "um", Final: true}
	p.ch <- Transcript{Text: "um hello there", Final: true}

	assert.Equal(t, "hello there", expectStart(t, target))
}

func TestListenerSignGloss(t *testing.T) {
	l, p, target := newListenerFixture(true)
	require.NoError(t, l.Start(context.Background(), nil))
	defer l.Stop()

	p.ch <- Transcript{Text: "I want milk", Final: true}
	assert.Equal(t, "ME WANT MILK", expectStart(t, target))
}

func TestListenerDropsWhileAnimating(t *testing.T) {
	l, p, target := newListenerFixture(false)
	require.NoError(t, l.Start(context.Background(), nil))
	defer l.Stop()

	target.setAnimating(true)
	p.ch <- Transcript{Text: "dropped", Final: true}
	// every hop is unbuffered: once the second filler is accepted the worker
	// has finished with "dropped"
	p.ch <- Transcript{Text: "um", Final: true}
	p.ch <- Transcript{Text: "um", Final: true}
	target.setAnimating(false)
	p.ch <- Transcript{Text: "kept", Final: true}

	assert.Equal(t, "kept", expectStart(t, target))
	target.mu.Lock()
	defer target.mu.Unlock()
	assert.Equal(t, []string{"kept"}, target.started)
}

func TestListenerSkipsEmptyGloss(t *testing.T) {
	l, p, target := newListenerFixture(false)
	require.NoError(t, l.Start(context.Background(), nil))
	defer l.Stop()

	p.ch <- Transcript{Text: "the a", Final: true}
	p.ch <- Transcript{Text: "kept", Final: true}

	assert.Equal(t, "kept", expectStart(t, target))
	target.mu.Lock()
	defer target.mu.Unlock()
	assert.Equal(t, []string{"kept"}, target.started)
}

func TestListenerPublishesTranscript(t *testing.T) {
	events := bus.NewEventBus()
	got := make(chan bus.Event, 1)
	events.Subscribe(bus.EventTypeTranscript, func(e bus.Event) { got <- e })

	p := &chanProvider{ch: make(chan Transcript)}
	l := NewListener(ListenerConfig{Provider: p, Events: events, Logger: zerolog.Nop()})
	require.NoError(t, l.Start(context.Background(), nil))
	defer l.Stop()

	p.ch <- Transcript{Text: "we go", Final: true}
	select {
	case e := <-got:
		assert.Equal(t, "we go", e.Data["text"])
		assert.Equal(t, "US GO", e.Data["gloss"])
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript event")
	}
}

func TestListenerLifecycle(t *testing.T) {
	l, p, _ := newListenerFixture(false)
	l.Stop()
	assert.Nil(t, l.Done())

	require.NoError(t, l.Start(context.Background(), nil))
	assert.True(t, l.Running())
	assert.ErrorIs(t, l.Start(context.Background(), nil), ErrAlreadyRunning)

	close(p.ch)
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not finish when the stream ended")
	}
	assert.False(t, l.Running())
	l.Stop()
	l.Stop()
}

func TestListenerStartError(t *testing.T) {
	l := NewListener(ListenerConfig{Provider: failingProvider{}, Logger: zerolog.Nop()})
	err := l.Start(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.False(t, l.Running())

	assert.ErrorIs(t, NewListener(ListenerConfig{}).Start(context.Background(), nil), ErrProviderUnavailable)
}
