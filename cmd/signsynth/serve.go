package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/gloss"
	"github.com/normanking/signsynth/internal/logging"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/server"
	"github.com/normanking/signsynth/internal/speech"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signing engine with its control server",
		Long: `Run the signing engine in real time behind an HTTP control server.

Endpoints:
  POST /sign          {"text": "..."} starts signing
  POST /stop          stops the running session
  GET  /status        signer and media state
  POST /media/toggle  starts or stops media control
  GET  /history       recent sessions, when history is enabled
  GET  /logs          recent log lines
  GET  /ws            engine events and rig snapshots
  GET  /metrics       Prometheus metrics

With --speech, raw 16-bit mono PCM is read from --audio (stdin by default) and
streamed to a vosk server; each final transcript is signed unless a sequence
is already running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "listen address")
	flags.Bool("watch", false, "reload the pose document when it changes")
	flags.Bool("media", false, "pause and resume a media player around signing")
	flags.Bool("speech", false, "sign recognized speech")
	flags.String("vosk-url", "", "vosk server websocket URL")
	flags.String("audio", "", "raw PCM source for speech, - for stdin")
	flags.Bool("sign-gloss", false, "sign the gloss rendering of transcripts")
	a.v.BindPFlag("server.addr", flags.Lookup("addr"))
	a.v.BindPFlag("poses.hot_reload", flags.Lookup("watch"))
	a.v.BindPFlag("media.enabled", flags.Lookup("media"))
	a.v.BindPFlag("speech.enabled", flags.Lookup("speech"))
	a.v.BindPFlag("speech.server_url", flags.Lookup("vosk-url"))
	a.v.BindPFlag("speech.audio_path", flags.Lookup("audio"))
	a.v.BindPFlag("speech.sign_gloss", flags.Lookup("sign-gloss"))

	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg
	metrics := server.NewMetrics()

	eng, err := a.buildEngine(engineOptions{
		start:       time.Now(),
		withMedia:   cfg.Media.Enabled,
		diagnostics: metrics,
	})
	if err != nil {
		return err
	}
	defer metrics.Observe(eng.events)()

	store, closeHistory, err := a.openHistory(eng.events)
	if err != nil {
		return err
	}
	defer closeHistory()

	hub := server.NewHub(a.log.Component("ws"))
	defer hub.Attach(eng.events)()
	defer streamLogs(a.log, eng.events)()

	opts := server.Options{
		Addr:    cfg.Server.Addr,
		Engine:  eng.signer,
		Poster:  eng.loop,
		Hub:     hub,
		Metrics: metrics,
		Logs:    a.log,
		Log:     a.log.Component("server"),
		Now:     eng.loop.Now,
	}
	if eng.media != nil {
		opts.Media = eng.media
		eng.media.Toggle(eng.loop.Now())
	}
	if store != nil {
		opts.History = store
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	if cfg.Poses.HotReload {
		w, err := pose.NewWatcher(cfg.Poses.Path, cfg.Poses.DefaultKey, a.log.Component("poses"), func(lib *pose.Library) {
			eng.loop.Post(func() {
				eng.signer.SetLibrary(lib)
				eng.events.Publish(bus.NewEvent(bus.EventTypeLibraryReloaded, map[string]any{
					"path":    cfg.Poses.Path,
					"entries": lib.Len(),
				}))
			})
		})
		if err != nil {
			return fmt.Errorf("watch poses: %w", err)
		}
		defer w.Close()
	}

	if cfg.Speech.Enabled {
		listener, closeAudio, err := a.startSpeech(ctx, eng)
		switch {
		case speech.IsUnavailable(err):
			a.log.Warn("speech", "Speech recognition unavailable, continuing without it", map[string]interface{}{
				"url":   cfg.Speech.ServerURL,
				"error": err.Error(),
			})
		case err != nil:
			return err
		default:
			defer closeAudio()
			defer listener.Stop()
		}
	}

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- eng.loop.Run(ctx, cfg.Timing.FrameInterval, func(dt time.Duration) {
			eng.rig.Advance(dt)
			if eng.media != nil {
				eng.media.Tick(eng.loop.Now())
			}
		})
	}()
	go hub.RunSnapshots(ctx, cfg.Server.SnapshotEvery, eng.rig)

	a.log.Info("serve", "SignSynth serving", map[string]interface{}{
		"addr":    cfg.Server.Addr,
		"speech":  cfg.Speech.Enabled,
		"media":   cfg.Media.Enabled,
		"watch":   cfg.Poses.HotReload,
		"history": cfg.History.Enabled,
		"logFile": a.log.GetLogPath(),
	})

	if err := srv.ListenAndServe(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("serve", "SignSynth stopped", nil)
	return nil
}

// streamLogs publishes every log entry on events so websocket clients see
// them. The returned func stops the stream.
func streamLogs(l *logging.Logger, events *bus.EventBus) (stop func()) {
	l.SetOnLog(func(e logging.LogEntry) {
		events.Publish(bus.NewEvent(bus.EventTypeLog, map[string]any{
			"timestamp": e.Timestamp,
			"level":     e.Level,
			"component": e.Component,
			"message":   e.Message,
			"data":      e.Data,
		}))
	})
	return func() { l.SetOnLog(nil) }
}

func (a *app) startSpeech(ctx context.Context, eng *engine) (*speech.Listener, func(), error) {
	cfg := a.cfg.Speech

	var audio io.ReadCloser = io.NopCloser(os.Stdin)
	if cfg.AudioPath != "" && cfg.AudioPath != "-" {
		f, err := os.Open(cfg.AudioPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open audio: %w", err)
		}
		audio = f
	}

	// an unset list decodes as empty; keep the defaults in that case
	var fillers []string
	if len(cfg.FillerWords) > 0 {
		fillers = cfg.FillerWords
	}

	listener := speech.NewListener(speech.ListenerConfig{
		Provider:  speech.NewVoskProvider(cfg, a.log.Component("vosk")),
		Filter:    speech.NewFilter(fillers),
		Mapper:    gloss.NewMapper(nil),
		Poster:    eng.loop,
		Target:    eng.signer,
		Events:    eng.events,
		Logger:    a.log.Component("speech"),
		SignGloss: cfg.SignGloss,
	})
	if err := listener.Start(ctx, audio); err != nil {
		audio.Close()
		return nil, nil, err
	}
	return listener, func() { audio.Close() }, nil
}
