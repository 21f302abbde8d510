// Package server exposes the signing engine over HTTP: a small control API,
// a websocket stream of engine events and rig snapshots, and Prometheus
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/history"
	"github.com/normanking/signsynth/internal/logging"
	"github.com/normanking/signsynth/internal/media"
	"github.com/normanking/signsynth/internal/signer"
)

const maxBodySize = 64 * 1024

// Engine is the signing engine the API drives. *signer.Signer satisfies it.
type Engine interface {
	Start(text string) error
	Stop()
	State() signer.State
}

// Poster runs work on the engine's goroutine. *clock.Loop satisfies it.
type Poster interface {
	Post(fn func())
}

// MediaControl is the optional media gate. *media.Controller satisfies it.
type MediaControl interface {
	State() media.State
	Toggle(now time.Time) media.State
}

// SessionLog lists past signing sessions. *history.Store satisfies it.
type SessionLog interface {
	Recent(ctx context.Context, limit int) ([]history.Session, error)
}

// LogSource returns recent log entries. *logging.Logger satisfies it.
type LogSource interface {
	GetHistory(limit int) []logging.LogEntry
}

var (
	_ SessionLog = (*history.Store)(nil)
	_ LogSource  = (*logging.Logger)(nil)
)

// Options configure a Server. Engine and Poster are required.
type Options struct {
	Addr    string
	Engine  Engine
	Poster  Poster
	Media   MediaControl
	History SessionLog
	Logs    LogSource
	Hub     *Hub
	Metrics *Metrics
	Log     zerolog.Logger
	// Now stamps media toggles. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	opts   Options
	router chi.Router
}

// SignRequest is the body of POST /sign.
type SignRequest struct {
	Text string `json:"text"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Signer  signer.State `json:"signer"`
	Media   media.State  `json:"media,omitempty"`
	Clients int          `json:"clients"`
}

func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if opts.Poster == nil {
		return nil, errors.New("server: poster is required")
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Log)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{opts: opts}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/sign", s.handleSign)
	r.Post("/stop", s.handleStop)
	r.Get("/status", s.handleStatus)
	r.Post("/media/toggle", s.handleMediaToggle)
	r.Get("/history", s.handleHistory)
	r.Get("/logs", s.handleLogs)
	r.Handle("/ws", s.opts.Hub)
	r.Handle("/metrics", s.opts.Metrics.Handler())
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Hub() *Hub { return s.opts.Hub }

func (s *Server) Metrics() *Metrics { return s.opts.Metrics }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:        s.opts.Addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.opts.Log.Info().Str("addr", s.opts.Addr).Msg("control server listening")

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.opts.Hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	engine, log := s.opts.Engine, s.opts.Log
	s.opts.Poster.Post(func() {
		if err := engine.Start(text); err != nil {
			log.Info().Err(err).Str("text", text).Msg("sign request not played")
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "text": text})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.opts.Poster.Post(s.opts.Engine.Stop)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Signer:  s.opts.Engine.State(),
		Clients: s.opts.Hub.Clients(),
	}
	if s.opts.Media != nil {
		resp.Media = s.opts.Media.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMediaToggle(w http.ResponseWriter, r *http.Request) {
	if s.opts.Media == nil {
		writeError(w, http.StatusNotImplemented, "media control is disabled")
		return
	}
	state := s.opts.Media.Toggle(s.opts.Now())
	writeJSON(w, http.StatusOK, map[string]media.State{"media": state})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotImplemented, "session history is disabled")
		return
	}

	limit, ok := queryLimit(w, r, 20)
	if !ok {
		return
	}

	sessions, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		s.opts.Log.Error().Err(err).Msg("failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []history.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logs == nil {
		writeError(w, http.StatusNotImplemented, "log history is disabled")
		return
	}

	limit, ok := queryLimit(w, r, 100)
	if !ok {
		return
	}

	entries := s.opts.Logs.GetHistory(limit)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// queryLimit reads ?limit=, writing a 400 and returning false when it is
// out of range.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return 0, false
	}
	return n, true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
