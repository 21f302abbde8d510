package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/config"
)

// VoskProvider talks to a vosk-server websocket: a config message, binary
// PCM chunks, then {"eof":1}. The server answers every chunk with a partial
// or a final result.
type VoskProvider struct {
	url         string
	sampleRate  int
	chunkSize   int
	dialTimeout time.Duration
	logger      zerolog.Logger
}

func NewVoskProvider(cfg config.SpeechConfig, logger zerolog.Logger) *VoskProvider {
	p := &VoskProvider{
		url:         cfg.ServerURL,
		sampleRate:  cfg.SampleRate,
		chunkSize:   cfg.ChunkSize,
		dialTimeout: cfg.DialTimeout,
		logger:      logger.With().Str("provider", "vosk").Logger(),
	}
	if p.sampleRate <= 0 {
		p.sampleRate = 16000
	}
	if p.chunkSize <= 0 {
		p.chunkSize = 8000
	}
	if p.dialTimeout <= 0 {
		p.dialTimeout = 10 * time.Second
	}
	return p
}

func (p *VoskProvider) Name() string { return "vosk" }

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type voskResult struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// Stream dials the server and pumps audio to it until audio is exhausted.
func (p *VoskProvider) Stream(ctx context.Context, audio io.Reader) (<-chan Transcript, error) {
	dialer := websocket.Dialer{HandshakeTimeout: p.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		if resp != nil {
			p.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("vosk websocket connection failed")
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrProviderUnavailable, p.url, err)
	}

	var hello voskConfig
	hello.Config.SampleRate = p.sampleRate
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send vosk config: %w", err)
	}
	p.logger.Info().Str("url", p.url).Int("sample_rate", p.sampleRate).Msg("connected to vosk")

	out := make(chan Transcript, 32)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go p.writeAudio(conn, audio)
	go func() {
		defer close(done)
		defer close(out)
		defer conn.Close()
		p.readResults(ctx, conn, out)
	}()

	return out, nil
}

func (p *VoskProvider) writeAudio(conn *websocket.Conn, audio io.Reader) {
	buf := make([]byte, p.chunkSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				p.logger.Debug().Err(werr).Msg("vosk audio write stopped")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.logger.Warn().Err(err).Msg("audio source failed")
			}
			break
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		p.logger.Debug().Err(err).Msg("vosk eof write failed")
	}
}

func (p *VoskProvider) readResults(ctx context.Context, conn *websocket.Conn, out chan<- Transcript) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Debug().Err(err).Msg("vosk stream ended")
			}
			return
		}

		var res voskResult
		if err := json.Unmarshal(message, &res); err != nil {
			p.logger.Warn().Err(err).Str("message", string(message)).Msg("failed to parse vosk message")
			continue
		}

		var t Transcript
		switch {
		case res.Text != nil:
			t = Transcript{Text: *res.Text, Final: true}
		case res.Partial != nil:
			if *res.Partial == "" {
				continue
			}
			t = Transcript{Text: *res.Partial}
		default:
			continue
		}

		select {
		case out <- t:
		case <-ctx.Done():
			return
		}
	}
}
