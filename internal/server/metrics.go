package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/signsynth/internal/bus"
)

// Metrics counts what the signer plays and skips. It satisfies
// signer.Diagnostics.
type Metrics struct {
	registry *prometheus.Registry

	SignsPlayed     *prometheus.CounterVec
	KeysSkipped     *prometheus.CounterVec
	SessionsStarted prometheus.Counter
	Transcripts     prometheus.Counter
	MediaState      *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SignsPlayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signsynth_signs_played_total",
				Help: "Signs played, by kind (pose or slide)",
			},
			[]string{"kind"},
		),
		KeysSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signsynth_keys_skipped_total",
				Help: "Sequence keys with no pose entry",
			},
			[]string{"key"},
		),
		SessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signsynth_sessions_started_total",
				Help: "Signing sessions started",
			},
		),
		Transcripts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signsynth_transcripts_total",
				Help: "Final speech transcripts received",
			},
		),
		MediaState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signsynth_media_state",
				Help: "1 for the current media control state",
			},
			[]string{"state"},
		),
	}
}

func (m *Metrics) KeySkipped(key string) {
	m.KeysSkipped.WithLabelValues(key).Inc()
}

func (m *Metrics) SignPlayed(_ string, slide bool) {
	kind := "pose"
	if slide {
		kind = "slide"
	}
	m.SignsPlayed.WithLabelValues(kind).Inc()
}

// Observe feeds session, transcript and media events into the collectors.
func (m *Metrics) Observe(events *bus.EventBus) (unsubscribe func()) {
	return events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeSigningStarted,
		bus.EventTypeTranscript,
		bus.EventTypeMediaStateChanged,
	}, func(e bus.Event) {
		switch e.Type {
		case bus.EventTypeSigningStarted:
			m.SessionsStarted.Inc()
		case bus.EventTypeTranscript:
			m.Transcripts.Inc()
		case bus.EventTypeMediaStateChanged:
			if from, ok := e.Data["from"].(string); ok {
				m.MediaState.WithLabelValues(from).Set(0)
			}
			if to, ok := e.Data["to"].(string); ok {
				m.MediaState.WithLabelValues(to).Set(1)
			}
		}
	})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
