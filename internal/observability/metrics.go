package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls        prometheus.Gauge
	CallEvents         *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	STTReconnects      *prometheus.CounterVec
	SentencesSpoken    prometheus.Counter
	SentencesCancelled prometheus.Counter
	GuardRegenerations prometheus.Counter
	SilencePrompts     prometheus.Counter
	Interruptions      prometheus.Counter
	FirstAudioLatency  prometheus.Histogram
	SynthLatency       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of active training calls.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		STTReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_reconnects_total",
			Help:      "Transcription stream reconnect attempts by outcome.",
		}, []string{"outcome"}),
		SentencesSpoken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_spoken_total",
			Help:      "Caller sentences fully played to the trainee.",
		}),
		SentencesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_cancelled_total",
			Help:      "Sentences dropped by interruption or hangup.",
		}),
		GuardRegenerations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_regenerations_total",
			Help:      "Responses regenerated after a character break.",
		}),
		SilencePrompts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silence_prompts_total",
			Help:      "Caller turns triggered by dispatcher silence.",
		}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Times the trainee talked over the caller.",
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from committed transcript to first caller audio in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
		SynthLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synth_latency_ms",
			Help:      "Per sentence speech synthesis latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500},
		}),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveSynthLatency(d time.Duration) {
	m.SynthLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
