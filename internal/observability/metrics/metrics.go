// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dialog_analysis"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestsActive  prometheus.Gauge
	RequestsSuccess prometheus.Counter
	RequestsFailed  *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	StageDuration   *prometheus.HistogramVec

	// Recognition metrics
	ResultsCollected    *prometheus.CounterVec
	TranscriptsPartial  prometheus.Counter
	STTErrors           *prometheus.CounterVec
	STTLatency          *prometheus.HistogramVec
	UtterancesAnalyzed  prometheus.Counter
	ResultsSkipped      prometheus.Counter
	DominantFrequencyHz prometheus.Histogram
	TurnsBySource       *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	AudioSeconds        prometheus.Histogram

	// Event publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// Store metrics
	StoreWrites *prometheus.CounterVec

	// Backpressure metrics
	LimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Request metrics
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of analysis requests started",
		}, []string{"transport"}),
		RequestsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Number of analysis requests in flight",
		}),
		RequestsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_success_total",
			Help:      "Total number of successfully completed analyses",
		}),
		RequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total number of failed analyses",
		}, []string{"kind"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of analysis requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),

		// Recognition metrics
		ResultsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_collected_total",
			Help:      "Total number of recognizer results collected",
		}, []string{"type"}),
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts received",
		}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Time from closing the recognizer to the final result",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}, []string{"provider"}),
		UtterancesAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_analyzed_total",
			Help:      "Total number of utterances given a spectral analysis",
		}),
		ResultsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_skipped_total",
			Help:      "Total number of recognizer results without word data",
		}),
		DominantFrequencyHz: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dominant_frequency_hz",
			Help:      "Dominant frequency of analysed utterances",
			Buckets:   []float64{0, 100, 150, 200, 250, 300, 400, 600, 1000, 2000},
		}),
		TurnsBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_turns_total",
			Help:      "Total number of dialog turns by role",
		}, []string{"source"}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),
		AudioSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of analysed recordings in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		// Event publish metrics
		PublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total number of events published",
		}, []string{"sink", "topic", "event_type"}),
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of event publish errors",
		}, []string{"sink", "topic", "event_type"}),
		PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"sink", "topic"}),

		// Store metrics
		StoreWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Total number of analysis records written",
		}, []string{"retention", "status"}),

		// Backpressure metrics
		LimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_exceeded_total",
			Help:      "Total number of times request limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordRequestStart records a new analysis request starting.
func (m *Metrics) RecordRequestStart(transport string) {
	m.RequestsTotal.WithLabelValues(transport).Inc()
	m.RequestsActive.Inc()
}

// RecordRequestEnd records an analysis request ending. kind is empty on success.
func (m *Metrics) RecordRequestEnd(kind string, durationSeconds float64) {
	m.RequestsActive.Dec()
	m.RequestDuration.Observe(durationSeconds)
	if kind == "" {
		m.RequestsSuccess.Inc()
	} else {
		m.RequestsFailed.WithLabelValues(kind).Inc()
	}
}

// RecordStage records the duration of a pipeline stage.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordPartialTranscript records a partial transcript received.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordResult records a collected recognizer result.
func (m *Metrics) RecordResult(final bool) {
	if final {
		m.ResultsCollected.WithLabelValues("final").Inc()
		return
	}
	m.ResultsCollected.WithLabelValues("accepted").Inc()
}

// RecordUtterance records an analysed utterance.
func (m *Metrics) RecordUtterance(dominantHz float64) {
	m.UtterancesAnalyzed.Inc()
	m.DominantFrequencyHz.Observe(dominantHz)
}

// RecordSkipped records results that carried no word data.
func (m *Metrics) RecordSkipped(n int) {
	m.ResultsSkipped.Add(float64(n))
}

// RecordTurn records an assembled dialog turn.
func (m *Metrics) RecordTurn(source string) {
	m.TurnsBySource.WithLabelValues(source).Inc()
}

// RecordAudioReceived records one chunk of audio.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordAudioDuration records the length of an analysed recording.
func (m *Metrics) RecordAudioDuration(seconds float64) {
	m.AudioSeconds.Observe(seconds)
}

// RecordPublish records an event publish attempt.
func (m *Metrics) RecordPublish(sink, topic, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(sink, topic, eventType).Inc()
	m.PublishLatency.WithLabelValues(sink, topic).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(sink, topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSTTLatency records how long the recognizer took to finish.
func (m *Metrics) RecordSTTLatency(provider string, seconds float64) {
	m.STTLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordStoreWrite records an analysis record write.
func (m *Metrics) RecordStoreWrite(retention string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreWrites.WithLabelValues(retention, status).Inc()
}

// RecordLimitExceeded records when a request limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.LimitExceeded.WithLabelValues(limitType).Inc()
}
