package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures *prometheus.CounterVec
	EmptyTranscripts      prometheus.Counter
	DegradedPreprocessing prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	AudioDuration         prometheus.Histogram
	QueueDepth            prometheus.Gauge
	RejectedSegments      *prometheus.CounterVec

	// Model metrics
	ModelLoads        *prometheus.CounterVec
	ModelLoadDuration prometheus.Histogram
	BackendRetries    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "voicenote_transcription_requests_total",
			Help: "Total number of transcription requests",
		}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenote_transcription_failures_total",
			Help: "Total number of failed transcriptions by reason",
		}, []string{"reason"}),
		EmptyTranscripts: f.NewCounter(prometheus.CounterOpts{
			Name: "voicenote_transcription_empty_total",
			Help: "Total number of transcriptions that recognized no speech",
		}),
		DegradedPreprocessing: f.NewCounter(prometheus.CounterOpts{
			Name: "voicenote_preprocess_degraded_total",
			Help: "Total number of inputs transcribed without preprocessing",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicenote_transcription_duration_seconds",
			Help:    "Wall time from dequeue to cleaned transcript",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicenote_audio_duration_seconds",
			Help:    "Duration of normalized voice notes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8 minutes
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicenote_queue_depth",
			Help: "Current number of requests waiting for a worker",
		}),
		RejectedSegments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenote_rejected_segments_total",
			Help: "Total number of decoded segments dropped by quality gates",
		}, []string{"gate"}),

		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenote_model_loads_total",
			Help: "Total number of model load attempts by outcome",
		}, []string{"outcome"}),
		ModelLoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicenote_model_load_duration_seconds",
			Help:    "Time spent loading the speech model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		BackendRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "voicenote_backend_retries_total",
			Help: "Total number of retried remote transcription calls",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenote_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicenote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a finished transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64, empty bool) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(durationSeconds)
	if empty {
		m.EmptyTranscripts.Inc()
	}
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(reason).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordDegraded counts an input that skipped preprocessing
func (m *Metrics) RecordDegraded() {
	if m == nil {
		return
	}
	m.DegradedPreprocessing.Inc()
}

// RecordAudioDuration observes the length of a normalized clip
func (m *Metrics) RecordAudioDuration(seconds float64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.AudioDuration.Observe(seconds)
}

// SetQueueDepth sets the current queue depth
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordRejectedSegment counts a segment dropped by the named gate
func (m *Metrics) RecordRejectedSegment(gate string) {
	if m == nil {
		return
	}
	m.RejectedSegments.WithLabelValues(gate).Inc()
}

// RecordModelLoad records a model load attempt
func (m *Metrics) RecordModelLoad(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.ModelLoads.WithLabelValues(outcome).Inc()
	m.ModelLoadDuration.Observe(durationSeconds)
}

// RecordBackendRetry increments the retry counter
func (m *Metrics) RecordBackendRetry() {
	if m == nil {
		return
	}
	m.BackendRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
