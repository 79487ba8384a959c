package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the orchestrator's prometheus metrics.
type Collector struct {
	recordingsActive prometheus.Gauge
	encoderCrashes   *prometheus.CounterVec
	sessionRestarts  *prometheus.CounterVec

	uploadAttempts  prometheus.Counter
	uploadSuccesses prometheus.Counter
	uploadFailures  *prometheus.CounterVec
	uploadDuration  prometheus.Histogram
}

// NewCollector registers the orchestrator metrics with the given
// registerer. Tests pass a fresh registry to avoid collisions.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		recordingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamcorder_recordings_active",
			Help: "Number of recording sessions currently running",
		}),

		encoderCrashes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcorder_encoder_crashes_total",
			Help: "Unexpected encoder process exits",
		}, []string{"stream"}),

		sessionRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcorder_session_restarts_total",
			Help: "Automatic recording session restarts",
		}, []string{"stream"}),

		uploadAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamcorder_upload_attempts_total",
			Help: "Upload attempts including retries",
		}),

		uploadSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamcorder_upload_successes_total",
			Help: "Uploads that completed successfully",
		}),

		uploadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcorder_upload_failures_total",
			Help: "Upload attempts that failed, by failure class",
		}, []string{"reason"}),

		uploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamcorder_upload_duration_seconds",
			Help:    "Duration of successful upload attempts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (c *Collector) SetActiveRecordings(n int) {
	c.recordingsActive.Set(float64(n))
}

func (c *Collector) RecordEncoderCrash(stream string) {
	c.encoderCrashes.WithLabelValues(stream).Inc()
}

func (c *Collector) RecordSessionRestart(stream string) {
	c.sessionRestarts.WithLabelValues(stream).Inc()
}

func (c *Collector) RecordUploadAttempt() {
	c.uploadAttempts.Inc()
}

func (c *Collector) RecordUploadSuccess(duration time.Duration) {
	c.uploadSuccesses.Inc()
	c.uploadDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordUploadFailure(reason string) {
	c.uploadFailures.WithLabelValues(reason).Inc()
}
