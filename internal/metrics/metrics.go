package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	uploads           *prometheus.CounterVec
	conversions       *prometheus.CounterVec
	conversionSeconds *prometheus.HistogramVec
	audioSeconds      prometheus.Counter
	creditsDebited    prometheus.Counter
	rateLimited       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_uploads_total",
			Help: "Upload attempts by admission outcome.",
		}, []string{"outcome"}),
		conversions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_conversions_total",
			Help: "Finished conversions by terminal status.",
		}, []string{"status"}),
		conversionSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speech_conversion_duration_seconds",
			Help:    "Wall time spent transcribing and rendering one conversion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"status"}),
		audioSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "speech_audio_seconds_total",
			Help: "Seconds of audio transcribed successfully.",
		}),
		creditsDebited: f.NewCounter(prometheus.CounterOpts{
			Name: "speech_credits_debited_minutes_total",
			Help: "Credit minutes debited from non-admin accounts.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"path"}),
	}
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// ConversionFinished records a terminal transition.
func (m *Metrics) ConversionFinished(status string, elapsed time.Duration, audioSeconds float64) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(status).Inc()
	m.conversionSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
	if audioSeconds > 0 {
		m.audioSeconds.Add(audioSeconds)
	}
}

func (m *Metrics) CreditsDebited(minutes float64) {
	if m == nil || minutes <= 0 {
		return
	}
	m.creditsDebited.Add(minutes)
}

func (m *Metrics) RateLimited(path string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(path).Inc()
}
