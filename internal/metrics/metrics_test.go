package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Upload("accepted")
	m.Upload("accepted")
	m.ConversionFinished("completed", 3*time.Second, 90)
	m.ConversionFinished("failed", time.Second, 0)
	m.CreditsDebited(1.5)
	m.CreditsDebited(-1)
	m.RateLimited("/auth/login")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploads.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversions.WithLabelValues("failed")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.audioSeconds))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.creditsDebited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("/auth/login")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Upload("accepted")
		m.ConversionFinished("completed", time.Second, 1)
		m.CreditsDebited(1)
		m.RateLimited("/")
	})
}
