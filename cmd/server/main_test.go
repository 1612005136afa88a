package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/middleware"
	"speech-to-pdf/internal/test"
)

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		SecretKey:          "secret",
		TokenTTL:           time.Hour,
		UploadDir:          t.TempDir(),
		MaxFileSize:        1 << 20,
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitGlobal:    config.Rate{Limit: 200, Period: time.Hour},
		RateLimitLogin:     config.Rate{Limit: 5, Period: time.Minute},
		TranscriptionModel: "nova-3",
		ConversionTimeout:  time.Hour,
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	app := &App{
		cfg:       cfg,
		db:        test.NewSQLiteDB(t),
		tasks:     &test.MockTaskEnqueuer{},
		rateStore: middleware.NewMemoryStore(),
		registry:  registry,
		logger:    zap.NewNop(),
	}
	router, err := app.newRouter()
	require.NoError(t, err)
	return router
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter(t *testing.T) {
	h := newTestApp(t)

	rr := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = get(t, h, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kind":"not_found"`)

	rr = get(t, h, "/conversions")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestApp(t)
	rr := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestLoginRateLimit(t *testing.T) {
	h := newTestApp(t)
	form := url.Values{"username": {"nobody"}, "password": {"x"}}.Encode()
	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "198.51.100.4:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, login().Code)
	}
	rr := login()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}
