package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/metrics"
)

// Store decides whether one more request under key fits into limit. When it
// does not, retryAfter says when the next one will.
type Store interface {
	Allow(ctx context.Context, key string, limit config.Rate) (ok bool, retryAfter time.Duration, err error)
}

// MemoryStore keeps a sliding-window log per key in process memory: the
// timestamps of the requests admitted during the last Period. It matches
// RedisStore for single-replica deployments.
type MemoryStore struct {
	windows   map[string]*window
	mu        sync.Mutex
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	hits   []time.Time
	period time.Duration
}

// sweepEvery bounds how often idle keys are evicted.
const sweepEvery = time.Minute

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window), now: time.Now}
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit config.Rate) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweep(now)
		s.lastSweep = now
	}

	w, exists := s.windows[key]
	if !exists {
		w = &window{}
		s.windows[key] = w
	}
	w.period = limit.Period
	w.prune(now)
	if len(w.hits) >= limit.Limit {
		return false, w.hits[0].Add(limit.Period).Sub(now), nil
	}
	w.hits = append(w.hits, now)
	return true, 0, nil
}

// Len returns the number of keys currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// sweep drops keys with no admitted request left in their window.
func (s *MemoryStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if w.prune(now); len(w.hits) == 0 {
			delete(s.windows, key)
		}
	}
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	w.hits = w.hits[i:]
}

// RateLimiter applies a per client IP and path budget. Paths listed in
// overrides use their own budget instead of the default one.
type RateLimiter struct {
	store     Store
	byDefault config.Rate
	overrides map[string]config.Rate
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRateLimiter(store Store, byDefault config.Rate, overrides map[string]config.Rate, m *metrics.Metrics, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{store: store, byDefault: byDefault, overrides: overrides, metrics: m, logger: logger}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		limit, ok := rl.overrides[r.URL.Path]
		if !ok {
			limit = rl.byDefault
		}
		key := ClientIP(r) + ":" + r.URL.Path
		allowed, retryAfter, err := rl.store.Allow(r.Context(), key, limit)
		if err != nil {
			// the limiter backend is down; let traffic through
			rl.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			rl.metrics.RateLimited(r.URL.Path)
			rl.logger.Info("rate limit exceeded", zap.String("key", key), zap.Stringer("limit", limit))
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			WriteError(w, r, apperror.New(apperror.KindRateLimited, "Rate limit exceeded: "+limit.String()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
