package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/models"
)

type fakeTokens map[string]string

func (f fakeTokens) Parse(token string) (string, error) {
	if subject, ok := f[token]; ok {
		return subject, nil
	}
	return "", errors.New("bad token")
}

type fakeUsers map[string]models.User

func (f fakeUsers) Resolve(ctx context.Context, username string) (models.User, error) {
	u, ok := f[username]
	if !ok {
		return models.User{}, apperror.Unauthorized("Could not validate credentials")
	}
	if !u.IsActive {
		return models.User{}, apperror.BusinessRule("Inactive user")
	}
	return u, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tokens := fakeTokens{"good": "alice", "ghost": "nobody", "sleepy": "bob"}
	users := fakeUsers{
		"alice": {ID: 1, Username: "alice", IsActive: true},
		"bob":   {ID: 2, Username: "bob", IsActive: false},
	}
	var seen models.User
	handler := AuthMiddleware(tokens, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"unknown subject", "Bearer ghost", http.StatusUnauthorized},
		{"inactive user", "Bearer sleepy", http.StatusBadRequest},
		{"valid", "Bearer good", http.StatusOK},
		{"lower-case scheme", "bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
	assert.Equal(t, int64(1), seen.ID)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req = req.WithContext(WithUser(req.Context(), models.User{ID: 2}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Not enough permissions")

	req = req.WithContext(WithUser(req.Context(), models.User{ID: 1, IsAdmin: true}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestLogger(t *testing.T) {
	var id string
	handler := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = RequestIDFromContext(r.Context())
		WriteError(w, r, apperror.NotFound("Conversion"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/conversions/9", nil))
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, rr.Header().Get("X-Request-ID"))
	assert.Contains(t, rr.Body.String(), `"request_id":"`+id+`"`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "client-id", id)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	assert.Equal(t, "10.0.0.5", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/conversions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/conversions", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	login := config.Rate{Limit: 5, Period: time.Minute}
	limiter := NewRateLimiter(NewMemoryStore(), config.Rate{Limit: 200, Period: time.Hour},
		map[string]config.Rate{"/auth/login": login}, nil, zap.NewNop())
	handler := limiter.Middleware(okHandler())

	do := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do("/auth/login", "192.0.2.1").Code, "request %d", i+1)
	}
	rr := do("/auth/login", "192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry > 0 && retry <= 60, "retry after %d", retry)
	assert.Contains(t, rr.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, do("/auth/login", "192.0.2.2").Code)
	assert.Equal(t, http.StatusOK, do("/conversions", "192.0.2.1").Code)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryStoreSlidingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	limit := config.Rate{Limit: 5, Period: 3 * time.Second}
	ctx := context.Background()

	// one attempt every 20ms for 3s; any 3s span may admit at most 5
	var admitted []time.Time
	for i := 0; i < 150; i++ {
		ok, retry, err := store.Allow(ctx, "192.0.2.1:/auth/login", limit)
		require.NoError(t, err)
		if ok {
			admitted = append(admitted, clock.now)
		} else {
			assert.True(t, retry > 0 && retry <= limit.Period, "retry after %s", retry)
		}
		clock.now = clock.now.Add(20 * time.Millisecond)
	}
	require.NotEmpty(t, admitted)
	for i := range admitted {
		inWindow := 0
		for _, at := range admitted[i:] {
			if at.Sub(admitted[i]) < limit.Period {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, limit.Limit, "window starting at %s", admitted[i])
	}

	clock.now = clock.now.Add(limit.Period)
	ok, _, err := store.Allow(ctx, "192.0.2.1:/auth/login", limit)
	require.NoError(t, err)
	assert.True(t, ok, "a full period later the window is empty again")
}

func TestMemoryStoreRetryAfterOldestHit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	limit := config.Rate{Limit: 2, Period: time.Minute}
	ctx := context.Background()

	ok, _, _ := store.Allow(ctx, "k", limit)
	require.True(t, ok)
	clock.now = clock.now.Add(20 * time.Second)
	ok, _, _ = store.Allow(ctx, "k", limit)
	require.True(t, ok)
	clock.now = clock.now.Add(10 * time.Second)

	ok, retry, err := store.Allow(ctx, "k", limit)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)
}

func TestMemoryStoreEvictsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	limit := config.Rate{Limit: 5, Period: time.Second}
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, _, err := store.Allow(ctx, "192.0.2.1:/missing/"+strconv.Itoa(i), limit)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, store.Len())

	clock.now = clock.now.Add(2 * sweepEvery)
	_, _, err := store.Allow(ctx, "192.0.2.1:/auth/login", limit)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, config.Rate) (bool, time.Duration, error) {
	return false, 0, errors.New("connection refused")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(failingStore{}, config.Rate{Limit: 1, Period: time.Hour}, nil, nil, zap.NewNop())
	rr := httptest.NewRecorder()
	limiter.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/conversions", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRedisStoreUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	_, _, err := NewRedisStore(client).Allow(context.Background(), "k", config.Rate{Limit: 1, Period: time.Second})
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStore(client)
	store.prefix = "ratelimit-test:" + uuid.NewString() + ":"
	limit := config.Rate{Limit: 2, Period: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := store.Allow(ctx, "1.2.3.4:/auth/login", limit)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := store.Allow(ctx, "1.2.3.4:/auth/login", limit)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, retry > 0 && retry <= time.Minute)
}
