package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Rate is a request budget of Limit events per Period.
type Rate struct {
	Limit  int
	Period time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d per %s", r.Limit, r.Period)
}

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// PerMinute caps outgoing messages. 0 disables pacing.
	PerMinute int
}

// Enabled reports whether outgoing mail is configured.
func (s SMTP) Enabled() bool { return s.Host != "" && s.From != "" }

type Config struct {
	Port            string
	DatabaseURL     string
	RedisAddr       string
	SecretKey       string
	TokenTTL        time.Duration
	UploadDir       string
	MaxFileSize     int64
	CORSOrigins     []string
	CreditsWarning  float64
	LogDevelopment  bool
	MetricsAddr     string
	RateLimitStore  string
	RateLimitGlobal Rate
	RateLimitLogin  Rate

	Transcriber        string
	TranscriptionModel string
	DeepgramAPIKey     string
	DeepgramBaseURL    string
	OpenAIAPIKey       string
	OpenAIBaseURL      string

	WorkerConcurrency int
	ConversionTimeout time.Duration
	StaleAfter        time.Duration

	SMTP SMTP
}

// Load reads the process environment. Call godotenv.Load first to pick up a
// local .env file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", "sqlite://./app.db"),
		RedisAddr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		SecretKey:       os.Getenv("SECRET_KEY"),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		RateLimitStore:  getEnv("RATE_LIMIT_BACKEND", "memory"),
		Transcriber:     strings.ToLower(getEnv("TRANSCRIBER", "deepgram")),
		DeepgramAPIKey:  os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramBaseURL: getEnv("DEEPGRAM_BASE_URL", "https://api.deepgram.com"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}
	cfg.CORSOrigins = lo.Compact(lo.Map(strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		func(s string, _ int) string { return strings.TrimSpace(s) }))

	minutes, err := getInt("ACCESS_TOKEN_EXPIRE_MINUTES", 43200)
	if err != nil {
		return nil, err
	}
	cfg.TokenTTL = time.Duration(minutes) * time.Minute
	if cfg.MaxFileSize, err = getInt64("MAX_FILE_SIZE", 100*1024*1024); err != nil {
		return nil, err
	}
	if cfg.CreditsWarning, err = getFloat("CREDITS_WARNING_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SMTP.PerMinute, err = getInt("SMTP_RATE_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.ConversionTimeout, err = getDuration("CONVERSION_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = getDuration("CONVERSION_STALE_AFTER", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitGlobal, err = ParseRate(getEnv("RATE_LIMIT_DEFAULT", "200/hour")); err != nil {
		return nil, err
	}
	if cfg.RateLimitLogin, err = ParseRate(getEnv("RATE_LIMIT_LOGIN", "5/minute")); err != nil {
		return nil, err
	}
	cfg.LogDevelopment, _ = strconv.ParseBool(os.Getenv("LOG_DEVELOPMENT"))

	defaultModel := "nova-3"
	if cfg.Transcriber == "openai" {
		defaultModel = "whisper-1"
	}
	cfg.TranscriptionModel = getEnv("TRANSCRIPTION_MODEL", defaultModel)

	return cfg, cfg.Validate()
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if !lo.Contains([]string{"deepgram", "openai"}, c.Transcriber) {
		return fmt.Errorf("TRANSCRIBER must be deepgram or openai, got %q", c.Transcriber)
	}
	if !lo.Contains([]string{"memory", "redis"}, c.RateLimitStore) {
		return fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitStore)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	return nil
}

var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate parses limits written as "200/hour" or "5/minute".
func ParseRate(s string) (Rate, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: want <count>/<unit>", s)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || limit < 1 {
		return Rate{}, fmt.Errorf("invalid rate %q: count must be a positive integer", s)
	}
	period, ok := periods[strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: unknown unit %q", s, unit)
	}
	return Rate{Limit: limit, Period: period}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
