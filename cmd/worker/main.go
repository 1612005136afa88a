package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/conversion"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/logging"
	"speech-to-pdf/internal/metrics"
	"speech-to-pdf/internal/notify"
	"speech-to-pdf/internal/storage"
	"speech-to-pdf/internal/transcribe"
	"speech-to-pdf/internal/worker"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.Must(cfg.LogDevelopment)
	defer logger.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("could not open database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(context.Background(), conn); err != nil {
		logger.Fatal("could not migrate database", zap.Error(err))
	}

	layout := storage.NewLayout(cfg.UploadDir)
	if err := layout.EnsureDirs(); err != nil {
		logger.Fatal("could not prepare upload directory", zap.Error(err))
	}

	provider, err := newProvider(cfg)
	if err != nil {
		logger.Fatal("could not configure transcriber", zap.Error(err))
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.PerMinute, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	orchestrator := conversion.NewOrchestrator(conn, layout,
		transcribe.NewAdapter(provider, layout.PDFDir(), logger),
		notifier, m,
		conversion.OrchestratorOptions{CreditsWarning: cfg.CreditsWarning, StaleAfter: cfg.StaleAfter},
		logger)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			// bounds how many conversions run at once
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			Logger:   logger.Sugar(),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
			}),
			ShutdownTimeout: 30 * time.Second,
		},
	)

	mux := asynq.NewServeMux()
	worker.NewTaskHandler(orchestrator, logger).Register(mux)

	logger.Info("worker starting",
		zap.String("commit", CommitSHA),
		zap.String("transcriber", provider.Name()),
		zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := srv.Run(mux); err != nil {
		logger.Fatal("could not run worker", zap.Error(err))
	}
}

func newProvider(cfg *config.Config) (transcribe.Provider, error) {
	switch cfg.Transcriber {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY must be set")
		}
		return transcribe.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY must be set")
		}
		return transcribe.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramBaseURL, &http.Client{Timeout: cfg.ConversionTimeout}), nil
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
