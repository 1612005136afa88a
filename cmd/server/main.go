package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"speech-to-pdf/internal/accounts"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/auth"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/conversion"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/handlers"
	"speech-to-pdf/internal/logging"
	"speech-to-pdf/internal/metrics"
	"speech-to-pdf/internal/middleware"
	"speech-to-pdf/internal/storage"
	"speech-to-pdf/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// App holds what the HTTP router is built from.
type App struct {
	cfg       *config.Config
	db        *sqlx.DB
	tasks     tasks.TaskEnqueuer
	rateStore middleware.Store
	registry  *prometheus.Registry
	logger    *zap.Logger
}

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

	if cfg.SecretKey == "" {
		logger.Fatal("SECRET_KEY must be set")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("could not open database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(context.Background(), conn); err != nil {
		logger.Fatal("could not migrate database", zap.Error(err))
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	var rateStore middleware.Store = middleware.NewMemoryStore()
	if cfg.RateLimitStore == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rateStore = middleware.NewRedisStore(rdb)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{cfg: cfg, db: conn, tasks: client, rateStore: rateStore, registry: registry, logger: logger}
	router, err := app.newRouter()
	if err != nil {
		logger.Fatal("could not build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("commit", CommitSHA))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func (a *App) newRouter() (http.Handler, error) {
	layout := storage.NewLayout(a.cfg.UploadDir)
	if err := layout.EnsureDirs(); err != nil {
		return nil, err
	}
	m := metrics.New(a.registry)

	accountService := accounts.NewService(a.db, a.logger)
	conversionService := conversion.NewService(a.db, layout, a.tasks, conversion.Options{
		MaxFileSize: a.cfg.MaxFileSize,
		Model:       a.cfg.TranscriptionModel,
		TaskTimeout: a.cfg.ConversionTimeout,
	}, m, a.logger)
	tokens := auth.NewTokenIssuer(a.cfg.SecretKey, a.cfg.TokenTTL)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, apperror.New(apperror.KindNotFound, "Not Found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"detail":"Method Not Allowed"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	h := handlers.New(accountService, conversionService, tokens, a.cfg.MaxFileSize, a.logger)
	h.Register(r, middleware.AuthMiddleware(tokens, accountService))

	limiter := middleware.NewRateLimiter(a.rateStore, a.cfg.RateLimitGlobal,
		map[string]config.Rate{"/auth/login": a.cfg.RateLimitLogin}, m, a.logger)

	var handler http.Handler = r
	handler = limiter.Middleware(handler)
	handler = middleware.CORS(a.cfg.CORSOrigins)(handler)
	handler = middleware.RequestLogger(a.logger)(handler)
	return handler, nil
}
