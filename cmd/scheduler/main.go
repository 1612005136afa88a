package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"speech-to-pdf/internal/config"
	"speech-to-pdf/internal/logging"
	"speech-to-pdf/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// reapSpec is how often stuck conversions are swept.
const reapSpec = "@every 15m"

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

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{Logger: logger.Sugar()},
	)

	task, err := tasks.NewReapStaleTask()
	if err != nil {
		logger.Fatal("could not create task", zap.Error(err))
	}
	if _, err := scheduler.Register(reapSpec, task); err != nil {
		logger.Fatal("could not register task", zap.Error(err))
	}

	logger.Info("scheduler starting", zap.String("commit", CommitSHA), zap.String("reap", reapSpec))
	if err := scheduler.Run(); err != nil {
		logger.Fatal("could not run scheduler", zap.Error(err))
	}
}
