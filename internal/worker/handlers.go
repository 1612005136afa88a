package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"speech-to-pdf/pkg/tasks"
)

// Processor drives conversion jobs. *conversion.Orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, id int64) error
	FailStale(ctx context.Context) (int, error)
}

type TaskHandler struct {
	processor Processor
	logger    *zap.Logger
}

func NewTaskHandler(processor Processor, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{processor: processor, logger: logger}
}

// Register mounts every task type on mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeProcessConversion, h.HandleProcessConversionTask)
	mux.HandleFunc(tasks.TypeReapStale, h.HandleReapStaleTask)
}

func (h *TaskHandler) HandleProcessConversionTask(ctx context.Context, t *asynq.Task) error {
	p, err := tasks.ParseProcessConversionPayload(t)
	if err != nil {
		// a malformed payload will never succeed
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	h.logger.Debug("processing conversion", zap.Int64("conversion_id", p.ConversionID))
	if err := h.processor.Process(ctx, p.ConversionID); err != nil {
		return fmt.Errorf("failed to process conversion %d: %w", p.ConversionID, err)
	}
	return nil
}

func (h *TaskHandler) HandleReapStaleTask(ctx context.Context, t *asynq.Task) error {
	n, err := h.processor.FailStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to reap stale conversions: %w", err)
	}
	if n > 0 {
		h.logger.Info("reaped stale conversions", zap.Int("count", n))
	}
	return nil
}
