package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeProcessConversion = "conversion:process"
	TypeReapStale         = "conversions:reap"
)

type ProcessConversionTaskPayload struct {
	ConversionID int64
}

// NewProcessConversionTask builds the job task. The task id is derived from
// the conversion id so a job can never be queued twice, and the task is not
// retried: a failed run leaves the job in its failed state.
func NewProcessConversionTask(conversionID int64, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessConversionTaskPayload{ConversionID: conversionID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("conversion-%d", conversionID)),
		asynq.MaxRetry(0),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeProcessConversion, payload, opts...), nil
}

func NewReapStaleTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeReapStale, nil, asynq.MaxRetry(0)), nil
}

func ParseProcessConversionPayload(t *asynq.Task) (ProcessConversionTaskPayload, error) {
	var p ProcessConversionTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.ConversionID <= 0 {
		return p, fmt.Errorf("invalid conversion id %d", p.ConversionID)
	}
	return p, nil
}
