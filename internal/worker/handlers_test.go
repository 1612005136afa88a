package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"speech-to-pdf/pkg/tasks"
)

type mockProcessor struct {
	processed []int64
	reaped    int
	err       error
}

func (m *mockProcessor) Process(ctx context.Context, id int64) error {
	m.processed = append(m.processed, id)
	return m.err
}

func (m *mockProcessor) FailStale(ctx context.Context) (int, error) {
	return m.reaped, m.err
}

func TestHandleProcessConversionTask(t *testing.T) {
	processor := &mockProcessor{}
	handler := NewTaskHandler(processor, zap.NewNop())

	task, err := tasks.NewProcessConversionTask(42, time.Hour)
	require.NoError(t, err)

	require.NoError(t, handler.HandleProcessConversionTask(context.Background(), task))
	assert.Equal(t, []int64{42}, processor.processed)
}

func TestHandleProcessConversionTaskBadPayload(t *testing.T) {
	processor := &mockProcessor{}
	handler := NewTaskHandler(processor, zap.NewNop())

	err := handler.HandleProcessConversionTask(context.Background(), asynq.NewTask(tasks.TypeProcessConversion, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = handler.HandleProcessConversionTask(context.Background(), asynq.NewTask(tasks.TypeProcessConversion, []byte(`{"ConversionID":0}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, processor.processed)
}

func TestHandleProcessConversionTaskStoreError(t *testing.T) {
	processor := &mockProcessor{err: errors.New("database is locked")}
	handler := NewTaskHandler(processor, zap.NewNop())

	task, err := tasks.NewProcessConversionTask(7, 0)
	require.NoError(t, err)
	err = handler.HandleProcessConversionTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversion 7")
}

func TestHandleReapStaleTask(t *testing.T) {
	processor := &mockProcessor{reaped: 3}
	handler := NewTaskHandler(processor, zap.NewNop())
	task, err := tasks.NewReapStaleTask()
	require.NoError(t, err)
	assert.NoError(t, handler.HandleReapStaleTask(context.Background(), task))

	processor.err = errors.New("boom")
	assert.Error(t, handler.HandleReapStaleTask(context.Background(), task))
}
