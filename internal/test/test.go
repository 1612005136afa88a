package test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"speech-to-pdf/internal/db"
)

// MockTaskEnqueuer is a mock implementation of tasks.TaskEnqueuer for testing.
type MockTaskEnqueuer struct {
	mu            sync.Mutex
	EnqueuedTasks []*asynq.Task
	Err           error
}

func (m *MockTaskEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

// Tasks returns a snapshot of the enqueued tasks.
func (m *MockTaskEnqueuer) Tasks() []*asynq.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*asynq.Task(nil), m.EnqueuedTasks...)
}

var bindOnce sync.Once

// NewMockDB returns a sqlx handle backed by sqlmock. Queries are rebound to
// $n placeholders so expectations read like Postgres.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	bindOnce.Do(func() { sqlx.BindDriver("sqlmock", sqlx.DOLLAR) })
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "sqlmock")
	t.Cleanup(func() { mockDb.Close() })
	return sqlxDB, mock
}

// NewSQLiteDB opens a migrated SQLite database in a temp dir.
func NewSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}
