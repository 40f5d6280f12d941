package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
	"github.com/tiptoro/tiptoro-api/internal/store"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// defaultListLimit applies when ListTasksByUser gets a non-positive limit.
const defaultListLimit = 20

// TaskStore implements task.TaskStore. The task context is stored as JSON.
type TaskStore struct {
	db  store.DBTX
	now func() time.Time
}

// NewTaskStore creates a TaskStore on db.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

var _ task.TaskStore = (*TaskStore)(nil)

// SaveTask inserts rec or updates the status, context and update time of
// the stored task. rec.UpdatedAt is set to the save time.
func (s *TaskStore) SaveTask(ctx context.Context, rec *task.Record) error {
	log := logger.FromContext(ctx)

	data, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("failed to encode task context: %w", err)
	}

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, pipeline, user_id, status, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, context = excluded.context, updated_at = excluded.updated_at`,
		rec.ID(), rec.Pipeline, rec.UserID, string(rec.Status()), string(data), rec.CreatedAt.UTC(), now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", rec.ID(),
			"pipeline", rec.Pipeline,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

const taskColumns = `pipeline, user_id, context, created_at, updated_at`

// GetTask returns store.ErrTaskNotFound if id is unknown.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*task.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return rec, nil
}

// GetTasksByStatus returns tasks in status not updated within olderThan,
// oldest first. A zero olderThan returns every task in status.
func (s *TaskStore) GetTasksByStatus(ctx context.Context, status gateway.TaskStatus, olderThan time.Duration) ([]*task.Record, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = $1 AND updated_at <= $2
		ORDER BY created_at ASC`,
		string(status), cutoff,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query tasks by status", "status", status, "error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	return collectTasks(rows)
}

// ListTasksByUser returns up to limit of the user's tasks, newest first.
func (s *TaskStore) ListTasksByUser(ctx context.Context, userID string, limit int) ([]*task.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user tasks: %w", MapError(err))
	}
	return collectTasks(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Record, error) {
	var (
		rec  task.Record
		data []byte
	)
	if err := row.Scan(&rec.Pipeline, &rec.UserID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	var tc gateway.TaskContext
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("failed to decode task context: %w", err)
	}
	rec.Context = &tc
	return &rec, nil
}

func collectTasks(rows *sql.Rows) ([]*task.Record, error) {
	defer rows.Close()

	var out []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return out, nil
}
