package task

import (
	"context"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
)

// Record is the persisted form of one pipeline run.
type Record struct {
	Pipeline  string
	UserID    string
	Context   *gateway.TaskContext
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord wraps a fresh task context for the named pipeline.
func NewRecord(pipeline string, tc *gateway.TaskContext) *Record {
	now := time.Now().UTC()
	return &Record{
		Pipeline:  pipeline,
		UserID:    tc.UserID,
		Context:   tc,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ID returns the task ID of the wrapped context.
func (r *Record) ID() string {
	return r.Context.ID()
}

// Status returns the status of the wrapped context.
func (r *Record) Status() gateway.TaskStatus {
	return r.Context.Status
}

// StartJob returns the job that runs the task from its first step.
func (r *Record) StartJob() Job {
	return Job{TaskID: r.ID()}
}

// ResumeJob marks a suspended or failed task pending, drops its runner error
// and returns the job that continues after the last completed skill.
func (r *Record) ResumeJob() Job {
	switch r.Context.Status {
	case gateway.StatusAwaitingHuman, gateway.StatusFailed:
		r.Context.Status = gateway.StatusPending
	}
	delete(r.Context.Meta, MetaRunnerError)
	return Job{TaskID: r.ID(), ResumeAfter: r.Context.LastSkill}
}

// Job asks a worker to advance a stored task. An empty ResumeAfter runs the
// pipeline from its first step.
type Job struct {
	TaskID      string `json:"task_id"`
	ResumeAfter string `json:"resume_after,omitempty"`
}

// TaskStore persists task records.
type TaskStore interface {
	// SaveTask inserts the record or replaces the stored context, status and
	// UpdatedAt of an existing one.
	SaveTask(ctx context.Context, rec *Record) error

	// GetTask returns store.ErrTaskNotFound if id is unknown.
	GetTask(ctx context.Context, id string) (*Record, error)

	// GetTasksByStatus returns tasks in status whose last update is at least
	// olderThan ago. A zero olderThan returns all of them.
	GetTasksByStatus(ctx context.Context, status gateway.TaskStatus, olderThan time.Duration) ([]*Record, error)

	// ListTasksByUser returns the user's most recent tasks, newest first.
	ListTasksByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
}

// PipelineObserver is notified when a pipeline invocation ends.
type PipelineObserver interface {
	ObservePipeline(pipeline string, status gateway.TaskStatus)
}
