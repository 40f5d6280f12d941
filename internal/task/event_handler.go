package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiptoro/tiptoro-api/internal/events"
)

// EventTypePipelineRun requests that a stored task be advanced. Its payload
// is a Job.
const EventTypePipelineRun = "pipeline_run"

// JobEnqueuer accepts jobs for background processing.
type JobEnqueuer interface {
	Enqueue(job Job) error
}

// EventHandler turns pipeline_run events into runner jobs.
type EventHandler struct {
	runner JobEnqueuer
	logger *slog.Logger
}

// NewEventHandler creates a handler that feeds runner.
func NewEventHandler(runner JobEnqueuer, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		runner: runner,
		logger: logger.With("component", "pipeline_event_handler"),
	}
}

// HandleEvent enqueues the job carried by a pipeline_run event. Events of
// other types are ignored.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != EventTypePipelineRun {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var job Job
	if err := event.UnmarshalPayload(&job); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if job.TaskID == "" {
		return fmt.Errorf("pipeline_run event %s has no task_id", event.ID)
	}

	if err := h.runner.Enqueue(job); err != nil {
		h.logger.Error("failed to enqueue job",
			"error", err,
			"task_id", job.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	h.logger.Debug("job enqueued from event",
		"task_id", job.TaskID,
		"resume_after", job.ResumeAfter,
		"event_id", event.ID)
	return nil
}

// NewPipelineRunEvent builds the event that asks for job to be processed.
func NewPipelineRunEvent(job Job) (*events.TaskRequestEvent, error) {
	return events.NewTaskRequestEvent(EventTypePipelineRun, job)
}

var _ events.EventHandler = (*EventHandler)(nil)
