package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/events"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
	"github.com/tiptoro/tiptoro-api/internal/store"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// maxImageBytes bounds a decoded upload.
const maxImageBytes = 10 << 20

const defaultTaskListLimit = 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectWriter stores uploaded files.
type ObjectWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// TaskHandler creates, inspects and advances pipeline tasks. Work is
// handed to the runner through pipeline_run events.
type TaskHandler struct {
	tasks   task.TaskStore
	storage ObjectWriter
	emitter events.EventEmitter
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks task.TaskStore, storage ObjectWriter, emitter events.EventEmitter) *TaskHandler {
	return &TaskHandler{tasks: tasks, storage: storage, emitter: emitter}
}

// CreateTask handles POST /api/tasks. It stores the photo and starts the
// default pipeline, which suspends for verification after recognition.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	data, err := decodeImage(req.Image)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	tc := gateway.NewTaskContext(userID.String())
	if req.Source != "" {
		tc.Source = req.Source
	}
	key := fmt.Sprintf("raw/%s/%s%s", userID, tc.ID(), imageExtensions[req.ContentType])
	if _, err := h.storage.Put(r.Context(), key, data, req.ContentType); err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to store image", err)
		return
	}
	tc.ImageSource = key

	rec := task.NewRecord(gateway.PipelineDefault, tc)
	if !h.dispatch(w, r, rec, rec.StartJob()) {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, newTaskResponse(rec))
}

func decodeImage(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: size %d bytes", ErrInvalidImage, len(data))
	}
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		return nil, fmt.Errorf("%w: content looks like %s", ErrInvalidImage, sniffed)
	}
	return data, nil
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r, defaultTaskListLimit)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	recs, err := h.tasks.ListTasksByUser(r.Context(), userID.String(), limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	out := TaskListResponse{Tasks: make([]TaskResponse, 0, len(recs))}
	for _, rec := range recs {
		out.Tasks = append(out.Tasks, newTaskResponse(rec))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(rec))
}

// SubmitVerification handles POST /api/tasks/{id}/verification. The
// corrected texts are stored and the pipeline resumes after the step that
// suspended it.
func (h *TaskHandler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}
	var req VerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if rec.Status() != gateway.StatusAwaitingHuman {
		respondWithServiceError(w, r, fmt.Errorf("%w: status %s", ErrTaskNotAwaitingVerification, rec.Status()))
		return
	}
	if err := validateVerification(req); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	tc := rec.Context
	tc.VerifiedQuestionText = strings.TrimSpace(req.QuestionText)
	tc.VerifiedAnswerText = strings.TrimSpace(req.AnswerText)
	tc.Subject = req.Subject
	tc.Grade = req.Grade
	tc.ErrorReason = req.ErrorReason

	if !h.dispatch(w, r, rec, rec.ResumeJob()) {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, newTaskResponse(rec))
}

func validateVerification(req VerificationRequest) error {
	if domain.NormalizeText(req.QuestionText) == "" {
		return fmt.Errorf("%w: question text", domain.ErrEmptyContent)
	}
	if req.Subject != "" && !domain.ValidSubject(req.Subject) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSubject, req.Subject)
	}
	if req.Grade != "" && !domain.ValidGrade(req.Grade) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGrade, req.Grade)
	}
	if req.ErrorReason != "" && !domain.ValidErrorReason(req.ErrorReason) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidErrorReason, req.ErrorReason)
	}
	return nil
}

// RetryTask handles POST /api/tasks/{id}/retry. A failed task runs again
// from the step after its last successful skill.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadOwnedTask(w, r)
	if !ok {
		return
	}
	if rec.Status() != gateway.StatusFailed {
		respondWithServiceError(w, r, fmt.Errorf("%w: status %s", ErrTaskNotRetryable, rec.Status()))
		return
	}

	if !h.dispatch(w, r, rec, rec.ResumeJob()) {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, newTaskResponse(rec))
}

// loadOwnedTask loads the {id} task. Tasks of other users are reported as
// not found.
func (h *TaskHandler) loadOwnedTask(w http.ResponseWriter, r *http.Request) (*task.Record, bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return nil, false
	}
	rec, err := h.tasks.GetTask(r.Context(), taskIDParam(r))
	if err == nil && rec.UserID != userID.String() {
		err = store.ErrTaskNotFound
	}
	if err != nil {
		respondWithServiceError(w, r, err)
		return nil, false
	}
	return rec, true
}

// dispatch saves rec and emits a pipeline_run event for job. If the event
// cannot be delivered the task is marked failed so the client can retry.
func (h *TaskHandler) dispatch(w http.ResponseWriter, r *http.Request, rec *task.Record, job task.Job) bool {
	ctx := r.Context()
	log := logger.FromContext(ctx).With("task_id", rec.ID(), "pipeline", rec.Pipeline)

	if err := h.tasks.SaveTask(ctx, rec); err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to save task", err)
		return false
	}

	event, err := task.NewPipelineRunEvent(job)
	if err == nil {
		err = h.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		rec.Context.Status = gateway.StatusFailed
		rec.Context.Meta.Set(task.MetaRunnerError, err.Error())
		if saveErr := h.tasks.SaveTask(ctx, rec); saveErr != nil {
			log.Error("failed to mark undispatched task failed", "error", saveErr)
		}
		respondWithServiceError(w, r, err)
		return false
	}

	log.Info("task dispatched", "resume_after", job.ResumeAfter)
	return true
}
