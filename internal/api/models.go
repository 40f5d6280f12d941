package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/redact"
	"github.com/tiptoro/tiptoro-api/internal/skills"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// RegisterRequest is the payload for POST /api/auth/register.
type RegisterRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	Password    string `json:"password"     validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// LoginRequest is the payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"token"`
	ExpiresAt   string    `json:"expires_at"`
}

// SkillResponse describes one registered skill.
type SkillResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Bound       bool              `json:"bound"`
}

// CreateTaskRequest uploads a photo of a wrongly answered question.
type CreateTaskRequest struct {
	// Image is the standard base64 encoding of the photo.
	Image       string `json:"image"        validate:"required,base64"`
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp"`
	Source      string `json:"source"       validate:"omitempty,max=32"`
}

// VerificationRequest carries the student's corrections to the recognized
// question and answer.
type VerificationRequest struct {
	QuestionText string `json:"question_text" validate:"required,max=10000"`
	AnswerText   string `json:"answer_text"   validate:"max=10000"`
	Subject      string `json:"subject"`
	Grade        string `json:"grade"`
	ErrorReason  string `json:"error_reason"`
}

// ReportRequest asks for a learning report over the last PeriodDays days.
type ReportRequest struct {
	PeriodDays int `json:"period_days" validate:"omitempty,min=1,max=365"`
}

// User-facing next steps for a task.
const (
	NextActionWait       = "wait"
	NextActionVerify     = "verify"
	NextActionViewResult = "view_result"
	NextActionRetry      = "retry"
)

// NextAction tells the client what to do with a task in status.
func NextAction(status gateway.TaskStatus) string {
	switch status {
	case gateway.StatusAwaitingHuman:
		return NextActionVerify
	case gateway.StatusCompleted:
		return NextActionViewResult
	case gateway.StatusFailed:
		return NextActionRetry
	default:
		return NextActionWait
	}
}

// TaskResponse is the client view of a task.
type TaskResponse struct {
	TaskID     string               `json:"task_id"`
	Pipeline   string               `json:"pipeline"`
	Status     gateway.TaskStatus   `json:"status"`
	NextAction string               `json:"next_action"`
	Report     string               `json:"report,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Context    *gateway.TaskContext `json:"context"`
}

// newTaskResponse redacts failure messages in the returned context. The record
// itself is not modified.
func newTaskResponse(rec *task.Record) TaskResponse {
	report, _ := rec.Context.Meta.GetString(skills.MetaReport)
	return TaskResponse{
		TaskID:     rec.ID(),
		Pipeline:   rec.Pipeline,
		Status:     rec.Status(),
		NextAction: NextAction(rec.Status()),
		Report:     report,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		Context:    rec.Context.Scrubbed(redact.String, task.MetaRunnerError),
	}
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}
