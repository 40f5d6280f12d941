package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// TaskStatus represents the state of a task within a pipeline run.
type TaskStatus string

// Possible task status values.
const (
	StatusPending       TaskStatus = "pending"
	StatusRunning       TaskStatus = "running"
	StatusAwaitingHuman TaskStatus = "awaiting_human"
	StatusCompleted     TaskStatus = "completed"
	StatusFailed        TaskStatus = "failed"
)

// IsTerminal reports whether no further step may run against a context in
// this status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusAwaitingHuman, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StepError records a handler failure in the task's error trail.
type StepError struct {
	Skill   string `json:"skill"`
	Message string `json:"message"`
}

// TaskContext carries all state for one processing run. Each skill reads the
// fields it needs and writes the fields it produces.
//
// A TaskContext is not safe for concurrent use; a single run owns it.
type TaskContext struct {
	id string

	UserID string     `json:"user_id"`
	Source string     `json:"source"`
	Status TaskStatus `json:"status"`

	// Request input.
	ImageSource string `json:"image_source"`

	// vision-perception output.
	CleanQuestionImageURL     string             `json:"clean_question_image_url"`
	HandwrittenAnswerImageURL string             `json:"handwritten_answer_image_url"`
	RawQuestionText           string             `json:"raw_question_text"`
	RawAnswerText             string             `json:"raw_answer_text"`
	VisionConfidence          map[string]float64 `json:"vision_confidence"`

	// Filled in by the user during verification.
	VerifiedQuestionText string `json:"verified_question_text"`
	VerifiedAnswerText   string `json:"verified_answer_text"`
	Subject              string `json:"subject"`
	Grade                string `json:"grade"`
	ErrorReason          string `json:"error_reason"`

	// ingest-and-verify output.
	QuestionID          *int64 `json:"question_id"`
	RecordID            *int64 `json:"record_id"`
	IsDuplicateQuestion bool   `json:"is_duplicate_question"`

	// cognitive-analysis output.
	KnowledgeNodes          []string `json:"knowledge_nodes"`
	AnalysisSummary         string   `json:"analysis_summary"`
	SimilarQuestionKeywords []string `json:"similar_question_keywords"`

	// LastSkill is the most recent skill that completed successfully. It is
	// the resume marker after a suspension.
	LastSkill string `json:"last_skill"`

	// Meta holds ad-hoc fields for skills outside the fields above.
	Meta Meta `json:"meta"`

	errors []StepError
}

// NewTaskContext creates a pending context with a fresh task ID.
func NewTaskContext(userID string) *TaskContext {
	return &TaskContext{
		id:               uuid.NewString(),
		UserID:           userID,
		Source:           "web",
		Status:           StatusPending,
		VisionConfidence: map[string]float64{},
		KnowledgeNodes:   []string{},
		Meta:             Meta{},
	}
}

// ID returns the immutable task identifier.
func (tc *TaskContext) ID() string {
	return tc.id
}

// AddError appends to the error trail and marks the task failed.
func (tc *TaskContext) AddError(skill, message string) {
	tc.errors = append(tc.errors, StepError{Skill: skill, Message: message})
	tc.Status = StatusFailed
}

// Errors returns a copy of the error trail.
func (tc *TaskContext) Errors() []StepError {
	out := make([]StepError, len(tc.errors))
	copy(out, tc.errors)
	return out
}

// LastError returns the most recent error trail entry, if any.
func (tc *TaskContext) LastError() (StepError, bool) {
	if len(tc.errors) == 0 {
		return StepError{}, false
	}
	return tc.errors[len(tc.errors)-1], true
}

// Scrubbed returns a copy of tc with scrub applied to every error trail
// message and to the string values stored under metaKeys. tc is unchanged.
func (tc *TaskContext) Scrubbed(scrub func(string) string, metaKeys ...string) *TaskContext {
	out := *tc
	out.errors = make([]StepError, len(tc.errors))
	for i, e := range tc.errors {
		e.Message = scrub(e.Message)
		out.errors[i] = e
	}
	out.Meta = make(Meta, len(tc.Meta))
	for k, v := range tc.Meta {
		out.Meta[k] = v
	}
	for _, k := range metaKeys {
		if s, ok := out.Meta.GetString(k); ok {
			out.Meta[k] = scrub(s)
		}
	}
	return &out
}

// MarshalJSON includes the task ID and error trail alongside the exported
// fields.
func (tc *TaskContext) MarshalJSON() ([]byte, error) {
	type alias TaskContext
	return json.Marshal(struct {
		TaskID string `json:"task_id"`
		*alias
		Errors []StepError `json:"errors"`
	}{
		TaskID: tc.id,
		alias:  (*alias)(tc),
		Errors: tc.Errors(),
	})
}

// UnmarshalJSON restores a context previously produced by MarshalJSON.
func (tc *TaskContext) UnmarshalJSON(data []byte) error {
	type alias TaskContext
	aux := struct {
		TaskID string `json:"task_id"`
		*alias
		Errors []StepError `json:"errors"`
	}{alias: (*alias)(tc)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	tc.id = aux.TaskID
	tc.errors = aux.Errors
	if tc.Meta == nil {
		tc.Meta = Meta{}
	}
	return nil
}

// Meta is the open key/value extension bag of a TaskContext. Any skill may
// read any key; by convention a skill writes only the keys it owns.
type Meta map[string]any

// Set stores v under key.
func (m Meta) Set(key string, v any) {
	m[key] = v
}

// GetString returns the string stored under key.
func (m Meta) GetString(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// GetFloat returns the number stored under key. Integers are widened so that
// values survive a JSON round trip.
func (m Meta) GetFloat(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetStrings returns the string slice stored under key.
func (m Meta) GetStrings(key string) ([]string, bool) {
	switch v := m[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
