package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Question is an entry in the shared question bank. Identical questions
// uploaded by different students map to one Question through ContentHash.
type Question struct {
	ID          int64     `json:"id"`
	ContentHash string    `json:"content_hash"`
	Text        string    `json:"text"`
	Subject     string    `json:"subject,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NormalizeText collapses runs of whitespace so that formatting differences
// do not defeat deduplication.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContentHash returns the hex SHA-256 of the normalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// NewQuestion validates the inputs and builds an unsaved Question.
// Subject and grade are optional.
func NewQuestion(text, subject, grade string) (*Question, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: question text", ErrEmptyContent)
	}
	if subject != "" && !ValidSubject(subject) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	if grade != "" && !ValidGrade(grade) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGrade, grade)
	}
	return &Question{
		ContentHash: ContentHash(normalized),
		Text:        normalized,
		Subject:     subject,
		Grade:       grade,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// MistakeRecord links a student to a question they answered wrongly.
type MistakeRecord struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	QuestionID  int64     `json:"question_id"`
	TaskID      string    `json:"task_id"`
	AnswerText  string    `json:"answer_text"`
	ErrorReason string    `json:"error_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Populated by list queries that join the question bank.
	QuestionText string `json:"question_text,omitempty"`
	Subject      string `json:"subject,omitempty"`
}

// NewMistakeRecord validates the inputs and builds an unsaved record. The
// question ID is assigned when the record is ingested with its question.
func NewMistakeRecord(userID uuid.UUID, taskID, answerText, errorReason string) (*MistakeRecord, error) {
	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	if errorReason != "" && !ValidErrorReason(errorReason) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidErrorReason, errorReason)
	}
	return &MistakeRecord{
		UserID:      userID,
		TaskID:      taskID,
		AnswerText:  strings.TrimSpace(answerText),
		ErrorReason: errorReason,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
