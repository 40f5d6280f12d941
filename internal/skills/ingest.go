package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

// ErrNotVerified is returned when ingest runs before the student verified
// the recognized question.
var ErrNotVerified = errors.New("verified_question_text is required")

type ingestAndVerify struct {
	questions store.QuestionStore
	logger    *slog.Logger
}

func (s *ingestAndVerify) Handle(ctx context.Context, tc *gateway.TaskContext) error {
	if tc.VerifiedQuestionText == "" {
		return ErrNotVerified
	}
	userID, err := uuid.Parse(tc.UserID)
	if err != nil {
		return fmt.Errorf("%w: user id %q", domain.ErrInvalidID, tc.UserID)
	}

	q, err := domain.NewQuestion(tc.VerifiedQuestionText, tc.Subject, tc.Grade)
	if err != nil {
		return err
	}
	rec, err := domain.NewMistakeRecord(userID, tc.ID(), tc.VerifiedAnswerText, tc.ErrorReason)
	if err != nil {
		return err
	}

	duplicate, err := s.questions.Ingest(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("failed to store mistake: %w", err)
	}

	questionID, recordID := q.ID, rec.ID
	tc.QuestionID = &questionID
	tc.RecordID = &recordID
	tc.IsDuplicateQuestion = duplicate

	s.logger.InfoContext(ctx, "mistake stored",
		"task_id", tc.ID(),
		"question_id", questionID,
		"record_id", recordID,
		"duplicate", duplicate)
	return nil
}
