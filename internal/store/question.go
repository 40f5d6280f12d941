package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/domain"
)

// QuestionStore persists the shared question bank and students' mistake
// records.
type QuestionStore interface {
	// Ingest stores a mistake in one transaction. If a question with the same
	// content hash exists it is reused and duplicate is true; otherwise q is
	// inserted. q.ID and rec.ID are set on success and rec.QuestionID is
	// taken from q. A task holds at most one mistake: a repeated Ingest for
	// rec.TaskID fills q and rec from the stored record and inserts nothing.
	Ingest(ctx context.Context, q *domain.Question, rec *domain.MistakeRecord) (duplicate bool, err error)

	// GetQuestion returns ErrQuestionNotFound if id is unknown.
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)

	// ListMistakes returns the user's mistakes created at or after since,
	// newest first, with question text and subject joined in.
	ListMistakes(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error)
}
