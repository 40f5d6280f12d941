package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

// QuestionStore implements store.QuestionStore.
type QuestionStore struct {
	db *sql.DB
}

// NewQuestionStore creates a QuestionStore. Ingest opens its own
// transactions, so db must be a pool rather than a transaction.
func NewQuestionStore(db *sql.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

var _ store.QuestionStore = (*QuestionStore)(nil)

// Ingest stores the question, reusing an existing one with the same
// content hash, and the mistake record in one transaction. A task records at
// most one mistake: ingesting again for the same task ID loads the stored
// record into q and rec instead of adding another.
func (s *QuestionStore) Ingest(ctx context.Context, q *domain.Question, rec *domain.MistakeRecord) (bool, error) {
	if q.ContentHash == "" {
		return false, fmt.Errorf("%w: question has no content hash", store.ErrInvalidEntity)
	}

	var duplicate bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		found, err := loadTaskMistake(ctx, tx, rec)
		if err != nil {
			return err
		}
		if found {
			q.ID = rec.QuestionID
			duplicate, err = askedBefore(ctx, tx, rec)
			return err
		}

		id, existed, err := upsertQuestion(ctx, tx, q)
		if err != nil {
			return err
		}
		q.ID, duplicate = id, existed

		rec.QuestionID = id
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO mistake_records (user_id, question_id, task_id, answer_text, error_reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (task_id) DO NOTHING
			RETURNING id`,
			rec.UserID, rec.QuestionID, rec.TaskID, rec.AnswerText, rec.ErrorReason, rec.CreatedAt.UTC(),
		).Scan(&rec.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent ingest for the same task won the insert.
			if _, err := loadTaskMistake(ctx, tx, rec); err != nil {
				return err
			}
			q.ID = rec.QuestionID
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert mistake record: %w", MapError(err))
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to ingest mistake", "task_id", rec.TaskID, "error", err)
		return false, err
	}
	return duplicate, nil
}

// loadTaskMistake fills rec from the mistake already stored for rec.TaskID
// and reports whether there was one.
func loadTaskMistake(ctx context.Context, tx *sql.Tx, rec *domain.MistakeRecord) (bool, error) {
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, question_id, answer_text, error_reason, created_at
		FROM mistake_records WHERE task_id = $1`, rec.TaskID,
	).Scan(&rec.ID, &rec.UserID, &rec.QuestionID, &rec.AnswerText, &rec.ErrorReason, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load task mistake: %w", MapError(err))
	}
	return true, nil
}

// askedBefore reports whether the question of rec was already in the bank
// when rec was first stored.
func askedBefore(ctx context.Context, tx *sql.Tx, rec *domain.MistakeRecord) (bool, error) {
	var earlier bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM mistake_records WHERE question_id = $1 AND id < $2)`,
		rec.QuestionID, rec.ID,
	).Scan(&earlier)
	if err != nil {
		return false, fmt.Errorf("failed to check question history: %w", MapError(err))
	}
	return earlier, nil
}

// upsertQuestion inserts q unless its hash is already known and returns the
// row id and whether it existed.
func upsertQuestion(ctx context.Context, tx *sql.Tx, q *domain.Question) (int64, bool, error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO questions (content_hash, text, subject, grade, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id`,
		q.ContentHash, q.Text, q.Subject, q.Grade, q.CreatedAt.UTC(),
	).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert question: %w", MapError(err))
	}

	err = tx.QueryRowContext(ctx, `SELECT id FROM questions WHERE content_hash = $1`, q.ContentHash).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load existing question: %w", MapError(err))
	}
	return id, true, nil
}

// GetQuestion returns store.ErrQuestionNotFound if id is unknown.
func (s *QuestionStore) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	var q domain.Question
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, text, subject, grade, created_at
		FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ContentHash, &q.Text, &q.Subject, &q.Grade, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", MapError(err))
	}
	return &q, nil
}

// ListMistakes returns the user's mistakes since the given time, newest
// first.
func (s *QuestionStore) ListMistakes(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.question_id, m.task_id, m.answer_text, m.error_reason, m.created_at,
		       q.text, q.subject
		FROM mistake_records m
		JOIN questions q ON q.id = m.question_id
		WHERE m.user_id = $1 AND m.created_at >= $2
		ORDER BY m.created_at DESC, m.id DESC`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query mistakes: %w", MapError(err))
	}
	defer rows.Close()

	var out []*domain.MistakeRecord
	for rows.Next() {
		var m domain.MistakeRecord
		if err := rows.Scan(&m.ID, &m.UserID, &m.QuestionID, &m.TaskID, &m.AnswerText, &m.ErrorReason,
			&m.CreatedAt, &m.QuestionText, &m.Subject); err != nil {
			return nil, fmt.Errorf("failed to scan mistake row: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mistake rows: %w", err)
	}
	return out, nil
}
