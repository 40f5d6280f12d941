package sqldb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/config"
	"github.com/tiptoro/tiptoro-api/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB returns a migrated in-memory SQLite database.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, config.DatabaseConfig{
		Driver: DriverSQLite,
		URL:    "file::memory:?_pragma=foreign_keys(1)",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, DriverSQLite, discardLogger()))
	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(email, "password123", "")
	require.NoError(t, err)
	u.HashedPassword = "$2a$10$hash"
	u.Password = ""
	require.NoError(t, NewUserStore(db).Create(context.Background(), u))
	return u
}

func mustQuestion(t *testing.T, text string) *domain.Question {
	t.Helper()
	q, err := domain.NewQuestion(text, "math", "high_1")
	require.NoError(t, err)
	return q
}

func mustRecord(t *testing.T, userID uuid.UUID, taskID string) *domain.MistakeRecord {
	t.Helper()
	r, err := domain.NewMistakeRecord(userID, taskID, "wrong", "careless")
	require.NoError(t, err)
	return r
}
