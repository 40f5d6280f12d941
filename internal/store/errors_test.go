package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
	}{
		{"generic not found", ErrNotFound, true, false},
		{"user not found", ErrUserNotFound, true, false},
		{"task not found wrapped", fmt.Errorf("load: %w", ErrTaskNotFound), true, false},
		{"question not found", ErrQuestionNotFound, true, false},
		{"email exists", ErrEmailExists, false, true},
		{"store error wrapping duplicate", NewStoreError("user", "create", "insert", ErrEmailExists), false, true},
		{"unrelated", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, IsDuplicateError(tt.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewStoreError("task", "save", "upsert failed", cause)

	assert.Equal(t, "save operation on task failed: upsert failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewStoreError("user", "get", "no rows", nil)
	assert.Equal(t, "get operation on user failed: no rows", bare.Error())

	var se *StoreError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &se))
	assert.Equal(t, "task", se.Entity)
}
