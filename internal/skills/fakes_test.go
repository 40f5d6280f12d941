package skills

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type llmCall struct {
	role     string
	messages []llm.Message
	request  llm.CompletionRequest
}

type fakeLLM struct {
	mu     sync.Mutex
	CallFn func(ctx context.Context, role string, messages []llm.Message) (*llm.CompletionResponse, error)
	calls  []llmCall
}

func (f *fakeLLM) Call(ctx context.Context, role string, messages []llm.Message, opts ...llm.CallOption) (*llm.CompletionResponse, error) {
	var req llm.CompletionRequest
	for _, opt := range opts {
		opt(&req)
	}
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{role: role, messages: messages, request: req})
	f.mu.Unlock()
	if f.CallFn == nil {
		return &llm.CompletionResponse{Content: "{}"}, nil
	}
	return f.CallFn(ctx, role, messages)
}

func replyWith(content string) func(context.Context, string, []llm.Message) (*llm.CompletionResponse, error) {
	return func(context.Context, string, []llm.Message) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: content, Model: "test-model"}, nil
	}
}

type fakeStorage struct {
	GetFn func(ctx context.Context, key string) ([]byte, error)
}

func (f *fakeStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if f.GetFn == nil {
		return []byte("\x89PNG\r\n\x1a\n"), nil
	}
	return f.GetFn(ctx, key)
}

func (f *fakeStorage) PublicURL(key string) string { return "/files/" + key }

type fakeQuestions struct {
	IngestFn       func(ctx context.Context, q *domain.Question, rec *domain.MistakeRecord) (bool, error)
	GetQuestionFn  func(ctx context.Context, id int64) (*domain.Question, error)
	ListMistakesFn func(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error)
}

func (f *fakeQuestions) Ingest(ctx context.Context, q *domain.Question, rec *domain.MistakeRecord) (bool, error) {
	if f.IngestFn == nil {
		q.ID, rec.ID, rec.QuestionID = 1, 1, 1
		return false, nil
	}
	return f.IngestFn(ctx, q, rec)
}

func (f *fakeQuestions) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	return f.GetQuestionFn(ctx, id)
}

func (f *fakeQuestions) ListMistakes(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error) {
	if f.ListMistakesFn == nil {
		return nil, nil
	}
	return f.ListMistakesFn(ctx, userID, since)
}
