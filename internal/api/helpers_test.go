package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tiptoro/tiptoro-api/internal/api/middleware"
	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/events"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/service/auth"
	"github.com/tiptoro/tiptoro-api/internal/store"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// pngBytes sniffs as image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTasks struct {
	mu   sync.Mutex
	recs map[string]task.Record
	ctxs map[string][]byte
}

func newMemTasks() *memTasks {
	return &memTasks{recs: map[string]task.Record{}, ctxs: map[string][]byte{}}
}

func (m *memTasks) SaveTask(_ context.Context, rec *task.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(rec.Context)
	if err != nil {
		return err
	}
	m.recs[rec.ID()] = *rec
	m.ctxs[rec.ID()] = data
	return nil
}

func (m *memTasks) load(id string) (*task.Record, error) {
	data, ok := m.ctxs[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	var tc gateway.TaskContext
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, err
	}
	rec := m.recs[id]
	rec.Context = &tc
	return &rec, nil
}

func (m *memTasks) GetTask(_ context.Context, id string) (*task.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *memTasks) GetTasksByStatus(context.Context, gateway.TaskStatus, time.Duration) ([]*task.Record, error) {
	return nil, nil
}

func (m *memTasks) ListTasksByUser(_ context.Context, userID string, limit int) ([]*task.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Record
	for id, rec := range m.recs {
		if rec.UserID != userID || len(out) >= limit {
			continue
		}
		loaded, err := m.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, loaded)
	}
	return out, nil
}

// put stores a task directly, bypassing the handlers.
func (m *memTasks) put(t *testing.T, rec *task.Record) {
	t.Helper()
	require.NoError(t, m.SaveTask(context.Background(), rec))
}

func (m *memTasks) get(t *testing.T, id string) *task.Record {
	t.Helper()
	rec, err := m.GetTask(context.Background(), id)
	require.NoError(t, err)
	return rec
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (f *fakeEmitter) EmitEvent(_ context.Context, event *events.TaskRequestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) jobs(t *testing.T) []task.Job {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]task.Job, 0, len(f.events))
	for _, e := range f.events {
		require.Equal(t, task.EventTypePipelineRun, e.Type)
		var job task.Job
		require.NoError(t, e.UnmarshalPayload(&job))
		out = append(out, job)
	}
	return out
}

type fakeStorage struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return "/files/" + key, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
}

func (f *fakeUsers) Create(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byEmail == nil {
		f.byEmail = map[string]*domain.User{}
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return store.ErrEmailExists
	}
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byEmail[domain.NormalizeEmail(email)]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

// fakeTokens issues "token-<uuid>" and accepts only those.
type fakeTokens struct{}

func (fakeTokens) GenerateToken(_ context.Context, userID uuid.UUID) (string, error) {
	return "token-" + userID.String(), nil
}

func (fakeTokens) TokenLifetime() time.Duration { return time.Hour }

func (fakeTokens) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	id, err := uuid.Parse(strings.TrimPrefix(token, "token-"))
	if err != nil || !strings.HasPrefix(token, "token-") {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{UserID: id}, nil
}

type fakeSkills struct {
	metas map[string]gateway.SkillMeta
	names []string
}

func (f fakeSkills) List() []string { return f.names }

func (f fakeSkills) Get(name string) (gateway.SkillMeta, error) {
	m, ok := f.metas[name]
	if !ok {
		return gateway.SkillMeta{}, errors.New("not found")
	}
	return m, nil
}

type testEnv struct {
	router  http.Handler
	tasks   *memTasks
	emitter *fakeEmitter
	storage *fakeStorage
	users   *fakeUsers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tasks:   newMemTasks(),
		emitter: &fakeEmitter{},
		storage: &fakeStorage{},
		users:   &fakeUsers{},
	}

	authHandler := NewAuthHandler(env.users, fakeTokens{}, bcrypt.MinCost)
	taskHandler := NewTaskHandler(env.tasks, env.storage, env.emitter)
	authMW := middleware.NewAuthMiddleware(fakeTokens{})

	r := chi.NewRouter()
	r.Use(middleware.Trace(discardLogger()))
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)
			r.Post("/tasks", taskHandler.CreateTask)
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Post("/tasks/{id}/verification", taskHandler.SubmitVerification)
			r.Post("/tasks/{id}/retry", taskHandler.RetryTask)
			r.Post("/reports", taskHandler.CreateReport)
		})
	})
	env.router = r
	return env
}

// do sends body (marshalled unless it is a string) as userID, or
// anonymously when userID is uuid.Nil.
func (env *testEnv) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer token-"+userID.String())
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// storedTask creates a task for userID in status with LastSkill set.
func storedTask(t *testing.T, env *testEnv, userID uuid.UUID, pipeline string, status gateway.TaskStatus, lastSkill string) *task.Record {
	t.Helper()
	tc := gateway.NewTaskContext(userID.String())
	tc.Status = status
	tc.LastSkill = lastSkill
	rec := task.NewRecord(pipeline, tc)
	env.tasks.put(t, rec)
	return rec
}
