package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storedTask struct {
	pipeline  string
	userID    string
	context   []byte
	status    gateway.TaskStatus
	createdAt time.Time
	updatedAt time.Time
}

// memStore is an in-memory TaskStore that serializes contexts like the SQL
// stores do, so callers never share a TaskContext with the store.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]storedTask
	now   func() time.Time

	SaveFn func(ctx context.Context, rec *Record) error
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]storedTask{}, now: time.Now}
}

func (s *memStore) SaveTask(ctx context.Context, rec *Record) error {
	if s.SaveFn != nil {
		if err := s.SaveFn(ctx, rec); err != nil {
			return err
		}
	}
	data, err := json.Marshal(rec.Context)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[rec.ID()]
	created := rec.CreatedAt
	if ok {
		created = existing.createdAt
	}
	s.tasks[rec.ID()] = storedTask{
		pipeline:  rec.Pipeline,
		userID:    rec.UserID,
		context:   data,
		status:    rec.Status(),
		createdAt: created,
		updatedAt: s.now(),
	}
	return nil
}

func (s *memStore) decode(st storedTask) *Record {
	var tc gateway.TaskContext
	if err := json.Unmarshal(st.context, &tc); err != nil {
		panic(err)
	}
	return &Record{Pipeline: st.pipeline, UserID: st.userID, Context: &tc, CreatedAt: st.createdAt, UpdatedAt: st.updatedAt}
}

func (s *memStore) GetTask(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return s.decode(st), nil
}

func (s *memStore) GetTasksByStatus(_ context.Context, status gateway.TaskStatus, olderThan time.Duration) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var out []*Record
	for _, st := range s.tasks {
		if st.status == status && (olderThan == 0 || !st.updatedAt.After(cutoff)) {
			out = append(out, s.decode(st))
		}
	}
	return out, nil
}

func (s *memStore) ListTasksByUser(_ context.Context, userID string, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, st := range s.tasks {
		if st.userID == userID {
			out = append(out, s.decode(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) status(t *testing.T, id string) gateway.TaskStatus {
	t.Helper()
	rec, err := s.GetTask(context.Background(), id)
	require.NoError(t, err)
	return rec.Status()
}

// newCatalog builds a registry with the given handlers bound and a
// two-step "default" pipeline a (await) -> b.
func newCatalog(t *testing.T, handlers map[string]gateway.Handler) gateway.Catalog {
	t.Helper()
	fsys := fstest.MapFS{}
	for _, name := range []string{"a", "b"} {
		fsys[name+"/SKILL.md"] = &fstest.MapFile{Data: []byte("---\nname: " + name + "\ndescription: test\n---\n")}
	}
	reg := gateway.NewRegistry(discardLogger())
	require.NoError(t, reg.DiscoverFS(fsys))
	for name, h := range handlers {
		require.NoError(t, reg.Bind(name, h))
	}
	return gateway.NewCatalogOf(
		gateway.New("default", reg, discardLogger()).
			AddStep("a", gateway.AwaitHuman()).
			AddStep("b"),
	)
}

func okHandler(field string) gateway.Handler {
	return gateway.HandlerFunc(func(_ context.Context, tc *gateway.TaskContext) error {
		tc.Meta.Set(field, "done")
		return nil
	})
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObservePipeline(pipeline string, status gateway.TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, pipeline+":"+string(status))
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}
