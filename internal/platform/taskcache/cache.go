// Package taskcache provides a write-through LRU cache in front of a
// task.TaskStore.
package taskcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// DefaultSize is used when a non-positive size is configured.
const DefaultSize = 1024

// entry is a snapshot of a saved record. The context is kept encoded so
// every read hands out an independent copy.
type entry struct {
	pipeline  string
	userID    string
	context   []byte
	createdAt time.Time
	updatedAt time.Time
}

// Store caches GetTask lookups. Writes go to the backing store first and
// refresh the cache only when they succeed. Status queries and listings
// always hit the backing store.
type Store struct {
	next   task.TaskStore
	cache  *lru.Cache[string, entry]
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

var _ task.TaskStore = (*Store)(nil)

// New wraps next with a cache holding at most size tasks.
func New(next task.TaskStore, size int, logger *slog.Logger) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	s := &Store{
		next:   next,
		logger: logger.With("component", "task_cache"),
	}
	cache, err := lru.NewWithEvict[string, entry](size, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create task cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Store) onEvict(taskID string, _ entry) {
	s.logger.Debug("evicted task from cache", "task_id", taskID)
}

// SaveTask writes through to the backing store.
func (s *Store) SaveTask(ctx context.Context, rec *task.Record) error {
	if err := s.next.SaveTask(ctx, rec); err != nil {
		s.cache.Remove(rec.ID())
		return err
	}
	s.put(rec)
	return nil
}

// GetTask serves from the cache when possible.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Record, error) {
	if e, ok := s.cache.Get(id); ok {
		rec, err := e.record()
		if err == nil {
			s.hits.Add(1)
			return rec, nil
		}
		s.logger.Warn("dropping undecodable cache entry", "task_id", id, "error", err)
		s.cache.Remove(id)
	}

	s.misses.Add(1)
	rec, err := s.next.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(rec)
	return rec, nil
}

// GetTasksByStatus is not cached.
func (s *Store) GetTasksByStatus(ctx context.Context, status gateway.TaskStatus, olderThan time.Duration) ([]*task.Record, error) {
	return s.next.GetTasksByStatus(ctx, status, olderThan)
}

// ListTasksByUser is not cached.
func (s *Store) ListTasksByUser(ctx context.Context, userID string, limit int) ([]*task.Record, error) {
	return s.next.ListTasksByUser(ctx, userID, limit)
}

// Stats returns the number of cache hits and misses so far.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Len returns the number of cached tasks.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) put(rec *task.Record) {
	data, err := json.Marshal(rec.Context)
	if err != nil {
		s.logger.Warn("task not cached", "task_id", rec.ID(), "error", err)
		s.cache.Remove(rec.ID())
		return
	}
	s.cache.Add(rec.ID(), entry{
		pipeline:  rec.Pipeline,
		userID:    rec.UserID,
		context:   data,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
	})
}

func (e entry) record() (*task.Record, error) {
	var tc gateway.TaskContext
	if err := json.Unmarshal(e.context, &tc); err != nil {
		return nil, err
	}
	return &task.Record{
		Pipeline:  e.pipeline,
		UserID:    e.userID,
		Context:   &tc,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}, nil
}
