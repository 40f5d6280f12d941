package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHandler records the events it receives.
type countingHandler struct {
	events []*TaskRequestEvent
	err    error
}

func (h *countingHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func newEvent(t *testing.T, eventType string) *TaskRequestEvent {
	t.Helper()
	event, err := NewTaskRequestEvent(eventType, map[string]string{"key": "value"})
	require.NoError(t, err)
	return event
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t, "pipeline_run")))
	})

	t.Run("delivers to all handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		h1, h2 := &countingHandler{}, &countingHandler{}
		emitter.RegisterHandler(h1)
		emitter.RegisterHandler(h2)

		event := newEvent(t, "pipeline_run")
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, []*TaskRequestEvent{event}, h1.events)
		assert.Equal(t, []*TaskRequestEvent{event}, h2.events)
	})

	t.Run("subscriptions filter by type", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		runs, reports := &countingHandler{}, &countingHandler{}
		emitter.Subscribe("pipeline_run", runs)
		emitter.Subscribe("report", reports)

		require.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t, "pipeline_run")))

		assert.Len(t, runs.events, 1)
		assert.Empty(t, reports.events)
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failing := &countingHandler{err: errors.New("handler error")}
		ok := &countingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)

		err := emitter.EmitEvent(context.Background(), newEvent(t, "pipeline_run"))

		require.Error(t, err)
		assert.ErrorIs(t, err, failing.err)
		assert.Len(t, failing.events, 1)
		assert.Len(t, ok.events, 1)
	})

	t.Run("panicking handler is recovered", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		emitter.RegisterHandler(HandlerFunc(func(context.Context, *TaskRequestEvent) error {
			panic("boom")
		}))
		after := &countingHandler{}
		emitter.RegisterHandler(after)

		err := emitter.EmitEvent(context.Background(), newEvent(t, "pipeline_run"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked: boom")
		assert.Len(t, after.events, 1)
	})
}
