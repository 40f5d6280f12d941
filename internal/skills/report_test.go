package skills

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newReport(model LLM, questions *fakeQuestions) *reportGeneration {
	return &reportGeneration{
		llm:       model,
		questions: questions,
		now:       func() time.Time { return fixedNow },
		logger:    discardLogger(),
	}
}

func TestReportGeneration(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	var gotSince time.Time
	questions := &fakeQuestions{ListMistakesFn: func(_ context.Context, id uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error) {
		assert.Equal(t, userID, id)
		gotSince = since
		return []*domain.MistakeRecord{
			{QuestionText: "2 + 2 = ?", AnswerText: "5", Subject: "math", ErrorReason: "careless"},
			{QuestionText: "Past tense of go", AnswerText: "goed", Subject: "english"},
		}, nil
	}}
	model := &fakeLLM{CallFn: replyWith("\n## Overview\nTwo mistakes.\n")}

	tc := gateway.NewTaskContext(userID.String())
	tc.Meta.Set(MetaReportPeriodDays, 14)

	require.NoError(t, newReport(model, questions).Handle(context.Background(), tc))

	assert.Equal(t, fixedNow.AddDate(0, 0, -14), gotSince)
	report, ok := tc.Meta.GetString(MetaReport)
	require.True(t, ok)
	assert.Equal(t, "## Overview\nTwo mistakes.", report)
	count, ok := tc.Meta.GetFloat(MetaReportCount)
	require.True(t, ok)
	assert.Equal(t, 2.0, count)

	require.Len(t, model.calls, 1)
	assert.Equal(t, RoleReportWriting, model.calls[0].role)
	assert.False(t, model.calls[0].request.JSONMode)
	input := model.calls[0].messages[1].Content
	assert.Contains(t, input, "Period: last 14 days")
	assert.Contains(t, input, "By subject: english=1, math=1")
	assert.Contains(t, input, "By error reason: careless=1, unknown=1")
	assert.Contains(t, input, "Past tense of go")
}

func TestReportGeneration_DefaultPeriodAndEmptyHistory(t *testing.T) {
	t.Parallel()

	var gotSince time.Time
	questions := &fakeQuestions{ListMistakesFn: func(_ context.Context, _ uuid.UUID, since time.Time) ([]*domain.MistakeRecord, error) {
		gotSince = since
		return nil, nil
	}}
	model := &fakeLLM{}
	tc := gateway.NewTaskContext(uuid.NewString())

	require.NoError(t, newReport(model, questions).Handle(context.Background(), tc))

	assert.Equal(t, fixedNow.AddDate(0, 0, -7), gotSince)
	assert.Empty(t, model.calls, "no model call without mistakes")
	report, ok := tc.Meta.GetString(MetaReport)
	require.True(t, ok)
	assert.Contains(t, report, "last 7 days")
	days, ok := tc.Meta.GetFloat(MetaReportPeriodDays)
	require.True(t, ok)
	assert.Equal(t, 7.0, days)
}

func TestReportGeneration_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid period", func(t *testing.T) {
		for _, days := range []any{0, -3, 366, 0.5, 365.5, math.NaN(), math.Inf(1), 1e300, -1e300} {
			tc := gateway.NewTaskContext(uuid.NewString())
			tc.Meta.Set(MetaReportPeriodDays, days)
			err := newReport(&fakeLLM{}, &fakeQuestions{}).Handle(context.Background(), tc)
			assert.ErrorIs(t, err, ErrInvalidPeriod, "days=%v", days)
		}
	})

	t.Run("invalid user", func(t *testing.T) {
		err := newReport(&fakeLLM{}, &fakeQuestions{}).Handle(context.Background(), gateway.NewTaskContext("nobody"))
		assert.ErrorIs(t, err, domain.ErrInvalidID)
	})

	t.Run("empty model reply", func(t *testing.T) {
		questions := &fakeQuestions{ListMistakesFn: func(context.Context, uuid.UUID, time.Time) ([]*domain.MistakeRecord, error) {
			return []*domain.MistakeRecord{{QuestionText: "q"}}, nil
		}}
		tc := gateway.NewTaskContext(uuid.NewString())
		err := newReport(&fakeLLM{CallFn: replyWith("  ")}, questions).Handle(context.Background(), tc)
		assert.ErrorIs(t, err, llm.ErrInvalidResponse)
		_, ok := tc.Meta.GetString(MetaReport)
		assert.False(t, ok)
	})
}

func TestReportInput_Truncates(t *testing.T) {
	t.Parallel()

	mistakes := make([]*domain.MistakeRecord, maxReportItems+5)
	for i := range mistakes {
		mistakes[i] = &domain.MistakeRecord{QuestionText: fmt.Sprintf("question %d %s", i, strings.Repeat("x", 300))}
	}

	input := reportInput(30, mistakes)

	assert.Contains(t, input, "... and 5 more")
	assert.NotContains(t, input, fmt.Sprintf("question %d ", maxReportItems))
	assert.Contains(t, input, "x...")
}
