package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

// Meta keys owned by report-generation.
const (
	MetaReportPeriodDays = "report_period_days"
	MetaReport           = "report"
	MetaReportCount      = "report_mistake_count"
)

const (
	defaultReportDays = 7
	maxReportDays     = 365

	// maxReportItems caps how many mistakes are quoted in the prompt.
	maxReportItems = 50
)

// ErrInvalidPeriod is returned for report periods outside 1..365 days.
var ErrInvalidPeriod = errors.New("report period must be between 1 and 365 days")

const reportPrompt = `You write short, encouraging learning reports for middle and high school students.
Using the mistakes listed, write a Markdown report with these sections:
"## Overview", "## Weak points", "## Suggestions".
Group related mistakes, name the underlying knowledge gaps and give concrete practice advice.`

type reportGeneration struct {
	llm       LLM
	questions store.QuestionStore
	now       func() time.Time
	logger    *slog.Logger
}

func (s *reportGeneration) Handle(ctx context.Context, tc *gateway.TaskContext) error {
	userID, err := uuid.Parse(tc.UserID)
	if err != nil {
		return fmt.Errorf("%w: user id %q", domain.ErrInvalidID, tc.UserID)
	}

	days := defaultReportDays
	if v, ok := tc.Meta.GetFloat(MetaReportPeriodDays); ok {
		// Written so that NaN fails too.
		if !(v >= 1 && v <= maxReportDays) {
			return fmt.Errorf("%w: got %v", ErrInvalidPeriod, v)
		}
		days = int(v)
	}
	tc.Meta.Set(MetaReportPeriodDays, days)

	since := s.now().UTC().AddDate(0, 0, -days)
	mistakes, err := s.questions.ListMistakes(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("failed to list mistakes: %w", err)
	}
	tc.Meta.Set(MetaReportCount, len(mistakes))

	if len(mistakes) == 0 {
		tc.Meta.Set(MetaReport, emptyReport(days))
		s.logger.InfoContext(ctx, "no mistakes in period, skipping model call", "task_id", tc.ID(), "days", days)
		return nil
	}

	resp, err := s.llm.Call(ctx, RoleReportWriting, []llm.Message{
		llm.SystemMessage(reportPrompt),
		llm.UserMessage(reportInput(days, mistakes)),
	})
	if err != nil {
		return fmt.Errorf("report model call failed: %w", err)
	}
	report := strings.TrimSpace(resp.Content)
	if report == "" {
		return fmt.Errorf("%w: empty report", llm.ErrInvalidResponse)
	}
	tc.Meta.Set(MetaReport, report)

	s.logger.InfoContext(ctx, "report generated",
		"task_id", tc.ID(),
		"days", days,
		"mistakes", len(mistakes))
	return nil
}

func emptyReport(days int) string {
	return fmt.Sprintf("# Learning report\n\nNo mistakes were recorded in the last %d days. Keep it up!\n", days)
}

func reportInput(days int, mistakes []*domain.MistakeRecord) string {
	bySubject := map[string]int{}
	byReason := map[string]int{}
	for _, m := range mistakes {
		bySubject[orUnknown(m.Subject)]++
		byReason[orUnknown(m.ErrorReason)]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Period: last %d days\nTotal mistakes: %d\n", days, len(mistakes))
	fmt.Fprintf(&b, "By subject: %s\n", formatCounts(bySubject))
	fmt.Fprintf(&b, "By error reason: %s\n\nMistakes:\n", formatCounts(byReason))

	for i, m := range mistakes {
		if i == maxReportItems {
			fmt.Fprintf(&b, "... and %d more\n", len(mistakes)-maxReportItems)
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n   answer: %s\n   reason: %s\n",
			i+1, orUnknown(m.Subject), truncate(m.QuestionText, 200), truncate(m.AnswerText, 100), orUnknown(m.ErrorReason))
	}
	return b.String()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
