package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
)

const analysisPrompt = `You are a patient teacher reviewing a student's wrong answer.
Identify the knowledge points the question tests, explain briefly why the answer is wrong
and suggest search keywords for similar practice questions.
Reply with a JSON object:
{"knowledge_nodes": [string], "analysis_summary": string, "similar_question_keywords": [string]}`

type analysisResult struct {
	KnowledgeNodes          []string `json:"knowledge_nodes"`
	AnalysisSummary         string   `json:"analysis_summary"`
	SimilarQuestionKeywords []string `json:"similar_question_keywords"`
}

type cognitiveAnalysis struct {
	llm    LLM
	logger *slog.Logger
}

func (s *cognitiveAnalysis) Handle(ctx context.Context, tc *gateway.TaskContext) error {
	if tc.VerifiedQuestionText == "" {
		return ErrNotVerified
	}

	resp, err := s.llm.Call(ctx, RoleCognitiveAnalysis, []llm.Message{
		llm.SystemMessage(analysisPrompt),
		llm.UserMessage(analysisInput(tc)),
	}, llm.WithJSONMode())
	if err != nil {
		return fmt.Errorf("analysis model call failed: %w", err)
	}

	var out analysisResult
	if err := llm.DecodeJSON(resp.Content, &out); err != nil {
		return err
	}
	summary := strings.TrimSpace(out.AnalysisSummary)
	if summary == "" {
		return fmt.Errorf("%w: empty analysis summary", llm.ErrInvalidResponse)
	}

	tc.KnowledgeNodes = cleanList(out.KnowledgeNodes)
	tc.AnalysisSummary = summary
	tc.SimilarQuestionKeywords = cleanList(out.SimilarQuestionKeywords)

	s.logger.InfoContext(ctx, "analysis complete",
		"task_id", tc.ID(),
		"knowledge_nodes", len(tc.KnowledgeNodes),
		"model", resp.Model)
	return nil
}

func analysisInput(tc *gateway.TaskContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", tc.VerifiedQuestionText)
	answer := tc.VerifiedAnswerText
	if answer == "" {
		answer = "(no answer written)"
	}
	fmt.Fprintf(&b, "Student answer:\n%s\n", answer)
	if tc.Subject != "" {
		fmt.Fprintf(&b, "\nSubject: %s\n", tc.Subject)
	}
	if tc.Grade != "" {
		fmt.Fprintf(&b, "Grade: %s\n", tc.Grade)
	}
	if tc.ErrorReason != "" {
		fmt.Fprintf(&b, "Student's own reason for the mistake: %s\n", tc.ErrorReason)
	}
	return b.String()
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
