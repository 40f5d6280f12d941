package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
)

func TestCognitiveAnalysis(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{CallFn: replyWith(`{
		"knowledge_nodes": ["quadratic equations", " square roots ", "quadratic equations", ""],
		"analysis_summary": "  Forgot the negative root. ",
		"similar_question_keywords": ["x^2 = a"]
	}`)}
	tc := verifiedContext("u")

	h := &cognitiveAnalysis{llm: model, logger: discardLogger()}
	require.NoError(t, h.Handle(context.Background(), tc))

	assert.Equal(t, []string{"quadratic equations", "square roots"}, tc.KnowledgeNodes)
	assert.Equal(t, "Forgot the negative root.", tc.AnalysisSummary)
	assert.Equal(t, []string{"x^2 = a"}, tc.SimilarQuestionKeywords)

	require.Len(t, model.calls, 1)
	assert.Equal(t, RoleCognitiveAnalysis, model.calls[0].role)
	assert.True(t, model.calls[0].request.JSONMode)
	input := model.calls[0].messages[1].Content
	assert.Contains(t, input, "Solve  x^2 = 9")
	assert.Contains(t, input, "x = 3")
	assert.Contains(t, input, "Subject: math")
	assert.Contains(t, input, "careless")
}

func TestCognitiveAnalysis_Errors(t *testing.T) {
	t.Parallel()

	t.Run("requires verified text", func(t *testing.T) {
		model := &fakeLLM{}
		err := (&cognitiveAnalysis{llm: model, logger: discardLogger()}).Handle(context.Background(), gateway.NewTaskContext("u"))
		assert.ErrorIs(t, err, ErrNotVerified)
		assert.Empty(t, model.calls)
	})

	t.Run("empty summary", func(t *testing.T) {
		model := &fakeLLM{CallFn: replyWith(`{"knowledge_nodes":["x"],"analysis_summary":""}`)}
		tc := verifiedContext("u")
		err := (&cognitiveAnalysis{llm: model, logger: discardLogger()}).Handle(context.Background(), tc)
		assert.ErrorIs(t, err, llm.ErrInvalidResponse)
		assert.Empty(t, tc.KnowledgeNodes)
	})
}

func TestAnalysisInput_NoAnswer(t *testing.T) {
	t.Parallel()

	tc := gateway.NewTaskContext("u")
	tc.VerifiedQuestionText = "q"
	assert.Contains(t, analysisInput(tc), "(no answer written)")
	assert.NotContains(t, analysisInput(tc), "Subject:")
}
