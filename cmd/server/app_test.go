package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/api"
	"github.com/tiptoro/tiptoro-api/internal/config"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
	"github.com/tiptoro/tiptoro-api/internal/platform/sqldb"
)

// scriptedProvider answers each skill's call with a canned completion,
// telling them apart by the shape of the request.
type scriptedProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string { return "gemini" }

func (p *scriptedProvider) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	content := "# Weekly report\n\nKeep practicing fractions."
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			content = `{"question_text":"1/2 + 1/3 = ?","answer_text":"2/5","question_confidence":0.9,"answer_confidence":0.8}`
		}
	}
	if content[0] == '#' && req.JSONMode {
		content = `{"knowledge_nodes":["fraction addition"],"analysis_summary":"Added numerators and denominators.","similar_question_keywords":["common denominator"]}`
	}
	return &llm.CompletionResponse{Content: content, Model: req.Model, Provider: p.Name()}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, LogLevel: "debug"},
		Database: config.DatabaseConfig{Driver: sqldb.DriverSQLite, URL: "file::memory:?_pragma=foreign_keys(1)"},
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret-that-is-at-least-32-characters",
			TokenLifetimeMinutes: 60,
			BCryptCost:           4,
		},
		LLM: config.LLMConfig{
			Provider:     "gemini",
			Model:        "test-model",
			GeminiAPIKey: "unused",
			Temperature:  0.2,
			MaxTokens:    512,
			TopP:         0.9,
		},
		Gateway: config.GatewayConfig{SkillsDir: "../../skills"},
		Task:    config.TaskConfig{WorkerCount: 2, QueueSize: 16, StuckTaskAgeMinutes: 30, CacheSize: 64},
		Storage: config.StorageConfig{BasePath: t.TempDir(), BaseURL: "/files"},
	}
}

func newTestApp(t *testing.T) (*application, http.Handler, *scriptedProvider) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)

	db, err := sqldb.Open(ctx, cfg.Database)
	require.NoError(t, err)
	require.NoError(t, sqldb.Migrate(ctx, db, cfg.Database.Driver, logger))

	provider := &scriptedProvider{}
	app, err := newApplication(ctx, cfg, logger, db, []llm.Provider{provider})
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	return app, app.setupRouter(), provider
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func register(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := call(t, h, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Email:    "student@example.com",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[api.AuthResponse](t, rr).AccessToken
}

func photo(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// waitForStatus polls the task until it reaches want.
func waitForStatus(t *testing.T, h http.Handler, token, taskID string, want gateway.TaskStatus) api.TaskResponse {
	t.Helper()
	var last api.TaskResponse
	require.Eventually(t, func() bool {
		rr := call(t, h, http.MethodGet, "/api/tasks/"+taskID, token, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		last = decode[api.TaskResponse](t, rr)
		return last.Status == want
	}, 5*time.Second, 20*time.Millisecond, "task %s never reached %s", taskID, want)
	return last
}

func TestApplication_MistakeLifecycle(t *testing.T) {
	_, h, provider := newTestApp(t)
	token := register(t, h)

	rr := call(t, h, http.MethodPost, "/api/tasks", token, api.CreateTaskRequest{
		Image:       photo(t),
		ContentType: "image/png",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	created := decode[api.TaskResponse](t, rr)
	assert.Equal(t, gateway.PipelineDefault, created.Pipeline)

	suspended := waitForStatus(t, h, token, created.TaskID, gateway.StatusAwaitingHuman)
	assert.Equal(t, api.NextActionVerify, suspended.NextAction)
	assert.Equal(t, "1/2 + 1/3 = ?", suspended.Context.RawQuestionText)
	assert.Equal(t, gateway.SkillVisionPerception, suspended.Context.LastSkill)

	rr = call(t, h, http.MethodPost, "/api/tasks/"+created.TaskID+"/verification", token, api.VerificationRequest{
		QuestionText: "1/2 + 1/3 = ?",
		AnswerText:   "2/5",
		Subject:      "math",
		ErrorReason:  "concept_unclear",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	done := waitForStatus(t, h, token, created.TaskID, gateway.StatusCompleted)
	assert.Equal(t, api.NextActionViewResult, done.NextAction)
	assert.Equal(t, []string{"fraction addition"}, done.Context.KnowledgeNodes)
	assert.NotNil(t, done.Context.QuestionID)
	assert.Empty(t, done.Context.Errors())

	rr = call(t, h, http.MethodPost, "/api/reports", token, api.ReportRequest{PeriodDays: 7})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	report := decode[api.TaskResponse](t, rr)

	finished := waitForStatus(t, h, token, report.TaskID, gateway.StatusCompleted)
	assert.Contains(t, finished.Report, "Weekly report")

	provider.mu.Lock()
	assert.Equal(t, 3, provider.calls)
	provider.mu.Unlock()

	rr = call(t, h, http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[api.TaskListResponse](t, rr).Tasks, 2)
}

func TestApplication_Routes(t *testing.T) {
	_, h, _ := newTestApp(t)

	t.Run("health", func(t *testing.T) {
		rr := call(t, h, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		rr := call(t, h, http.MethodGet, "/api/tasks", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("skills are discovered and bound", func(t *testing.T) {
		token := register(t, h)
		rr := call(t, h, http.MethodGet, "/api/skills", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		skillList := decode[[]api.SkillResponse](t, rr)
		names := make([]string, 0, len(skillList))
		for _, s := range skillList {
			assert.True(t, s.Bound, s.Name)
			names = append(names, s.Name)
		}
		assert.ElementsMatch(t, []string{
			gateway.SkillCognitiveAnalysis,
			gateway.SkillIngestAndVerify,
			gateway.SkillReportGeneration,
			gateway.SkillVisionPerception,
		}, names)
	})

	t.Run("metrics", func(t *testing.T) {
		rr := call(t, h, http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestApplication_ServesUploads(t *testing.T) {
	app, h, _ := newTestApp(t)

	_, err := app.files.Put(context.Background(), "raw/u/t.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)

	rr := call(t, h, http.MethodGet, "/files/raw/u/t.txt", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", strings.TrimSpace(rr.Body.String()))
}

func TestNewApplication_RequiresDefaultProvider(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)

	db, err := sqldb.Open(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqldb.Migrate(ctx, db, cfg.Database.Driver, logger))

	_, err = newApplication(ctx, cfg, logger, db, nil)
	assert.ErrorIs(t, err, llm.ErrProviderNotFound)
}

func TestBuildProviders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	providers, err := buildProviders(context.Background(), config.LLMConfig{OpenAIAPIKey: "sk-test"}, logger)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "openai", providers[0].Name())

	providers, err = buildProviders(context.Background(), config.LLMConfig{}, logger)
	require.NoError(t, err)
	assert.Empty(t, providers)
}
