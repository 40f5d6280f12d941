package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/config"
	"github.com/tiptoro/tiptoro-api/internal/events"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
	"github.com/tiptoro/tiptoro-api/internal/platform/filestore"
	"github.com/tiptoro/tiptoro-api/internal/platform/gemini"
	"github.com/tiptoro/tiptoro-api/internal/platform/metrics"
	"github.com/tiptoro/tiptoro-api/internal/platform/openaicompat"
	"github.com/tiptoro/tiptoro-api/internal/platform/sqldb"
	"github.com/tiptoro/tiptoro-api/internal/platform/taskcache"
	"github.com/tiptoro/tiptoro-api/internal/service/auth"
	"github.com/tiptoro/tiptoro-api/internal/skills"
	"github.com/tiptoro/tiptoro-api/internal/store"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	userStore     store.UserStore
	questionStore store.QuestionStore
	taskStore     task.TaskStore
	files         *filestore.Store
	metrics       *metrics.Metrics

	jwtService *auth.JWTService
	llmClient  *llm.Client
	registry   *gateway.Registry
	catalog    gateway.Catalog

	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.Runner
}

// buildProviders creates a model provider for every vendor with credentials
// configured. Roles routed to a vendor without credentials fail when called.
func buildProviders(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) ([]llm.Provider, error) {
	var providers []llm.Provider

	if cfg.GeminiAPIKey != "" {
		p, err := gemini.NewProvider(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		providers = append(providers, p)
	}

	if cfg.OpenAIAPIKey != "" {
		p, err := openaicompat.NewProvider(openaicompat.Config{
			Name:    openaicompat.DefaultName,
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai provider: %w", err)
		}
		providers = append(providers, p)
	}

	return providers, nil
}

// newApplication creates a new application instance with all dependencies
// initialized and the task runner started. The database must already be
// migrated.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	providers []llm.Provider,
) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.userStore = sqldb.NewUserStore(db)
	app.questionStore = sqldb.NewQuestionStore(db)
	app.taskStore = sqldb.NewTaskStore(db)
	if cfg.Task.CacheSize > 0 {
		app.taskStore, err = taskcache.New(app.taskStore, cfg.Task.CacheSize, logger)
		if err != nil {
			return nil, err
		}
	}

	app.files, err = filestore.New(cfg.Storage.BasePath, cfg.Storage.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	app.llmClient, err = llm.NewClient(llm.ConfigFrom(cfg.LLM), logger, providers...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	logger.Info("LLM client initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"provider_count", len(providers))

	app.registry = gateway.NewRegistry(logger)
	if err := app.registry.Discover(cfg.Gateway.SkillsDir); err != nil {
		return nil, fmt.Errorf("failed to discover skills: %w", err)
	}
	err = skills.Bind(app.registry, skills.Deps{
		LLM:       app.llmClient,
		Questions: app.questionStore,
		Storage:   app.files,
		Logger:    logger,
		Metrics:   app.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind skills: %w", err)
	}
	app.catalog = gateway.NewCatalog(app.registry, logger)
	logger.Info("Skills registered",
		"skills", app.registry.List(),
		"pipelines", app.catalog.Names())

	app.taskRunner, err = setupTaskRunner(app)
	if err != nil {
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.Subscribe(task.EventTypePipelineRun, task.NewEventHandler(app.taskRunner, logger))

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// setupTaskRunner creates the runner over the configured pipelines and starts
// it, which also requeues tasks left unfinished by a previous process.
func setupTaskRunner(app *application) (*task.Runner, error) {
	runner := task.NewRunner(app.taskStore, app.catalog, task.RunnerConfig{
		QueueSize:    app.config.Task.QueueSize,
		WorkerCount:  app.config.Task.WorkerCount,
		StuckTaskAge: time.Duration(app.config.Task.StuckTaskAgeMinutes) * time.Minute,
	}, app.logger, task.WithObserver(app.metrics))

	if err := runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}
	return runner, nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
}
