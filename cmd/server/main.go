// Package main implements the entry point for the tiptoro API server, which
// accepts photos of wrong answers, runs them through the skill pipelines and
// serves the results.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/tiptoro/tiptoro-api/internal/config"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
	"github.com/tiptoro/tiptoro-api/internal/platform/sqldb"
	"github.com/tiptoro/tiptoro-api/internal/redact"
)

func main() {
	ctx := context.Background()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	db, err := sqldb.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %s", redact.Error(err))
	}
	if err := sqldb.Migrate(ctx, db, cfg.Database.Driver, appLogger); err != nil {
		_ = db.Close()
		log.Fatalf("Failed to apply migrations: %s", redact.Error(err))
	}

	providers, err := buildProviders(ctx, cfg.LLM, appLogger)
	if err != nil {
		_ = db.Close()
		log.Fatalf("Failed to initialize LLM providers: %v", err)
	}

	app, err := newApplication(ctx, cfg, appLogger, db, providers)
	if err != nil {
		_ = db.Close()
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"appLoggerlevel", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider)
	l.Debug("Auth configuration", "jwt_secret_present", cfg.Auth.JWTSecret != "")

	return cfg, l, nil
}
