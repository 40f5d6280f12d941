package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tiptoro/tiptoro-api/internal/api"
	apiMiddleware "github.com/tiptoro/tiptoro-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	authHandler := api.NewAuthHandler(app.userStore, app.jwtService, app.config.Auth.BCryptCost)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	taskHandler := api.NewTaskHandler(app.taskStore, app.files, app.eventEmitter)
	skillHandler := api.NewSkillHandler(app.registry)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/skills", skillHandler.ListSkills)

			r.Post("/tasks", taskHandler.CreateTask)
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Post("/tasks/{id}/verification", taskHandler.SubmitVerification)
			r.Post("/tasks/{id}/retry", taskHandler.RetryTask)

			r.Post("/reports", taskHandler.CreateReport)
		})
	})

	r.Get("/health", api.HealthHandler(app.db))
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())
	// Uploads are served locally only when the base URL is a path on this host.
	if prefix := strings.TrimRight(app.config.Storage.BaseURL, "/"); strings.HasPrefix(prefix, "/") {
		r.Mount(prefix, http.StripPrefix(prefix, app.files.Handler()))
	}

	return r
}
