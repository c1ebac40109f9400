package app

import (
	"database/sql"
	"net/http"
	"time"

	"govportal/internal/app/observability"
	"govportal/internal/questionnaire"
	"govportal/internal/versions"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Versions      *versions.Service
	Questionnaire *questionnaire.Service
}

func NewRouter(cfg Config, db *sql.DB, svcs Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	versionHandler := versions.NewHandler(svcs.Versions, cfg.UploadMaxMB)
	questionnaireHandler := questionnaire.NewHandler(svcs.Questionnaire)
	uploadLimiter := NewIPRateLimiter(cfg.UploadRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/question-sets/{versionID}", versionHandler.Get)

		api.Get("/questionnaire", questionnaireHandler.RenderSection)
		api.Get("/questionnaire/sections/{sectionID}", questionnaireHandler.RenderSection)
		api.Post("/questionnaire/sections/{sectionID}/submit", questionnaireHandler.SubmitSection)
		api.Get("/questionnaire/sections/{sectionID}/navigation", questionnaireHandler.SectionNavigation)

		api.Group(func(admin chi.Router) {
			admin.Use(AdminTokenMiddleware(cfg.AdminTokenHash))
			admin.Get("/admin/question-sets", versionHandler.List)
			admin.With(RateLimitMiddleware(uploadLimiter)).Post("/admin/question-sets", versionHandler.Upload)
			admin.Post("/admin/question-sets/{versionID}/publish", versionHandler.Publish)
			admin.Post("/admin/question-sets/{versionID}/unpublish", versionHandler.Unpublish)
		})
	})

	return r
}
