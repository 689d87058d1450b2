package app

import (
	"database/sql"
	"net/http"
	"time"

	"psicodata/internal/app/observability"
	"psicodata/internal/capture"
	"psicodata/internal/exam"
	"psicodata/internal/export"
	"psicodata/internal/masterdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	examHandler := exam.NewHandler(exam.NewService(db))
	captureHandler := capture.NewHandler(capture.NewService(db))
	exportHandler := export.NewHandler(export.NewService(db))
	masterdataHandler := masterdata.NewHandler(masterdata.NewService(db))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	limiter := NewIPRateLimiter(cfg.WriteRateLimitPerMin, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))

		api.Post("/exams", examHandler.CreateExam)
		api.Get("/exams", examHandler.ListExams)
		api.Put("/exams/{id}", examHandler.UpdateExam)
		api.Delete("/exams/{id}", examHandler.DeleteExam)
		api.Get("/exams/{id}/structure", examHandler.GetExamStructure)
		api.Post("/exams/{id}/items", examHandler.CreateItem)
		api.Put("/items/{itemID}", examHandler.UpdateItem)
		api.Delete("/items/{itemID}", examHandler.DeleteItem)
		api.Post("/items/{itemID}/subquestions", examHandler.CreateSubQuestion)
		api.Put("/subquestions/{subQuestionID}", examHandler.UpdateSubQuestion)
		api.Delete("/subquestions/{subQuestionID}", examHandler.DeleteSubQuestion)
		api.Post("/subquestions/{subQuestionID}/options", examHandler.CreateOption)
		api.Put("/options/{optionID}", examHandler.UpdateOption)
		api.Delete("/options/{optionID}", examHandler.DeleteOption)

		api.Post("/exams/{examID}/applications", captureHandler.CreateApplication)
		api.Get("/applications/{id}", captureHandler.GetApplication)
		api.Delete("/applications/{id}", captureHandler.DeleteApplication)
		api.Get("/applications/{id}/rows", captureHandler.ListRows)
		api.Post("/applications/{id}/rows", captureHandler.AddRow)
		api.Delete("/applications/{id}/rows/last", captureHandler.DeleteLastRow)
		api.Get("/applications/{id}/rows/{rowID}", captureHandler.GetRowState)
		api.Post("/applications/{id}/responses", captureHandler.SaveResponse)
		api.Post("/applications/{id}/item-scores", captureHandler.SaveItemScore)

		api.Get("/applications/{id}/export/winsteps", exportHandler.Winsteps)
		api.Get("/applications/{id}/export/pivot", exportHandler.PivotCSV)
		api.Get("/applications/{id}/export/pivot.xlsx", exportHandler.PivotExcel)

		api.Post("/regions", masterdataHandler.CreateRegion)
		api.Get("/regions", masterdataHandler.ListRegions)
		api.Post("/institutions", masterdataHandler.GetOrCreateInstitution)
		api.Get("/institutions", masterdataHandler.ListInstitutions)
		api.Get("/grade-levels", masterdataHandler.ListGradeLevels)
		api.Get("/subject-areas", masterdataHandler.ListSubjectAreas)
	})

	return r
}
