package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/examgen/examgen-api/internal/api"
	apimiddleware "github.com/examgen/examgen-api/internal/api/middleware"
)

// setupRouter builds the HTTP route tree.
func setupRouter(handler *api.ExamHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.Trace)

	r.Route("/api", func(r chi.Router) {
		r.Post("/exams", handler.CreateExam)
		r.Get("/exams/{id}", handler.GetExam)
		r.Post("/exams/regenerate", handler.RegenerateExam)
		r.Post("/exams/regenerate/sections", handler.RegenerateSections)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
