package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/examgen/examgen-api/internal/api"
	"github.com/examgen/examgen-api/internal/config"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/platform/gemini"
	"github.com/examgen/examgen-api/internal/platform/openai"
	"github.com/examgen/examgen-api/internal/platform/postgres"
	"github.com/examgen/examgen-api/internal/service"
	"github.com/examgen/examgen-api/internal/store"
	"github.com/examgen/examgen-api/internal/task"
)

// application holds the wired dependency graph for the serve command.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	runner *task.TaskRunner
	server *http.Server
}

// newApplication builds every layer of the service from configuration:
// database, stores, completion client, worker pool, services, and the
// HTTP server.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := openDatabase(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	examStore := postgres.NewExamStore(db, log)
	jobStore := postgres.NewJobStore(db, log)
	snippetStore := postgres.NewSnippetStore(db, log)

	client, err := newCompletionClient(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	creationParams := generation.Params{
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Temperature:     cfg.Generation.Temperature,
		TopP:            cfg.Generation.TopP,
	}
	sectionParams := generation.Params{
		MaxOutputTokens: cfg.Generation.SectionMaxOutputTokens,
		Temperature:     cfg.Generation.SectionTemperature,
		TopP:            cfg.Generation.TopP,
	}

	taskDeps := task.ExamGenerationDeps{
		ExamStore:      examStore,
		Client:         client,
		Retriever:      snippetStore,
		Params:         creationParams,
		RetrievalLimit: cfg.Retrieval.MaxResults,
		Logger:         log,
	}

	factory, err := task.NewExamGenerationTaskFactory(taskDeps)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}

	runner := task.NewTaskRunner(jobStore, factory, task.TaskRunnerConfig{
		WorkerCount:            cfg.Worker.Count,
		QueueSize:              cfg.Worker.QueueSize,
		StuckTaskAge:           time.Duration(cfg.Worker.StuckJobAgeMinutes) * time.Minute,
		StuckTaskCheckInterval: time.Duration(cfg.Worker.StuckJobCheckMinutes) * time.Minute,
	}, log)

	examService, err := service.NewExamService(
		examStore, jobStore, store.NewTxRunner(db), runner, taskDeps, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create exam service: %w", err)
	}

	regenerationService, err := service.NewRegenerationService(
		examStore, client, creationParams, sectionParams, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create regeneration service: %w", err)
	}

	handler := api.NewExamHandler(examService, regenerationService)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      setupRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &application{
		cfg:    cfg,
		logger: log,
		db:     db,
		runner: runner,
		server: server,
	}, nil
}

// newCompletionClient selects the configured provider.
func newCompletionClient(cfg *config.Config, log *slog.Logger) (generation.CompletionClient, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.NewClient(context.Background(), log, cfg.LLM)
	case "openai":
		return openai.NewClient(log, cfg.LLM)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.LLM.Provider)
	}
}

// Run applies migrations, starts the worker pool and the HTTP server,
// and blocks until the context is cancelled or a shutdown signal
// arrives. Shutdown order drains in-flight HTTP requests first, then
// stops the workers.
func (a *application) Run(ctx context.Context) error {
	if err := runMigrations(a.db); err != nil {
		return err
	}

	if err := a.runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.runner.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown failed", "error", err)
	}

	a.runner.Stop()
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases resources not tied to Run's lifecycle.
func (a *application) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
