// Package store provides abstractions and implementations for data
// persistence.
package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
)

// DBTX abstracts the database access layer. It is implemented by both
// *sql.DB and *sql.Tx, so stores work inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExamStore defines the interface for exam document persistence.
type ExamStore interface {
	// Put saves an exam, overwriting any existing record with the same
	// exam ID. The keyed overwrite is what makes duplicate queue
	// delivery safe: the last successful write wins.
	Put(ctx context.Context, exam *domain.Exam) error

	// GetByID retrieves an exam by its ID.
	// Returns ErrExamNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Exam, error)

	// Update persists changed content, state, contributors, and
	// regeneration count, guarded by an optimistic version
	// precondition: the write only lands if the stored version still
	// equals expectedVersion. Returns ErrVersionMismatch when a
	// concurrent update got there first, ErrExamNotFound when the exam
	// does not exist.
	Update(ctx context.Context, exam *domain.Exam, expectedVersion int64) error

	// UpdateState transitions only the lifecycle state and error
	// detail, without touching content or the version stamp.
	UpdateState(ctx context.Context, id uuid.UUID, state domain.ExamState, errorDetail string) error

	// WithTx returns an ExamStore bound to the given transaction.
	WithTx(tx *sql.Tx) ExamStore
}
