// Package postgres contains the PostgreSQL implementations of the
// application's persistence interfaces.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/platform/logger"
	"github.com/examgen/examgen-api/internal/store"
)

// ExamStore implements store.ExamStore backed by PostgreSQL. Content
// and contributors are stored as JSONB.
type ExamStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewExamStore creates a PostgreSQL exam store. The caller owns the
// database handle.
func NewExamStore(db store.DBTX, logger *slog.Logger) *ExamStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExamStore{
		db:     db,
		logger: logger.With(slog.String("component", "exam_store")),
	}
}

var _ store.ExamStore = (*ExamStore)(nil)

// Put implements store.ExamStore.Put as an upsert keyed by exam_id.
// Replaying the same write is harmless: the row converges to the last
// successful write.
func (s *ExamStore) Put(ctx context.Context, exam *domain.Exam) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := exam.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	content, contributors, err := encodeExamFields(exam)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exams (
			exam_id, state, content, class, subject, semester, duration,
			total_marks, created_by, creation_date, contributors,
			num_regenerations, error_detail, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)
		ON CONFLICT (exam_id) DO UPDATE SET
			state = EXCLUDED.state,
			content = EXCLUDED.content,
			contributors = EXCLUDED.contributors,
			num_regenerations = EXCLUDED.num_regenerations,
			error_detail = EXCLUDED.error_detail,
			version = exams.version + 1,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		exam.ExamID,
		exam.State,
		content,
		exam.Class,
		exam.Subject,
		exam.Semester,
		exam.Duration,
		exam.TotalMarks,
		exam.CreatedBy,
		exam.CreationDate,
		contributors,
		exam.NumRegenerations,
		exam.ErrorDetail,
		exam.CreatedAt,
		now,
	)
	if err != nil {
		log.Error("failed to put exam",
			slog.String("exam_id", exam.ExamID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("exam", "put", "exec failed", mapError(err))
	}

	log.Info("exam written",
		slog.String("exam_id", exam.ExamID.String()),
		slog.String("state", string(exam.State)))
	return nil
}

// GetByID implements store.ExamStore.GetByID.
func (s *ExamStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Exam, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT exam_id, state, content, class, subject, semester, duration,
		       total_marks, created_by, creation_date, contributors,
		       num_regenerations, error_detail, version, created_at, updated_at
		FROM exams
		WHERE exam_id = $1
	`

	var exam domain.Exam
	var state string
	var content, contributors []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&exam.ExamID,
		&state,
		&content,
		&exam.Class,
		&exam.Subject,
		&exam.Semester,
		&exam.Duration,
		&exam.TotalMarks,
		&exam.CreatedBy,
		&exam.CreationDate,
		&contributors,
		&exam.NumRegenerations,
		&exam.ErrorDetail,
		&exam.Version,
		&exam.CreatedAt,
		&exam.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExamNotFound
		}
		log.Error("failed to get exam",
			slog.String("exam_id", id.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("exam", "get", "query failed", err)
	}

	exam.State = domain.ExamState(state)
	if err := decodeExamFields(&exam, content, contributors); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Update implements store.ExamStore.Update with an optimistic version
// precondition.
func (s *ExamStore) Update(ctx context.Context, exam *domain.Exam, expectedVersion int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := exam.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	content, contributors, err := encodeExamFields(exam)
	if err != nil {
		return err
	}

	query := `
		UPDATE exams
		SET state = $2,
		    content = $3,
		    contributors = $4,
		    num_regenerations = $5,
		    error_detail = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE exam_id = $1 AND version = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		exam.ExamID,
		exam.State,
		content,
		contributors,
		exam.NumRegenerations,
		exam.ErrorDetail,
		time.Now().UTC(),
		expectedVersion,
	)
	if err != nil {
		log.Error("failed to update exam",
			slog.String("exam_id", exam.ExamID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("exam", "update", "exec failed", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("exam", "update", "rows affected", err)
	}
	if rows == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM exams WHERE exam_id = $1)`,
			exam.ExamID,
		).Scan(&exists)
		if checkErr != nil {
			return store.NewStoreError("exam", "update", "existence check", checkErr)
		}
		if !exists {
			return store.ErrExamNotFound
		}
		log.Warn("exam update lost optimistic race",
			slog.String("exam_id", exam.ExamID.String()),
			slog.Int64("expected_version", expectedVersion))
		return store.ErrVersionMismatch
	}
	return nil
}

// UpdateState implements store.ExamStore.UpdateState.
func (s *ExamStore) UpdateState(ctx context.Context, id uuid.UUID, state domain.ExamState, errorDetail string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE exams
		SET state = $2, error_detail = $3, updated_at = $4
		WHERE exam_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, state, errorDetail, time.Now().UTC())
	if err != nil {
		log.Error("failed to update exam state",
			slog.String("exam_id", id.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("exam", "update_state", "exec failed", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("exam", "update_state", "rows affected", err)
	}
	if rows == 0 {
		return store.ErrExamNotFound
	}
	return nil
}

// WithTx implements store.ExamStore.WithTx.
func (s *ExamStore) WithTx(tx *sql.Tx) store.ExamStore {
	return &ExamStore{db: tx, logger: s.logger}
}

func encodeExamFields(exam *domain.Exam) (content, contributors []byte, err error) {
	if exam.Content != nil {
		content, err = json.Marshal(exam.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: marshal content: %v", store.ErrInvalidEntity, err)
		}
	}
	if exam.Contributors == nil {
		contributors = []byte("[]")
	} else {
		contributors, err = json.Marshal(exam.Contributors)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: marshal contributors: %v", store.ErrInvalidEntity, err)
		}
	}
	return content, contributors, nil
}

func decodeExamFields(exam *domain.Exam, content, contributors []byte) error {
	if len(content) > 0 {
		decoded, err := domain.DecodeExamContent(content)
		if err != nil {
			return fmt.Errorf("%w: stored content: %v", store.ErrInvalidEntity, err)
		}
		exam.Content = decoded
	}
	if len(contributors) > 0 {
		if err := json.Unmarshal(contributors, &exam.Contributors); err != nil {
			return fmt.Errorf("%w: stored contributors: %v", store.ErrInvalidEntity, err)
		}
	}
	return nil
}
