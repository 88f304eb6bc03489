package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/platform/logger"
	"github.com/examgen/examgen-api/internal/store"
	"github.com/examgen/examgen-api/internal/task"
)

// JobStore implements task.JobStore backed by PostgreSQL. The jobs
// table is what makes the in-memory queue safe to lose: everything in
// flight can be rebuilt from it.
type JobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewJobStore creates a PostgreSQL job store.
func NewJobStore(db store.DBTX, logger *slog.Logger) *JobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

var _ task.JobStore = (*JobStore)(nil)

// SaveJob implements task.JobStore.SaveJob.
func (s *JobStore) SaveJob(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO jobs (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		t.ID(),
		t.Type(),
		t.Payload(),
		t.Status(),
		now,
		now,
	)
	if err != nil {
		log.Error("failed to save job",
			slog.String("job_id", t.ID().String()),
			slog.String("job_type", t.Type()),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "save", "exec failed", mapError(err))
	}
	return nil
}

// UpdateJobStatus implements task.JobStore.UpdateJobStatus. Updating a
// job that no longer exists is a no-op.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), jobID)
	if err != nil {
		log.Error("failed to update job status",
			slog.String("job_id", jobID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "update_status", "exec failed", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "update_status", "rows affected", err)
	}
	if rows == 0 {
		log.Warn("no job found to update status",
			slog.String("job_id", jobID.String()))
	}
	return nil
}

// GetPendingJobs implements task.JobStore.GetPendingJobs.
func (s *JobStore) GetPendingJobs(ctx context.Context) ([]task.JobRecord, error) {
	return s.getJobsByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingJobs implements task.JobStore.GetProcessingJobs.
func (s *JobStore) GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]task.JobRecord, error) {
	return s.getJobsByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

func (s *JobStore) getJobsByStatus(ctx context.Context, status task.TaskStatus, olderThan time.Duration) ([]task.JobRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, type, payload, status, error_message, created_at, updated_at
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`
	args := []any{status}
	if olderThan > 0 {
		query = `
			SELECT id, type, payload, status, error_message, created_at, updated_at
			FROM jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs by status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("job", "list", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var records []task.JobRecord
	for rows.Next() {
		var record task.JobRecord
		var errorMessage sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.Type,
			&record.Payload,
			&record.Status,
			&errorMessage,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, store.NewStoreError("job", "list", "scan failed", err)
		}
		record.ErrorMessage = errorMessage.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", "list", "row iteration", err)
	}
	return records, nil
}

// WithTx implements task.JobStore.WithTx.
func (s *JobStore) WithTx(tx *sql.Tx) task.JobStore {
	return &JobStore{db: tx, logger: s.logger}
}
