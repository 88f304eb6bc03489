package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/store"
	"github.com/examgen/examgen-api/internal/task"
)

// TaskRunner defines the interface for handing persisted jobs to the
// worker pool.
type TaskRunner interface {
	// Enqueue adds an already-saved job to the processing queue.
	Enqueue(t task.Task) error
}

// ExamService provides exam intake and status lookup.
type ExamService interface {
	// EnqueueGeneration validates the job, assigns an exam ID when the
	// job carries none, enqueues the work, and returns the ID the
	// client should poll. The exam itself is built asynchronously.
	EnqueueGeneration(ctx context.Context, job *domain.GenerationJob) (uuid.UUID, error)

	// GetExam retrieves the current exam record, whatever its state.
	GetExam(ctx context.Context, examID uuid.UUID) (*domain.Exam, error)
}

type examServiceImpl struct {
	examStore store.ExamStore
	jobStore  task.JobStore
	inTx      store.TxRunner
	runner    TaskRunner
	taskDeps  task.ExamGenerationDeps
	logger    *slog.Logger
}

// NewExamService creates an ExamService. The exam stub and the job row
// are written through inTx so intake is atomic; taskDeps carries what
// the enqueued tasks need at execution time.
func NewExamService(
	examStore store.ExamStore,
	jobStore task.JobStore,
	inTx store.TxRunner,
	runner TaskRunner,
	taskDeps task.ExamGenerationDeps,
	logger *slog.Logger,
) (ExamService, error) {
	if examStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "examStore cannot be nil", Err: ErrNilDependency}
	}
	if jobStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "jobStore cannot be nil", Err: ErrNilDependency}
	}
	if inTx == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "transaction runner cannot be nil", Err: ErrNilDependency}
	}
	if runner == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "runner cannot be nil", Err: ErrNilDependency}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &examServiceImpl{
		examStore: examStore,
		jobStore:  jobStore,
		inTx:      inTx,
		runner:    runner,
		taskDeps:  taskDeps,
		logger:    logger.With("component", "exam_service"),
	}, nil
}

// EnqueueGeneration implements ExamService. For creation jobs a
// pending stub record is written before the job is queued, so the
// status endpoint has something to serve from the first poll.
func (s *examServiceImpl) EnqueueGeneration(
	ctx context.Context,
	job *domain.GenerationJob,
) (uuid.UUID, error) {
	if err := job.Validate(); err != nil {
		return uuid.Nil, NewServiceError("enqueue_generation", "invalid job", err)
	}

	var (
		examID uuid.UUID
		stub   *domain.Exam
	)
	if job.Mode() == domain.JobModeReplace {
		examID = *job.ExamID
	} else {
		examID = uuid.New()

		var err error
		stub, err = domain.NewExam(examID, job)
		if err != nil {
			return uuid.Nil, NewServiceError("enqueue_generation", "invalid job", err)
		}
	}

	generationTask, err := task.NewExamGenerationTask(examID, *job, s.taskDeps)
	if err != nil {
		return uuid.Nil, NewServiceError("enqueue_generation", "failed to build generation task", err)
	}

	// Stub and job row commit together: a pending exam with no job
	// behind it would poll forever.
	err = s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if stub != nil {
			if err := s.examStore.WithTx(tx).Put(ctx, stub); err != nil {
				return err
			}
		}
		return s.jobStore.WithTx(tx).SaveJob(ctx, generationTask)
	})
	if err != nil {
		s.logger.Error("failed to persist generation job",
			"exam_id", examID,
			"error", err)
		return uuid.Nil, NewServiceError("enqueue_generation", "failed to save job", err)
	}

	if err := s.runner.Enqueue(generationTask); err != nil {
		// The job row is committed; startup recovery will requeue it.
		s.logger.Error("failed to enqueue generation job",
			"exam_id", examID,
			"error", err)
		return uuid.Nil, NewServiceError("enqueue_generation", "failed to enqueue job", err)
	}

	s.logger.Info("generation job enqueued",
		"exam_id", examID,
		"mode", job.Mode(),
		"subject", job.Subject)
	return examID, nil
}

// GetExam implements ExamService.
func (s *examServiceImpl) GetExam(ctx context.Context, examID uuid.UUID) (*domain.Exam, error) {
	exam, err := s.examStore.GetByID(ctx, examID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("get_exam", "failed to retrieve exam", err)
	}
	return exam, nil
}
