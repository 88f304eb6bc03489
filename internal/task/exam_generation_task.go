package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/extract"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/retrieval"
	"github.com/examgen/examgen-api/internal/store"
)

// Errors returned when constructing an exam generation task.
var (
	ErrNilExamStore = errors.New("exam store cannot be nil")
	ErrNilClient    = errors.New("completion client cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
	ErrEmptyExamID  = errors.New("exam ID cannot be empty")
)

// maxUpdateAttempts bounds the refetch-and-retry loop when a
// replacement write loses the optimistic version race.
const maxUpdateAttempts = 3

// ExamGenerationDeps carries everything an exam generation task needs
// to execute. Retriever may be nil, in which case reference material is
// never fetched.
type ExamGenerationDeps struct {
	ExamStore store.ExamStore
	Client    generation.CompletionClient
	Retriever retrieval.Retriever

	// Params is the creation-tier completion configuration.
	Params generation.Params

	// RetrievalLimit caps how many reference snippets are fetched for a
	// creation job.
	RetrievalLimit int

	Logger *slog.Logger
}

func (d ExamGenerationDeps) validate() error {
	if d.ExamStore == nil {
		return ErrNilExamStore
	}
	if d.Client == nil {
		return ErrNilClient
	}
	if d.Logger == nil {
		return ErrNilLogger
	}
	return nil
}

// examGenerationPayload is the serialized form stored in the jobs
// table. It carries the full job so a recovered task can run without
// any other lookup.
type examGenerationPayload struct {
	ExamID uuid.UUID            `json:"examID"`
	Job    domain.GenerationJob `json:"job"`
}

// ExamGenerationTask implements Task for building a new exam or
// regenerating an existing one with the language model.
type ExamGenerationTask struct {
	id     uuid.UUID
	examID uuid.UUID
	job    domain.GenerationJob
	deps   ExamGenerationDeps
	logger *slog.Logger
	status TaskStatus
}

// NewExamGenerationTask creates an exam generation task. The exam ID
// must already be assigned by intake.
func NewExamGenerationTask(
	examID uuid.UUID,
	job domain.GenerationJob,
	deps ExamGenerationDeps,
) (*ExamGenerationTask, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if examID == uuid.Nil {
		return nil, ErrEmptyExamID
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	return &ExamGenerationTask{
		id:     uuid.New(),
		examID: examID,
		job:    job,
		deps:   deps,
		logger: deps.Logger.With(
			"task_type", TaskTypeExamGeneration,
			"exam_id", examID,
		),
		status: TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier.
func (t *ExamGenerationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier.
func (t *ExamGenerationTask) Type() string {
	return TaskTypeExamGeneration
}

// Payload returns the serialized task data.
func (t *ExamGenerationTask) Payload() []byte {
	data, err := json.Marshal(examGenerationPayload{
		ExamID: t.examID,
		Job:    t.job,
	})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status.
func (t *ExamGenerationTask) Status() TaskStatus {
	return t.status
}

// Execute runs the generation job. Creation failures persist a failed
// exam record so the poller sees a terminal state; replacement failures
// leave the existing record untouched.
func (t *ExamGenerationTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	var err error
	switch t.job.Mode() {
	case domain.JobModeReplace:
		err = t.executeReplacement(ctx)
	default:
		err = t.executeCreation(ctx)
	}

	if err != nil {
		t.status = TaskStatusFailed
		return err
	}
	t.status = TaskStatusCompleted
	return nil
}

// executeCreation builds a brand new exam document. The record is
// written as building first, then overwritten with the terminal
// outcome. Both writes are keyed overwrites, so a redelivered job
// simply converges on the same result.
func (t *ExamGenerationTask) executeCreation(ctx context.Context) error {
	exam, err := domain.NewExam(t.examID, &t.job)
	if err != nil {
		return fmt.Errorf("invalid creation job: %w", err)
	}

	exam.State = domain.ExamStateBuilding
	if err := t.deps.ExamStore.Put(ctx, exam); err != nil {
		return fmt.Errorf("failed to mark exam building: %w", err)
	}

	t.logger.Info("building exam",
		"subject", t.job.Subject,
		"class", t.job.Class,
		"customize", t.job.Customize)

	content, err := t.generateContent(ctx)
	if err != nil {
		t.recordFailure(ctx, exam, err)
		return err
	}

	exam.Content = content
	exam.State = domain.ExamStateReady
	exam.ErrorDetail = ""
	if err := t.deps.ExamStore.Put(ctx, exam); err != nil {
		return fmt.Errorf("failed to store generated exam: %w", err)
	}

	t.logger.Info("exam ready", "sections", len(content.Sections))
	return nil
}

// generateContent drives the model for a creation job: prompt, model
// call, extraction, typed decode.
func (t *ExamGenerationTask) generateContent(ctx context.Context) (*domain.ExamContent, error) {
	references := t.fetchReferences(ctx)

	prompt, err := generation.CreationPrompt(&t.job, references)
	if err != nil {
		return nil, fmt.Errorf("failed to build creation prompt: %w", err)
	}

	completion, err := t.deps.Client.Complete(ctx, prompt, t.deps.Params)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	content, err := extract.ExamContent(completion)
	if err != nil {
		return nil, fmt.Errorf("failed to extract exam from completion: %w", err)
	}
	return content, nil
}

// fetchReferences pulls reference snippets from past exams. Skipped
// for static subjects (their template is self-contained) and for
// customized jobs. Retrieval is best effort: a failure degrades the
// prompt, it does not fail the job.
func (t *ExamGenerationTask) fetchReferences(ctx context.Context) []string {
	if t.deps.Retriever == nil {
		return nil
	}
	if t.job.Customize || generation.StaticSubject(t.job.Subject) {
		return nil
	}

	query := fmt.Sprintf("%s %s questions", t.job.Class, t.job.Subject)
	snippets, err := t.deps.Retriever.Retrieve(ctx, query, t.deps.RetrievalLimit)
	if err != nil {
		t.logger.Warn("reference retrieval failed, continuing without references",
			"query", query,
			"error", err)
		return nil
	}

	t.logger.Debug("retrieved reference snippets", "count", len(snippets))
	return retrieval.Texts(snippets)
}

// executeReplacement regenerates an existing exam in place. The prior
// record is only touched by the single final write; any earlier failure
// leaves it exactly as it was.
func (t *ExamGenerationTask) executeReplacement(ctx context.Context) error {
	exam, err := t.deps.ExamStore.GetByID(ctx, t.examID)
	if err != nil {
		return fmt.Errorf("failed to load exam for regeneration: %w", err)
	}
	if exam.Content == nil {
		return fmt.Errorf("%w: exam has no content to regenerate", domain.ErrEmptyContent)
	}

	prompt, err := generation.ReplacementPrompt(exam.Content, t.job.Feedback)
	if err != nil {
		return fmt.Errorf("failed to build replacement prompt: %w", err)
	}

	completion, err := t.deps.Client.Complete(ctx, prompt, t.deps.Params)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	content, err := extract.ExamContent(completion)
	if err != nil {
		return fmt.Errorf("failed to extract exam from completion: %w", err)
	}

	// Apply on top of the freshest copy; retry when a concurrent
	// update wins the version race.
	for attempt := 0; ; attempt++ {
		exam.Content = content
		exam.State = domain.ExamStateReady
		exam.ErrorDetail = ""
		exam.NumRegenerations++
		exam.MergeContributors(t.job.Contributors)

		err = t.deps.ExamStore.Update(ctx, exam, exam.Version)
		if err == nil {
			t.logger.Info("exam regenerated",
				"num_regenerations", exam.NumRegenerations)
			return nil
		}
		if !errors.Is(err, store.ErrVersionMismatch) || attempt+1 >= maxUpdateAttempts {
			return fmt.Errorf("failed to store regenerated exam: %w", err)
		}

		exam, err = t.deps.ExamStore.GetByID(ctx, t.examID)
		if err != nil {
			return fmt.Errorf("failed to reload exam after version conflict: %w", err)
		}
	}
}

// recordFailure overwrites the building record with a terminal failed
// state so a poller stops instead of waiting forever.
func (t *ExamGenerationTask) recordFailure(ctx context.Context, exam *domain.Exam, cause error) {
	if err := t.deps.ExamStore.UpdateState(ctx, exam.ExamID, domain.ExamStateFailed, cause.Error()); err != nil {
		t.logger.Error("failed to record exam failure",
			"cause", cause.Error(),
			"error", err)
	}
}
