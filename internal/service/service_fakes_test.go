package service

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/store"
	"github.com/examgen/examgen-api/internal/task"
)

const validExamJSON = `{
	"title": "English Final Exam",
	"total_marks": "100",
	"time": "2 hours",
	"sections": [
		{
			"part": 1,
			"title": "Reading Comprehension",
			"total_marks": 40,
			"content": {
				"passage": "A short passage.",
				"questions": [
					{"question": "What is the main idea?", "answer": "The main idea."}
				]
			}
		},
		{
			"part": 2,
			"title": "Vocabulary",
			"total_marks": 60,
			"content": {
				"questions": {
					"vocabulary-matching": [
						{"word": "swift", "definition": "moving fast"}
					]
				}
			}
		}
	]
}`

// fakeExamStore is an in-memory store.ExamStore with optimistic
// versioning.
type fakeExamStore struct {
	exams      map[uuid.UUID]*domain.Exam
	putErr     error
	updateN    int
	conflictsN int

	// onConflict mutates the stored exam when a forced conflict fires,
	// standing in for the concurrent writer that won the race.
	onConflict func(*domain.Exam)
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: make(map[uuid.UUID]*domain.Exam)}
}

func (s *fakeExamStore) Put(_ context.Context, exam *domain.Exam) error {
	if s.putErr != nil {
		return s.putErr
	}
	copied := *exam
	if existing, ok := s.exams[exam.ExamID]; ok {
		copied.Version = existing.Version + 1
	} else {
		copied.Version = 1
	}
	s.exams[exam.ExamID] = &copied
	return nil
}

func (s *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Exam, error) {
	exam, ok := s.exams[id]
	if !ok {
		return nil, store.ErrExamNotFound
	}
	copied := *exam
	return &copied, nil
}

func (s *fakeExamStore) Update(_ context.Context, exam *domain.Exam, expectedVersion int64) error {
	s.updateN++
	existing, ok := s.exams[exam.ExamID]
	if !ok {
		return store.ErrExamNotFound
	}
	if s.conflictsN > 0 {
		s.conflictsN--
		existing.Version++
		if s.onConflict != nil {
			s.onConflict(existing)
		}
		return store.ErrVersionMismatch
	}
	if existing.Version != expectedVersion {
		return store.ErrVersionMismatch
	}
	copied := *exam
	copied.Version = existing.Version + 1
	s.exams[exam.ExamID] = &copied
	return nil
}

func (s *fakeExamStore) UpdateState(_ context.Context, id uuid.UUID, state domain.ExamState, errorDetail string) error {
	exam, ok := s.exams[id]
	if !ok {
		return store.ErrExamNotFound
	}
	exam.State = state
	exam.ErrorDetail = errorDetail
	return nil
}

func (s *fakeExamStore) WithTx(_ *sql.Tx) store.ExamStore { return s }

// fakeClient returns canned completions in order, then repeats the
// last one.
type fakeClient struct {
	responses []string
	err       error
	prompts   []string
}

func (c *fakeClient) Complete(_ context.Context, prompt string, _ generation.Params) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", nil
	}
	response := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return response, nil
}

// fakeJobStore records saved jobs.
type fakeJobStore struct {
	saved   []task.Task
	saveErr error
}

func (s *fakeJobStore) SaveJob(_ context.Context, t task.Task) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, t)
	return nil
}

func (s *fakeJobStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ task.TaskStatus, _ string) error {
	return nil
}

func (s *fakeJobStore) GetPendingJobs(_ context.Context) ([]task.JobRecord, error) {
	return nil, nil
}

func (s *fakeJobStore) GetProcessingJobs(_ context.Context, _ time.Duration) ([]task.JobRecord, error) {
	return nil, nil
}

func (s *fakeJobStore) WithTx(_ *sql.Tx) task.JobStore { return s }

// passthroughTx runs the function directly, standing in for a real
// transaction boundary.
func passthroughTx(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

// fakeRunner records enqueued tasks without executing them.
type fakeRunner struct {
	enqueued []task.Task
	err      error
}

func (r *fakeRunner) Enqueue(t task.Task) error {
	if r.err != nil {
		return r.err
	}
	r.enqueued = append(r.enqueued, t)
	return nil
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func seedReadyExam(t *testing.T, examStore *fakeExamStore) *domain.Exam {
	t.Helper()
	content, err := domain.DecodeExamContent([]byte(validExamJSON))
	require.NoError(t, err)

	exam := &domain.Exam{
		ExamID:       uuid.New(),
		State:        domain.ExamStateReady,
		Content:      content,
		Class:        "grade 10",
		Subject:      "ENG102",
		Contributors: []string{"teacher@example.com"},
	}
	require.NoError(t, examStore.Put(context.Background(), exam))

	seeded, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	return seeded
}
