package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/extract"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/retrieval"
	"github.com/examgen/examgen-api/internal/store"
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
		}
	]
}`

// fakeExamStore is an in-memory store.ExamStore with optimistic
// versioning, matching the behavior of the Postgres implementation.
type fakeExamStore struct {
	exams      map[uuid.UUID]*domain.Exam
	putErr     error
	updateErr  error
	putCalls   int
	conflictsN int // force this many version mismatches before success
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: make(map[uuid.UUID]*domain.Exam)}
}

func (s *fakeExamStore) Put(_ context.Context, exam *domain.Exam) error {
	s.putCalls++
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
	if s.updateErr != nil {
		return s.updateErr
	}
	existing, ok := s.exams[exam.ExamID]
	if !ok {
		return store.ErrExamNotFound
	}
	if s.conflictsN > 0 {
		s.conflictsN--
		existing.Version++
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

// fakeClient returns a canned completion or error.
type fakeClient struct {
	response string
	err      error
	prompts  []string
}

func (c *fakeClient) Complete(_ context.Context, prompt string, _ generation.Params) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

// fakeRetriever records queries and returns canned snippets.
type fakeRetriever struct {
	snippets []retrieval.Snippet
	err      error
	queries  []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]retrieval.Snippet, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.snippets, nil
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func creationJob() domain.GenerationJob {
	return domain.GenerationJob{
		Subject:      "ENG102",
		Class:        "grade 10",
		Semester:     "first",
		Duration:     "2 hours",
		TotalMarks:   "100",
		CreatedBy:    "teacher@example.com",
		CreationDate: "2025-06-01",
		Contributors: []string{"teacher@example.com"},
	}
}

func newTaskForTest(t *testing.T, job domain.GenerationJob, deps ExamGenerationDeps) (*ExamGenerationTask, uuid.UUID) {
	t.Helper()
	examID := uuid.New()
	if job.Mode() == domain.JobModeReplace {
		examID = *job.ExamID
	}
	task, err := NewExamGenerationTask(examID, job, deps)
	require.NoError(t, err)
	return task, examID
}

func TestExamGenerationTaskCreationSuccess(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: "```json\n" + validExamJSON + "\n```"}
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{
		{Text: "Past exam question about reading.", Score: 0.9},
	}}

	task, examID := newTaskForTest(t, creationJob(), ExamGenerationDeps{
		ExamStore:      examStore,
		Client:         client,
		Retriever:      retriever,
		RetrievalLimit: 10,
		Logger:         testLogger(),
	})

	err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, task.Status())

	exam, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStateReady, exam.State)
	require.NotNil(t, exam.Content)
	assert.Equal(t, "English Final Exam", exam.Content.Title)
	assert.Len(t, exam.Content.Sections, 1)
	assert.Zero(t, exam.NumRegenerations)
	assert.Empty(t, exam.ErrorDetail)

	// Retrieval query follows the "<class> <subject> questions" form
	// and its snippets land in the prompt.
	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "grade 10 ENG102 questions", retriever.queries[0])
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Past exam question about reading.")
}

func TestExamGenerationTaskStaticSubjectSkipsRetrieval(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: validExamJSON}
	retriever := &fakeRetriever{}

	job := creationJob()
	job.Subject = "ARAB101"

	task, _ := newTaskForTest(t, job, ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Retriever: retriever,
		Logger:    testLogger(),
	})

	require.NoError(t, task.Execute(context.Background()))
	assert.Empty(t, retriever.queries)
}

func TestExamGenerationTaskCustomizeSkipsRetrieval(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: validExamJSON}
	retriever := &fakeRetriever{}

	job := creationJob()
	job.Customize = true

	task, _ := newTaskForTest(t, job, ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Retriever: retriever,
		Logger:    testLogger(),
	})

	require.NoError(t, task.Execute(context.Background()))
	assert.Empty(t, retriever.queries)
}

func TestExamGenerationTaskRetrievalFailureIsNonFatal(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: validExamJSON}
	retriever := &fakeRetriever{err: errors.New("corpus unavailable")}

	task, examID := newTaskForTest(t, creationJob(), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Retriever: retriever,
		Logger:    testLogger(),
	})

	require.NoError(t, task.Execute(context.Background()))

	exam, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStateReady, exam.State)
}

func TestExamGenerationTaskCreationFailureRecordsFailedExam(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{err: fmt.Errorf("%w: upstream down", generation.ErrGenerationFailed)}

	task, examID := newTaskForTest(t, creationJob(), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	assert.Equal(t, TaskStatusFailed, task.Status())

	exam, getErr := examStore.GetByID(context.Background(), examID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExamStateFailed, exam.State)
	assert.Nil(t, exam.Content)
	assert.Contains(t, exam.ErrorDetail, "upstream down")
}

func TestExamGenerationTaskCreationUnparsableCompletion(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: "I could not produce an exam today."}

	task, examID := newTaskForTest(t, creationJob(), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrParse)

	exam, getErr := examStore.GetByID(context.Background(), examID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ExamStateFailed, exam.State)
}

func TestExamGenerationTaskCreationIsIdempotent(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: validExamJSON}

	job := creationJob()
	examID := uuid.New()
	deps := ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	}

	// Duplicate delivery of the same job converges on one ready record.
	for i := 0; i < 2; i++ {
		task, err := NewExamGenerationTask(examID, job, deps)
		require.NoError(t, err)
		require.NoError(t, task.Execute(context.Background()))
	}

	exam, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStateReady, exam.State)
	assert.Len(t, examStore.exams, 1)
}

func replacementJob(examID uuid.UUID) domain.GenerationJob {
	return domain.GenerationJob{
		ExamID:       &examID,
		Contributors: []string{"editor@example.com"},
	}
}

func seedReadyExam(t *testing.T, examStore *fakeExamStore) uuid.UUID {
	t.Helper()
	content, err := domain.DecodeExamContent([]byte(validExamJSON))
	require.NoError(t, err)

	examID := uuid.New()
	exam := &domain.Exam{
		ExamID:       examID,
		State:        domain.ExamStateReady,
		Content:      content,
		Class:        "grade 10",
		Subject:      "ENG102",
		Contributors: []string{"teacher@example.com"},
	}
	require.NoError(t, examStore.Put(context.Background(), exam))
	return examID
}

func TestExamGenerationTaskReplacementSuccess(t *testing.T) {
	examStore := newFakeExamStore()
	examID := seedReadyExam(t, examStore)

	updated := `{"title": "English Final Exam v2", "sections": []}`
	client := &fakeClient{response: updated}

	task, _ := newTaskForTest(t, replacementJob(examID), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	require.NoError(t, task.Execute(context.Background()))

	exam, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStateReady, exam.State)
	assert.Equal(t, "English Final Exam v2", exam.Content.Title)
	assert.Equal(t, 1, exam.NumRegenerations)
	assert.Equal(t, []string{"teacher@example.com", "editor@example.com"}, exam.Contributors)

	// The prompt embeds the prior content.
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "English Final Exam")
}

func TestExamGenerationTaskReplacementFailureLeavesRecordUntouched(t *testing.T) {
	examStore := newFakeExamStore()
	examID := seedReadyExam(t, examStore)
	before, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)

	client := &fakeClient{err: fmt.Errorf("%w: timeout", generation.ErrTransientFailure)}

	task, _ := newTaskForTest(t, replacementJob(examID), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	require.Error(t, task.Execute(context.Background()))

	after, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, before.Content.Title, after.Content.Title)
	assert.Equal(t, before.NumRegenerations, after.NumRegenerations)
	assert.Equal(t, before.Version, after.Version)
}

func TestExamGenerationTaskReplacementMissingExam(t *testing.T) {
	examStore := newFakeExamStore()
	client := &fakeClient{response: validExamJSON}

	task, _ := newTaskForTest(t, replacementJob(uuid.New()), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrExamNotFound)
	assert.Empty(t, client.prompts)
	assert.Empty(t, examStore.exams)
}

func TestExamGenerationTaskReplacementRetriesVersionConflict(t *testing.T) {
	examStore := newFakeExamStore()
	examID := seedReadyExam(t, examStore)
	examStore.conflictsN = 1

	client := &fakeClient{response: `{"title": "Retried", "sections": []}`}

	task, _ := newTaskForTest(t, replacementJob(examID), ExamGenerationDeps{
		ExamStore: examStore,
		Client:    client,
		Logger:    testLogger(),
	})

	require.NoError(t, task.Execute(context.Background()))

	exam, err := examStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, "Retried", exam.Content.Title)
	assert.Equal(t, 1, exam.NumRegenerations)
}

func TestNewExamGenerationTaskValidation(t *testing.T) {
	deps := ExamGenerationDeps{
		ExamStore: newFakeExamStore(),
		Client:    &fakeClient{},
		Logger:    testLogger(),
	}

	_, err := NewExamGenerationTask(uuid.Nil, creationJob(), deps)
	assert.ErrorIs(t, err, ErrEmptyExamID)

	_, err = NewExamGenerationTask(uuid.New(), domain.GenerationJob{}, deps)
	assert.ErrorIs(t, err, domain.ErrValidation)

	deps.Client = nil
	_, err = NewExamGenerationTask(uuid.New(), creationJob(), deps)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestExamGenerationTaskPayloadRoundTrip(t *testing.T) {
	deps := ExamGenerationDeps{
		ExamStore: newFakeExamStore(),
		Client:    &fakeClient{response: validExamJSON},
		Logger:    testLogger(),
	}

	original, examID := newTaskForTest(t, creationJob(), deps)

	factory, err := NewExamGenerationTaskFactory(deps)
	require.NoError(t, err)

	rebuilt, err := factory.FromRecord(JobRecord{
		ID:      original.ID(),
		Type:    TaskTypeExamGeneration,
		Payload: original.Payload(),
		Status:  TaskStatusPending,
	})
	require.NoError(t, err)

	assert.Equal(t, original.ID(), rebuilt.ID())
	assert.Equal(t, TaskTypeExamGeneration, rebuilt.Type())

	require.NoError(t, rebuilt.Execute(context.Background()))
	exam, err := deps.ExamStore.GetByID(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStateReady, exam.State)
}

func TestExamGenerationTaskFactoryRejectsUnknownType(t *testing.T) {
	factory, err := NewExamGenerationTaskFactory(ExamGenerationDeps{
		ExamStore: newFakeExamStore(),
		Client:    &fakeClient{},
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	_, err = factory.FromRecord(JobRecord{ID: uuid.New(), Type: "pdf_render"})
	assert.Error(t, err)
}
