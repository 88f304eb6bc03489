package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/extract"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/store"
)

func newRegenerationServiceForTest(t *testing.T, examStore *fakeExamStore, client *fakeClient) RegenerationService {
	t.Helper()
	svc, err := NewRegenerationService(
		examStore,
		client,
		generation.Params{MaxOutputTokens: 4096, Temperature: 0.5, TopP: 0.9},
		generation.Params{MaxOutputTokens: 1024, Temperature: 0.5, TopP: 0.9},
		testLogger(),
	)
	require.NoError(t, err)
	return svc
}

func TestRegenerateFull(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	client := &fakeClient{responses: []string{`{"title": "Rebuilt Exam", "sections": []}`}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	content, err := svc.RegenerateFull(
		context.Background(),
		exam.ExamID,
		"make the reading passage harder",
		[]string{"editor@example.com"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Rebuilt Exam", content.Title)

	// Description and prior content both land in the prompt.
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "make the reading passage harder")
	assert.Contains(t, client.prompts[0], "English Final Exam")

	stored, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	assert.Equal(t, "Rebuilt Exam", stored.Content.Title)
	assert.Equal(t, 1, stored.NumRegenerations)
	assert.Contains(t, stored.Contributors, "editor@example.com")
}

func TestRegenerateFullRequiresDescription(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	client := &fakeClient{}
	svc := newRegenerationServiceForTest(t, examStore, client)

	_, err := svc.RegenerateFull(context.Background(), exam.ExamID, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, client.prompts)
}

func TestRegenerateFullMissingExam(t *testing.T) {
	svc := newRegenerationServiceForTest(t, newFakeExamStore(), &fakeClient{})

	_, err := svc.RegenerateFull(context.Background(), uuid.New(), "harder", nil)
	assert.ErrorIs(t, err, store.ErrExamNotFound)
}

func TestRegenerateFullRequiresSectionsInOutput(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	before := exam.Content.Title

	// Valid JSON object, but no sections array.
	client := &fakeClient{responses: []string{`{"title": "No sections here"}`}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	_, err := svc.RegenerateFull(context.Background(), exam.ExamID, "harder", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrParse)

	stored, getErr := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, getErr)
	assert.Equal(t, before, stored.Content.Title)
	assert.Zero(t, stored.NumRegenerations)
}

func sectionFeedback(index int, text string) domain.FeedbackItem {
	return domain.FeedbackItem{
		Section:  domain.SectionRef(index),
		Feedback: json.RawMessage(`"` + text + `"`),
	}
}

func TestRegenerateSectionsSplicesOnlyRequestedIndex(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)

	updatedSection := `{"part": 1, "title": "Harder Reading", "total_marks": 40, "content": {"passage": "Dense passage.", "questions": []}}`
	client := &fakeClient{responses: []string{updatedSection}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	siblingBefore, err := json.Marshal(exam.Content.Sections[1])
	require.NoError(t, err)

	content, err := svc.RegenerateSections(
		context.Background(),
		exam.ExamID,
		[]int{0},
		[]domain.FeedbackItem{sectionFeedback(0, "make it harder")},
		[]string{"editor@example.com"},
	)
	require.NoError(t, err)
	require.Len(t, content.Sections, 2)
	assert.Equal(t, "Harder Reading", content.Sections[0].Title)

	// The untouched sibling survives byte-identical.
	siblingAfter, err := json.Marshal(content.Sections[1])
	require.NoError(t, err)
	assert.JSONEq(t, string(siblingBefore), string(siblingAfter))

	stored, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	assert.Equal(t, "Harder Reading", stored.Content.Sections[0].Title)
	assert.Equal(t, 1, stored.NumRegenerations)
}

func TestRegenerateSectionsSkipsIndexWithoutFeedback(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	client := &fakeClient{}
	svc := newRegenerationServiceForTest(t, examStore, client)

	content, err := svc.RegenerateSections(
		context.Background(),
		exam.ExamID,
		[]int{0},
		nil,
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, exam.Content.Title, content.Title)

	// Explicit no-op: no model call, no write.
	assert.Empty(t, client.prompts)
	assert.Zero(t, examStore.updateN)

	stored, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	assert.Zero(t, stored.NumRegenerations)
}

func TestRegenerateSectionsValidatesIndexesBeforeModelCalls(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	client := &fakeClient{responses: []string{`{"title": "x"}`}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	// One valid index with feedback, one out of range: the whole
	// request aborts with no model call.
	_, err := svc.RegenerateSections(
		context.Background(),
		exam.ExamID,
		[]int{0, 5},
		[]domain.FeedbackItem{sectionFeedback(0, "harder")},
		nil,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, ErrSectionOutOfRange)
	assert.Empty(t, client.prompts)
}

func TestRegenerateSectionsRequiresIndexes(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	svc := newRegenerationServiceForTest(t, examStore, &fakeClient{})

	_, err := svc.RegenerateSections(context.Background(), exam.ExamID, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegenerateFullRetriesVersionConflict(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)
	examStore.conflictsN = 1

	client := &fakeClient{responses: []string{`{"title": "Retried", "sections": []}`}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	content, err := svc.RegenerateFull(context.Background(), exam.ExamID, "harder", nil)
	require.NoError(t, err)
	assert.Equal(t, "Retried", content.Title)

	stored, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.NumRegenerations)
	assert.Equal(t, 2, examStore.updateN)
}

func TestRegenerateSectionsRetryKeepsConcurrentEdits(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)

	// A concurrent writer edits the sibling section between our read
	// and our write.
	examStore.conflictsN = 1
	examStore.onConflict = func(e *domain.Exam) {
		sections := make([]domain.Section, len(e.Content.Sections))
		copy(sections, e.Content.Sections)
		sections[1].Title = "Edited Elsewhere"
		edited := *e.Content
		edited.Sections = sections
		e.Content = &edited
	}

	updatedSection := `{"part": 1, "title": "Harder Reading", "total_marks": 40, "content": {"passage": "Dense passage.", "questions": []}}`
	client := &fakeClient{responses: []string{updatedSection}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	content, err := svc.RegenerateSections(
		context.Background(),
		exam.ExamID,
		[]int{0},
		[]domain.FeedbackItem{sectionFeedback(0, "make it harder")},
		nil,
	)
	require.NoError(t, err)

	// The retry re-splices onto the refetched tree: our regenerated
	// section lands and the concurrent edit to the sibling survives.
	require.Len(t, content.Sections, 2)
	assert.Equal(t, "Harder Reading", content.Sections[0].Title)
	assert.Equal(t, "Edited Elsewhere", content.Sections[1].Title)

	stored, err := examStore.GetByID(context.Background(), exam.ExamID)
	require.NoError(t, err)
	assert.Equal(t, "Edited Elsewhere", stored.Content.Sections[1].Title)
	assert.Equal(t, 2, examStore.updateN)

	// The model ran once; only the commit was retried.
	assert.Len(t, client.prompts, 1)
}

func TestRegenerateSectionsConflictRemovingSectionFails(t *testing.T) {
	examStore := newFakeExamStore()
	exam := seedReadyExam(t, examStore)

	// The concurrent writer deletes the section we regenerated.
	examStore.conflictsN = 1
	examStore.onConflict = func(e *domain.Exam) {
		edited := *e.Content
		edited.Sections = edited.Sections[:1]
		e.Content = &edited
	}

	updatedSection := `{"part": 2, "title": "Harder Vocabulary", "total_marks": 60, "content": {"questions": []}}`
	client := &fakeClient{responses: []string{updatedSection}}
	svc := newRegenerationServiceForTest(t, examStore, client)

	_, err := svc.RegenerateSections(
		context.Background(),
		exam.ExamID,
		[]int{1},
		[]domain.FeedbackItem{sectionFeedback(1, "harder")},
		nil,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrVersionMismatch)
}
