package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExamState represents the lifecycle state of a generated exam.
type ExamState string

// Possible exam state values. An exam moves pending -> building ->
// ready or failed. Regeneration of a ready exam either succeeds (stays
// ready with new content) or leaves the record untouched.
const (
	ExamStatePending  ExamState = "pending"
	ExamStateBuilding ExamState = "building"
	ExamStateReady    ExamState = "ready"
	ExamStateFailed   ExamState = "failed"
)

// Common validation errors for Exam
var (
	ErrEmptyExamID        = errors.New("exam ID cannot be empty")
	ErrEmptyExamSubject   = errors.New("exam subject cannot be empty")
	ErrEmptyExamClass     = errors.New("exam class cannot be empty")
	ErrInvalidExamState   = errors.New("invalid exam state")
	ErrMissingExamContent = errors.New("ready exam must have content")
)

// Exam is the durable record for a generated exam document, keyed by
// ExamID. Content is nil until the exam reaches the ready state.
// Version is an optimistic concurrency stamp: every content update
// carries the version it read, and the store rejects stale writes.
type Exam struct {
	ExamID           uuid.UUID    `json:"examID"`
	State            ExamState    `json:"examState"`
	Content          *ExamContent `json:"examContent,omitempty"`
	Class            string       `json:"examClass"`
	Subject          string       `json:"examSubject"`
	Semester         string       `json:"examSemester"`
	Duration         string       `json:"examDuration"`
	TotalMarks       string       `json:"examMark"`
	CreatedBy        string       `json:"createdBy"`
	CreationDate     string       `json:"creationDate"`
	Contributors     []string     `json:"contributors"`
	NumRegenerations int          `json:"numOfRegenerations"`
	ErrorDetail      string       `json:"errorDetail,omitempty"`
	Version          int64        `json:"-"`
	CreatedAt        time.Time    `json:"-"`
	UpdatedAt        time.Time    `json:"-"`
}

// NewExam creates a pending exam record from a generation job. The
// exam ID must already be assigned (intake generates one when the job
// carries none).
func NewExam(examID uuid.UUID, job *GenerationJob) (*Exam, error) {
	now := time.Now().UTC()
	exam := &Exam{
		ExamID:       examID,
		State:        ExamStatePending,
		Class:        job.Class,
		Subject:      job.Subject,
		Semester:     job.Semester,
		Duration:     job.Duration,
		TotalMarks:   job.TotalMarks,
		CreatedBy:    job.CreatedBy,
		CreationDate: job.CreationDate,
		Contributors: job.Contributors,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := exam.Validate(); err != nil {
		return nil, err
	}
	return exam, nil
}

// Validate checks the exam invariants. A ready exam must carry a
// well-formed section tree.
func (e *Exam) Validate() error {
	if e.ExamID == uuid.Nil {
		return ErrEmptyExamID
	}
	if e.Subject == "" {
		return ErrEmptyExamSubject
	}
	if e.Class == "" {
		return ErrEmptyExamClass
	}
	if !isValidExamState(e.State) {
		return ErrInvalidExamState
	}
	if e.State == ExamStateReady && e.Content == nil {
		return ErrMissingExamContent
	}
	return nil
}

// Terminal reports whether the state is one a status poller stops on.
func (s ExamState) Terminal() bool {
	return s == ExamStateReady || s == ExamStateFailed
}

// MergeContributors adds the given contributors to the exam, keeping
// existing entries first and dropping duplicates.
func (e *Exam) MergeContributors(contributors []string) {
	seen := make(map[string]struct{}, len(e.Contributors))
	for _, c := range e.Contributors {
		seen[c] = struct{}{}
	}
	for _, c := range contributors {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		e.Contributors = append(e.Contributors, c)
	}
}

func isValidExamState(s ExamState) bool {
	switch s {
	case ExamStatePending, ExamStateBuilding, ExamStateReady, ExamStateFailed:
		return true
	default:
		return false
	}
}
