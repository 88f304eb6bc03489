// Package api contains the HTTP handlers and their request/response
// models.
package api

import (
	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
)

// CreateExamRequest is the body of POST /api/exams. It is the
// generation job as submitted by the frontend; an examID turns the
// request into queued regeneration of that exam.
type CreateExamRequest struct {
	Subject      string                `json:"subject"`
	Class        string                `json:"class"`
	Semester     string                `json:"semester"`
	Duration     string                `json:"duration"`
	TotalMarks   string                `json:"total_mark"`
	CreatedBy    string                `json:"created_by"`
	CreationDate string                `json:"creation_date"`
	Contributors []string              `json:"contributors"`
	Customize    bool                  `json:"customize"`
	ExamID       *uuid.UUID            `json:"examID,omitempty"`
	Feedback     []domain.FeedbackItem `json:"feedback,omitempty"`
}

// ToJob converts the request into a domain generation job.
func (r CreateExamRequest) ToJob() *domain.GenerationJob {
	return &domain.GenerationJob{
		Subject:      r.Subject,
		Class:        r.Class,
		Semester:     r.Semester,
		Duration:     r.Duration,
		TotalMarks:   r.TotalMarks,
		CreatedBy:    r.CreatedBy,
		CreationDate: r.CreationDate,
		Contributors: r.Contributors,
		Customize:    r.Customize,
		ExamID:       r.ExamID,
		Feedback:     r.Feedback,
	}
}

// CreateExamResponse is the 202 body of POST /api/exams.
type CreateExamResponse struct {
	Message string    `json:"message"`
	ExamID  uuid.UUID `json:"examID"`
}

// ExamResponse is the document DTO served by GET /api/exams/{id}.
type ExamResponse struct {
	ExamID           uuid.UUID           `json:"examID"`
	ExamState        domain.ExamState    `json:"examState"`
	ExamContent      *domain.ExamContent `json:"examContent,omitempty"`
	ExamClass        string              `json:"examClass"`
	ExamSubject      string              `json:"examSubject"`
	ExamSemester     string              `json:"examSemester"`
	ExamDuration     string              `json:"examDuration"`
	ExamMark         string              `json:"examMark"`
	CreatedBy        string              `json:"createdBy"`
	CreationDate     string              `json:"creationDate"`
	Contributors     []string            `json:"contributors"`
	NumRegenerations int                 `json:"numOfRegenerations"`
	ErrorDetail      string              `json:"errorDetail,omitempty"`
}

func examToResponse(exam *domain.Exam) ExamResponse {
	return ExamResponse{
		ExamID:           exam.ExamID,
		ExamState:        exam.State,
		ExamContent:      exam.Content,
		ExamClass:        exam.Class,
		ExamSubject:      exam.Subject,
		ExamSemester:     exam.Semester,
		ExamDuration:     exam.Duration,
		ExamMark:         exam.TotalMarks,
		CreatedBy:        exam.CreatedBy,
		CreationDate:     exam.CreationDate,
		Contributors:     exam.Contributors,
		NumRegenerations: exam.NumRegenerations,
		ErrorDetail:      exam.ErrorDetail,
	}
}

// RegenerateExamRequest is the body of POST /api/exams/regenerate.
type RegenerateExamRequest struct {
	ExamID       uuid.UUID `json:"examID" validate:"required"`
	Description  string    `json:"description" validate:"required,min=1"`
	Contributors []string  `json:"contributors"`
}

// RegenerateSectionsRequest is the body of
// POST /api/exams/regenerate/sections. Section indexes are zero-based
// positions in the exam's sections array; feedback entries are matched
// by the "section-<index>" convention.
type RegenerateSectionsRequest struct {
	ExamID       uuid.UUID             `json:"examID" validate:"required"`
	Sections     []int                 `json:"sectionIndexes" validate:"required,min=1"`
	Feedback     []domain.FeedbackItem `json:"feedback"`
	Contributors []string              `json:"contributors"`
}

// RegenerateResponse is the 200 body of both regeneration endpoints.
type RegenerateResponse struct {
	UpdatedExamContent *domain.ExamContent `json:"updatedExamContent"`
}
