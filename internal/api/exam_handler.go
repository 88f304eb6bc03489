package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/api/shared"
	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/service"
)

// ExamHandler handles the exam HTTP endpoints.
type ExamHandler struct {
	examService  service.ExamService
	regeneration service.RegenerationService
}

// NewExamHandler creates an ExamHandler.
func NewExamHandler(
	examService service.ExamService,
	regeneration service.RegenerationService,
) *ExamHandler {
	return &ExamHandler{
		examService:  examService,
		regeneration: regeneration,
	}
}

// CreateExam handles POST /api/exams. The exam is built in the
// background; the response carries the ID to poll.
func (h *ExamHandler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req CreateExamRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	examID, err := h.examService.EnqueueGeneration(r.Context(), req.ToJob())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateExamResponse{
		Message: "Exam generation request accepted",
		ExamID:  examID,
	})
}

// GetExam handles GET /api/exams/{id}. It serves the current record in
// whatever state it is in, which is what the frontend poller consumes.
func (h *ExamHandler) GetExam(w http.ResponseWriter, r *http.Request) {
	examID, err := parseExamID(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
		return
	}

	exam, err := h.examService.GetExam(r.Context(), examID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, examToResponse(exam))
}

// RegenerateExam handles POST /api/exams/regenerate: synchronous
// whole-exam regeneration from a free-text description.
func (h *ExamHandler) RegenerateExam(w http.ResponseWriter, r *http.Request) {
	var req RegenerateExamRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: examID and description are required")
		return
	}

	content, err := h.regeneration.RegenerateFull(
		r.Context(), req.ExamID, req.Description, req.Contributors)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RegenerateResponse{UpdatedExamContent: content})
}

// RegenerateSections handles POST /api/exams/regenerate/sections:
// synchronous scoped regeneration of selected sections.
func (h *ExamHandler) RegenerateSections(w http.ResponseWriter, r *http.Request) {
	var req RegenerateSectionsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: examID and at least one section index are required")
		return
	}

	content, err := h.regeneration.RegenerateSections(
		r.Context(), req.ExamID, req.Sections, req.Feedback, req.Contributors)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RegenerateResponse{UpdatedExamContent: content})
}

func parseExamID(raw string) (uuid.UUID, error) {
	examID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidID, err)
	}
	return examID, nil
}
