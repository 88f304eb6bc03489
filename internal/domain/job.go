package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Job validation errors
var (
	ErrJobMissingFields = errors.New(
		"job must carry subject and class for creation, or an examID for regeneration",
	)
)

// JobMode distinguishes the two kinds of queued work.
type JobMode string

const (
	// JobModeCreate builds a brand new exam.
	JobModeCreate JobMode = "create"

	// JobModeReplace regenerates an existing exam in place.
	JobModeReplace JobMode = "replace"
)

// GenerationJob is the transient message enqueued by intake and
// consumed by the worker. ExamID present means regeneration by
// replacement; absent means creation.
type GenerationJob struct {
	Subject      string         `json:"subject"`
	Class        string         `json:"class"`
	Semester     string         `json:"semester"`
	Duration     string         `json:"duration"`
	TotalMarks   string         `json:"total_mark"`
	CreatedBy    string         `json:"created_by"`
	CreationDate string         `json:"creation_date"`
	Contributors []string       `json:"contributors"`
	Customize    bool           `json:"customize"`
	ExamID       *uuid.UUID     `json:"examID,omitempty"`
	Feedback     []FeedbackItem `json:"feedback,omitempty"`
}

// FeedbackItem ties reviewer feedback to a section by the positional
// "section-<index>" naming convention. Feedback may be a plain string
// or a structured object; it is kept raw and stringified when embedded
// in a prompt.
type FeedbackItem struct {
	Section  string          `json:"section"`
	Feedback json.RawMessage `json:"feedback"`
}

// Mode reports whether the job creates a new exam or replaces an
// existing one.
func (j *GenerationJob) Mode() JobMode {
	if j.ExamID != nil && *j.ExamID != uuid.Nil {
		return JobModeReplace
	}
	return JobModeCreate
}

// Validate checks the mode-dependent required fields. A payload with
// neither creation fields nor an examID is rejected before enqueue.
func (j *GenerationJob) Validate() error {
	switch j.Mode() {
	case JobModeReplace:
		return nil
	default:
		if j.Subject == "" || j.Class == "" {
			return fmt.Errorf("%w: %w", ErrValidation, ErrJobMissingFields)
		}
		return nil
	}
}

// FeedbackText renders the feedback value as plain text for prompt
// embedding: strings are unquoted, objects are kept as compact JSON.
func (f FeedbackItem) FeedbackText() string {
	var s string
	if err := json.Unmarshal(f.Feedback, &s); err == nil {
		return s
	}
	return string(f.Feedback)
}

// SectionRef builds the positional feedback name for a section index.
func SectionRef(index int) string {
	return "section-" + strconv.Itoa(index)
}

// FindFeedback locates the feedback item named "section-<index>".
// The second return is false when no item matches, which scoped
// regeneration treats as an explicit no-op for that index.
func FindFeedback(items []FeedbackItem, index int) (FeedbackItem, bool) {
	ref := SectionRef(index)
	for _, item := range items {
		if strings.EqualFold(item.Section, ref) {
			return item, true
		}
	}
	return FeedbackItem{}, false
}
