package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Content decode errors
var (
	// ErrInvalidContent is returned when a section tree fails to decode.
	ErrInvalidContent = errors.New("invalid exam content")

	// ErrMissingSections is returned when a decoded document carries no
	// sections array.
	ErrMissingSections = errors.New("exam content must contain a sections array")
)

// ExamContent is the root of the section tree generated by the
// completion model.
type ExamContent struct {
	Title      string    `json:"title"`
	TotalMarks string    `json:"total_marks,omitempty"`
	Time       string    `json:"time,omitempty"`
	Sections   []Section `json:"sections"`
}

// Section is one numbered part of the exam. A section holds either a
// flat content block or an ordered list of subsections, never both.
type Section struct {
	Part        json.Number   `json:"part,omitempty"`
	Title       string        `json:"title"`
	TotalMarks  json.Number   `json:"total_marks,omitempty"`
	Subsections []Subsection  `json:"subsections,omitempty"`
	Content     *ContentBlock `json:"content,omitempty"`
}

// Subsection is a lettered or numbered slice of a section.
type Subsection struct {
	Subsection string        `json:"subsection,omitempty"`
	Title      string        `json:"title"`
	Marks      json.Number   `json:"marks,omitempty"`
	Content    *ContentBlock `json:"content,omitempty"`
}

// ContentBlock holds the actual exam material of a section or
// subsection: an optional reading passage, questions, and exercises.
type ContentBlock struct {
	Passage   string       `json:"passage,omitempty"`
	Questions *QuestionSet `json:"questions,omitempty"`
	Exercises []Exercise   `json:"exercises,omitempty"`
}

// QuestionSet is a discriminated container for the two shapes the
// model emits: a plain ordered list of questions, or keyed groups
// (multiple-choice, true-false, vocabulary-matching).
type QuestionSet struct {
	List    []Question
	Grouped *QuestionGroups
}

// QuestionGroups holds questions organized by kind.
type QuestionGroups struct {
	MultipleChoice     []Question `json:"multiple-choice,omitempty"`
	TrueFalse          []Question `json:"true-false,omitempty"`
	VocabularyMatching []Question `json:"vocabulary-matching,omitempty"`
}

// Question is a single question variant. Word/Definition are only set
// for vocabulary-matching entries, WordLimit only for writing prompts.
type Question struct {
	Question   string      `json:"question,omitempty"`
	Options    []string    `json:"options,omitempty"`
	Answer     string      `json:"answer,omitempty"`
	WordLimit  json.Number `json:"word_limit,omitempty"`
	Word       string      `json:"word,omitempty"`
	Definition string      `json:"definition,omitempty"`
}

// Exercise is a standalone task such as a grammar drill.
type Exercise struct {
	Question    string   `json:"question,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer,omitempty"`
}

// UnmarshalJSON decodes either question shape. An array becomes a
// plain list; an object becomes keyed groups. Anything else is
// ErrInvalidContent.
func (q *QuestionSet) UnmarshalJSON(data []byte) error {
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		var list []Question
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("%w: questions list: %v", ErrInvalidContent, err)
		}
		q.List = list
		q.Grouped = nil
		return nil
	case '{':
		var groups QuestionGroups
		if err := json.Unmarshal(data, &groups); err != nil {
			return fmt.Errorf("%w: question groups: %v", ErrInvalidContent, err)
		}
		q.List = nil
		q.Grouped = &groups
		return nil
	default:
		return fmt.Errorf("%w: questions must be an array or an object", ErrInvalidContent)
	}
}

// MarshalJSON writes the set back in the shape it was decoded from.
func (q QuestionSet) MarshalJSON() ([]byte, error) {
	if q.Grouped != nil {
		return json.Marshal(q.Grouped)
	}
	return json.Marshal(q.List)
}

// DecodeExamContent decodes raw JSON into a validated section tree.
// The document must contain a sections array; decode failures are
// typed, never a silent pass-through.
func DecodeExamContent(data []byte) (*ExamContent, error) {
	var content ExamContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if content.Sections == nil {
		return nil, ErrMissingSections
	}
	return &content, nil
}

// DecodeSection decodes raw JSON into a single section, used when a
// scoped regeneration returns one section object.
func DecodeSection(data []byte) (*Section, error) {
	var section Section
	if err := json.Unmarshal(data, &section); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return &section, nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
