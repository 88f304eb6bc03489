package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/examgen/examgen-api/internal/domain"
)

// subjectArabic selects the fixed Arabic template and disables
// retrieval regardless of the customize flag.
const subjectArabic = "ARAB101"

// arabicPrompt is the static template used for the Arabic subject
// family. It carries its own reference structure, so no retrieval
// context is appended.
const arabicPrompt = `أنت خبير في إعداد الامتحانات المدرسية.
Generate a complete Arabic language exam as a single JSON object.

The exam must contain a "title", "total_marks", "time", and an ordered
"sections" array. Each section has "part", "title", "total_marks", and
either a "content" block or a "subsections" array. A content block may
hold a "passage", "questions" (a plain array, or an object keyed by
"multiple-choice", "true-false", and "vocabulary-matching"), and
"exercises".

Include sections for reading comprehension of an Arabic passage,
grammar (النحو والصرف), vocabulary, and composition (التعبير).

The type of your response must be a single JSON object containing the
exam only. Do not include any explanation outside the JSON.`

// generalPromptText is the template used for every other subject. The
// worker may append retrieved reference material after execution.
const generalPromptText = `You are an expert exam author for school assessments.
Generate a complete {{.Subject}} exam for {{.Class}}{{if .Semester}}, semester {{.Semester}}{{end}} as a single JSON object.
{{- if .Duration}}
The exam duration is {{.Duration}}.{{end}}
{{- if .TotalMarks}}
The exam total is {{.TotalMarks}} marks; section marks must add up to this total.{{end}}

The exam must contain a "title", "total_marks", "time", and an ordered
"sections" array. Each section has "part", "title", "total_marks", and
either a "content" block or a "subsections" array. A content block may
hold a "passage", "questions" (a plain array, or an object keyed by
"multiple-choice", "true-false", and "vocabulary-matching"), and
"exercises".

Cover reading comprehension, vocabulary, grammar or problem solving,
and a writing task appropriate to the subject. Vary question difficulty.

The type of your response must be a single JSON object containing the
exam only. Do not include any explanation outside the JSON.`

var generalPrompt = template.Must(template.New("general").Parse(generalPromptText))

// promptData feeds the general creation template.
type promptData struct {
	Subject    string
	Class      string
	Semester   string
	Duration   string
	TotalMarks string
}

// StaticSubject reports whether the subject uses a fixed template,
// which also means retrieval is skipped entirely.
func StaticSubject(subject string) bool {
	return strings.EqualFold(subject, subjectArabic)
}

// CreationPrompt builds the prompt for a brand new exam. For static
// subjects the fixed template is returned as-is; otherwise the general
// template is executed and any retrieved reference snippets are
// appended as contextual material.
func CreationPrompt(job *domain.GenerationJob, references []string) (string, error) {
	if StaticSubject(job.Subject) {
		return arabicPrompt, nil
	}

	var b strings.Builder
	err := generalPrompt.Execute(&b, promptData{
		Subject:    job.Subject,
		Class:      job.Class,
		Semester:   job.Semester,
		Duration:   job.Duration,
		TotalMarks: job.TotalMarks,
	})
	if err != nil {
		return "", fmt.Errorf("execute creation prompt template: %w", err)
	}

	if len(references) > 0 {
		b.WriteString("\n\nRefer to the following relevant information from past exams:\n")
		b.WriteString(strings.Join(references, "\n"))
	}
	return b.String(), nil
}

// ReplacementPrompt builds the prompt for queued whole-exam
// regeneration. With feedback, the model is asked to apply it; without,
// it is asked for a generic structure-and-variety pass that preserves
// the question count.
func ReplacementPrompt(content *domain.ExamContent, feedback []domain.FeedbackItem) (string, error) {
	current, err := marshalIndented(content)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(feedback) > 0 {
		b.WriteString("Update the following exam based on the feedback provided.\n")
		b.WriteString("Ensure that all related information is recalculated to maintain consistency.\n\n")
		b.WriteString("Feedback:\n")
		for _, item := range feedback {
			b.WriteString("- ")
			b.WriteString(item.Section)
			b.WriteString(": ")
			b.WriteString(item.FeedbackText())
			b.WriteString("\n")
		}
	} else {
		b.WriteString("Regenerate the following exam to improve its structure, variety, and balance.\n")
		b.WriteString("Maintain the original structure and question count unless specified otherwise.\n")
	}
	b.WriteString("\nCurrent Exam Content:\n")
	b.WriteString(current)
	b.WriteString("\n\nThe type of your response must be a JSON object containing the updated exam only. Ensure all changes are reflected accurately.")
	return b.String(), nil
}

// FullRegenerationPrompt builds the prompt for the synchronous
// whole-exam regeneration driven by a free-text description.
func FullRegenerationPrompt(content *domain.ExamContent, description string) (string, error) {
	current, err := marshalIndented(content)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Update the following exam according to the user's description.\n")
	b.WriteString("Ensure that all related information is recalculated to maintain consistency.\n\n")
	b.WriteString("User's description:\n")
	b.WriteString(description)
	b.WriteString("\n\nCurrent Exam Content:\n")
	b.WriteString(current)
	b.WriteString("\n\nThe type of your response must be a JSON object containing the updated exam only, with a \"sections\" array.")
	return b.String(), nil
}

// SectionPrompt builds the focused prompt for scoped regeneration of a
// single section. The model must return only the updated section
// object so the caller can splice it back without touching siblings.
func SectionPrompt(section *domain.Section, feedback string) (string, error) {
	target, err := marshalIndented(section)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an exam editor. Apply the user's feedback to the following section only.\n\n")
	b.WriteString("Section to be modified (JSON):\n")
	b.WriteString(target)
	b.WriteString("\n\nUser's feedback:\n")
	b.WriteString(feedback)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("- Apply the feedback precisely to this section.\n")
	b.WriteString("- Do NOT modify any other part of the exam.\n")
	b.WriteString("- Return ONLY the updated section object as valid JSON.")
	return b.String(), nil
}

func marshalIndented(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt content: %w", err)
	}
	return string(data), nil
}
