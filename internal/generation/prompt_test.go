package generation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgen/examgen-api/internal/domain"
)

func TestCreationPrompt(t *testing.T) {
	t.Run("static subject ignores references", func(t *testing.T) {
		job := &domain.GenerationJob{Subject: "ARAB101", Class: "Grade 9"}
		prompt, err := CreationPrompt(job, []string{"old exam snippet"})
		require.NoError(t, err)
		assert.Equal(t, arabicPrompt, prompt)
		assert.NotContains(t, prompt, "old exam snippet")
	})

	t.Run("static subject match is case-insensitive", func(t *testing.T) {
		assert.True(t, StaticSubject("arab101"))
		assert.False(t, StaticSubject("ENG102"))
	})

	t.Run("general subject embeds job fields", func(t *testing.T) {
		job := &domain.GenerationJob{
			Subject:    "ENG102",
			Class:      "Grade 10",
			Semester:   "2",
			Duration:   "2 hours",
			TotalMarks: "100",
		}
		prompt, err := CreationPrompt(job, nil)
		require.NoError(t, err)
		assert.Contains(t, prompt, "ENG102")
		assert.Contains(t, prompt, "Grade 10")
		assert.Contains(t, prompt, "semester 2")
		assert.Contains(t, prompt, "100 marks")
		assert.NotContains(t, prompt, "relevant information from past exams")
	})

	t.Run("references are appended for general subjects", func(t *testing.T) {
		job := &domain.GenerationJob{Subject: "ENG102", Class: "Grade 10"}
		prompt, err := CreationPrompt(job, []string{"snippet one", "snippet two"})
		require.NoError(t, err)
		assert.Contains(t, prompt, "relevant information from past exams")
		assert.Contains(t, prompt, "snippet one\nsnippet two")
	})
}

func TestReplacementPrompt(t *testing.T) {
	content := &domain.ExamContent{
		Title:    "Final",
		Sections: []domain.Section{{Title: "Reading"}},
	}

	t.Run("with feedback", func(t *testing.T) {
		prompt, err := ReplacementPrompt(content, []domain.FeedbackItem{
			{Section: "section-0", Feedback: json.RawMessage(`"too easy"`)},
		})
		require.NoError(t, err)
		assert.Contains(t, prompt, "based on the feedback")
		assert.Contains(t, prompt, "section-0: too easy")
		assert.Contains(t, prompt, `"Reading"`)
	})

	t.Run("without feedback uses the generic instruction", func(t *testing.T) {
		prompt, err := ReplacementPrompt(content, nil)
		require.NoError(t, err)
		assert.Contains(t, prompt, "improve its structure, variety, and balance")
		assert.Contains(t, prompt, "question count")
	})
}

func TestFullRegenerationPrompt(t *testing.T) {
	content := &domain.ExamContent{Sections: []domain.Section{{Title: "Writing"}}}
	prompt, err := FullRegenerationPrompt(content, "add a listening section")
	require.NoError(t, err)
	assert.Contains(t, prompt, "add a listening section")
	assert.Contains(t, prompt, `"sections"`)
}

func TestSectionPrompt(t *testing.T) {
	section := &domain.Section{Title: "Grammar"}
	prompt, err := SectionPrompt(section, "use past tense examples")
	require.NoError(t, err)
	assert.Contains(t, prompt, `"Grammar"`)
	assert.Contains(t, prompt, "use past tense examples")
	assert.Contains(t, prompt, "ONLY the updated section object")
}
