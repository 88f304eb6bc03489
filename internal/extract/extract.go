// Package extract recovers a structured JSON payload from the free-form
// text a completion model returns. It is the single trust boundary
// between the model's output channel and the typed section tree: prose,
// markdown code fences, and trailing junk around the object are
// tolerated, anything worse is a typed parse error.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/examgen/examgen-api/internal/domain"
)

// Parse errors. Both specific failures wrap ErrParse so callers can
// match the whole family; the split exists for diagnostics only.
var (
	// ErrParse is the common ancestor of all extraction failures.
	ErrParse = errors.New("failed to parse model output")

	// ErrNoJSONBoundaries is returned when no brace-delimited object
	// can be located in the text.
	ErrNoJSONBoundaries = fmt.Errorf("%w: no JSON boundaries found", ErrParse)

	// ErrMalformedJSON is returned when the located slice is not valid
	// JSON.
	ErrMalformedJSON = fmt.Errorf("%w: malformed JSON", ErrParse)
)

// JSONObject isolates the single JSON object embedded in raw model
// text and returns it verbatim. The heuristic: drop a leading markdown
// code fence if present, then slice from the first '{' to the last '}'
// inclusive. Note the last-brace rule means trailing junk containing a
// '}' of its own would corrupt the slice; that boundary is accepted as
// a documented limitation of the recovery heuristic.
func JSONObject(raw string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = stripCodeFence(cleaned)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start == -1 || end == -1 || end <= start {
		return nil, ErrNoJSONBoundaries
	}

	slice := strings.TrimSpace(cleaned[start : end+1])
	if !json.Valid([]byte(slice)) {
		return nil, ErrMalformedJSON
	}
	return json.RawMessage(slice), nil
}

// ExamContent extracts and decodes a full section tree from raw model
// text.
func ExamContent(raw string) (*domain.ExamContent, error) {
	obj, err := JSONObject(raw)
	if err != nil {
		return nil, err
	}
	content, err := domain.DecodeExamContent(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return content, nil
}

// Section extracts and decodes a single section object from raw model
// text, used by scoped regeneration.
func Section(raw string) (*domain.Section, error) {
	obj, err := JSONObject(raw)
	if err != nil {
		return nil, err
	}
	section, err := domain.DecodeSection(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return section, nil
}

// stripCodeFence removes a leading ``` or ```json marker. The closing
// fence needs no special handling: the last-brace rule already ignores
// it.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		// Drop the language tag on the fence line, if any.
		return s[nl+1:]
	}
	return s
}
