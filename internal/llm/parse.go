package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoJSONObject = errors.New("no JSON object in model output")

var jsonObjectPattern = regexp.MustCompile(`(?s)\{[^{}]*\}`)

// ParseJSONObject decodes content strictly, and when the model wrapped the
// object in prose or code fences, decodes the first flat object found in it.
func ParseJSONObject(content string, v any) error {
	trimmed := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	for _, candidate := range jsonObjectPattern.FindAllString(trimmed, -1) {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return ErrNoJSONObject
}
