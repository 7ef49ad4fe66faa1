package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse extracts the JSON object from model output. Models wrap
// JSON in markdown fences or lead with prose despite instructions, so this
// strips fences and falls back to the outermost brace pair.
func ParseJSONResponse(text string) (map[string]any, error) {
	cleaned := stripFences(strings.TrimSpace(text))

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
