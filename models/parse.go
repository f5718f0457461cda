package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStructuredReply extracts a JSON object from a model completion and
// unmarshals it into v. Completions frequently wrap the object in markdown
// code fences or surrounding prose; everything outside the outermost braces
// is discarded before decoding. Returns a MalformedReplyError when no valid
// object can be recovered.
func ParseStructuredReply(text string, v any) error {
	cleaned := strings.ReplaceAll(text, "```", "")
	cleaned = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cleaned), "json"))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return &MalformedReplyError{Raw: text, Err: fmt.Errorf("no JSON object found")}
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return &MalformedReplyError{Raw: text, Err: err}
	}
	return nil
}
