package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackzampolin/ocrion/internal/region"
)

var errEmptyReply = errors.New("empty reply")

// parseReply decodes a backend reply as a single JSON object. The reply is
// tried verbatim and with one enclosing markdown code fence removed. Prose
// around a JSON value is not salvaged; that is what the strict retry is for.
func parseReply(content string) (map[string]any, region.Outcome, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, region.OutcomeUnparseable, errEmptyReply
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}

	var lastErr error
	for _, candidate := range candidates {
		v, err := decodeSingle(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, region.OutcomeNotObject, fmt.Errorf("reply is a JSON %s, not an object", jsonKind(v))
		}
		return obj, region.OutcomeParsed, nil
	}
	return nil, region.OutcomeUnparseable, lastErr
}

// decodeSingle decodes exactly one JSON value, keeping numbers as json.Number.
func decodeSingle(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: unexpected data after value")
	}
	return v, nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line, which may carry a language tag.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
