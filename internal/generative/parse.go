package generative

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseResponse decodes the model's JSON reply. Models often wrap JSON in
// markdown fences, so those are stripped first. A reply that is not JSON at
// all is treated as a bare answer with a conservative confidence.
func parseResponse(text string) (Response, error) {
	text = strings.TrimSpace(stripCodeFences(text))
	if text == "" {
		return Response{}, fmt.Errorf("empty reply")
	}

	var r Response
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		if strings.HasPrefix(text, "{") {
			return Response{}, fmt.Errorf("decoding reply: %w", err)
		}
		return Response{Answer: text, Confidence: 0.5}, nil
	}

	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// drop the language tag line
		if lang := strings.TrimSpace(trimmed[:i]); lang == "" || !strings.ContainsAny(lang, " \t") {
			trimmed = trimmed[i+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
