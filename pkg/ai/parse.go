package ai

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-evaluator-api/internal/errdefs"
)

const (
	minScore = 0
	maxScore = 10
)

const verdictSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["score", "feedback"],
  "properties": {
    "score": {"type": "number"},
    "feedback": {"type": "string", "minLength": 1}
  }
}`

var verdictValidator = jsonschema.MustCompileString("verdict.schema.json", verdictSchema)

// ParseVerdict pulls the first JSON object out of a free-form model reply and
// validates it against the verdict contract. The score is rounded and clamped
// into [0, 10].
func ParseVerdict(reply string) (Verdict, error) {
	const op = "ai.parse_verdict"

	span, ok := extractJSONSpan(reply)
	if !ok {
		return Verdict{}, errdefs.AIProtocol(op, "no JSON object found in model reply", nil)
	}

	var document interface{}
	if err := json.Unmarshal([]byte(span), &document); err != nil {
		return Verdict{}, errdefs.AIProtocol(op, "model reply is not valid JSON", err)
	}

	if err := verdictValidator.Validate(document); err != nil {
		return Verdict{}, errdefs.AIProtocol(op, "model reply is missing a numeric score or a feedback string", err)
	}

	fields := document.(map[string]interface{})
	score, _ := fields["score"].(float64)
	feedback, _ := fields["feedback"].(string)
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return Verdict{}, errdefs.AIProtocol(op, "model reply has blank feedback", nil)
	}

	return Verdict{
		Score:    normalizeScore(score),
		Feedback: feedback,
	}, nil
}

func normalizeScore(score float64) int {
	rounded := math.Round(score)
	if rounded < minScore {
		return minScore
	}
	if rounded > maxScore {
		return maxScore
	}
	return int(rounded)
}

// extractJSONSpan returns the first balanced {...} span, skipping braces
// inside string literals. When the braces never balance it falls back to the
// widest span between the first '{' and the last '}'.
func extractJSONSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	end := strings.LastIndexByte(text, '}')
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}
