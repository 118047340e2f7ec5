package repair

import (
	"encoding/json"
	"fmt"
	"strings"

	"linefix/cli/internal/violation"
)

// StripFences removes a surrounding markdown code fence (with optional
// language tag) that a model may emit despite instructions. Leading blank
// lines and trailing whitespace are dropped; the first content line keeps
// its indentation, which the gate compares against the original.
func StripFences(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || strings.TrimSpace(s[:i]) != "" {
			break
		}
		s = s[i+1:]
	}
	if !strings.HasPrefix(strings.TrimLeft(s, " \t"), "```") {
		return s
	}
	body := s[strings.Index(s, "```")+3:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimRight(body, "\n")
}

// ParseCandidateLines turns a generator response into candidate lines:
// strip fences, split on newlines, trim trailing whitespace per line, and
// drop empty trailing lines. An empty result is an error.
func ParseCandidateLines(response string) ([]string, error) {
	text := StripFences(response)
	if text == "" {
		return nil, fmt.Errorf("empty generator response")
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("generator response had no content lines")
	}
	return lines, nil
}

// verdictWire is the JSON shape expected from the validator model.
type verdictWire struct {
	Decision          string   `json:"decision"`
	Confidence        float64  `json:"confidence"`
	SemanticPreserved bool     `json:"semantic_preserved"`
	ObjectiveAchieved bool     `json:"objective_achieved"`
	Issues            []string `json:"issues"`
	Feedback          string   `json:"feedback"`
}

// ParseVerdict parses a validator response as a single JSON object,
// strictly: no fence peeling, no regex rescue. Synonym decisions the model
// may emit ("revise", "request_revision") are folded to the three canonical
// values; anything else is an error so the caller moves to the next
// validator in the chain.
func ParseVerdict(response string) (*violation.ValidationVerdict, error) {
	var wire verdictWire
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &wire); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	decision, err := violation.ParseDecision(wire.Decision)
	if err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	return &violation.ValidationVerdict{
		Decision:          decision,
		Confidence:        wire.Confidence,
		SemanticPreserved: wire.SemanticPreserved,
		ObjectiveAchieved: wire.ObjectiveAchieved,
		Issues:            wire.Issues,
		Feedback:          strings.TrimSpace(wire.Feedback),
	}, nil
}
