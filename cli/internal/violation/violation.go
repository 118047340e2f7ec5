// Package violation defines the schema for the repair pipeline: violations,
// candidate fixes, validation verdicts, and terminal outcomes. It is the
// single source of truth for the JSON contract between the scanner, the
// pipeline, and CLI output.
package violation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxWidth is the per-line width ceiling applied when a violation
// arrives with MaxWidth unset. E501 tooling disagrees between 79 and 80;
// the pipeline fixes 79 as the default and the caller owns the policy.
const DefaultMaxWidth = 79

// RuleE501 is the only rule code the pipeline understands semantically in
// its initial form (Python line-too-long).
const RuleE501 = "E501"

// Violation is one work item: a single source line that breaks a rule.
// OriginalLine is the exact source text including leading whitespace, with
// no trailing newline.
type Violation struct {
	ID              string  `json:"violation_id"`
	FilePath        string  `json:"file_path"`
	LineNumber      int     `json:"line_number"`
	OriginalLine    string  `json:"original_line"`
	RuleCode        string  `json:"rule_code"`
	MaxWidth int `json:"max_width,omitempty"`
	// Complexity is a caller-supplied difficulty estimate in [0,1]. The
	// pipeline carries and validates it but does not branch on it; the
	// deterministic tier always runs first regardless. Callers may use it
	// to order or shard their own batches.
	Complexity      float64 `json:"complexity,omitempty"`
	InstructionHint string  `json:"instruction_hint,omitempty"`
}

// Validate checks required fields and value ranges. MaxWidth zero is allowed
// (the pipeline substitutes DefaultMaxWidth at intake); negative is not.
func (v *Violation) Validate() error {
	if v == nil {
		return errors.New("violation is nil")
	}
	if v.ID == "" {
		return errors.New("violation_id is required")
	}
	if v.LineNumber < 1 {
		return fmt.Errorf("line_number %d must be >= 1", v.LineNumber)
	}
	if v.RuleCode == "" {
		return errors.New("rule_code is required")
	}
	if v.MaxWidth < 0 {
		return fmt.Errorf("max_width %d must not be negative", v.MaxWidth)
	}
	if v.Complexity < 0 || v.Complexity > 1 {
		return fmt.Errorf("complexity %g must be in [0,1]", v.Complexity)
	}
	return nil
}

// EffectiveMaxWidth returns MaxWidth, or DefaultMaxWidth when unset.
func (v *Violation) EffectiveMaxWidth() int {
	if v.MaxWidth > 0 {
		return v.MaxWidth
	}
	return DefaultMaxWidth
}

// Indent returns the leading whitespace of the original line.
func (v *Violation) Indent() string {
	return LeadingWhitespace(v.OriginalLine)
}

// LeadingWhitespace returns the run of spaces and tabs at the start of s.
func LeadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// Tier identifies which pipeline layer produced an artifact.
type Tier string

const (
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// CandidateFix is one proposed replacement for the violating line. Lines
// joined with "\n" replace OriginalLine. RevisionOf links to the candidate
// this one revises, forming a chain back to the first attempt.
type CandidateFix struct {
	ViolationID string        `json:"violation_id"`
	Lines       []string      `json:"lines"`
	Tier        Tier          `json:"tier"`
	Model       string        `json:"model,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	RevisionOf  *CandidateFix `json:"-"`
}

// Joined returns the candidate lines joined with newlines.
func (c *CandidateFix) Joined() string {
	return strings.Join(c.Lines, "\n")
}

// Validate checks the structural invariants a candidate must hold before it
// may be offered to the validator: non-empty lines, every line within
// maxWidth, and first-line indentation equal to the original's.
func (c *CandidateFix) Validate(originalLine string, maxWidth int) error {
	if c == nil {
		return errors.New("candidate is nil")
	}
	if len(c.Lines) == 0 {
		return errors.New("candidate has no lines")
	}
	for i, line := range c.Lines {
		if len(line) > maxWidth {
			return fmt.Errorf("line %d is %d chars, exceeds max width %d", i+1, len(line), maxWidth)
		}
	}
	if got, want := LeadingWhitespace(c.Lines[0]), LeadingWhitespace(originalLine); got != want {
		return fmt.Errorf("first-line indent %q does not match original %q", got, want)
	}
	return nil
}

// Decision is the validator's judgment on a candidate.
type Decision string

const (
	DecisionApprove         Decision = "approve"
	DecisionReject          Decision = "reject"
	DecisionRequestRevision Decision = "request-revision"
)

// ParseDecision folds the synonyms different models emit into the three
// canonical decisions. Unknown values return an error rather than a guess.
func ParseDecision(s string) (Decision, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "approve", "approved", "accept", "accepted", "yes":
		return DecisionApprove, nil
	case "reject", "rejected", "no":
		return DecisionReject, nil
	case "request-revision", "request_revision", "revise", "revision", "needs_revision", "needs-revision":
		return DecisionRequestRevision, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// ValidationVerdict is the validator's structured output for one candidate.
// Feedback is required when Decision is not approve; the pipeline substitutes
// a stock string when a model omits it.
type ValidationVerdict struct {
	Decision          Decision `json:"decision"`
	Confidence        float64  `json:"confidence"`
	SemanticPreserved bool     `json:"semantic_preserved"`
	ObjectiveAchieved bool     `json:"objective_achieved"`
	Issues            []string `json:"issues,omitempty"`
	Feedback          string   `json:"feedback,omitempty"`
}

// Status is the terminal result classification for one violation.
type Status string

const (
	StatusFixedDeterministic Status = "fixed-deterministic"
	StatusFixedGenerated     Status = "fixed-generated"
	StatusUnfixable          Status = "unfixable"
	StatusErrored            Status = "errored"
)

// Fixed reports whether the status carries an accepted candidate.
func (s Status) Fixed() bool {
	return s == StatusFixedDeterministic || s == StatusFixedGenerated
}

// Attempt is one entry in the per-item attempt log: which tier acted, which
// model (empty for Tier 1), how long it took, and what came of it.
type Attempt struct {
	Tier    Tier          `json:"tier"`
	Model   string        `json:"model,omitempty"`
	Latency time.Duration `json:"latency_ns"`
	Result  string        `json:"result"`
}

// FixOutcome is the terminal result for one violation. Accepted is present
// iff Status is fixed-deterministic or fixed-generated. Attempts records
// every tier and provider action in order, regardless of terminal state.
type FixOutcome struct {
	ViolationID    string        `json:"violation_id"`
	Status         Status        `json:"status"`
	Accepted       *CandidateFix `json:"accepted_candidate,omitempty"`
	Attempts       []Attempt     `json:"attempts"`
	TerminalReason string        `json:"terminal_reason,omitempty"`
}
