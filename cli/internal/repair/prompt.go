// Package repair implements the generative tiers of the pipeline: Tier 2
// candidate generation (prompt assembly, response post-processing, local
// gate) and Tier 3 validation (structured verdict parsing with a basic
// offline fallback). All provider traffic goes through the router.
package repair

import (
	"fmt"
	"strings"

	"linefix/cli/internal/cache"
	"linefix/cli/internal/violation"
)

// GenerateSystemPrompt frames the generator model. The response contract is
// code only: no commentary, no markdown fences.
const GenerateSystemPrompt = `You are a precise code formatter. You rewrite a single over-long line of Python so that every resulting line fits a width limit, preserving the code's exact meaning. Use only continuation idioms that are legal Python (implicit continuation inside brackets, parenthesized expressions, or a hoisted local variable). Respond with only the replacement code: no commentary, no markdown fences, no explanation.`

// ValidateSystemPrompt frames the validator model. The response contract is
// a single JSON object matching the verdict schema.
const ValidateSystemPrompt = `You are a code change validator. You judge whether a proposed rewrite of one Python line preserves its semantics and satisfies the stated objective. Output only a single JSON object, no other text.`

// BuildGeneratePrompt assembles the Tier 2 user prompt from structured
// inputs, in contract order: rule code, width limit, the original line with
// its line number, the instruction hint when present, and on revision the
// previous verdict's feedback and issues.
func BuildGeneratePrompt(v violation.Violation, prior *violation.ValidationVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s\n", v.RuleCode)
	fmt.Fprintf(&b, "Maximum line width: %d characters\n\n", v.EffectiveMaxWidth())
	fmt.Fprintf(&b, "Line %d of %s:\n%s\n", v.LineNumber, v.FilePath, v.OriginalLine)
	if v.InstructionHint != "" {
		fmt.Fprintf(&b, "\nPreferred strategy: %s\n", v.InstructionHint)
	}
	if prior != nil {
		b.WriteString("\nYour previous attempt was not accepted.\n")
		if prior.Feedback != "" {
			fmt.Fprintf(&b, "Validator feedback: %s\n", prior.Feedback)
		}
		for _, issue := range prior.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	b.WriteString("\nRewrite the line so every resulting line is at most ")
	fmt.Fprintf(&b, "%d characters. Keep the original leading indentation on the first line. Return only the replacement code.", v.EffectiveMaxWidth())
	return b.String()
}

// BuildValidatePrompt assembles the Tier 3 user prompt. The original line
// comes from the cache entry stored at intake, never from the caller, so a
// revision chain cannot drift from the true original.
func BuildValidatePrompt(orig cache.CachedOriginal, cand *violation.CandidateFix, ruleCode string, maxWidth int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s (maximum line width %d)\n\n", ruleCode, maxWidth)
	fmt.Fprintf(&b, "Original line %d:\n%s\n\n", orig.LineNumber, orig.OriginalLine)
	if orig.Snippet != "" {
		fmt.Fprintf(&b, "Surrounding context:\n%s\n\n", orig.Snippet)
	}
	fmt.Fprintf(&b, "Proposed replacement:\n%s\n\n", cand.Joined())
	b.WriteString(`Judge the replacement. Respond with a single JSON object:
{
  "decision": "approve" | "reject" | "request-revision",
  "confidence": 0.0-1.0,
  "semantic_preserved": true|false,
  "objective_achieved": true|false,
  "issues": ["short issue", ...],
  "feedback": "explanation, required unless approving"
}
Approve only when the replacement preserves semantics exactly and every line fits the width limit. No other text.`)
	return b.String()
}
