package repair

import (
	"context"
	"fmt"
	"strings"

	"linefix/cli/internal/cache"
	"linefix/cli/internal/provider"
	"linefix/cli/internal/violation"
)

// lowConfidenceFloor is the approve-confidence below which the orchestrator
// demotes an approval to a revision request.
const lowConfidenceFloor = 0.3

// Stock feedback strings substituted by NormalizeVerdict.
const (
	FeedbackLowConfidence = "low validator confidence"
	FeedbackNone          = "no explanation given"
)

// ValidateResult is a verdict plus the provider attempts behind it. Degraded
// is set when no validator returned parseable JSON and the verdict was
// synthesized by the offline basic check.
type ValidateResult struct {
	Verdict  *violation.ValidationVerdict
	Attempts []provider.Attempt
	Degraded bool
}

// Validate asks the validator chain to judge cand against the cached
// original for v. The original is read from store, never from the caller.
// JSON mode is requested from every profile that supports it; a response
// that does not parse strictly moves to the next validator (no regex
// rescue). When every validator that responded produced unparseable JSON,
// the basic offline verdict is synthesized instead. When no validator
// responded at all, the error wraps provider.ErrExhausted and the caller
// reports the validator as unavailable.
func Validate(ctx context.Context, router RouterClient, store *cache.Store, v violation.Violation, cand *violation.CandidateFix) (*ValidateResult, error) {
	orig, ok := store.Get(v.ID)
	if !ok {
		return nil, fmt.Errorf("validate: no cached original for %s", v.ID)
	}
	req := provider.Request{
		System:   ValidateSystemPrompt,
		Prompt:   BuildValidatePrompt(orig, cand, v.RuleCode, v.EffectiveMaxWidth()),
		JSONMode: true,
	}

	result := &ValidateResult{}
	exclude := map[string]bool{}
	responded := false
	for {
		resp, attempts, err := router.InvokeExcluding(ctx, provider.RoleValidator, req, exclude)
		result.Attempts = append(result.Attempts, attempts...)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if !responded {
				return result, fmt.Errorf("validate: %w", err)
			}
			// Validators responded but none parsed: degrade to the offline check.
			result.Verdict = BasicVerdict(orig.OriginalLine, cand, v.EffectiveMaxWidth())
			result.Degraded = true
			return result, nil
		}
		responded = true
		verdict, perr := ParseVerdict(resp.Content)
		if perr == nil {
			result.Verdict = verdict
			return result, nil
		}
		markBadJSON(result.Attempts, resp.ProviderID)
		exclude[resp.ProviderID] = true
	}
}

func markBadJSON(attempts []provider.Attempt, providerID string) {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].ProviderID == providerID && attempts[i].Result == "ok" {
			attempts[i].Result = "bad-json"
			return
		}
	}
}

// BasicVerdict is the offline fallback when no validator yields parseable
// JSON: approve iff every candidate line respects the width ceiling and the
// candidate's content equals the original under whitespace-insensitive
// comparison (all-lines-short alone would silently accept different code).
// Confidence is fixed at 0.5.
func BasicVerdict(originalLine string, cand *violation.CandidateFix, maxWidth int) *violation.ValidationVerdict {
	withinWidth := true
	for _, line := range cand.Lines {
		if len(line) > maxWidth {
			withinWidth = false
			break
		}
	}
	same := collapseWhitespace(cand.Joined()) == collapseWhitespace(originalLine)
	if withinWidth && same {
		return &violation.ValidationVerdict{
			Decision:          violation.DecisionApprove,
			Confidence:        0.5,
			SemanticPreserved: true,
			ObjectiveAchieved: true,
			Issues:            []string{},
		}
	}
	verdict := &violation.ValidationVerdict{
		Decision:   violation.DecisionReject,
		Confidence: 0.5,
		Issues:     []string{},
		Feedback:   "basic validation: content differs from original",
	}
	if !withinWidth {
		verdict.Feedback = "basic validation: a line exceeds the width limit"
	}
	return verdict
}

// collapseWhitespace reduces every whitespace run to a single space and
// trims the ends, so line breaks and re-indentation do not affect equality.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeVerdict applies the orchestrator's tie-break rules to a raw
// verdict, returning a (possibly adjusted) copy:
//
//   - approve with semantic_preserved or objective_achieved false becomes
//     reject, enforcing the verdict invariant upstream;
//   - approve with confidence below 0.3 becomes request-revision with the
//     stock low-confidence feedback;
//   - a non-approve verdict with empty feedback gets the stock "no
//     explanation given" string.
func NormalizeVerdict(v *violation.ValidationVerdict) *violation.ValidationVerdict {
	out := *v
	if out.Decision == violation.DecisionApprove && (!out.SemanticPreserved || !out.ObjectiveAchieved) {
		out.Decision = violation.DecisionReject
		if out.Feedback == "" {
			out.Feedback = "semantics not preserved"
		}
	} else if out.Decision == violation.DecisionApprove && out.Confidence < lowConfidenceFloor {
		out.Decision = violation.DecisionRequestRevision
		out.Feedback = FeedbackLowConfidence
	}
	if out.Decision != violation.DecisionApprove && out.Feedback == "" {
		out.Feedback = FeedbackNone
	}
	return &out
}
