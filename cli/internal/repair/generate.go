package repair

import (
	"context"
	"fmt"

	"linefix/cli/internal/provider"
	"linefix/cli/internal/tokens"
	"linefix/cli/internal/violation"
)

// Temperature schedule for the generator: low but nonzero on the first
// attempt, warmed per revision to encourage diversity after a rejection.
const (
	TemperatureStart   = 0.3
	TemperatureStep    = 0.1
	TemperatureCeiling = 0.6
)

// Response cap bounds: responseReserve is added to the estimated size of the
// rewritten line, and the result is clamped so a pathological input cannot
// request an arbitrarily large completion.
const (
	responseReserve = 128
	responseMax     = 1024
)

// RouterClient is the minimal router interface used by Generate and
// Validate so tests can pass a fake.
type RouterClient interface {
	InvokeExcluding(ctx context.Context, role provider.Role, req provider.Request, exclude map[string]bool) (*provider.Response, []provider.Attempt, error)
}

// Temperature returns the sampling temperature for the given revision
// number (0 = first attempt).
func Temperature(revision int) float64 {
	t := TemperatureStart + TemperatureStep*float64(revision)
	if t > TemperatureCeiling {
		t = TemperatureCeiling
	}
	return t
}

// GenerateResult is a gated candidate plus the provider attempts it took to
// get one.
type GenerateResult struct {
	Candidate *violation.CandidateFix
	Attempts  []provider.Attempt
}

// Generate asks the generator chain for a rewrite of v. prior carries the
// verdict from the last Tier 3 pass on a revision (nil on the first
// attempt); revisionOf links the produced candidate into its revision chain.
//
// A response that fails the local gate (a line over the width ceiling, or
// first-line indentation not matching the original) discards the candidate
// and tries the next provider in the chain. The returned error wraps
// provider.ErrExhausted when no provider yields a gated candidate.
func Generate(ctx context.Context, router RouterClient, v violation.Violation, prior *violation.ValidationVerdict, revisionOf *violation.CandidateFix, revision int) (*GenerateResult, error) {
	req := provider.Request{
		System:      GenerateSystemPrompt,
		Prompt:      BuildGeneratePrompt(v, prior),
		Temperature: Temperature(revision),
		MaxTokens:   tokens.Clamp(tokens.Estimate(v.OriginalLine)*2+responseReserve, responseReserve, responseMax),
	}

	result := &GenerateResult{}
	exclude := map[string]bool{}
	for {
		resp, attempts, err := router.InvokeExcluding(ctx, provider.RoleGenerator, req, exclude)
		result.Attempts = append(result.Attempts, attempts...)
		if err != nil {
			return result, fmt.Errorf("generate: %w", err)
		}

		lines, perr := ParseCandidateLines(resp.Content)
		if perr == nil {
			cand := &violation.CandidateFix{
				ViolationID: v.ID,
				Lines:       lines,
				Tier:        violation.Tier2,
				Model:       resp.ModelID,
				RevisionOf:  revisionOf,
			}
			if gerr := cand.Validate(v.OriginalLine, v.EffectiveMaxWidth()); gerr == nil {
				result.Candidate = cand
				return result, nil
			}
		}
		// Local gate failed (or the response was empty): move down the chain.
		markGateFailed(result.Attempts, resp.ProviderID)
		exclude[resp.ProviderID] = true
	}
}

// markGateFailed rewrites the matching "ok" attempt so the log shows the
// candidate was discarded locally rather than accepted.
func markGateFailed(attempts []provider.Attempt, providerID string) {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].ProviderID == providerID && attempts[i].Result == "ok" {
			attempts[i].Result = "gate-failed"
			return
		}
	}
}
