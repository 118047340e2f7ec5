// Package pipeline implements the per-violation orchestrator: the intake →
// tier1 → tier2 → tier3 state machine with its revision loop, and the batch
// runner that fixes many violations concurrently. Exactly one FixOutcome is
// produced for every ingested Violation, whatever happens.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"linefix/cli/internal/cache"
	"linefix/cli/internal/provider"
	"linefix/cli/internal/repair"
	"linefix/cli/internal/rewrite"
	"linefix/cli/internal/trace"
	"linefix/cli/internal/violation"
	"linefix/cli/internal/violid"
)

const (
	// _defaultRevisionBudget is the maximum number of request-revision
	// cycles per item; the Tier 2 invocation count is budget + 1.
	_defaultRevisionBudget = 2
	_defaultParallel       = 4
)

// Terminal reasons surfaced in FixOutcome.
const (
	ReasonTier3Rejected        = "tier3 rejected"
	ReasonGeneratorExhausted   = "provider exhausted (generator)"
	ReasonValidatorUnavailable = "validator unavailable"
	ReasonCancelled            = "cancelled"
	ReasonOfflineMiss          = "no deterministic rewrite (offline)"
)

// Options configures a Pipeline. Zero value uses defaults.
type Options struct {
	// RevisionBudget is the maximum request-revision cycles per item (0 = 2).
	RevisionBudget int
	// IndentUnit is the Tier 1 continuation indent in spaces (0 = 4).
	IndentUnit int
	// Offline disables Tiers 2 and 3; a Tier 1 miss becomes unfixable.
	Offline bool
	// Parallel is the batch concurrency limit (0 = 4).
	Parallel int
}

func (o Options) revisionBudget() int {
	if o.RevisionBudget > 0 {
		return o.RevisionBudget
	}
	return _defaultRevisionBudget
}

func (o Options) parallel() int {
	if o.Parallel > 0 {
		return o.Parallel
	}
	return _defaultParallel
}

// Pipeline carries everything one orchestration needs: the context cache,
// the provider router, the knobs, and the tracer. No globals; construct one
// and pass it around.
type Pipeline struct {
	router repair.RouterClient
	store  *cache.Store
	tracer *trace.Tracer
	opts   Options
}

// New builds a Pipeline around the given router. tracer may be nil.
func New(router repair.RouterClient, opts Options, tracer *trace.Tracer) *Pipeline {
	return &Pipeline{
		router: router,
		store:  cache.New(),
		tracer: tracer,
		opts:   opts,
	}
}

// Fix runs the per-item state machine for v and always returns a terminal
// outcome. Tier progression is strictly sequential; the only suspension
// points are provider calls. The cache entry written at intake is evicted on
// every terminal path.
func (p *Pipeline) Fix(ctx context.Context, v violation.Violation) violation.FixOutcome {
	if v.ID == "" {
		v.ID = violid.StableViolationID(v.FilePath, v.LineNumber, v.OriginalLine)
	}
	outcome := violation.FixOutcome{ViolationID: v.ID}
	if err := v.Validate(); err != nil {
		outcome.Status = violation.StatusErrored
		outcome.TerminalReason = "invalid violation: " + err.Error()
		return outcome
	}

	// Intake: the original line becomes the authoritative copy for every
	// later tier. First write wins; eviction happens on the terminal path.
	p.store.Put(v.ID, v.OriginalLine, v.LineNumber, "")
	defer p.store.Evict(v.ID)

	// Tier 1: purely local, never suspends, never errors.
	start := time.Now()
	cand, hit := rewrite.Fix(v, rewrite.Options{IndentUnit: p.opts.IndentUnit})
	t1 := violation.Attempt{Tier: violation.Tier1, Latency: time.Since(start), Result: "miss"}
	if hit {
		t1.Result = "hit"
	}
	outcome.Attempts = append(outcome.Attempts, t1)
	if hit {
		p.tracef("item %s fixed deterministically\n", v.ID)
		outcome.Status = violation.StatusFixedDeterministic
		outcome.Accepted = cand
		return outcome
	}
	if p.opts.Offline {
		outcome.Status = violation.StatusUnfixable
		outcome.TerminalReason = ReasonOfflineMiss
		return outcome
	}

	var prior *violation.ValidationVerdict
	var priorCand *violation.CandidateFix
	budget := p.opts.revisionBudget()
	for revision := 0; ; revision++ {
		genRes, err := repair.Generate(ctx, p.router, v, prior, priorCand, revision)
		if genRes != nil {
			outcome.Attempts = append(outcome.Attempts, toAttempts(violation.Tier2, genRes.Attempts)...)
		}
		if err != nil {
			outcome.Status = violation.StatusErrored
			outcome.TerminalReason = ReasonGeneratorExhausted
			if ctx.Err() != nil {
				outcome.TerminalReason = ReasonCancelled
			}
			return outcome
		}
		cand := genRes.Candidate

		valRes, err := repair.Validate(ctx, p.router, p.store, v, cand)
		if valRes != nil {
			outcome.Attempts = append(outcome.Attempts, toAttempts(violation.Tier3, valRes.Attempts)...)
		}
		if err != nil {
			if ctx.Err() != nil {
				outcome.Status = violation.StatusErrored
				outcome.TerminalReason = ReasonCancelled
				return outcome
			}
			// The candidate looked acceptable locally but cannot be judged.
			outcome.Status = violation.StatusUnfixable
			outcome.TerminalReason = ReasonValidatorUnavailable
			return outcome
		}
		verdict := repair.NormalizeVerdict(valRes.Verdict)
		if valRes.Degraded {
			// No validator parsed; the verdict came from the offline basic check.
			outcome.Attempts = append(outcome.Attempts, violation.Attempt{
				Tier: violation.Tier3, Model: "basic-validation",
				Result: "degraded: " + string(verdict.Decision),
			})
		} else {
			markDecision(outcome.Attempts, verdict.Decision)
		}

		switch verdict.Decision {
		case violation.DecisionApprove:
			cand.Confidence = verdict.Confidence
			outcome.Status = violation.StatusFixedGenerated
			outcome.Accepted = cand
			return outcome
		case violation.DecisionReject:
			outcome.Status = violation.StatusUnfixable
			outcome.TerminalReason = ReasonTier3Rejected
			return outcome
		case violation.DecisionRequestRevision:
			if revision >= budget {
				outcome.Status = violation.StatusUnfixable
				outcome.TerminalReason = ReasonTier3Rejected
				return outcome
			}
			p.tracef("item %s revision %d requested: %s\n", v.ID, revision+1, verdict.Feedback)
			prior = verdict
			priorCand = cand
		}
	}
}

// FixAll fixes a batch. Items with duplicate IDs are deduplicated at intake
// (first occurrence wins). Up to opts.Parallel items run concurrently; tier
// progression within an item stays sequential. The returned slice is in
// deduplicated input order; callers reassociate by ViolationID.
func (p *Pipeline) FixAll(ctx context.Context, violations []violation.Violation) []violation.FixOutcome {
	deduped := make([]violation.Violation, 0, len(violations))
	seen := make(map[string]bool, len(violations))
	for _, v := range violations {
		if v.ID == "" {
			v.ID = violid.StableViolationID(v.FilePath, v.LineNumber, v.OriginalLine)
		}
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		deduped = append(deduped, v)
	}

	outcomes := make([]violation.FixOutcome, len(deduped))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.parallel())
	for i := range deduped {
		i := i
		g.Go(func() error {
			outcomes[i] = p.Fix(gctx, deduped[i])
			return nil
		})
	}
	// Workers never return errors; outcomes carry all failure detail.
	_ = g.Wait()
	return outcomes
}

// toAttempts converts router attempt records into outcome log entries for
// the given tier.
func toAttempts(tier violation.Tier, in []provider.Attempt) []violation.Attempt {
	out := make([]violation.Attempt, 0, len(in))
	for _, a := range in {
		out = append(out, violation.Attempt{
			Tier:    tier,
			Model:   a.ModelID,
			Latency: a.Latency,
			Result:  a.Result,
		})
	}
	return out
}

func (p *Pipeline) tracef(format string, args ...interface{}) {
	if p.tracer.Enabled() {
		p.tracer.Printf("[linefix:trace] "+format, args...)
	}
}

// markDecision stamps the validator's decision onto the most recent
// successful Tier 3 attempt so the log reads (tier, model, latency,
// decision) as a unit.
func markDecision(attempts []violation.Attempt, d violation.Decision) {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Tier == violation.Tier3 && attempts[i].Result == "ok" {
			attempts[i].Result = string(d)
			return
		}
	}
}
