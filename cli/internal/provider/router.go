package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"linefix/cli/internal/trace"
)

const _defaultCooldown = 60 * time.Second

// Request is one model invocation: a prompt, optional system framing, and
// sampling knobs. JSONMode asks for structured output; it is honored only on
// profiles that support it.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// MaxTokens caps the response size; 0 uses the profile's ceiling.
	MaxTokens int
	JSONMode  bool
}

// maxTokens resolves the effective response cap: the smaller of the request
// and profile limits, or the profile's default when the request has none.
func (r Request) maxTokens(p Profile) int {
	limit := p.maxTokens()
	if r.MaxTokens > 0 && r.MaxTokens < limit {
		return r.MaxTokens
	}
	return limit
}

// Response is a successful model invocation with the used profile attached.
type Response struct {
	ProviderID string
	ModelID    string
	Content    string
	Latency    time.Duration
}

// Attempt records one provider call for the per-item attempt log, success
// or not.
type Attempt struct {
	ProviderID string
	ModelID    string
	Latency    time.Duration
	Result     string // "ok", "timeout", "rate-limited", "auth-failed", "failed", "skipped: ..."
}

// handler is the wire adapter for one profile kind. Errors returned must be
// *callError so the router can classify them.
type handler interface {
	complete(ctx context.Context, p Profile, req Request) (string, error)
}

// profileState is a Profile plus the router's mutable view of it. Disabled
// is monotonic for the run; cooldown holds a 429 backoff deadline.
type profileState struct {
	Profile
	budget *budget

	mu            sync.Mutex
	disabled      bool
	disabledWhy   string
	cooldownUntil time.Time
}

func (s *profileState) isDisabled() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled, s.disabledWhy
}

func (s *profileState) disable(why string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disabled {
		s.disabled = true
		s.disabledWhy = why
	}
}

func (s *profileState) inCooldown(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.cooldownUntil)
}

func (s *profileState) coolDown(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
}

// Router walks a role's profile chain in cost order with per-profile
// timeouts, rate budgets, cool-downs, and run-scoped disabling. Attempts for
// one request are strictly sequential; state updates are visible to every
// subsequent attempt in the process. Safe for concurrent use.
type Router struct {
	chains   map[Role][]*profileState
	handlers map[Kind]handler
	tracer   *trace.Tracer
	now      func() time.Time
}

// RouterOptions configures NewRouter. Zero value uses defaults.
type RouterOptions struct {
	// Tracer receives per-attempt trace output; nil means no tracing.
	Tracer *trace.Tracer
	// LookupEnv overrides credential resolution for tests.
	LookupEnv func(string) (string, bool)
	// Handlers overrides the wire handlers for tests.
	Handlers map[Kind]handler
	// Now overrides the clock for tests.
	Now func() time.Time
}

// NewRouter builds a router from the given profiles. Profiles whose
// credential variable is unset are dropped at startup without error, per the
// configuration contract; invalid profiles return an error.
func NewRouter(profiles []Profile, opts RouterOptions) (*Router, error) {
	r := &Router{
		chains: map[Role][]*profileState{},
		handlers: map[Kind]handler{
			KindOllama: &ollamaHandler{},
			KindOpenAI: &openaiHandler{lookupEnv: opts.LookupEnv},
		},
		tracer: opts.Tracer,
		now:    time.Now,
	}
	if opts.Handlers != nil {
		r.handlers = opts.Handlers
	}
	if opts.Now != nil {
		r.now = opts.Now
	}
	byRole := map[Role][]Profile{}
	for i := range profiles {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if !p.credentialed(opts.LookupEnv) {
			if r.tracer.Enabled() {
				r.tracer.Printf("[linefix:trace] provider %s disabled: %s not set\n", p.ProviderID, p.APIKeyEnv)
			}
			continue
		}
		byRole[p.Role] = append(byRole[p.Role], p)
	}
	for role, list := range byRole {
		sortProfiles(list)
		for i := range list {
			r.chains[role] = append(r.chains[role], &profileState{
				Profile: list[i],
				budget:  newBudget(list[i].RequestsPerMin, list[i].RequestsPerHour),
			})
		}
	}
	return r, nil
}

// Chain returns the ordered provider IDs the router would walk for role.
// Used by the check command to display the effective configuration.
func (r *Router) Chain(role Role) []string {
	var out []string
	for _, s := range r.chains[role] {
		out = append(out, s.ProviderID+" ("+s.ModelID+")")
	}
	return out
}

// Invoke walks the role's chain and returns the first successful response.
// Each profile gets one attempt under its own timeout; auth failures disable
// the profile for the run, 429s start a cool-down, and everything else is
// recorded and skipped. The returned attempts cover every profile touched,
// in order. When no profile succeeds, err wraps ErrExhausted (or
// ErrNoProfiles when the chain is empty).
func (r *Router) Invoke(ctx context.Context, role Role, req Request) (*Response, []Attempt, error) {
	return r.InvokeExcluding(ctx, role, req, nil)
}

// InvokeExcluding is Invoke with a set of provider IDs to skip. The
// generative tier uses it to move down the chain after a candidate fails the
// local gate without consuming the failed provider's budget again.
func (r *Router) InvokeExcluding(ctx context.Context, role Role, req Request, exclude map[string]bool) (*Response, []Attempt, error) {
	chain := r.chains[role]
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoProfiles, role)
	}
	var attempts []Attempt
	for _, s := range chain {
		if exclude[s.ProviderID] {
			continue
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if down, why := s.isDisabled(); down {
			r.tracef("provider %s skipped: disabled (%s)\n", s.ProviderID, why)
			continue
		}
		now := r.now()
		if s.inCooldown(now) {
			r.tracef("provider %s skipped: cooling down\n", s.ProviderID)
			continue
		}
		if !s.budget.tryAcquire(now) {
			r.tracef("provider %s skipped: rate budget exhausted\n", s.ProviderID)
			attempts = append(attempts, Attempt{ProviderID: s.ProviderID, ModelID: s.ModelID, Result: "skipped: budget"})
			continue
		}

		resp, attempt := r.callProfile(ctx, s, req)
		attempts = append(attempts, attempt)
		if resp != nil {
			return resp, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
	}
	return nil, attempts, fmt.Errorf("%w: %s", ErrExhausted, role)
}

// callProfile runs one attempt against s with the router-enforced timeout
// and applies the failure policy to the profile's state.
func (r *Router) callProfile(ctx context.Context, s *profileState, req Request) (*Response, Attempt) {
	h := r.handlers[s.Kind]
	attempt := Attempt{ProviderID: s.ProviderID, ModelID: s.ModelID}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	start := r.now()
	content, err := h.complete(callCtx, s.Profile, req)
	attempt.Latency = r.now().Sub(start)

	if err == nil {
		attempt.Result = "ok"
		r.tracef("provider %s ok in %s\n", s.ProviderID, attempt.Latency)
		return &Response{
			ProviderID: s.ProviderID,
			ModelID:    s.ModelID,
			Content:    content,
			Latency:    attempt.Latency,
		}, attempt
	}

	ce, ok := err.(*callError)
	if !ok {
		ce = &callError{kind: failTransport, err: err}
	}
	switch ce.kind {
	case failAuth:
		s.disable(ce.Error())
		attempt.Result = "auth-failed"
	case failRateLimited:
		cooldown := ce.retryAfter
		if cooldown <= 0 {
			cooldown = _defaultCooldown
		}
		s.coolDown(r.now().Add(cooldown))
		attempt.Result = "rate-limited"
	case failTimeout:
		attempt.Result = "timeout"
	default:
		attempt.Result = "failed"
	}
	r.tracef("provider %s %s: %v\n", s.ProviderID, attempt.Result, ce)
	return nil, attempt
}

func (r *Router) tracef(format string, args ...interface{}) {
	if r.tracer.Enabled() {
		r.tracer.Printf("[linefix:trace] "+format, args...)
	}
}
