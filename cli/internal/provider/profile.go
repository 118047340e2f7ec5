// Package provider implements the model endpoint router: provider profiles,
// per-profile rate budgets, and a prioritized fallback chain walked
// sequentially per request. Vendor idiosyncrasies live inside per-kind
// handlers; the rest of the pipeline only sees Invoke.
package provider

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// Role selects which chain a request walks. The router never falls back
// across roles.
type Role string

const (
	RoleGenerator Role = "generator"
	RoleValidator Role = "validator"
)

// CostTier orders profiles by the price of using them. The router prefers
// cheaper tiers regardless of priority.
type CostTier string

const (
	TierLocalFree CostTier = "local-free"
	TierCloudFree CostTier = "cloud-free"
	TierCloudPaid CostTier = "cloud-paid"
)

// rank returns the sort rank for a tier; unknown tiers sort last.
func (t CostTier) rank() int {
	switch t {
	case TierLocalFree:
		return 0
	case TierCloudFree:
		return 1
	case TierCloudPaid:
		return 2
	}
	return 3
}

// Kind selects the wire handler for a profile.
type Kind string

const (
	// KindOllama talks to an Ollama server's native generate API.
	KindOllama Kind = "ollama"
	// KindOpenAI talks to any OpenAI-compatible chat completions endpoint
	// (OpenAI, OpenRouter, Groq, and most local gateways).
	KindOpenAI Kind = "openai"
)

const (
	_defaultTimeout   = 30 * time.Second
	_defaultMaxTokens = 1024
)

// Profile is the static configuration of one model endpoint.
type Profile struct {
	ProviderID string        `toml:"provider_id"`
	ModelID    string        `toml:"model_id"`
	Role       Role          `toml:"role"`
	CostTier   CostTier      `toml:"cost_tier"`
	Kind       Kind          `toml:"kind"`
	BaseURL    string        `toml:"base_url"`
	// APIKeyEnv names the environment variable holding the credential.
	// Empty means no credential is needed (local endpoints). A profile whose
	// named variable is unset is disabled at startup without error.
	APIKeyEnv        string        `toml:"api_key_env"`
	Timeout          time.Duration `toml:"-"`
	MaxTokens        int           `toml:"max_tokens"`
	RequestsPerMin   int           `toml:"requests_per_minute"`
	RequestsPerHour  int           `toml:"requests_per_hour"`
	SupportsJSONMode bool          `toml:"supports_json_mode"`
	Priority         int           `toml:"priority"`
}

// Validate checks the fields the router depends on.
func (p *Profile) Validate() error {
	if p.ProviderID == "" {
		return fmt.Errorf("profile missing provider_id")
	}
	if p.ModelID == "" {
		return fmt.Errorf("profile %s missing model_id", p.ProviderID)
	}
	if p.Role != RoleGenerator && p.Role != RoleValidator {
		return fmt.Errorf("profile %s has invalid role %q", p.ProviderID, p.Role)
	}
	if p.CostTier.rank() > TierCloudPaid.rank() {
		return fmt.Errorf("profile %s has invalid cost_tier %q", p.ProviderID, p.CostTier)
	}
	if p.Kind != KindOllama && p.Kind != KindOpenAI {
		return fmt.Errorf("profile %s has invalid kind %q", p.ProviderID, p.Kind)
	}
	return nil
}

// credentialed reports whether the profile's credential is available (or not
// needed). Lookup is by environment variable named in APIKeyEnv.
func (p *Profile) credentialed(lookupEnv func(string) (string, bool)) bool {
	if p.APIKeyEnv == "" {
		return true
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	v, ok := lookupEnv(p.APIKeyEnv)
	return ok && v != ""
}

func (p *Profile) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return _defaultTimeout
}

func (p *Profile) maxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return _defaultMaxTokens
}

// sortProfiles orders profiles the way the router walks them: cost tier
// first (local-free, cloud-free, cloud-paid), then priority within role,
// then provider ID for a stable order.
func sortProfiles(profiles []Profile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		if a.CostTier.rank() != b.CostTier.rank() {
			return a.CostTier.rank() < b.CostTier.rank()
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ProviderID < b.ProviderID
	})
}

// DefaultProfiles returns the built-in chain: a local Ollama generator and
// validator first, then free cloud endpoints, then paid ones. Cloud profiles
// are enabled only when their key variable is set.
func DefaultProfiles(ollamaBaseURL string) []Profile {
	return []Profile{
		{
			ProviderID: "ollama-gen", ModelID: "qwen2.5-coder:7b",
			Role: RoleGenerator, CostTier: TierLocalFree, Kind: KindOllama,
			BaseURL: ollamaBaseURL, RequestsPerMin: 60, RequestsPerHour: 1000,
			Priority: 0,
		},
		{
			ProviderID: "openrouter-gen", ModelID: "qwen/qwen-2.5-coder-32b-instruct:free",
			Role: RoleGenerator, CostTier: TierCloudFree, Kind: KindOpenAI,
			BaseURL: "https://openrouter.ai/api/v1", APIKeyEnv: "OPENROUTER_API_KEY",
			RequestsPerMin: 20, RequestsPerHour: 200, Priority: 0,
		},
		{
			ProviderID: "openai-gen", ModelID: "gpt-4o-mini",
			Role: RoleGenerator, CostTier: TierCloudPaid, Kind: KindOpenAI,
			BaseURL: "", APIKeyEnv: "OPENAI_API_KEY",
			RequestsPerMin: 60, RequestsPerHour: 500, Priority: 0,
			SupportsJSONMode: true,
		},
		{
			ProviderID: "ollama-val", ModelID: "qwen2.5-coder:14b",
			Role: RoleValidator, CostTier: TierLocalFree, Kind: KindOllama,
			BaseURL: ollamaBaseURL, RequestsPerMin: 60, RequestsPerHour: 1000,
			Priority: 0, SupportsJSONMode: true,
		},
		{
			ProviderID: "openrouter-val", ModelID: "deepseek/deepseek-chat:free",
			Role: RoleValidator, CostTier: TierCloudFree, Kind: KindOpenAI,
			BaseURL: "https://openrouter.ai/api/v1", APIKeyEnv: "OPENROUTER_API_KEY",
			RequestsPerMin: 20, RequestsPerHour: 200, Priority: 0,
		},
		{
			ProviderID: "openai-val", ModelID: "gpt-4o",
			Role: RoleValidator, CostTier: TierCloudPaid, Kind: KindOpenAI,
			BaseURL: "", APIKeyEnv: "OPENAI_API_KEY",
			RequestsPerMin: 60, RequestsPerHour: 500, Priority: 0,
			SupportsJSONMode: true,
		},
	}
}
