// Package config provides linefix configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .linefix/config.toml (relative to the working directory)
//   - Global: XDG config dir, e.g. ~/.config/linefix/config.toml (see os.UserConfigDir)
//
// Environment variables (override config files when set):
//   - LINEFIX_MAX_WIDTH (per-line width ceiling; positive integer),
//   - LINEFIX_OLLAMA_BASE_URL (local model server root),
//   - LINEFIX_TIMEOUT (per-provider timeout; Go duration string or integer seconds),
//   - LINEFIX_PARALLEL (batch concurrency; positive integer),
//   - LINEFIX_INDENT_UNIT (continuation indent width; positive integer).
//
// Provider profiles are configured as [[providers]] blocks in either config
// file; blocks from the repo file are appended after the global file's.
// When no file defines any profile, the built-in default chain is used.
// Each profile names the environment variable holding its credential;
// absence of the variable disables the profile at startup without error.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"linefix/cli/internal/erruser"
	"linefix/cli/internal/provider"
)

// Config holds all linefix configuration.
type Config struct {
	// MaxWidth is the width ceiling applied to violations that do not carry
	// their own. Default 79 (the caller owns the 79-vs-80 policy).
	MaxWidth int
	// OllamaBaseURL is the local model server root used by default profiles.
	OllamaBaseURL string
	// Timeout is the per-provider call timeout applied to profiles that do
	// not set their own.
	Timeout time.Duration
	// Parallel is the batch concurrency limit.
	Parallel int
	// IndentUnit is the Tier 1 continuation indent in spaces.
	IndentUnit int
	// Providers is the declarative profile list, in file order. Empty means
	// use provider.DefaultProfiles.
	Providers []provider.Profile
}

// Overrides represents optional CLI flag overrides. Non-nil pointer means
// "override with this value".
type Overrides struct {
	MaxWidth      *int
	OllamaBaseURL *string
	Timeout       *time.Duration
	Parallel      *int
	IndentUnit    *int
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// WorkDir is the directory whose .linefix/config.toml is the repo config.
	WorkDir string
	// GlobalConfigPath is the global config file path; if empty, XDG path is used.
	GlobalConfigPath string
	// Env is the environment key=value slice; if nil, os.Environ() is used.
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	_defaultMaxWidth      = 79
	_defaultOllamaBaseURL = "http://localhost:11434"
	_defaultTimeout       = 30 * time.Second
	_defaultParallel      = 4
	_defaultIndentUnit    = 4
)

// errIntOverflow is returned when an int64 value does not fit in int (e.g. on 32-bit or huge TOML/env values).
var errIntOverflow = errors.New("value out of range for int")

// int64ToInt converts n to int. It returns an error if n is outside the range of int.
func int64ToInt(n int64) (int, error) {
	if n < int64(math.MinInt) || n > int64(math.MaxInt) {
		return 0, errIntOverflow
	}
	return int(n), nil
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		MaxWidth:      _defaultMaxWidth,
		OllamaBaseURL: _defaultOllamaBaseURL,
		Timeout:       _defaultTimeout,
		Parallel:      _defaultParallel,
		IndentUnit:    _defaultIndentUnit,
	}
}

// EffectiveProfiles returns the configured profile list, or the built-in
// default chain when no file declared any. The config-level timeout is
// applied to profiles without their own.
func (c Config) EffectiveProfiles() []provider.Profile {
	profiles := c.Providers
	if len(profiles) == 0 {
		profiles = provider.DefaultProfiles(c.OllamaBaseURL)
	}
	out := make([]provider.Profile, len(profiles))
	for i, p := range profiles {
		if p.Timeout == 0 {
			p.Timeout = c.Timeout
		}
		out[i] = p
	}
	return out
}

// Load loads configuration with precedence: defaults < global file < repo file < env < overrides.
// Missing config files are ignored. Invalid TOML or invalid env values return an error.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, erruser.New("Could not determine config directory.", err)
		}
		globalPath = filepath.Join(dir, "linefix", "config.toml")
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.WorkDir != "" {
		repoPath := filepath.Join(opts.WorkDir, ".linefix", "config.toml")
		if err := mergeFile(&cfg, repoPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	applyOverrides(&cfg, opts.Overrides)
	return &cfg, nil
}

// fileProfile is the TOML shape of one [[providers]] block. Timeout is a
// string so both Go durations and integer seconds parse.
type fileProfile struct {
	ProviderID       string `toml:"provider_id"`
	ModelID          string `toml:"model_id"`
	Role             string `toml:"role"`
	CostTier         string `toml:"cost_tier"`
	Kind             string `toml:"kind"`
	BaseURL          string `toml:"base_url"`
	APIKeyEnv        string `toml:"api_key_env"`
	Timeout          string `toml:"timeout"`
	MaxTokens        int64  `toml:"max_tokens"`
	RequestsPerMin   int64  `toml:"requests_per_minute"`
	RequestsPerHour  int64  `toml:"requests_per_hour"`
	SupportsJSONMode bool   `toml:"supports_json_mode"`
	Priority         int64  `toml:"priority"`
}

func (f fileProfile) toProfile() (provider.Profile, error) {
	p := provider.Profile{
		ProviderID:       f.ProviderID,
		ModelID:          f.ModelID,
		Role:             provider.Role(strings.ToLower(strings.TrimSpace(f.Role))),
		CostTier:         provider.CostTier(strings.ToLower(strings.TrimSpace(f.CostTier))),
		Kind:             provider.Kind(strings.ToLower(strings.TrimSpace(f.Kind))),
		BaseURL:          f.BaseURL,
		APIKeyEnv:        f.APIKeyEnv,
		SupportsJSONMode: f.SupportsJSONMode,
	}
	if f.Timeout != "" {
		d, err := parseDuration(f.Timeout)
		if err != nil {
			return p, fmt.Errorf("profile %s: timeout: %w", f.ProviderID, err)
		}
		p.Timeout = d
	}
	var err error
	if p.MaxTokens, err = int64ToInt(f.MaxTokens); err != nil {
		return p, fmt.Errorf("profile %s: max_tokens: %w", f.ProviderID, err)
	}
	if p.RequestsPerMin, err = int64ToInt(f.RequestsPerMin); err != nil {
		return p, fmt.Errorf("profile %s: requests_per_minute: %w", f.ProviderID, err)
	}
	if p.RequestsPerHour, err = int64ToInt(f.RequestsPerHour); err != nil {
		return p, fmt.Errorf("profile %s: requests_per_hour: %w", f.ProviderID, err)
	}
	if p.Priority, err = int64ToInt(f.Priority); err != nil {
		return p, fmt.Errorf("profile %s: priority: %w", f.ProviderID, err)
	}
	return p, p.Validate()
}

// mergeFile reads path and merges into cfg. Only overwrites fields that are
// present and non-zero in the file (so explicit empty/zero in TOML keeps
// previous value). [[providers]] blocks are appended, not replaced.
// Missing file is skipped (no error).
func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Invalid configuration file.", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return erruser.New("Could not read configuration file.", err)
	}
	var file struct {
		MaxWidth      *int64        `toml:"max_width"`
		OllamaBaseURL *string       `toml:"ollama_base_url"`
		Timeout       *string       `toml:"timeout"`
		Parallel      *int64        `toml:"parallel"`
		IndentUnit    *int64        `toml:"indent_unit"`
		Providers     []fileProfile `toml:"providers"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.New("Invalid configuration in "+path+".", err)
	}
	if file.MaxWidth != nil && *file.MaxWidth > 0 {
		v, err := int64ToInt(*file.MaxWidth)
		if err != nil {
			return erruser.New("Configuration max_width value out of range.", err)
		}
		cfg.MaxWidth = v
	}
	if file.OllamaBaseURL != nil && *file.OllamaBaseURL != "" {
		cfg.OllamaBaseURL = *file.OllamaBaseURL
	}
	if file.Timeout != nil && *file.Timeout != "" {
		d, err := parseDuration(*file.Timeout)
		if err != nil {
			return erruser.New("Configuration timeout is invalid.", err)
		}
		cfg.Timeout = d
	}
	if file.Parallel != nil && *file.Parallel > 0 {
		v, err := int64ToInt(*file.Parallel)
		if err != nil {
			return erruser.New("Configuration parallel value out of range.", err)
		}
		cfg.Parallel = v
	}
	if file.IndentUnit != nil && *file.IndentUnit > 0 {
		v, err := int64ToInt(*file.IndentUnit)
		if err != nil {
			return erruser.New("Configuration indent_unit value out of range.", err)
		}
		cfg.IndentUnit = v
	}
	for _, fp := range file.Providers {
		p, err := fp.toProfile()
		if err != nil {
			return erruser.New("Invalid provider profile in "+path+".", err)
		}
		cfg.Providers = append(cfg.Providers, p)
	}
	return nil
}

// parseDuration parses a Go duration string ("45s", "2m") or a bare integer
// meaning seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// applyEnv merges LINEFIX_* variables from env (key=value slice) into cfg.
func applyEnv(cfg *Config, env []string) error {
	vars := map[string]string{}
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			vars[kv[:i]] = kv[i+1:]
		}
	}
	if v, ok := vars["LINEFIX_MAX_WIDTH"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return erruser.New("LINEFIX_MAX_WIDTH must be a positive integer.", err)
		}
		cfg.MaxWidth = n
	}
	if v, ok := vars["LINEFIX_OLLAMA_BASE_URL"]; ok && v != "" {
		cfg.OllamaBaseURL = v
	}
	if v, ok := vars["LINEFIX_TIMEOUT"]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New("LINEFIX_TIMEOUT is invalid; use a Go duration or seconds.", err)
		}
		cfg.Timeout = d
	}
	if v, ok := vars["LINEFIX_PARALLEL"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return erruser.New("LINEFIX_PARALLEL must be a positive integer.", err)
		}
		cfg.Parallel = n
	}
	if v, ok := vars["LINEFIX_INDENT_UNIT"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return erruser.New("LINEFIX_INDENT_UNIT must be a positive integer.", err)
		}
		cfg.IndentUnit = n
	}
	return nil
}

// applyOverrides merges CLI flag overrides (highest precedence).
func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.MaxWidth != nil && *o.MaxWidth > 0 {
		cfg.MaxWidth = *o.MaxWidth
	}
	if o.OllamaBaseURL != nil && *o.OllamaBaseURL != "" {
		cfg.OllamaBaseURL = *o.OllamaBaseURL
	}
	if o.Timeout != nil && *o.Timeout > 0 {
		cfg.Timeout = *o.Timeout
	}
	if o.Parallel != nil && *o.Parallel > 0 {
		cfg.Parallel = *o.Parallel
	}
	if o.IndentUnit != nil && *o.IndentUnit > 0 {
		cfg.IndentUnit = *o.IndentUnit
	}
}
