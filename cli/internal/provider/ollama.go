package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable indicates an Ollama server could not be reached
// (connection refused, timeout, or non-2xx).
var ErrUnreachable = errors.New("ollama server unreachable")

const _checkTimeout = 10 * time.Second

// ollamaHandler talks to an Ollama server's native /api/generate endpoint.
// The zero value uses http.DefaultClient; the router owns the per-call
// deadline via context, so the embedded client carries no timeout.
type ollamaHandler struct {
	httpClient *http.Client
}

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	System  string `json:"system,omitempty"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Format  string `json:"format,omitempty"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (h *ollamaHandler) client() *http.Client {
	if h.httpClient != nil {
		return h.httpClient
	}
	return http.DefaultClient
}

// complete issues one non-streaming generate call. JSON mode is requested
// via Ollama's format field when the request asks for it and the profile
// supports it.
func (h *ollamaHandler) complete(ctx context.Context, p Profile, req Request) (string, error) {
	body := ollamaGenerateRequest{
		Model:  p.ModelID,
		System: req.System,
		Prompt: req.Prompt,
		Stream: false,
	}
	body.Options.Temperature = req.Temperature
	body.Options.NumPredict = req.maxTokens(p)
	if req.JSONMode && p.SupportsJSONMode {
		body.Format = "json"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &callError{kind: failTransport, err: fmt.Errorf("ollama generate: encode request: %w", err)}
	}
	url := strings.TrimSuffix(p.BaseURL, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &callError{kind: failTransport, err: fmt.Errorf("ollama generate: build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.client().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", &callError{kind: failTimeout, err: ctx.Err()}
		}
		return "", &callError{kind: failTransport, err: fmt.Errorf("ollama generate: %w", errors.Join(ErrUnreachable, err))}
	}
	defer resp.Body.Close()
	if ce := classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); ce != nil {
		return "", ce
	}
	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &callError{kind: failTransport, err: fmt.Errorf("ollama generate: parse response: %w", err)}
	}
	return out.Response, nil
}

// classifyStatus maps an HTTP status to a callError kind; nil means 2xx.
func classifyStatus(status int, retryAfter string) *callError {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return &callError{kind: failAuth, status: status, err: fmt.Errorf("HTTP %d", status)}
	case status == http.StatusTooManyRequests:
		return &callError{kind: failRateLimited, status: status, retryAfter: parseRetryAfter(retryAfter), err: fmt.Errorf("HTTP %d", status)}
	}
	return &callError{kind: failTransport, status: status, err: fmt.Errorf("HTTP %d", status)}
}

// parseRetryAfter parses a Retry-After header given as delay seconds.
// Unparseable or absent values return 0 (router applies its default).
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// CheckResult is the result of an Ollama health/model check.
type CheckResult struct {
	Reachable    bool     // Server responded with 200.
	ModelPresent bool     // Requested model name appears in the tags list.
	ModelNames   []string // All model names from /api/tags (for diagnostics).
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckOllama verifies the server at baseURL is reachable and whether model
// is present. It GETs /api/tags; on connection or HTTP error it returns
// ErrUnreachable (via %w). Used by the check command before a run.
func CheckOllama(ctx context.Context, baseURL, model string) (*CheckResult, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request: %w", err)
	}
	client := &http.Client{Timeout: _checkTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: %w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}
	var body tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ollama tags: parse response: %w", err)
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	modelPresent := false
	for _, n := range names {
		if n == model {
			modelPresent = true
			break
		}
	}
	return &CheckResult{Reachable: true, ModelPresent: modelPresent, ModelNames: names}, nil
}
