package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaHandler_complete(t *testing.T) {
	t.Parallel()

	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"response":"fixed = line","done":true}`)); err != nil {
			t.Error(err)
		}
	}))
	defer server.Close()

	h := &ollamaHandler{}
	p := Profile{
		ProviderID: "ollama-gen", ModelID: "qwen2.5-coder:7b",
		Role: RoleGenerator, CostTier: TierLocalFree, Kind: KindOllama,
		BaseURL: server.URL, SupportsJSONMode: true,
	}
	content, err := h.complete(context.Background(), p, Request{
		System:      "system framing",
		Prompt:      "rewrite this",
		Temperature: 0.3,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if content != "fixed = line" {
		t.Errorf("content = %q", content)
	}
	if got.Model != "qwen2.5-coder:7b" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if got.Format != "json" {
		t.Errorf("format = %q, want json when supported and requested", got.Format)
	}
	if got.Options.Temperature != 0.3 {
		t.Errorf("temperature = %v", got.Options.Temperature)
	}
	if got.Options.NumPredict != 200 {
		t.Errorf("num_predict = %d, want request cap", got.Options.NumPredict)
	}
}

func TestOllamaHandler_noJSONModeWithoutSupport(t *testing.T) {
	t.Parallel()
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"response":"x","done":true}`))
	}))
	defer server.Close()

	h := &ollamaHandler{}
	p := Profile{
		ProviderID: "ollama-gen", ModelID: "m", Role: RoleGenerator,
		CostTier: TierLocalFree, Kind: KindOllama, BaseURL: server.URL,
	}
	if _, err := h.complete(context.Background(), p, Request{Prompt: "p", JSONMode: true}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Format != "" {
		t.Errorf("format = %q, want empty without profile support", got.Format)
	}
}

func TestOllamaHandler_statusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantKind failKind
	}{
		{"unauthorized", http.StatusUnauthorized, failAuth},
		{"forbidden", http.StatusForbidden, failAuth},
		{"model_not_found", http.StatusNotFound, failAuth},
		{"rate_limited", http.StatusTooManyRequests, failRateLimited},
		{"server_error", http.StatusInternalServerError, failTransport},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			h := &ollamaHandler{}
			p := Profile{
				ProviderID: "x", ModelID: "m", Role: RoleGenerator,
				CostTier: TierLocalFree, Kind: KindOllama, BaseURL: server.URL,
			}
			_, err := h.complete(context.Background(), p, Request{Prompt: "p"})
			var ce *callError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *callError", err)
			}
			if ce.kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", ce.kind, tt.wantKind)
			}
		})
	}
}

func TestOllamaHandler_rateLimitCarriesRetryAfter(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	h := &ollamaHandler{}
	p := Profile{
		ProviderID: "x", ModelID: "m", Role: RoleGenerator,
		CostTier: TierLocalFree, Kind: KindOllama, BaseURL: server.URL,
	}
	_, err := h.complete(context.Background(), p, Request{Prompt: "p"})
	var ce *callError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *callError", err)
	}
	if ce.retryAfter != 42*time.Second {
		t.Errorf("retryAfter = %v, want 42s", ce.retryAfter)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckOllama(t *testing.T) {
	t.Parallel()

	tags := `{"models":[{"name":"qwen2.5-coder:7b"},{"name":"llama3.1:8b"}]}`

	tests := []struct {
		name        string
		status      int
		body        string
		model       string
		wantPresent bool
		wantErr     bool
	}{
		{"model_present", http.StatusOK, tags, "qwen2.5-coder:7b", true, false},
		{"model_absent", http.StatusOK, tags, "mistral:7b", false, false},
		{"empty_models", http.StatusOK, `{"models":[]}`, "any", false, false},
		{"invalid_json", http.StatusOK, `{`, "any", false, true},
		{"http_error", http.StatusInternalServerError, "", "any", false, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tags" {
					t.Errorf("path = %q, want /api/tags", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := CheckOllama(context.Background(), server.URL, tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckOllama: %v", err)
			}
			if !got.Reachable {
				t.Error("Reachable should be true on 200")
			}
			if got.ModelPresent != tt.wantPresent {
				t.Errorf("ModelPresent = %v, want %v", got.ModelPresent, tt.wantPresent)
			}
		})
	}
}

func TestCheckOllama_connectionRefused(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // closed before use: connection refused

	_, err := CheckOllama(context.Background(), server.URL, "any")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}
