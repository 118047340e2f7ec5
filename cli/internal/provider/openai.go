package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openaiHandler talks to any OpenAI-compatible chat completions endpoint.
// A fresh client is built per call from the profile's base URL and key
// variable; connection pooling lives in the shared default transport.
type openaiHandler struct {
	lookupEnv func(string) (string, bool) // nil = os.LookupEnv
}

func (h *openaiHandler) env(key string) (string, bool) {
	if h.lookupEnv != nil {
		return h.lookupEnv(key)
	}
	return os.LookupEnv(key)
}

// complete issues one chat completion with a single user message carrying
// the prompt. JSON-object response format is requested when the request asks
// for it and the profile supports it.
func (h *openaiHandler) complete(ctx context.Context, p Profile, req Request) (string, error) {
	apiKey := ""
	if p.APIKeyEnv != "" {
		v, ok := h.env(p.APIKeyEnv)
		if !ok || v == "" {
			return "", &callError{kind: failAuth, err: fmt.Errorf("credential %s not set", p.APIKeyEnv)}
		}
		apiKey = strings.TrimSpace(v)
	}
	cfg := openai.DefaultConfig(apiKey)
	if p.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(p.BaseURL, "/")
	}
	client := openai.NewClientWithConfig(cfg)

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})
	chatReq := openai.ChatCompletionRequest{
		Model:       p.ModelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.maxTokens(p),
	}
	if req.JSONMode && p.SupportsJSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &callError{kind: failTransport, err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps SDK errors onto the router's failure kinds.
func classifyOpenAIError(ctx context.Context, err error) *callError {
	if ctx.Err() != nil {
		return &callError{kind: failTimeout, err: ctx.Err()}
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status != 0 {
		if ce := classifyStatus(status, ""); ce != nil {
			ce.err = err
			return ce
		}
	}
	return &callError{kind: failTransport, err: err}
}
