//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-docflow-go/model"
)

func newTestServer(t *testing.T, status int, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, capture))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "test-model",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"items\":[]}"}}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestGenerateStructured(t *testing.T) {
	var captured map[string]any
	server := newTestServer(t, http.StatusOK, completionBody, &captured)

	m := New("test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	response, err := m.GenerateStructured(context.Background(), &model.Request{
		SystemPrompt: "You extract work breakdown structures.",
		Prompt:       "Extract from this document.",
		OutputSchema: &model.OutputSchema{
			Name:   "wbs",
			Schema: map[string]any{"type": "object"},
			Strict: true,
		},
	})
	require.NoError(t, err)
	require.Nil(t, response.Error)
	assert.Equal(t, `{"items":[]}`, response.Content)
	require.NotNil(t, response.Usage)
	assert.Equal(t, 15, response.Usage.TotalTokens)

	// The wire request carries the schema as a native response format.
	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok, "request body missing response_format: %v", captured)
	assert.Equal(t, "json_schema", format["type"])

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

func TestGenerateStructuredWithoutSchema(t *testing.T) {
	var captured map[string]any
	server := newTestServer(t, http.StatusOK, completionBody, &captured)

	m := New("test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	_, err := m.GenerateStructured(context.Background(), &model.Request{Prompt: "Summarize."})
	require.NoError(t, err)

	if _, ok := captured["response_format"]; ok {
		t.Error("response_format set without an output schema")
	}
	messages := captured["messages"].([]any)
	assert.Len(t, messages, 1)
}

func TestGenerateStructuredNilRequest(t *testing.T) {
	m := New("test-model")
	_, err := m.GenerateStructured(context.Background(), nil)
	assert.Error(t, err)
}

func TestGenerateStructuredAPIError(t *testing.T) {
	server := newTestServer(t, http.StatusTooManyRequests,
		`{"error": {"message": "rate limited", "type": "rate_limit_exceeded"}}`, nil)

	m := New("test-model", WithAPIKey("test-key"), WithBaseURL(server.URL),
		WithOpenAIOptions())
	response, err := m.GenerateStructured(context.Background(), &model.Request{Prompt: "x"})
	// API-level failures come back in the response, not as a transport error.
	require.NoError(t, err)
	require.NotNil(t, response.Error)
	assert.Equal(t, model.ErrorTypeAPIError, response.Error.Type)
	assert.Contains(t, response.Error.Message, "rate limited")
}

func TestGenerateStructuredEmptyChoices(t *testing.T) {
	server := newTestServer(t, http.StatusOK,
		`{"id": "chatcmpl-2", "object": "chat.completion", "model": "test-model", "choices": []}`, nil)

	m := New("test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	response, err := m.GenerateStructured(context.Background(), &model.Request{Prompt: "x"})
	require.NoError(t, err)
	require.NotNil(t, response.Error)
	assert.Equal(t, model.ErrorTypeEmptyResponse, response.Error.Type)
}

func TestRequestCallbacks(t *testing.T) {
	server := newTestServer(t, http.StatusOK, completionBody, nil)

	var sawRequest, sawResponse bool
	m := New("test-model",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithChatRequestCallback(func(ctx context.Context, req *openai.ChatCompletionNewParams) {
			sawRequest = true
		}),
		WithChatResponseCallback(func(ctx context.Context,
			req *openai.ChatCompletionNewParams, resp *openai.ChatCompletion) {
			sawResponse = true
		}),
	)
	_, err := m.GenerateStructured(context.Background(), &model.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, sawRequest)
	assert.True(t, sawResponse)
}

func TestInfo(t *testing.T) {
	m := New("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
}
