//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides interfaces for working with LLMs.
package model

import "context"

// Model is the interface for all language models used by pipeline nodes.
//
// Error Handling Strategy:
// This interface uses a dual-layer error handling approach:
//
// 1. Function-level errors (returned as `error`):
//   - System-level failures that prevent communication
//   - Examples: nil request, network issues, invalid parameters
//
// 2. Response-level errors (Response.Error field):
//   - API-level errors returned by the model service
//   - Examples: API rate limits, content filtering, model errors
//
// Pipeline nodes treat both layers as a node failure: the executor
// records them in the unified error field and routing continues per the
// graph's error policy.
type Model interface {
	// GenerateStructured generates content constrained to the request's
	// output schema and returns the raw JSON payload.
	GenerateStructured(ctx context.Context, request *Request) (*Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}

// OutputSchema constrains a generation to a JSON schema via the
// provider's native structured-output support.
type OutputSchema struct {
	// Name identifies the schema to the provider.
	Name string
	// Description helps the model interpret the schema.
	Description string
	// Schema is the JSON schema definition.
	Schema map[string]any
	// Strict enables strict schema adherence where supported.
	Strict bool
}

// Request is a structured generation request.
type Request struct {
	// SystemPrompt sets the system role content, empty to omit.
	SystemPrompt string
	// Prompt is the user content.
	Prompt string
	// OutputSchema constrains the response shape. Nil requests free text.
	OutputSchema *OutputSchema

	// Generation parameters. Nil fields use provider defaults.
	Temperature *float64
	MaxTokens   *int
}

// Usage reports token accounting for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResponseError is an API-level error delivered inside a Response.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`
	// Type is the provider's error classification.
	Type string `json:"type"`
}

// Error type constants.
const (
	// ErrorTypeAPIError is the error type for API errors.
	ErrorTypeAPIError = "api_error"
	// ErrorTypeEmptyResponse is the error type for responses with no content.
	ErrorTypeEmptyResponse = "empty_response"
)

// Response is the result of a structured generation.
type Response struct {
	// ID is the provider's response identifier.
	ID string
	// Model is the model that produced the response.
	Model string
	// Content is the generated payload, JSON when an OutputSchema was set.
	Content string
	// Usage is the token accounting, nil when the provider omitted it.
	Usage *Usage
	// Error is the API-level error, nil on success.
	Error *ResponseError
}
