//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package pipeline provides the reference document-processing pipelines
// built on the graph engine: document extraction, WBS extraction,
// standards resolution and ITP generation, plus an orchestrator that
// sequences them as sub-pipelines.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
	"trpc.group/trpc-go/trpc-docflow-go/document"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
	"trpc.group/trpc-go/trpc-docflow-go/model"
)

// State keys shared across the reference pipelines. Documents flow
// through state as []map[string]any with id, file_name and content so
// they survive checkpoint serialization unchanged.
const (
	// StateKeyDocumentIDs is the list of document identifiers to fetch.
	StateKeyDocumentIDs = "document_ids"
	// StateKeyFailedDocuments lists per-document fetch failures.
	StateKeyFailedDocuments = "failed_documents"
	// StateKeyPersistedKeys accumulates the asset keys written by a run.
	StateKeyPersistedKeys = "persisted_keys"
	// StateKeyWBSStructure is the generated work breakdown structure.
	StateKeyWBSStructure = "wbs_structure"
	// StateKeyWBSSpec is the asset write payload built from the WBS.
	StateKeyWBSSpec = "wbs_spec"
	// StateKeyProjectDetails carries optional project context.
	StateKeyProjectDetails = "project_details"
	// StateKeyJurisdiction is the project jurisdiction code.
	StateKeyJurisdiction = "project_jurisdiction"
	// StateKeyStandards is the standards resolution result.
	StateKeyStandards = "standards_resolution"
	// StateKeyRequiredITPs lists the ITPs the plan step identified.
	StateKeyRequiredITPs = "required_itps"
	// StateKeyITPDetails holds the per-ITP collected source content.
	StateKeyITPDetails = "itp_details"
	// StateKeyGeneratedITPs holds one result entry per required ITP.
	StateKeyGeneratedITPs = "generated_itps"
	// StateKeyFinalITPItems is the consolidated item list across ITPs.
	StateKeyFinalITPItems = "final_itp_items"
	// StateKeyITPCursor is the content-collection loop cursor.
	StateKeyITPCursor = "current_itp_index"
	// StateKeyGenerationCursor is the generation loop cursor.
	StateKeyGenerationCursor = "current_generation_index"
)

const defaultFetchWorkers = 4

// Config wires the collaborators the reference pipelines depend on.
type Config struct {
	// Model generates structured completions for the LLM-backed nodes.
	Model model.Model
	// Source fetches project documents by identifier.
	Source document.Source
	// Store persists pipeline outputs with idempotency keys.
	Store asset.Store
	// Workers bounds the extraction fetch concurrency; <= 0 uses a default.
	Workers int
}

func (c Config) requireModel(pipeline string) error {
	if c.Model == nil {
		return fmt.Errorf("%s pipeline requires a model", pipeline)
	}
	return nil
}

func (c Config) requireSource(pipeline string) error {
	if c.Source == nil {
		return fmt.Errorf("%s pipeline requires a document source", pipeline)
	}
	return nil
}

func (c Config) requireStore(pipeline string) error {
	if c.Store == nil {
		return fmt.Errorf("%s pipeline requires an asset store", pipeline)
	}
	return nil
}

// decodeObject unwraps the dual-layer model error contract and decodes
// the structured JSON payload: a transport failure, an API-level
// Response.Error and an undecodable payload all surface as one error.
func decodeObject(rsp *model.Response, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if rsp == nil {
		return nil, errors.New("model returned no response")
	}
	if rsp.Error != nil {
		return nil, fmt.Errorf("model error (%s): %s", rsp.Error.Type, rsp.Error.Message)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(rsp.Content), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode structured output: %w", err)
	}
	return payload, nil
}

// asMapSlice normalizes a state value to a slice of maps. Checkpoint
// round trips decode lists as []any, so both shapes must be accepted.
func asMapSlice(v any) []map[string]any {
	switch s := v.(type) {
	case []map[string]any:
		return s
	case []any:
		out := make([]map[string]any, 0, len(s))
		for _, e := range s {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// listLen counts the entries of a state list regardless of whether it
// is still typed or has been through a checkpoint round trip.
func listLen(v any) int {
	if s := anySlice(v); s != nil {
		return len(s)
	}
	return len(asMapSlice(v))
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// combinedContent formats fetched documents into one prompt block.
func combinedContent(docs []map[string]any) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("Document: %s (ID: %s)\n%s",
			stringField(d, "file_name"), stringField(d, "id"), stringField(d, "content")))
	}
	return strings.Join(parts, "\n\n")
}

func documentIDs(docs []map[string]any) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if id := stringField(d, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// slugify builds a conservative identifier segment for asset keys.
func slugify(text string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}

func projectID(state graph.State) string {
	id, _ := state[graph.StateKeyProjectID].(string)
	return id
}
