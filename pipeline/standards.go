//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package pipeline

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
	"trpc.group/trpc-go/trpc-docflow-go/model"
)

const standardsSystemPrompt = "You are an expert in Australian construction standards. " +
	"Identify the standards and codes applicable to the project, " +
	"prioritizing the project's jurisdiction, and list compliance gaps."

// NewStandardsGraph builds the standards resolution pipeline. It is a
// single analysis node under a recorded-error policy: a failed
// resolution leaves the error in state for downstream consumers instead
// of aborting an orchestrated run.
func NewStandardsGraph(cfg Config) (*graph.Graph, error) {
	if err := cfg.requireModel("standards"); err != nil {
		return nil, err
	}
	if err := cfg.requireStore("standards"); err != nil {
		return nil, err
	}

	return graph.NewStateGraph(standardsSchema()).
		AddNode("resolve_standards", resolveStandardsNode(cfg.Model, cfg.Store)).
		SetEntryPoint("resolve_standards").
		SetFinishPoint("resolve_standards").
		SetErrorPolicy(graph.RecordAndContinue).
		DeclareResumable().
		Compile()
}

func standardsSchema() *graph.StateSchema {
	return graph.NewStateSchema().
		AddField(graph.StateKeyProjectID, graph.StateField{
			Type: reflect.TypeOf(""), Required: true,
		}).
		AddField(graph.StateKeyDocuments, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyWBSStructure, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyProjectDetails, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyJurisdiction, graph.StateField{
			Type: reflect.TypeOf(""),
		}).
		AddField(StateKeyStandards, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyPersistedKeys, graph.StateField{
			Type: reflect.TypeOf([]string{}), Reducer: graph.StringSliceReducer,
		}).
		AddField(graph.StateKeyError, graph.StateField{
			Type: reflect.TypeOf(""),
		})
}

func standardsOutputSchema() map[string]any {
	match := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"standard_code":   map[string]any{"type": "string"},
			"standard_title":  map[string]any{"type": "string"},
			"relevance_score": map[string]any{"type": "number"},
			"applicability_reason": map[string]any{
				"type": "string",
			},
		},
		"required":             []string{"standard_code", "standard_title"},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"primary_standards":        map[string]any{"type": "array", "items": match},
			"secondary_standards":      map[string]any{"type": "array", "items": match},
			"jurisdictional_standards": map[string]any{"type": "array", "items": match},
			"compliance_gaps": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"primary_standards"},
		"additionalProperties": false,
	}
}

// inputCompleteness scores how much of the optional analysis context is
// present: documents, project details, WBS and jurisdiction each count
// for a quarter.
func inputCompleteness(docs []map[string]any, details, wbs map[string]any, jurisdiction string) float64 {
	score := 0.0
	if len(docs) > 0 {
		score++
	}
	if len(details) > 0 {
		score++
	}
	if len(wbs) > 0 {
		score++
	}
	if jurisdiction != "" {
		score++
	}
	return score / 4.0
}

func resolveStandardsNode(m model.Model, store asset.Store) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		docs := asMapSlice(state[graph.StateKeyDocuments])
		details := asMap(state[StateKeyProjectDetails])
		wbs := asMap(state[StateKeyWBSStructure])
		jurisdiction, _ := state[StateKeyJurisdiction].(string)

		confidence := math.Min(0.9, inputCompleteness(docs, details, wbs, jurisdiction)*0.8+0.2)

		var prompt strings.Builder
		fmt.Fprintf(&prompt, "JURISDICTION:\n%s\n\n", valueOr(jurisdiction, "Not specified"))
		if len(details) > 0 {
			fmt.Fprintf(&prompt, "PROJECT DETAILS:\n%v\n\n", details)
		}
		if len(wbs) > 0 {
			fmt.Fprintf(&prompt, "WORK BREAKDOWN STRUCTURE:\n%v\n\n", wbs["nodes"])
		}
		fmt.Fprintf(&prompt, "DOCUMENT CONTENT:\n\n%s", combinedContent(docs))

		temperature := 0.1
		rsp, err := m.GenerateStructured(ctx, &model.Request{
			SystemPrompt: standardsSystemPrompt,
			Prompt:       prompt.String(),
			OutputSchema: &model.OutputSchema{
				Name:        "standards_resolution",
				Description: "Applicable standards with compliance gaps",
				Schema:      standardsOutputSchema(),
				Strict:      true,
			},
			Temperature: &temperature,
		})
		payload, err := decodeObject(rsp, err)
		if err != nil {
			return nil, fmt.Errorf("standards resolution failed: %w", err)
		}
		payload["confidence_score"] = confidence
		payload["input_documents"] = documentIDs(docs)

		project := projectID(state)
		key := asset.Key("standards_resolution", project)
		if _, err := store.Upsert(ctx, asset.WriteSpec{
			Key:       key,
			Kind:      asset.KindStandardsResolution,
			ProjectID: project,
			Payload:   payload,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist standards resolution: %w", err)
		}

		return graph.State{
			StateKeyStandards:     payload,
			StateKeyPersistedKeys: []string{key},
		}, nil
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
