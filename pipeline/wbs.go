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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
	"trpc.group/trpc-go/trpc-docflow-go/model"
)

const wbsSystemPrompt = "You are an expert construction planner. " +
	"Decompose the project documents into a hierarchical work breakdown structure. " +
	"Mark leaf work packages that require an inspection and test plan."

// NewWBSGraph builds the WBS extraction pipeline: generate the work
// breakdown structure from document content, shape the asset payload,
// and persist it under one key per project. A project has exactly one
// WBS, so regeneration replaces the previous version.
func NewWBSGraph(cfg Config) (*graph.Graph, error) {
	if err := cfg.requireModel("wbs"); err != nil {
		return nil, err
	}
	if err := cfg.requireStore("wbs"); err != nil {
		return nil, err
	}

	return graph.NewStateGraph(wbsSchema()).
		AddNode("generate_wbs", generateWBSNode(cfg.Model)).
		AddNode("build_wbs_spec", buildWBSSpecNode()).
		AddNode("persist_wbs", persistWBSNode(cfg.Store)).
		SetEntryPoint("generate_wbs").
		AddEdge("generate_wbs", "build_wbs_spec").
		AddEdge("build_wbs_spec", "persist_wbs").
		SetFinishPoint("persist_wbs").
		SetErrorPolicy(graph.FailFast).
		DeclareResumable().
		Compile()
}

func wbsSchema() *graph.StateSchema {
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
		AddField(StateKeyWBSSpec, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyPersistedKeys, graph.StateField{
			Type: reflect.TypeOf([]string{}), Reducer: graph.StringSliceReducer,
		}).
		AddField(graph.StateKeyError, graph.StateField{
			Type: reflect.TypeOf(""),
		})
}

func wbsOutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"nodes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":           map[string]any{"type": "string"},
						"parent_id":    map[string]any{"type": []string{"string", "null"}},
						"node_type":    map[string]any{"type": "string"},
						"name":         map[string]any{"type": "string"},
						"description":  map[string]any{"type": "string"},
						"itp_required": map[string]any{"type": "boolean"},
						"is_leaf_node": map[string]any{"type": "boolean"},
					},
					"required":             []string{"id", "node_type", "name"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"nodes"},
		"additionalProperties": false,
	}
}

func generateWBSNode(m model.Model) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		docs := asMapSlice(state[graph.StateKeyDocuments])
		content := combinedContent(docs)
		if len(docs) == 0 || strings.TrimSpace(content) == "" {
			return nil, errors.New("wbs extraction requires extracted document content; none available")
		}

		temperature := 0.2
		rsp, err := m.GenerateStructured(ctx, &model.Request{
			SystemPrompt: wbsSystemPrompt,
			Prompt:       "PROJECT DOCUMENTS:\n\n" + content,
			OutputSchema: &model.OutputSchema{
				Name:        "wbs_generation",
				Description: "Hierarchical work breakdown structure",
				Schema:      wbsOutputSchema(),
				Strict:      true,
			},
			Temperature: &temperature,
		})
		payload, err := decodeObject(rsp, err)
		if err != nil {
			return nil, fmt.Errorf("wbs generation failed: %w", err)
		}

		nodes := anySlice(payload["nodes"])
		structure := map[string]any{
			"nodes": nodes,
			"metadata": map[string]any{
				"extraction_method":      "llm_structured_output",
				"llm_model":              m.Info().Name,
				"source_documents_count": len(docs),
				"total_nodes":            len(nodes),
			},
		}
		return graph.State{StateKeyWBSStructure: structure}, nil
	}
}

// buildWBSSpecNode shapes the asset write payload from the generated
// structure, kept separate from persistence so a resumed run that
// already generated the WBS skips straight to the write.
func buildWBSSpecNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		structure := asMap(state[StateKeyWBSStructure])
		if listLen(structure["nodes"]) == 0 {
			return nil, errors.New("wbs structure has no nodes to persist")
		}
		spec := map[string]any{
			"name":    "Work Breakdown Structure",
			"content": structure,
			"metadata": map[string]any{
				"plan_type": "wbs",
				"category":  "planning",
			},
		}
		return graph.State{StateKeyWBSSpec: spec}, nil
	}
}

func persistWBSNode(store asset.Store) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		project := projectID(state)
		key := asset.Key("wbs", project)
		_, err := store.Upsert(ctx, asset.WriteSpec{
			Key:       key,
			Kind:      asset.KindWBS,
			ProjectID: project,
			Payload:   asMap(state[StateKeyWBSSpec]),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist wbs: %w", err)
		}
		return graph.State{StateKeyPersistedKeys: []string{key}}, nil
	}
}
