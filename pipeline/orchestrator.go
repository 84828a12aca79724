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
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-docflow-go/graph"
)

// NewOrchestratorGraph sequences the reference pipelines as
// sub-pipelines of one parent graph: extraction, WBS, standards, ITP.
// Each sub-pipeline sees only its declared inputs and contributes only
// its declared outputs back; intermediate fields such as loop cursors
// stay private to the child. When the run checkpoints, each child saves
// under its own derived namespace, so a resumed orchestration skips
// sub-pipelines that already completed.
func NewOrchestratorGraph(cfg Config) (*graph.Graph, error) {
	extraction, err := NewExtractionGraph(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction pipeline: %w", err)
	}
	wbs, err := NewWBSGraph(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build wbs pipeline: %w", err)
	}
	standards, err := NewStandardsGraph(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build standards pipeline: %w", err)
	}
	itp, err := NewITPGraph(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build itp pipeline: %w", err)
	}

	return graph.NewStateGraph(orchestratorSchema()).
		AddSubgraphNode("document_extraction", extraction,
			[]string{graph.StateKeyProjectID, StateKeyDocumentIDs},
			[]string{graph.StateKeyDocuments, StateKeyFailedDocuments, StateKeyPersistedKeys}).
		AddSubgraphNode("wbs_extraction", wbs,
			[]string{graph.StateKeyProjectID, graph.StateKeyDocuments},
			[]string{StateKeyWBSStructure, StateKeyPersistedKeys}).
		AddSubgraphNode("standards_resolution", standards,
			[]string{graph.StateKeyProjectID, graph.StateKeyDocuments,
				StateKeyWBSStructure, StateKeyProjectDetails, StateKeyJurisdiction},
			[]string{StateKeyStandards, StateKeyPersistedKeys}).
		AddSubgraphNode("itp_generation", itp,
			[]string{graph.StateKeyProjectID, graph.StateKeyDocuments, StateKeyWBSStructure},
			[]string{StateKeyGeneratedITPs, StateKeyFinalITPItems, StateKeyPersistedKeys}).
		SetEntryPoint("document_extraction").
		AddEdge("document_extraction", "wbs_extraction").
		AddEdge("wbs_extraction", "standards_resolution").
		AddEdge("standards_resolution", "itp_generation").
		SetFinishPoint("itp_generation").
		SetErrorPolicy(graph.FailFast).
		DeclareResumable().
		Compile()
}

func orchestratorSchema() *graph.StateSchema {
	return graph.NewStateSchema().
		AddField(graph.StateKeyProjectID, graph.StateField{
			Type: reflect.TypeOf(""), Required: true,
		}).
		AddField(StateKeyDocumentIDs, graph.StateField{
			Type: reflect.TypeOf([]string{}),
		}).
		AddField(graph.StateKeyDocuments, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyFailedDocuments, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyProjectDetails, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyJurisdiction, graph.StateField{
			Type: reflect.TypeOf(""),
		}).
		AddField(StateKeyWBSStructure, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyStandards, graph.StateField{
			Type: reflect.TypeOf(map[string]any{}),
		}).
		AddField(StateKeyGeneratedITPs, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyFinalITPItems, graph.StateField{
			Type: reflect.TypeOf([]any{}),
		}).
		AddField(StateKeyPersistedKeys, graph.StateField{
			Type: reflect.TypeOf([]string{}), Reducer: graph.StringSliceReducer,
		}).
		AddField(graph.StateKeyError, graph.StateField{
			Type: reflect.TypeOf(""),
		})
}
