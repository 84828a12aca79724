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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-docflow-go/asset/inmemory"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
)

func TestStandardsResolvesAndPersists(t *testing.T) {
	m := newFakeModel()
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewStandardsGraph(Config{Model: m, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		graph.StateKeyDocuments: projectDocuments(),
		StateKeyWBSStructure:    map[string]any{"nodes": []any{map[string]any{"name": "Earthworks"}}},
		StateKeyProjectDetails:  map[string]any{"name": "Ring Road Upgrade"},
		StateKeyJurisdiction:    "SA",
	})
	require.True(t, result.Done)
	assert.Empty(t, result.Error)

	resolution := asMap(result.FinalState[StateKeyStandards])
	require.NotNil(t, resolution)
	// All four inputs present caps confidence at 0.9.
	assert.InDelta(t, 0.9, resolution["confidence_score"], 1e-9)
	assert.Equal(t, []string{"doc-1", "doc-2"}, resolution["input_documents"])

	record, err := store.Get(context.Background(), "standards_resolution:p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Len(t, asMapSlice(record.Payload["primary_standards"]), 1)
}

func TestStandardsConfidenceTracksInputCompleteness(t *testing.T) {
	m := newFakeModel()
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewStandardsGraph(Config{Model: m, Store: store})
	require.NoError(t, err)

	// Only documents and WBS present: completeness 0.5 scores 0.6.
	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		graph.StateKeyDocuments: projectDocuments(),
		StateKeyWBSStructure:    map[string]any{"nodes": []any{}},
	})
	require.True(t, result.Done)

	resolution := asMap(result.FinalState[StateKeyStandards])
	require.NotNil(t, resolution)
	assert.InDelta(t, 0.6, resolution["confidence_score"], 1e-9)
}

func TestStandardsModelFailureIsRecorded(t *testing.T) {
	m := newFakeModel()
	m.errs["standards_resolution"] = errors.New("model unavailable")
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewStandardsGraph(Config{Model: m, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		graph.StateKeyDocuments: projectDocuments(),
	})
	// Recorded-error policy: the run completes with the failure in state.
	require.True(t, result.Done)
	assert.False(t, result.Failed)
	assert.Contains(t, result.Error, "model unavailable")
	assert.Nil(t, result.FinalState[StateKeyStandards])

	records, err := store.List(context.Background(), "p1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}
