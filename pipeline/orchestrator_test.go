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

	"trpc.group/trpc-go/trpc-docflow-go/asset"
	assetmem "trpc.group/trpc-go/trpc-docflow-go/asset/inmemory"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
	checkpointmem "trpc.group/trpc-go/trpc-docflow-go/graph/checkpoint/inmemory"
)

func TestOrchestratorRunsPipelinesInOrder(t *testing.T) {
	m := newFakeModel()
	store := assetmem.NewStore()
	defer store.Close()

	g, err := NewOrchestratorGraph(Config{Model: m, Source: newFakeSource(), Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
		StateKeyJurisdiction:    "SA",
	})
	require.True(t, result.Done)
	assert.Empty(t, result.Error)
	assert.Equal(t, []string{
		"document_extraction", "wbs_extraction", "standards_resolution", "itp_generation",
	}, result.NodeSequence)

	// Each pipeline contributed its declared outputs.
	assert.Len(t, asMapSlice(result.FinalState[graph.StateKeyDocuments]), 2)
	assert.NotNil(t, asMap(result.FinalState[StateKeyWBSStructure]))
	assert.NotNil(t, asMap(result.FinalState[StateKeyStandards]))
	assert.Len(t, asMapSlice(result.FinalState[StateKeyGeneratedITPs]), 2)

	// Fields private to the ITP sub-pipeline never reach the parent.
	_, leaked := result.FinalState[StateKeyITPDetails]
	assert.False(t, leaked)
	_, leaked = result.FinalState[StateKeyITPCursor]
	assert.False(t, leaked)

	// One asset per output kind, all under deterministic keys.
	keys := stringSlice(result.FinalState[StateKeyPersistedKeys])
	assert.Contains(t, keys, "doc_extract:p1:doc-1")
	assert.Contains(t, keys, "wbs:p1")
	assert.Contains(t, keys, "standards_resolution:p1")
	assert.Contains(t, keys, "itp:p1:earthworks")

	for _, kind := range []asset.Kind{
		asset.KindDocumentExtract, asset.KindWBS, asset.KindStandardsResolution, asset.KindITP,
	} {
		records, err := store.List(context.Background(), "p1", kind)
		require.NoError(t, err)
		assert.NotEmpty(t, records, string(kind))
	}
}

func TestOrchestratorChildrenCheckpointUnderOwnNamespaces(t *testing.T) {
	m := newFakeModel()
	store := assetmem.NewStore()
	defer store.Close()
	saver := checkpointmem.NewSaver()
	defer saver.Close()

	g, err := NewOrchestratorGraph(Config{Model: m, Source: newFakeSource(), Store: store})
	require.NoError(t, err)
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	}, graph.WithLineageID("run-1"))
	require.NoError(t, err)
	require.True(t, result.Done)

	// The parent and every sub-pipeline checkpoint under the same lineage
	// but in their own namespaces.
	namespaces := []string{
		"", "document_extraction", "wbs_extraction", "standards_resolution", "itp_generation",
	}
	for _, ns := range namespaces {
		tuples, err := saver.List(context.Background(),
			graph.CreateCheckpointConfig("run-1", "", ns), nil)
		require.NoError(t, err)
		assert.NotEmpty(t, tuples, "namespace %q", ns)
	}

	// The parent's latest checkpoint shows the completed run.
	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("run-1", "", ""))
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, graph.End, tuple.Checkpoint.NextNode)
}

func TestOrchestratorAbortsWhenExtractionFails(t *testing.T) {
	m := newFakeModel()
	source := newFakeSource()
	source.errs["doc-1"] = errors.New("blob unreachable")
	source.errs["doc-2"] = errors.New("blob unreachable")
	store := assetmem.NewStore()
	defer store.Close()

	g, err := NewOrchestratorGraph(Config{Model: m, Source: source, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	})
	assert.True(t, result.Failed)
	assert.Equal(t, []string{"document_extraction"}, result.NodeSequence)
	// Downstream pipelines never reached the model.
	assert.Empty(t, m.callNames())
}

func TestOrchestratorRecordedStandardsFailureDoesNotStopITPs(t *testing.T) {
	m := newFakeModel()
	m.errs["standards_resolution"] = errors.New("model unavailable")
	store := assetmem.NewStore()
	defer store.Close()

	g, err := NewOrchestratorGraph(Config{Model: m, Source: newFakeSource(), Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	})
	// The standards sub-pipeline records its failure and completes, so
	// the orchestration continues into ITP generation.
	require.True(t, result.Done)
	assert.Nil(t, result.FinalState[StateKeyStandards])
	assert.Len(t, asMapSlice(result.FinalState[StateKeyGeneratedITPs]), 2)

	records, err := store.List(context.Background(), "p1", asset.KindITP)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
