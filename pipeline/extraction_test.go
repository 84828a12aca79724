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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
	"trpc.group/trpc-go/trpc-docflow-go/asset/inmemory"
	"trpc.group/trpc-go/trpc-docflow-go/document"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
)

func TestExtractionGathersInInputOrder(t *testing.T) {
	source := newFakeSource()
	// The first document is the slowest; order must still follow the input.
	source.delays["doc-1"] = 30 * time.Millisecond
	source.delays["doc-2"] = time.Millisecond
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: source, Store: store, Workers: 4})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	})
	require.True(t, result.Done)
	assert.Equal(t, []string{"fetch_documents", "persist_extracts"}, result.NodeSequence)

	docs := asMapSlice(result.FinalState[graph.StateKeyDocuments])
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0]["id"])
	assert.Equal(t, "doc-2", docs[1]["id"])

	records, err := store.List(context.Background(), "p1", asset.KindDocumentExtract)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doc_extract:p1:doc-1", records[0].Key)
}

func TestExtractionRecordsPerItemFailures(t *testing.T) {
	source := newFakeSource()
	source.errs["doc-bad"] = errors.New("blob unreachable")
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: source, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-bad", "doc-2"},
	})
	require.True(t, result.Done)

	docs := asMapSlice(result.FinalState[graph.StateKeyDocuments])
	require.Len(t, docs, 2)

	failed := asMapSlice(result.FinalState[StateKeyFailedDocuments])
	require.Len(t, failed, 1)
	assert.Equal(t, "doc-bad", failed[0]["id"])
	assert.Contains(t, failed[0]["error"], "blob unreachable")

	records, err := store.List(context.Background(), "p1", asset.KindDocumentExtract)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtractionAbortsWhenNothingFetched(t *testing.T) {
	source := newFakeSource()
	source.errs["doc-1"] = errors.New("blob unreachable")
	source.errs["doc-2"] = errors.New("blob unreachable")
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: source, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	})
	assert.True(t, result.Failed)
	assert.Contains(t, result.Error, "produced no content")

	records, err := store.List(context.Background(), "p1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractionWithoutDocumentIDs(t *testing.T) {
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: newFakeSource(), Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{graph.StateKeyProjectID: "p1"})
	require.True(t, result.Done)
	assert.Empty(t, asMapSlice(result.FinalState[graph.StateKeyDocuments]))

	records, err := store.List(context.Background(), "p1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractionReplayUpdatesInPlace(t *testing.T) {
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: newFakeSource(), Store: store})
	require.NoError(t, err)

	initial := graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	}
	first := runGraph(t, g, initial)
	require.True(t, first.Done)
	second := runGraph(t, g, initial)
	require.True(t, second.Done)

	records, err := store.List(context.Background(), "p1", asset.KindDocumentExtract)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// shortBatchSource violates the one-result-per-ID contract for one
// document and delegates the rest.
type shortBatchSource struct {
	inner document.Source
	drop  string
}

func (s *shortBatchSource) Fetch(ctx context.Context, ids []string) []document.FetchResult {
	if len(ids) == 1 && ids[0] == s.drop {
		return nil
	}
	return s.inner.Fetch(ctx, ids)
}

func TestExtractionToleratesShortSourceBatches(t *testing.T) {
	source := &shortBatchSource{inner: newFakeSource(), drop: "doc-1"}
	store := inmemory.NewStore()
	defer store.Close()

	g, err := NewExtractionGraph(Config{Source: source, Store: store})
	require.NoError(t, err)

	result := runGraph(t, g, graph.State{
		graph.StateKeyProjectID: "p1",
		StateKeyDocumentIDs:     []string{"doc-1", "doc-2"},
	})
	// A source that returns fewer results than requested is a per-item
	// failure, never a crash.
	require.True(t, result.Done)

	docs := asMapSlice(result.FinalState[graph.StateKeyDocuments])
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0]["id"])

	failed := asMapSlice(result.FinalState[StateKeyFailedDocuments])
	require.Len(t, failed, 1)
	assert.Equal(t, "doc-1", failed[0]["id"])
	assert.Contains(t, failed[0]["error"], "no result")
}

func TestExtractionRequiresCollaborators(t *testing.T) {
	_, err := NewExtractionGraph(Config{Store: inmemory.NewStore()})
	assert.Error(t, err)
	_, err = NewExtractionGraph(Config{Source: newFakeSource()})
	assert.Error(t, err)
}
