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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-docflow-go/document"
	"trpc.group/trpc-go/trpc-docflow-go/graph"
	"trpc.group/trpc-go/trpc-docflow-go/model"
)

// Canned structured outputs keyed by schema name.
const (
	cannedWBS = `{"nodes":[
		{"id":"1","node_type":"section","name":"Civil Works"},
		{"id":"2","parent_id":"1","node_type":"work_package","name":"Earthworks","itp_required":true,"is_leaf_node":true},
		{"id":"3","parent_id":"1","node_type":"work_package","name":"Concrete Works","itp_required":true,"is_leaf_node":true}
	]}`

	cannedStandards = `{"primary_standards":[
		{"standard_code":"AS 3798","standard_title":"Guidelines on earthworks for commercial and residential developments","relevance_score":0.9}
	],"secondary_standards":[],"compliance_gaps":["geotechnical report missing"]}`

	cannedITPList = `{"required_itps":[
		{"itp_name":"Earthworks","scope":"bulk earthworks and compaction","priority":"high"},
		{"itp_name":"Concrete Works","scope":"structural concrete","priority":"high"}
	]}`

	cannedITPItems = `{"itp_items":[
		{"id":"1","type":"section","item_no":"1.0","order_index":1,"section_name":"General"},
		{"id":"2","parent_id":"1","type":"inspection","item_no":"1.1","order_index":2,
			"inspection_test_point":"Verify compaction","acceptance_criteria":"95% standard compaction",
			"inspection_test_method":"AS 1289 density test","frequency":"per layer","hold_witness_point":"WITNESS"}
	]}`
)

// fakeModel serves canned structured outputs keyed by the requested
// schema name and records the call order.
type fakeModel struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		responses: map[string]string{
			"wbs_generation":       cannedWBS,
			"standards_resolution": cannedStandards,
			"required_itps":        cannedITPList,
			"itp_items":            cannedITPItems,
		},
		errs: make(map[string]error),
	}
}

func (m *fakeModel) GenerateStructured(ctx context.Context, req *model.Request) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ""
	if req.OutputSchema != nil {
		name = req.OutputSchema.Name
	}
	m.calls = append(m.calls, name)
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	content, ok := m.responses[name]
	if !ok {
		return &model.Response{
			Error: &model.ResponseError{
				Message: "no canned response for schema " + name,
				Type:    model.ErrorTypeAPIError,
			},
		}, nil
	}
	return &model.Response{ID: "fake-rsp", Model: "fake-model", Content: content}, nil
}

func (m *fakeModel) Info() model.Info {
	return model.Info{Name: "fake-model"}
}

func (m *fakeModel) callNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// fakeSource serves documents from a map, with per-ID failures and
// optional per-ID delays to shake out ordering assumptions.
type fakeSource struct {
	docs   map[string]*document.Document
	errs   map[string]error
	delays map[string]time.Duration
}

func (s *fakeSource) Fetch(ctx context.Context, ids []string) []document.FetchResult {
	results := make([]document.FetchResult, len(ids))
	for i, id := range ids {
		if d, ok := s.delays[id]; ok {
			time.Sleep(d)
		}
		if err := s.errs[id]; err != nil {
			results[i] = document.FetchResult{ID: id, Err: err}
			continue
		}
		doc, ok := s.docs[id]
		if !ok {
			results[i] = document.FetchResult{ID: id, Err: fmt.Errorf("document %s not found", id)}
			continue
		}
		results[i] = document.FetchResult{ID: id, Document: doc}
	}
	return results
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs: map[string]*document.Document{
			"doc-1": {ID: "doc-1", Name: "spec.pdf", Content: "Earthworks shall be compacted per AS 3798. Concrete Works per AS 3600."},
			"doc-2": {ID: "doc-2", Name: "drawings.pdf", Content: "Earthworks cut and fill plan, bulk excavation levels."},
		},
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
}

// projectDocuments is the state shape the extraction pipeline produces
// for downstream pipelines.
func projectDocuments() []map[string]any {
	return []map[string]any{
		{"id": "doc-1", "file_name": "spec.pdf", "content": "Earthworks shall be compacted per AS 3798. Concrete Works per AS 3600."},
		{"id": "doc-2", "file_name": "drawings.pdf", "content": "Earthworks cut and fill plan, bulk excavation levels."},
	}
}

func runGraph(t *testing.T, g *graph.Graph, state graph.State, opts ...graph.ExecutorOption) *graph.RunResult {
	t.Helper()
	executor, err := graph.NewExecutor(g, opts...)
	require.NoError(t, err)
	result, err := executor.Execute(context.Background(), state)
	require.NoError(t, err)
	return result
}
