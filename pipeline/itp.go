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

const (
	itpPlanSystemPrompt = "You are a quality engineer. From the project documents, " +
		"identify every inspection and test plan (ITP) the project requires."
	itpGenerateSystemPrompt = "You are a quality engineer. Generate the complete item list " +
		"for one inspection and test plan: numbered sections and inspection points with " +
		"acceptance criteria, test methods, frequency and hold/witness classification."

	// Per-ITP result statuses in the generated entries list.
	itpStatusGenerated = "generated"
	itpStatusSkipped   = "skipped"
	itpStatusFailed    = "failed"
)

// NewITPGraph builds the ITP generation pipeline: plan the required
// ITPs, then run two chained bounded loops. The first collects source
// content per ITP, the second generates and persists one ITP per pass.
// Every required ITP yields exactly one result entry: an ITP whose
// content cannot be collected or generated is recorded as skipped or
// failed and the loop moves on.
func NewITPGraph(cfg Config) (*graph.Graph, error) {
	if err := cfg.requireModel("itp"); err != nil {
		return nil, err
	}
	if err := cfg.requireStore("itp"); err != nil {
		return nil, err
	}

	return graph.NewStateGraph(itpSchema()).
		AddNode("plan_itps", planITPsNode(cfg.Model)).
		AddNode("collect_itp_content", collectITPContentNode()).
		AddNode("generate_itp", generateITPNode(cfg.Model, cfg.Store)).
		AddNode("consolidate_itps", consolidateITPsNode()).
		SetEntryPoint("plan_itps").
		AddEdge("plan_itps", "collect_itp_content").
		AddIterationEdge("collect_itp_content", StateKeyRequiredITPs, StateKeyITPCursor, "generate_itp").
		AddIterationEdge("generate_itp", StateKeyITPDetails, StateKeyGenerationCursor, "consolidate_itps").
		SetFinishPoint("consolidate_itps").
		SetErrorPolicy(graph.RecordAndContinue).
		DeclareResumable().
		Compile()
}

func itpSchema() *graph.StateSchema {
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
		AddField(StateKeyRequiredITPs, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyITPDetails, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyGeneratedITPs, graph.StateField{
			Type: reflect.TypeOf([]map[string]any{}),
		}).
		AddField(StateKeyFinalITPItems, graph.StateField{
			Type: reflect.TypeOf([]any{}),
		}).
		AddField(StateKeyITPCursor, graph.StateField{
			Type: reflect.TypeOf(0),
		}).
		AddField(StateKeyGenerationCursor, graph.StateField{
			Type: reflect.TypeOf(0),
		}).
		AddField(StateKeyPersistedKeys, graph.StateField{
			Type: reflect.TypeOf([]string{}), Reducer: graph.StringSliceReducer,
		}).
		AddField(graph.StateKeyError, graph.StateField{
			Type: reflect.TypeOf(""),
		})
}

func itpListSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"required_itps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"itp_name": map[string]any{"type": "string"},
						"scope":    map[string]any{"type": "string"},
						"priority": map[string]any{"type": "string"},
					},
					"required":             []string{"itp_name"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"required_itps"},
		"additionalProperties": false,
	}
}

func itpItemsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"itp_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":                    map[string]any{"type": "string"},
						"parent_id":             map[string]any{"type": []string{"string", "null"}},
						"type":                  map[string]any{"type": "string"},
						"item_no":               map[string]any{"type": "string"},
						"order_index":           map[string]any{"type": "integer"},
						"section_name":          map[string]any{"type": "string"},
						"inspection_test_point": map[string]any{"type": "string"},
						"acceptance_criteria":   map[string]any{"type": "string"},
						"inspection_test_method": map[string]any{
							"type": "string",
						},
						"frequency":          map[string]any{"type": "string"},
						"responsibility":     map[string]any{"type": "string"},
						"hold_witness_point": map[string]any{"type": "string"},
					},
					"required":             []string{"id", "type", "item_no", "order_index"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"itp_items"},
		"additionalProperties": false,
	}
}

func planITPsNode(m model.Model) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		docs := asMapSlice(state[graph.StateKeyDocuments])
		if len(docs) == 0 {
			return nil, errors.New("itp planning requires extracted document content; none available")
		}

		var prompt strings.Builder
		if wbs := asMap(state[StateKeyWBSStructure]); len(wbs) > 0 {
			fmt.Fprintf(&prompt, "WORK BREAKDOWN STRUCTURE:\n%v\n\n", wbs["nodes"])
		}
		prompt.WriteString("PROJECT DOCUMENTS:\n\n")
		prompt.WriteString(combinedContent(docs))

		temperature := 0.1
		rsp, err := m.GenerateStructured(ctx, &model.Request{
			SystemPrompt: itpPlanSystemPrompt,
			Prompt:       prompt.String(),
			OutputSchema: &model.OutputSchema{
				Name:        "required_itps",
				Description: "Inspection and test plans the project requires",
				Schema:      itpListSchema(),
				Strict:      true,
			},
			Temperature: &temperature,
		})
		payload, err := decodeObject(rsp, err)
		if err != nil {
			return nil, fmt.Errorf("itp planning failed: %w", err)
		}
		required := asMapSlice(payload["required_itps"])
		if len(required) == 0 {
			return nil, errors.New("itp planning identified no required itps")
		}
		return graph.State{StateKeyRequiredITPs: required}, nil
	}
}

// collectITPContentNode processes one required ITP per pass: it gathers
// the document content mentioning the ITP into a detail entry. An ITP
// with no matching content gets an explicit skipped entry, and the
// cursor advances either way so the details list stays aligned with the
// required list.
func collectITPContentNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		item, ok := graph.CurrentItem(state, StateKeyRequiredITPs, StateKeyITPCursor)
		if !ok {
			return nil, errors.New("itp content cursor out of range")
		}
		itp := asMap(item)
		name := stringField(itp, "itp_name")

		var matched []string
		for _, d := range asMapSlice(state[graph.StateKeyDocuments]) {
			content := stringField(d, "content")
			if strings.Contains(strings.ToLower(content), strings.ToLower(name)) {
				matched = append(matched, fmt.Sprintf("Document: %s (ID: %s)\n%s",
					stringField(d, "file_name"), stringField(d, "id"), content))
			}
		}

		entry := map[string]any{
			"itp_name": name,
			"scope":    stringField(itp, "scope"),
		}
		if len(matched) == 0 {
			entry["status"] = itpStatusSkipped
			entry["error"] = "no source content matched"
		} else {
			entry["status"] = "collected"
			entry["content"] = strings.Join(matched, "\n\n")
		}

		details := append(asMapSlice(state[StateKeyITPDetails]), entry)
		update := graph.AdvanceCursor(state, StateKeyITPCursor)
		update[StateKeyITPDetails] = details
		return update, nil
	}
}

// generateITPNode processes one collected detail per pass: it generates
// the ITP items and persists them as one asset. Generation and
// persistence failures are recorded in the entry for that ITP, not in
// the run's error field, so one bad ITP never blocks the rest.
func generateITPNode(m model.Model, store asset.Store) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		item, ok := graph.CurrentItem(state, StateKeyITPDetails, StateKeyGenerationCursor)
		if !ok {
			return nil, errors.New("itp generation cursor out of range")
		}
		detail := asMap(item)
		name := stringField(detail, "itp_name")
		results := asMapSlice(state[StateKeyGeneratedITPs])
		update := graph.AdvanceCursor(state, StateKeyGenerationCursor)

		if stringField(detail, "status") != "collected" {
			results = append(results, map[string]any{
				"itp_name": name,
				"status":   itpStatusSkipped,
				"error":    "no source content for itp",
			})
			update[StateKeyGeneratedITPs] = results
			return update, nil
		}

		temperature := 0.1
		rsp, err := m.GenerateStructured(ctx, &model.Request{
			SystemPrompt: itpGenerateSystemPrompt,
			Prompt: fmt.Sprintf("CURRENT ITP TO GENERATE:\n%s\nScope: %s\n\nRELEVANT CONTENT:\n\n%s",
				name, stringField(detail, "scope"), stringField(detail, "content")),
			OutputSchema: &model.OutputSchema{
				Name:        "itp_items",
				Description: "Complete item list for one inspection and test plan",
				Schema:      itpItemsSchema(),
				Strict:      true,
			},
			Temperature: &temperature,
		})
		payload, genErr := decodeObject(rsp, err)
		if genErr != nil {
			results = append(results, map[string]any{
				"itp_name": name,
				"status":   itpStatusFailed,
				"error":    genErr.Error(),
			})
			update[StateKeyGeneratedITPs] = results
			return update, nil
		}

		items := anySlice(payload["itp_items"])
		project := projectID(state)
		key := asset.Key("itp", project, slugify(name))
		if _, err := store.Upsert(ctx, asset.WriteSpec{
			Key:       key,
			Kind:      asset.KindITP,
			ProjectID: project,
			Payload: map[string]any{
				"itp_name":  name,
				"itp_items": items,
			},
			Edges: []asset.Edge{
				{FromKey: key, ToKey: asset.Key("wbs", project), Relation: "derived_from"},
			},
		}); err != nil {
			results = append(results, map[string]any{
				"itp_name": name,
				"status":   itpStatusFailed,
				"error":    fmt.Sprintf("failed to persist itp asset: %v", err),
			})
			update[StateKeyGeneratedITPs] = results
			return update, nil
		}

		results = append(results, map[string]any{
			"itp_name":  name,
			"status":    itpStatusGenerated,
			"asset_key": key,
			"itp_items": items,
		})
		update[StateKeyGeneratedITPs] = results
		update[StateKeyPersistedKeys] = []string{key}
		return update, nil
	}
}

// consolidateITPsNode flattens the generated ITPs into one final item
// list. A run where nothing was generated records that as its error.
func consolidateITPsNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		var final []any
		for _, entry := range asMapSlice(state[StateKeyGeneratedITPs]) {
			if stringField(entry, "status") != itpStatusGenerated {
				continue
			}
			final = append(final, anySlice(entry["itp_items"])...)
		}
		if len(final) == 0 {
			return nil, errors.New("no itps generated for consolidation")
		}
		return graph.State{StateKeyFinalITPItems: final}, nil
	}
}
