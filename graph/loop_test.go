//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"reflect"
	"testing"
)

func TestCursor(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  int
	}{
		{"missing", State{}, 0},
		{"int", State{"cursor": 3}, 3},
		{"int64", State{"cursor": int64(4)}, 4},
		{"float64 from json", State{"cursor": float64(5)}, 5},
		{"non numeric", State{"cursor": "nope"}, 0},
	}
	for _, tt := range tests {
		if got := Cursor(tt.state, "cursor"); got != tt.want {
			t.Errorf("%s: Cursor = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestItemCount(t *testing.T) {
	if got := ItemCount(State{}, "items"); got != 0 {
		t.Errorf("missing items count = %d, want 0", got)
	}
	if got := ItemCount(State{"items": []string{"a", "b"}}, "items"); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if got := ItemCount(State{"items": "not a list"}, "items"); got != 0 {
		t.Errorf("non-list count = %d, want 0", got)
	}
}

func TestCurrentItem(t *testing.T) {
	state := State{"items": []string{"a", "b"}, "cursor": 1}
	item, ok := CurrentItem(state, "items", "cursor")
	if !ok || item != "b" {
		t.Errorf("item = %v ok = %v, want b", item, ok)
	}
	state["cursor"] = 2
	if _, ok := CurrentItem(state, "items", "cursor"); ok {
		t.Error("cursor past end still returned an item")
	}
}

func TestAdvanceCursor(t *testing.T) {
	update := AdvanceCursor(State{"cursor": 2}, "cursor")
	if update["cursor"] != 3 {
		t.Errorf("update = %v, want cursor 3", update)
	}
	update = AdvanceCursor(State{}, "cursor")
	if update["cursor"] != 1 {
		t.Errorf("fresh cursor update = %v, want 1", update)
	}
}

// processItems builds the canonical loop node: process items[cursor],
// append a result, advance the cursor.
func processItems(itemsKey, cursorKey, resultsKey string) NodeFunc {
	return func(ctx context.Context, state State) (any, error) {
		item, ok := CurrentItem(state, itemsKey, cursorKey)
		update := AdvanceCursor(state, cursorKey)
		if !ok {
			return update, nil
		}
		results, _ := state[resultsKey].([]string)
		update[resultsKey] = append(results, fmt.Sprintf("processed:%v", item))
		return update, nil
	}
}

func iterationGraph(t *testing.T) *Graph {
	t.Helper()
	return NewStateGraph(NewStateSchema()).
		AddNode("worker", processItems("items", "cursor", "results")).
		AddNode("report", setValue("reported", true)).
		AddIterationEdge("worker", "items", "cursor", "report").
		SetEntryPoint("worker").
		SetFinishPoint("report").
		DeclareNotResumable().
		MustCompile()
}

func TestIterationProcessesEveryItem(t *testing.T) {
	executor, _ := NewExecutor(iterationGraph(t))
	result, err := executor.Execute(context.Background(), State{
		"items": []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Done {
		t.Fatalf("result = %+v, want done", result)
	}
	want := []string{"processed:a", "processed:b", "processed:c"}
	if got, _ := result.FinalState["results"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	// One pass per item, then the report node.
	wantSeq := []string{"worker", "worker", "worker", "report"}
	if !reflect.DeepEqual(result.NodeSequence, wantSeq) {
		t.Errorf("sequence = %v, want %v", result.NodeSequence, wantSeq)
	}
	if result.FinalState["cursor"] != 3 {
		t.Errorf("cursor = %v, want 3", result.FinalState["cursor"])
	}
}

func TestIterationEmptyListSkipsNode(t *testing.T) {
	executor, _ := NewExecutor(iterationGraph(t))
	result, err := executor.Execute(context.Background(), State{
		"items": []string{},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Done {
		t.Fatalf("result = %+v, want done", result)
	}
	// Zero passes: the loop node never ran, only the exit target did.
	wantSeq := []string{"report"}
	if !reflect.DeepEqual(result.NodeSequence, wantSeq) {
		t.Errorf("sequence = %v, want %v", result.NodeSequence, wantSeq)
	}
	if result.FinalState["reported"] != true {
		t.Error("exit target did not run")
	}
}

func TestIterationMissingListSkipsNode(t *testing.T) {
	executor, _ := NewExecutor(iterationGraph(t))
	result, err := executor.Execute(context.Background(), State{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(result.NodeSequence, []string{"report"}) {
		t.Errorf("sequence = %v, want report only", result.NodeSequence)
	}
}

func TestIterationAdvancesPastUnprocessableItems(t *testing.T) {
	// The node records an explicit failure entry for items it cannot
	// handle but still advances the cursor, so the loop terminates with
	// one result per input item.
	node := func(ctx context.Context, state State) (any, error) {
		item, _ := CurrentItem(state, "items", "cursor")
		update := AdvanceCursor(state, "cursor")
		results, _ := state["results"].([]string)
		if item == "bad" {
			update["results"] = append(results, "failed:bad")
		} else {
			update["results"] = append(results, fmt.Sprintf("processed:%v", item))
		}
		return update, nil
	}
	graph := NewStateGraph(NewStateSchema()).
		AddNode("worker", node).
		AddNode("report", noopNode).
		AddIterationEdge("worker", "items", "cursor", "report").
		SetEntryPoint("worker").
		SetFinishPoint("report").
		DeclareNotResumable().
		MustCompile()

	executor, _ := NewExecutor(graph)
	result, err := executor.Execute(context.Background(), State{
		"items": []string{"a", "bad", "c"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := []string{"processed:a", "failed:bad", "processed:c"}
	if got, _ := result.FinalState["results"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestChainedIterationLoops(t *testing.T) {
	// Two loops in sequence: the first builds the second's item list.
	expand := func(ctx context.Context, state State) (any, error) {
		item, ok := CurrentItem(state, "sections", "section_cursor")
		update := AdvanceCursor(state, "section_cursor")
		if !ok {
			return update, nil
		}
		details, _ := state["details"].([]string)
		update["details"] = append(details,
			fmt.Sprintf("%v-1", item), fmt.Sprintf("%v-2", item))
		return update, nil
	}
	graph := NewStateGraph(NewStateSchema()).
		AddNode("expand", expand).
		AddNode("detail", processItems("details", "detail_cursor", "results")).
		AddNode("finish", noopNode).
		AddIterationEdge("expand", "sections", "section_cursor", "detail").
		AddIterationEdge("detail", "details", "detail_cursor", "finish").
		SetEntryPoint("expand").
		SetFinishPoint("finish").
		DeclareNotResumable().
		MustCompile()

	executor, _ := NewExecutor(graph)
	result, err := executor.Execute(context.Background(), State{
		"sections": []string{"s1", "s2"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Done {
		t.Fatalf("result = %+v, want done", result)
	}
	want := []string{"processed:s1-1", "processed:s1-2", "processed:s2-1", "processed:s2-2"}
	if got, _ := result.FinalState["results"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}
