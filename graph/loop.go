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
	"reflect"
)

// Iteration edge labels. The generated condition returns LabelLoop while
// the cursor is below the item count and LabelNext once it is exhausted.
const (
	LabelLoop = "loop"
	LabelNext = "next"
)

// Cursor reads an iteration cursor field from state. A missing or
// non-integer value reads as 0, matching a loop that has not started.
func Cursor(state State, key string) int {
	switch v := state[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// ItemCount returns the length of the list field bounding a loop.
// A missing field or a non-list value counts as zero items.
func ItemCount(state State, key string) int {
	v, ok := state[key]
	if !ok || v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0
	}
	return rv.Len()
}

// CurrentItem returns items[cursor] for the loop declared by the two
// keys. ok is false once the cursor is past the end of the list.
func CurrentItem(state State, itemsKey, cursorKey string) (any, bool) {
	cursor := Cursor(state, cursorKey)
	v, exists := state[itemsKey]
	if !exists || v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if cursor < 0 || cursor >= rv.Len() {
		return nil, false
	}
	return rv.Index(cursor).Interface(), true
}

// AdvanceCursor returns the partial update that moves the cursor to the
// next item. Nodes under a loop edge must always include this in their
// result, even for items they could not process, so the loop neither
// stalls nor drops items.
func AdvanceCursor(state State, cursorKey string) State {
	return State{cursorKey: Cursor(state, cursorKey) + 1}
}

// newIterationCondition builds the router function for an iteration edge.
func newIterationCondition(bound *IterationBound) ConditionalFunc {
	return func(ctx context.Context, state State) (string, error) {
		if Cursor(state, bound.CursorKey) >= ItemCount(state, bound.ItemsKey) {
			return bound.ExitLabel, nil
		}
		return LabelLoop, nil
	}
}

// boundExhausted reports whether an iteration edge's bound has been
// reached for the given state. The executor consults this before
// entering a loop node, so an empty items list routes straight to the
// exit target without executing the node.
func boundExhausted(edge *ConditionalEdge, state State) bool {
	if edge == nil || edge.Bound == nil {
		return false
	}
	return Cursor(state, edge.Bound.CursorKey) >= ItemCount(state, edge.Bound.ItemsKey)
}
