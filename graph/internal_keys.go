//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package graph

// isInternalStateKey returns true when a state key is internal/ephemeral
// and should not appear in final state snapshots, checkpoints, or the
// projected state of a parent graph.
func isInternalStateKey(key string) bool {
	switch key {
	case StateKeyExecContext, StateKeyCurrentNodeID:
		return true
	default:
		return false
	}
}

// stripInternalKeys returns a copy of the state without internal keys.
func stripInternalKeys(state State) State {
	cleaned := make(State, len(state))
	for k, v := range state {
		if isInternalStateKey(k) {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}
