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
	"errors"
	"fmt"
)

// NewSubgraphNodeFunc wraps a compiled graph as an ordinary node usable
// inside a parent graph.
//
// The wrapper projects the declared input fields of the parent state
// into a fresh child state, runs the child graph to completion, and
// returns only the declared output fields as the node's partial update.
// Intermediate fields private to the child are never leaked.
//
// When the parent run checkpoints and the child graph is declared
// Resumable, the child inherits the parent's saver under a derived
// namespace, so a resumed parent run does not re-execute child steps
// that already completed. A child declared NotResumable runs without
// checkpointing.
func NewSubgraphNodeFunc(nodeID string, sub *Graph, inputs, outputs []string) (NodeFunc, error) {
	if sub == nil {
		return nil, fmt.Errorf("subgraph node %s: graph is nil", nodeID)
	}
	if err := sub.validate(); err != nil {
		return nil, fmt.Errorf("subgraph node %s: %w", nodeID, err)
	}
	return func(ctx context.Context, state State) (any, error) {
		child := make(State, len(inputs))
		for _, key := range inputs {
			if value, ok := state[key]; ok {
				child[key] = value
			}
		}

		var execOpts []ExecutorOption
		parent, hasParent := state[StateKeyExecContext].(*ExecutionContext)
		inherit := hasParent && parent.Saver != nil && sub.ResumeMode() == Resumable
		if inherit {
			execOpts = append(execOpts,
				WithCheckpointSaver(parent.Saver),
				WithCheckpointNamespace(ChildNamespace(parent.Namespace, nodeID)),
			)
		}
		executor, err := NewExecutor(sub, execOpts...)
		if err != nil {
			return nil, fmt.Errorf("subgraph node %s: %w", nodeID, err)
		}

		result, err := runSubgraph(ctx, executor, child, parent, inherit)
		if err != nil {
			return nil, fmt.Errorf("subgraph node %s: %w", nodeID, err)
		}
		if result.Failed {
			return nil, fmt.Errorf("subgraph node %s aborted: %s", nodeID, result.Error)
		}

		update := make(State, len(outputs))
		for _, key := range outputs {
			if value, ok := result.FinalState[key]; ok {
				update[key] = value
			}
		}
		return update, nil
	}, nil
}

// runSubgraph resumes a checkpointed child run when one exists,
// otherwise starts a fresh one under the parent lineage.
func runSubgraph(
	ctx context.Context,
	executor *Executor,
	child State,
	parent *ExecutionContext,
	inherit bool,
) (*RunResult, error) {
	var runOpts []RunOption
	if parent != nil {
		runOpts = append(runOpts, WithLineageID(parent.LineageID))
	}
	if inherit {
		result, err := executor.Resume(ctx, parent.LineageID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCheckpointNotFound) {
			return nil, err
		}
	}
	return executor.Execute(ctx, child, runOpts...)
}
