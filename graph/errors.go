//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "errors"

// Errors.
var (
	// ErrAmbiguousEdges reports more than one unconditional successor
	// declared for a single node.
	ErrAmbiguousEdges = errors.New("ambiguous fixed edges")
	// ErrUnmappedLabel reports a declared condition label with no
	// path-map entry.
	ErrUnmappedLabel = errors.New("unmapped conditional label")
	// ErrUnboundedLoop reports a loop-back edge without a declared
	// items bound.
	ErrUnboundedLoop = errors.New("loop-back edge without declared bound")
	// ErrResumeModeUndeclared reports a graph compiled without an
	// explicit Resumable/NotResumable declaration.
	ErrResumeModeUndeclared = errors.New("resume mode not declared")

	ErrLineageIDRequired  = errors.New("lineage_id is required")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrNotResumable       = errors.New("graph is declared not resumable")
)
