//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage implementation
// for graph execution state persistence and recovery.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-docflow-go/graph"
)

// Saver provides an in-memory implementation of CheckpointSaver.
// This is suitable for testing and debugging but not for production use.
type Saver struct {
	mu sync.RWMutex
	// lineageID -> namespace -> checkpointID -> tuple
	storage map[string]map[string]map[string]*graph.CheckpointTuple
	// maxCheckpointsPerLineage limits the number of checkpoints per lineage.
	maxCheckpointsPerLineage int
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		storage:                  make(map[string]map[string]map[string]*graph.CheckpointTuple),
		maxCheckpointsPerLineage: graph.DefaultMaxCheckpointsPerLineage,
	}
}

// WithMaxCheckpointsPerLineage sets the maximum number of checkpoints per lineage.
func (s *Saver) WithMaxCheckpointsPerLineage(max int) *Saver {
	s.maxCheckpointsPerLineage = max
	return s
}

// Get retrieves a checkpoint by configuration.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	tuple, err := s.GetTuple(ctx, config)
	if err != nil || tuple == nil {
		return nil, err
	}
	return tuple.Checkpoint, nil
}

// GetTuple retrieves a checkpoint tuple by configuration. When the config
// carries no checkpoint ID, the latest checkpoint of the lineage and
// namespace is returned.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	s.mu.RLock()
	defer s.mu.RUnlock()
	byNS, ok := s.storage[lineageID]
	if !ok {
		return nil, nil
	}
	byID, ok := byNS[namespace]
	if !ok || len(byID) == 0 {
		return nil, nil
	}
	if checkpointID != "" {
		tuple, ok := byID[checkpointID]
		if !ok {
			return nil, nil
		}
		return copyTuple(tuple), nil
	}
	var latest *graph.CheckpointTuple
	for _, tuple := range byID {
		if latest == nil || tuple.Checkpoint.Timestamp.After(latest.Checkpoint.Timestamp) {
			latest = tuple
		}
	}
	return copyTuple(latest), nil
}

// List retrieves checkpoints matching criteria, newest first.
func (s *Saver) List(
	ctx context.Context,
	config map[string]any,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var tuples []*graph.CheckpointTuple
	for _, tuple := range s.storage[lineageID][namespace] {
		tuples = append(tuples, copyTuple(tuple))
	}
	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].Checkpoint.Timestamp.After(tuples[j].Checkpoint.Timestamp)
	})
	if filter != nil && filter.Before != nil {
		beforeID := graph.GetCheckpointID(filter.Before)
		if before, ok := s.storage[lineageID][namespace][beforeID]; ok {
			cutoff := before.Checkpoint.Timestamp
			filtered := tuples[:0]
			for _, tuple := range tuples {
				if tuple.Checkpoint.Timestamp.Before(cutoff) {
					filtered = append(filtered, tuple)
				}
			}
			tuples = filtered
		}
	}
	if filter != nil && filter.Limit > 0 && len(tuples) > filter.Limit {
		tuples = tuples[:filter.Limit]
	}
	return tuples, nil
}

// Put stores a checkpoint and returns the updated configuration.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (map[string]any, error) {
	lineageID := graph.GetLineageID(req.Config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	if req.Checkpoint == nil {
		return nil, graph.ErrCheckpointNotFound
	}
	namespace := graph.GetNamespace(req.Config)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage[lineageID] == nil {
		s.storage[lineageID] = make(map[string]map[string]*graph.CheckpointTuple)
	}
	if s.storage[lineageID][namespace] == nil {
		s.storage[lineageID][namespace] = make(map[string]*graph.CheckpointTuple)
	}
	config := graph.CreateCheckpointConfig(lineageID, req.Checkpoint.ID, namespace)
	s.storage[lineageID][namespace][req.Checkpoint.ID] = &graph.CheckpointTuple{
		Config:     config,
		Checkpoint: req.Checkpoint.Copy(),
		Metadata:   req.Metadata,
	}
	s.evictLocked(lineageID, namespace)
	return config, nil
}

// DeleteLineage removes all checkpoints for a lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, lineageID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = make(map[string]map[string]map[string]*graph.CheckpointTuple)
	return nil
}

// evictLocked drops the oldest checkpoints above the per-lineage cap.
func (s *Saver) evictLocked(lineageID, namespace string) {
	byID := s.storage[lineageID][namespace]
	if s.maxCheckpointsPerLineage <= 0 || len(byID) <= s.maxCheckpointsPerLineage {
		return
	}
	var tuples []*graph.CheckpointTuple
	for _, tuple := range byID {
		tuples = append(tuples, tuple)
	}
	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].Checkpoint.Timestamp.Before(tuples[j].Checkpoint.Timestamp)
	})
	for _, tuple := range tuples[:len(byID)-s.maxCheckpointsPerLineage] {
		delete(byID, tuple.Checkpoint.ID)
	}
}

func copyTuple(tuple *graph.CheckpointTuple) *graph.CheckpointTuple {
	if tuple == nil {
		return nil
	}
	return &graph.CheckpointTuple{
		Config:       tuple.Config,
		Checkpoint:   tuple.Checkpoint.Copy(),
		Metadata:     tuple.Metadata,
		ParentConfig: tuple.ParentConfig,
	}
}
