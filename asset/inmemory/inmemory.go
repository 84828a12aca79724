//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory asset store for testing and
// single-process runs.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
)

// Store is an in-memory implementation of asset.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*asset.Record
}

// NewStore creates a new in-memory asset store.
func NewStore() *Store {
	return &Store{records: make(map[string]*asset.Record)}
}

// Upsert writes the asset, replacing any record under the same key.
func (s *Store) Upsert(ctx context.Context, spec asset.WriteSpec) (*asset.Record, error) {
	if spec.Key == "" {
		return nil, asset.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	record := &asset.Record{
		Key:       spec.Key,
		Kind:      spec.Kind,
		ProjectID: spec.ProjectID,
		Payload:   copyPayload(spec.Payload),
		Edges:     append([]asset.Edge(nil), spec.Edges...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.records[spec.Key]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	s.records[spec.Key] = record
	return copyRecord(record), nil
}

// Get retrieves a record by key, nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*asset.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

// List retrieves all records of a project, sorted by key for
// deterministic output.
func (s *Store) List(ctx context.Context, projectID string, kind asset.Kind) ([]*asset.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*asset.Record
	for _, record := range s.records {
		if record.ProjectID != projectID {
			continue
		}
		if kind != "" && record.Kind != kind {
			continue
		}
		records = append(records, copyRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*asset.Record)
	return nil
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	return copied
}

func copyRecord(record *asset.Record) *asset.Record {
	copied := *record
	copied.Payload = copyPayload(record.Payload)
	copied.Edges = append([]asset.Edge(nil), record.Edges...)
	return &copied
}
