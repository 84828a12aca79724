//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed asset store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-docflow-go/asset"
)

const (
	sqliteCreateAssets = "CREATE TABLE IF NOT EXISTS assets (" +
		"key TEXT NOT NULL PRIMARY KEY, " +
		"kind TEXT NOT NULL, " +
		"project_id TEXT NOT NULL, " +
		"payload_json BLOB NOT NULL, " +
		"edges_json BLOB NOT NULL, " +
		"created_at INTEGER NOT NULL, " +
		"updated_at INTEGER NOT NULL" +
		")"

	// created_at survives replacement so a retried write keeps the
	// original creation time.
	sqliteUpsertAsset = "INSERT INTO assets (" +
		"key, kind, project_id, payload_json, edges_json, created_at, updated_at) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT(key) DO UPDATE SET " +
		"kind = excluded.kind, project_id = excluded.project_id, " +
		"payload_json = excluded.payload_json, edges_json = excluded.edges_json, " +
		"updated_at = excluded.updated_at"

	sqliteSelectAsset = "SELECT key, kind, project_id, payload_json, edges_json, " +
		"created_at, updated_at FROM assets WHERE key = ?"

	sqliteSelectByProject = "SELECT key, kind, project_id, payload_json, edges_json, " +
		"created_at, updated_at FROM assets WHERE project_id = ? ORDER BY key"

	sqliteSelectByProjectKind = "SELECT key, kind, project_id, payload_json, edges_json, " +
		"created_at, updated_at FROM assets WHERE project_id = ? AND kind = ? ORDER BY key"
)

// Store is a SQLite-backed implementation of asset.Store. The caller
// owns the *sql.DB; Close does not close it.
type Store struct {
	db *sql.DB
}

// NewStore creates a SQLite asset store and ensures the schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateAssets); err != nil {
		return nil, fmt.Errorf("failed to create assets table: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert writes the asset, replacing any record under the same key.
func (s *Store) Upsert(ctx context.Context, spec asset.WriteSpec) (*asset.Record, error) {
	if spec.Key == "" {
		return nil, asset.ErrEmptyKey
	}
	payloadJSON, err := json.Marshal(spec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	edges := spec.Edges
	if edges == nil {
		edges = []asset.Edge{}
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edges: %w", err)
	}
	now := time.Now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, sqliteUpsertAsset,
		spec.Key, string(spec.Kind), spec.ProjectID,
		payloadJSON, edgesJSON, now, now); err != nil {
		return nil, fmt.Errorf("failed to upsert asset %s: %w", spec.Key, err)
	}
	return s.Get(ctx, spec.Key)
}

// Get retrieves a record by key, nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*asset.Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectAsset, key)
	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// List retrieves all records of a project, optionally filtered by kind.
func (s *Store) List(ctx context.Context, projectID string, kind asset.Kind) ([]*asset.Record, error) {
	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, sqliteSelectByProject, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteSelectByProjectKind, projectID, string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var records []*asset.Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return nil
}

func scanRecord(scan func(dest ...any) error) (*asset.Record, error) {
	var record asset.Record
	var kind string
	var payloadJSON, edgesJSON []byte
	var createdAt, updatedAt int64
	if err := scan(&record.Key, &kind, &record.ProjectID,
		&payloadJSON, &edgesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	record.Kind = asset.Kind(kind)
	if err := json.Unmarshal(payloadJSON, &record.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &record.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}
	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &record, nil
}
