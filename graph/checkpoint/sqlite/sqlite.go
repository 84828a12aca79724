//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-based checkpoint storage implementation
// for graph execution state persistence and recovery.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-docflow-go/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"lineage_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"ts INTEGER NOT NULL, " +
		"step INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"metadata_json BLOB NOT NULL, " +
		"PRIMARY KEY (lineage_id, checkpoint_ns, checkpoint_id)" +
		")"

	sqliteInsertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"lineage_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, ts, step, " +
		"checkpoint_json, metadata_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	sqliteSelectLatest = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? " +
		"ORDER BY ts DESC, step DESC LIMIT 1"

	sqliteSelectByID = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?"

	sqliteSelectList = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? " +
		"ORDER BY ts DESC, step DESC"

	sqliteDeleteLineage = "DELETE FROM checkpoints WHERE lineage_id = ?"
)

// Saver stores checkpoints in a SQLite database. The caller owns the
// *sql.DB; Close does not close it.
type Saver struct {
	db *sql.DB
}

// NewSaver creates a SQLite-backed checkpoint saver and ensures the
// schema exists.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Get retrieves a checkpoint by configuration.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	tuple, err := s.GetTuple(ctx, config)
	if err != nil || tuple == nil {
		return nil, err
	}
	return tuple.Checkpoint, nil
}

// GetTuple retrieves a checkpoint tuple by configuration. Without a
// checkpoint ID in the config, the latest checkpoint is returned.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	var row *sql.Row
	if checkpointID != "" {
		row = s.db.QueryRowContext(ctx, sqliteSelectByID, lineageID, namespace, checkpointID)
	} else {
		row = s.db.QueryRowContext(ctx, sqliteSelectLatest, lineageID, namespace)
	}
	tuple, err := scanTuple(row, lineageID, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tuple, err
}

// List retrieves checkpoints for a lineage and namespace, newest first.
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

	rows, err := s.db.QueryContext(ctx, sqliteSelectList, lineageID, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var tuples []*graph.CheckpointTuple
	for rows.Next() {
		var checkpointJSON, metadataJSON []byte
		var parentID sql.NullString
		if err := rows.Scan(&checkpointJSON, &metadataJSON, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		tuple, err := decodeTuple(checkpointJSON, metadataJSON, parentID.String, lineageID, namespace)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
		if filter != nil && filter.Limit > 0 && len(tuples) >= filter.Limit {
			break
		}
	}
	return tuples, rows.Err()
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

	checkpointJSON, err := json.Marshal(req.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = &graph.CheckpointMetadata{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqliteInsertCheckpoint,
		lineageID, namespace, req.Checkpoint.ID, req.Checkpoint.ParentCheckpointID,
		req.Checkpoint.Timestamp.UnixNano(), req.Checkpoint.Step,
		checkpointJSON, metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return graph.CreateCheckpointConfig(lineageID, req.Checkpoint.ID, namespace), nil
}

// DeleteLineage removes all checkpoints for a lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteLineage, lineageID); err != nil {
		return fmt.Errorf("failed to delete lineage %s: %w", lineageID, err)
	}
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	return nil
}

func scanTuple(row *sql.Row, lineageID, namespace string) (*graph.CheckpointTuple, error) {
	var checkpointJSON, metadataJSON []byte
	var parentID sql.NullString
	if err := row.Scan(&checkpointJSON, &metadataJSON, &parentID); err != nil {
		return nil, err
	}
	return decodeTuple(checkpointJSON, metadataJSON, parentID.String, lineageID, namespace)
}

func decodeTuple(
	checkpointJSON, metadataJSON []byte,
	parentID, lineageID, namespace string,
) (*graph.CheckpointTuple, error) {
	var checkpoint graph.Checkpoint
	if err := json.Unmarshal(checkpointJSON, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	var metadata graph.CheckpointMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	tuple := &graph.CheckpointTuple{
		Config:     graph.CreateCheckpointConfig(lineageID, checkpoint.ID, namespace),
		Checkpoint: &checkpoint,
		Metadata:   &metadata,
	}
	if parentID != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(lineageID, parentID, namespace)
	}
	return tuple, nil
}
