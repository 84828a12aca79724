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
	"time"

	"github.com/google/uuid"
)

const (
	// CheckpointVersion is the current version of the checkpoint format.
	CheckpointVersion = 1

	// CheckpointSourceInput indicates the checkpoint was created from input.
	CheckpointSourceInput = "input"
	// CheckpointSourceLoop indicates the checkpoint was created from inside the loop.
	CheckpointSourceLoop = "loop"

	// DefaultCheckpointNamespace is the default namespace for checkpoints.
	DefaultCheckpointNamespace = ""
	// DefaultMaxCheckpointsPerLineage is the default maximum number of checkpoints per lineage.
	DefaultMaxCheckpointsPerLineage = 100
)

// Config map keys (used under config["configurable"]).
const (
	CfgKeyConfigurable = "configurable"
	CfgKeyLineageID    = "lineage_id"
	CfgKeyCheckpointID = "checkpoint_id"
	CfgKeyCheckpointNS = "checkpoint_ns"
)

// Checkpoint represents a snapshot of graph state at a specific point in time.
// Execution here is strictly sequential, so a snapshot is the merged state
// plus the node the router selected next.
type Checkpoint struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
	// StateValues contains the merged state at checkpoint time.
	StateValues map[string]any `json:"state_values"`
	// NextNode is the node the router selected to run next (End when the
	// run completed).
	NextNode string `json:"next_node,omitempty"`
	// Step is the executor step at which the checkpoint was taken.
	Step int `json:"step"`
	// ParentCheckpointID is the ID of the preceding checkpoint.
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`
}

// NewCheckpoint creates a new checkpoint with the given data.
func NewCheckpoint(stateValues map[string]any, nextNode string, step int) *Checkpoint {
	if stateValues == nil {
		stateValues = make(map[string]any)
	}
	return &Checkpoint{
		Version:     CheckpointVersion,
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		StateValues: stateValues,
		NextNode:    nextNode,
		Step:        step,
	}
}

// Copy returns a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	copied := *c
	copied.StateValues = deepCopyMap(c.StateValues)
	return &copied
}

// CheckpointMetadata contains metadata about a checkpoint.
type CheckpointMetadata struct {
	// Source indicates how the checkpoint was created.
	Source string `json:"source"`
	// Step is the step number (-1 for input, 0+ for loop steps).
	Step int `json:"step"`
	// Extra contains additional metadata fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// CheckpointTuple wraps a checkpoint with its configuration and metadata.
type CheckpointTuple struct {
	// Config contains the configuration used to create this checkpoint.
	Config map[string]any `json:"config"`
	// Checkpoint is the actual checkpoint data.
	Checkpoint *Checkpoint `json:"checkpoint"`
	// Metadata contains additional checkpoint information.
	Metadata *CheckpointMetadata `json:"metadata"`
	// ParentConfig is the configuration of the parent checkpoint.
	ParentConfig map[string]any `json:"parent_config,omitempty"`
}

// CheckpointFilter defines filtering criteria for listing checkpoints.
type CheckpointFilter struct {
	// Before limits results to checkpoints created before this config.
	Before map[string]any `json:"before,omitempty"`
	// Limit is the maximum number of checkpoints to return.
	Limit int `json:"limit,omitempty"`
}

// PutRequest contains all data needed to store a checkpoint.
type PutRequest struct {
	Config     map[string]any
	Checkpoint *Checkpoint
	Metadata   *CheckpointMetadata
}

// CheckpointSaver defines the interface for checkpoint storage implementations.
type CheckpointSaver interface {
	// Get retrieves a checkpoint by configuration.
	Get(ctx context.Context, config map[string]any) (*Checkpoint, error)
	// GetTuple retrieves a checkpoint tuple by configuration.
	GetTuple(ctx context.Context, config map[string]any) (*CheckpointTuple, error)
	// List retrieves checkpoints matching criteria, newest first.
	List(ctx context.Context, config map[string]any, filter *CheckpointFilter) ([]*CheckpointTuple, error)
	// Put stores a checkpoint and returns the updated configuration.
	Put(ctx context.Context, req PutRequest) (map[string]any, error)
	// DeleteLineage removes all checkpoints for a lineage.
	DeleteLineage(ctx context.Context, lineageID string) error
	// Close releases resources held by the saver.
	Close() error
}

// CreateCheckpointConfig builds a checkpoint config map.
func CreateCheckpointConfig(lineageID, checkpointID, namespace string) map[string]any {
	configurable := map[string]any{
		CfgKeyLineageID:    lineageID,
		CfgKeyCheckpointNS: namespace,
	}
	if checkpointID != "" {
		configurable[CfgKeyCheckpointID] = checkpointID
	}
	return map[string]any{
		CfgKeyConfigurable: configurable,
	}
}

// GetLineageID extracts the lineage ID from a config map.
func GetLineageID(config map[string]any) string {
	return configString(config, CfgKeyLineageID)
}

// GetCheckpointID extracts the checkpoint ID from a config map.
func GetCheckpointID(config map[string]any) string {
	return configString(config, CfgKeyCheckpointID)
}

// GetNamespace extracts the checkpoint namespace from a config map.
func GetNamespace(config map[string]any) string {
	return configString(config, CfgKeyCheckpointNS)
}

func configString(config map[string]any, key string) string {
	configurable, ok := config[CfgKeyConfigurable].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := configurable[key].(string)
	return value
}

// ChildNamespace derives the checkpoint namespace for a subgraph node,
// so a resumed parent run finds the sub-pipeline's own checkpoints.
func ChildNamespace(parent, nodeID string) string {
	if parent == "" {
		return nodeID
	}
	return parent + ":" + nodeID
}
