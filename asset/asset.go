//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package asset provides idempotent persistence of pipeline outputs.
//
// Every write carries a caller-supplied idempotency key. Writing the
// same key twice replaces the record instead of duplicating it, so a
// resumed or retried run converges on exactly one record per produced
// asset.
package asset

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyKey reports a write spec without an idempotency key.
var ErrEmptyKey = errors.New("idempotency key is required")

// Kind classifies a persisted asset.
type Kind string

const (
	// KindDocumentExtract is extracted document content.
	KindDocumentExtract Kind = "document_extract"
	// KindWBS is a work breakdown structure.
	KindWBS Kind = "wbs"
	// KindStandardsResolution is a resolved standards set.
	KindStandardsResolution Kind = "standards_resolution"
	// KindITP is an inspection and test plan.
	KindITP Kind = "itp"
)

// Edge links two assets by their idempotency keys.
type Edge struct {
	// FromKey is the source asset key.
	FromKey string `json:"from_key"`
	// ToKey is the target asset key.
	ToKey string `json:"to_key"`
	// Relation names the edge type.
	Relation string `json:"relation"`
}

// WriteSpec describes one idempotent asset write.
type WriteSpec struct {
	// Key is the caller-supplied idempotency key. Writes with the same
	// key replace each other.
	Key string `json:"key"`
	// Kind classifies the asset.
	Kind Kind `json:"kind"`
	// ProjectID is the owning project.
	ProjectID string `json:"project_id"`
	// Payload is the asset content.
	Payload map[string]any `json:"payload"`
	// Edges are links from this asset to others.
	Edges []Edge `json:"edges,omitempty"`
}

// Record is a stored asset.
type Record struct {
	// Key is the idempotency key the record is stored under.
	Key string `json:"key"`
	// Kind classifies the asset.
	Kind Kind `json:"kind"`
	// ProjectID is the owning project.
	ProjectID string `json:"project_id"`
	// Payload is the asset content.
	Payload map[string]any `json:"payload"`
	// Edges are links from this asset to others.
	Edges []Edge `json:"edges,omitempty"`
	// CreatedAt is when the record was first written.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the record was last replaced.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists assets keyed by idempotency key.
type Store interface {
	// Upsert writes the asset, replacing any record under the same key.
	Upsert(ctx context.Context, spec WriteSpec) (*Record, error)
	// Get retrieves a record by key, nil when absent.
	Get(ctx context.Context, key string) (*Record, error)
	// List retrieves all records of a project, optionally filtered by kind
	// (empty kind matches all).
	List(ctx context.Context, projectID string, kind Kind) ([]*Record, error)
	// Close releases resources held by the store.
	Close() error
}

// Key builds a deterministic idempotency key from its parts, so the
// same run, entity and node always write to the same record.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
