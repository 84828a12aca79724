//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package document provides project document types and sources for
// pipeline input fetching.
package document

import (
	"context"
	"io"
	"time"
)

// Document represents one project document with its extracted text.
type Document struct {
	// ID is the document identifier within the project.
	ID string `json:"id"`
	// Name is the human-readable document name.
	Name string `json:"name"`
	// Content is the extracted plain text.
	Content string `json:"content"`
	// Metadata contains additional document attributes.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the document record was created.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Reader extracts plain text from one document format.
type Reader interface {
	// ReadFromFile reads a document from a file path.
	ReadFromFile(filePath string) (*Document, error)
	// ReadFromReader reads a document from an io.Reader.
	ReadFromReader(name string, reader io.Reader) (*Document, error)
	// Name returns the name of this reader.
	Name() string
}

// FetchResult is the outcome of fetching one document. A failed item
// carries its error here instead of failing the whole fetch.
type FetchResult struct {
	// ID is the requested document identifier.
	ID string
	// Document is the fetched document, nil when Err is set.
	Document *Document
	// Err is the per-document fetch failure, nil on success.
	Err error
}

// Source fetches project documents by identifier. Implementations
// return one FetchResult per requested ID, in request order, so callers
// can distinguish which documents failed.
type Source interface {
	Fetch(ctx context.Context, ids []string) []FetchResult
}
