//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirSource fetches documents from files in a directory. A document ID
// maps to a file named "<id>.<ext>" where ext selects the reader.
type DirSource struct {
	dir     string
	readers map[string]Reader
}

// DirSourceOption configures a DirSource.
type DirSourceOption func(*DirSource)

// WithReader registers a reader for a file extension (without the dot).
func WithReader(ext string, reader Reader) DirSourceOption {
	return func(s *DirSource) {
		s.readers[strings.ToLower(ext)] = reader
	}
}

// NewDirSource creates a directory-backed document source with readers
// for pdf, docx, txt and md files.
func NewDirSource(dir string, opts ...DirSourceOption) *DirSource {
	s := &DirSource{
		dir: dir,
		readers: map[string]Reader{
			"pdf":  NewPDFReader(),
			"docx": NewDocxReader(),
			"txt":  NewTextReader(),
			"md":   NewTextReader(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch resolves each ID to a file and reads it. Failures are recorded
// per item; one unreadable document never hides the others.
func (s *DirSource) Fetch(ctx context.Context, ids []string) []FetchResult {
	results := make([]FetchResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, FetchResult{ID: id, Err: err})
			continue
		}
		doc, err := s.fetchOne(id)
		results = append(results, FetchResult{ID: id, Document: doc, Err: err})
	}
	return results
}

func (s *DirSource) fetchOne(id string) (*Document, error) {
	path, ext, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	reader, ok := s.readers[ext]
	if !ok {
		return nil, fmt.Errorf("no reader registered for extension %q", ext)
	}
	doc, err := reader.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	doc.ID = id
	return doc, nil
}

// resolve finds the file for a document ID by probing the registered
// extensions.
func (s *DirSource) resolve(id string) (path, ext string, err error) {
	for candidate := range s.readers {
		p := filepath.Join(s.dir, id+"."+candidate)
		if _, statErr := os.Stat(p); statErr == nil {
			return p, candidate, nil
		}
	}
	return "", "", fmt.Errorf("document %s not found in %s", id, s.dir)
}
