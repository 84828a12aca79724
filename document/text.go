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
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TextReader reads plain text documents.
type TextReader struct{}

// NewTextReader creates a new text reader.
func NewTextReader() *TextReader {
	return &TextReader{}
}

// Name returns the name of this reader.
func (r *TextReader) Name() string {
	return "TextReader"
}

// ReadFromFile reads text content from a file path.
func (r *TextReader) ReadFromFile(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return &Document{
		ID:      name,
		Name:    name,
		Content: strings.TrimSpace(string(data)),
	}, nil
}

// ReadFromReader reads text content from an io.Reader.
func (r *TextReader) ReadFromReader(name string, reader io.Reader) (*Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return &Document{
		ID:      name,
		Name:    name,
		Content: strings.TrimSpace(string(data)),
	}, nil
}
