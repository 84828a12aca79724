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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gonfva/docxlib"
)

// DocxReader extracts plain text from DOCX documents.
type DocxReader struct{}

// NewDocxReader creates a new DOCX reader.
func NewDocxReader() *DocxReader {
	return &DocxReader{}
}

// Name returns the name of this reader.
func (r *DocxReader) Name() string {
	return "DOCXReader"
}

// ReadFromFile reads DOCX content from a file path.
func (r *DocxReader) ReadFromFile(filePath string) (*Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	doc, err := docxlib.Parse(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return &Document{
		ID:      name,
		Name:    name,
		Content: extractDocxText(doc),
	}, nil
}

// ReadFromReader reads DOCX content from an io.Reader. The parser needs
// random access, so the content is staged in a temporary file.
func (r *DocxReader) ReadFromReader(name string, reader io.Reader) (*Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "docx_*.docx")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write to temporary file: %w", err)
	}
	tmpFile.Close()

	doc, err := r.ReadFromFile(tmpFile.Name())
	if err != nil {
		return nil, err
	}
	doc.ID = name
	doc.Name = name
	return doc, nil
}

// extractDocxText extracts all text content from a docxlib document.
func extractDocxText(doc *docxlib.DocxLib) string {
	var textContent strings.Builder
	for _, paragraph := range doc.Paragraphs() {
		for _, child := range paragraph.Children() {
			if child.Run != nil && child.Run.Text != nil {
				if text := strings.TrimSpace(child.Run.Text.Text); text != "" {
					textContent.WriteString(text)
					textContent.WriteString(" ")
				}
			}
			if child.Link != nil && child.Link.Run.Text != nil {
				if text := strings.TrimSpace(child.Link.Run.Text.Text); text != "" {
					textContent.WriteString(text)
					textContent.WriteString(" ")
				}
			}
		}
		if textContent.Len() > 0 {
			textContent.WriteString("\n")
		}
	}
	return strings.TrimSpace(textContent.String())
}
