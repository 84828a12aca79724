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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts plain text from PDF documents.
type PDFReader struct{}

// NewPDFReader creates a new PDF reader.
func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

// Name returns the name of this reader.
func (r *PDFReader) Name() string {
	return "PDFReader"
}

// ReadFromFile reads PDF content from a file path.
func (r *PDFReader) ReadFromFile(filePath string) (*Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return r.read(file, name)
}

// ReadFromReader reads PDF content from an io.Reader.
func (r *PDFReader) ReadFromReader(name string, reader io.Reader) (*Document, error) {
	return r.read(reader, name)
}

func (r *PDFReader) read(reader io.Reader, name string) (*Document, error) {
	readerAt, size, err := toReaderAt(reader)
	if err != nil {
		return nil, err
	}
	pdfReader, err := pdf.NewReader(readerAt, size)
	if err != nil {
		return nil, err
	}

	var allText strings.Builder
	totalPage := pdfReader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := pdfReader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail text extraction are skipped, not fatal.
			continue
		}
		allText.WriteString(text)
		allText.WriteString("\n")
	}
	return &Document{
		ID:      name,
		Name:    name,
		Content: strings.TrimSpace(allText.String()),
	}, nil
}

// toReaderAt adapts an io.Reader to the io.ReaderAt the PDF parser
// needs, buffering into memory when the reader is not seekable.
func toReaderAt(r io.Reader) (io.ReaderAt, int64, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		if rs, ok := r.(io.ReadSeeker); ok {
			size, err := getReaderSize(rs)
			if err != nil {
				return nil, 0, err
			}
			return ra, size, nil
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// getReaderSize returns the total size of an io.ReadSeeker without
// altering its current position.
func getReaderSize(rs io.ReadSeeker) (int64, error) {
	current, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, err = rs.Seek(current, io.SeekStart)
	if err != nil {
		return 0, err
	}
	return end, nil
}
