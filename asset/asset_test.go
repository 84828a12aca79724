//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsDeterministic(t *testing.T) {
	first := Key("doc_extract", "project-1", "doc-9")
	second := Key("doc_extract", "project-1", "doc-9")
	assert.Equal(t, first, second)
	assert.Equal(t, "doc_extract:project-1:doc-9", first)
}

func TestKeyDistinguishesParts(t *testing.T) {
	assert.NotEqual(t, Key("wbs", "p1"), Key("wbs", "p2"))
	assert.NotEqual(t, Key("wbs", "p1"), Key("itp", "p1"))
}
