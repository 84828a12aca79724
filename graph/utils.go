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
	"reflect"
	"time"
)

// deepCopyMap deep-copies a string-keyed map of JSON-friendly values.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = deepCopyAny(v)
	}
	return copied
}

// deepCopyAny performs a deep copy of common JSON-serializable Go types to
// avoid sharing mutable references (maps/slices) between live state and
// checkpoint snapshots.
func deepCopyAny(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		copied := make([]any, len(v))
		for i := range v {
			copied[i] = deepCopyAny(v[i])
		}
		return copied
	case []string:
		copied := make([]string, len(v))
		copy(copied, v)
		return copied
	case []int:
		copied := make([]int, len(v))
		copy(copied, v)
		return copied
	case []float64:
		copied := make([]float64, len(v))
		copy(copied, v)
		return copied
	case []map[string]any:
		copied := make([]map[string]any, len(v))
		for i := range v {
			copied[i] = deepCopyMap(v[i])
		}
		return copied
	case time.Time:
		return v
	}
	return deepCopyReflect(reflect.ValueOf(value))
}

// deepCopyReflect copies the remaining container kinds via reflection.
// Scalars and unsupported kinds are returned as-is.
func deepCopyReflect(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Ptr {
			elem := reflect.New(rv.Elem().Type())
			elem.Elem().Set(reflect.ValueOf(deepCopyReflect(rv.Elem())))
			return elem.Interface()
		}
		return deepCopyReflect(rv.Elem())
	case reflect.Map:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()).Interface()
		}
		newMap := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		for _, mk := range rv.MapKeys() {
			newMap.SetMapIndex(mk, reflect.ValueOf(deepCopyReflect(rv.MapIndex(mk))))
		}
		return newMap.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()).Interface()
		}
		l := rv.Len()
		newSlice := reflect.MakeSlice(rv.Type(), l, l)
		for i := 0; i < l; i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyReflect(rv.Index(i))))
		}
		return newSlice.Interface()
	default:
		return rv.Interface()
	}
}
