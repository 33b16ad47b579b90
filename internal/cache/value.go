package cache

import (
	"encoding/json"
	"fmt"
)

type valueKind int

const (
	opaqueValue valueKind = iota
	listValue
	documentValue
)

// Value is a cache payload whose chunkable shape is decided by the caller
// rather than inspected at write time: a bare list can be split into
// chunks, a document keeps its metadata whole and chunks only the points
// list, and an opaque value is never split.
type Value struct {
	kind  valueKind
	raw   json.RawMessage
	meta  json.RawMessage
	items []json.RawMessage
}

// Opaque wraps a value that must be stored whole.
func Opaque(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshal cache value: %w", err)
	}
	return Value{kind: opaqueValue, raw: raw}, nil
}

// List wraps a slice whose elements may be split across chunks.
func List(items any) (Value, error) {
	elems, err := marshalItems(items)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: listValue, items: elems}, nil
}

// Document wraps an object with a large points list: meta is stored whole
// and the points are chunked when the document exceeds the size ceiling.
// On read the points are reinjected under the document's "points" field.
func Document(meta any, points any) (Value, error) {
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return Value{}, fmt.Errorf("marshal document meta: %w", err)
	}
	elems, err := marshalItems(points)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: documentValue, meta: rawMeta, items: elems}, nil
}

// pointCount is the number of list elements, used for index entries.
func (v Value) pointCount() int {
	if v.kind == opaqueValue {
		return 0
	}
	return len(v.items)
}

// encode renders the full serialized payload: the document form carries its
// points inline, identical to what an unchunked read returns.
func (v Value) encode() (json.RawMessage, error) {
	switch v.kind {
	case listValue:
		return json.Marshal(v.items)
	case documentValue:
		return injectPoints(v.meta, v.items)
	default:
		return v.raw, nil
	}
}

func marshalItems(items any) ([]json.RawMessage, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal cache list: %w", err)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("cache list is not an array: %w", err)
	}
	return elems, nil
}

// injectPoints returns the meta object with the items placed under "points".
func injectPoints(meta json.RawMessage, items []json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(meta, &obj); err != nil {
		return nil, fmt.Errorf("document meta is not an object: %w", err)
	}

	points, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	obj["points"] = points

	return json.Marshal(obj)
}
