// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package column pins the narrow contract between the DWARF decoding core
// and the host's column container library. Per spec §1, that container is an
// external collaborator: the core never constructs arrays, dictionaries, or
// offset vectors itself, it only calls this interface. Two reference
// implementations live alongside real library code: column/memcol (plain Go
// slices, used in tests) and column/arrowcol (backed by Apache Arrow, used by
// cmd/dwarfcols and demonstrating integration with a real columnar engine).
package column

// Dictionary is an immutable lookup table handle, indexed 0..Len()-1. The
// three registry dictionaries (tag/attr/form names, spec §4.C) and the
// per-unit filename table and unit_name/unit_offset pairs (spec §4.E) are all
// Dictionaries; their identity, not their contents, is what chunks share.
type Dictionary interface {
	Len() int
}

// StringDictionary is a Dictionary of strings.
type StringDictionary interface {
	Dictionary
	At(i int) string
}

// Uint64Dictionary is a Dictionary of unsigned 64-bit integers (used only for
// the unit_offset two-entry dictionary, spec §4.E "Chunk assembly").
type Uint64Dictionary interface {
	Dictionary
	At(i int) uint64
}

// Column is an opaque, finished column as produced by a Builder's Finish.
// The decoding core never inspects it; it only threads it back into a Chunk.
type Column interface{}

// Offsets is the finished boundary vector shared by one or more array value
// columns (spec §9, "nominate an owner explicitly"). Offsets[i] is the
// cumulative element count through row i; row i's slice is
// values[Offsets[i-1]:Offsets[i]], with an implicit Offsets[-1] == 0.
type Offsets interface {
	Len() int
}

// Uint64Builder accumulates a plain (non-dictionary-encoded) uint64 column.
type Uint64Builder interface {
	Append(v uint64)
	Finish() Column
}

// Uint32Builder accumulates a plain uint32 column.
type Uint32Builder interface {
	Append(v uint32)
	Finish() Column
}

// StringBuilder accumulates a plain string column (name, linkage_name).
// Block/exprloc attribute payloads do not pass through it: they become
// string(bytes) entries of attr_str's per-chunk StringDictionary.
type StringBuilder interface {
	Append(s string)
	Finish() Column
}

// DictIndexBuilder accumulates indices into a previously built Dictionary,
// producing a dictionary-encoded column on Finish.
type DictIndexBuilder interface {
	AppendIndex(idx uint32)
	Finish() Column
}

// OffsetsBuilder accumulates the boundary vector for an array group.
type OffsetsBuilder interface {
	Append(cumulativeLen uint64)
	Finish() Offsets
}

// Factory is implemented by the host query engine (or a reference adapter).
// Dictionaries are long-lived (registry dictionaries span the whole Reader;
// per-unit dictionaries span one compilation unit); every other builder
// spans exactly one chunk.
type Factory interface {
	NewStringDictionary(values []string) StringDictionary
	NewUint64Dictionary(values []uint64) Uint64Dictionary

	NewUint64Builder() Uint64Builder
	NewUint32Builder() Uint32Builder
	NewStringBuilder() StringBuilder
	NewDictIndexBuilder(dict Dictionary) DictIndexBuilder
	NewOffsetsBuilder() OffsetsBuilder

	// NewArray binds a finished value Column to a finished Offsets vector,
	// producing the array Column for a row-wise slice (ancestor_*, attr_*).
	NewArray(values Column, offsets Offsets) Column
}

// Chunk is one finished batch of rows, keyed by schema column name (see
// package dwarfcols's Schema for the fixed 14 names and their order).
type Chunk struct {
	NumRows             int
	Columns             map[string]Column
	ApproxBytesConsumed uint64
}
