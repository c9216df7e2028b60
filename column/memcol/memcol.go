// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package memcol is a plain-Go-slice reference implementation of
// column.Factory. It stands in for a real query engine's column container
// (explicitly out of scope per spec §1) in tests and in small programs that
// want the decoded rows without any columnar-engine dependency.
package memcol

import "github.com/DataDog/dwarfcols/column"

// Factory is the zero-value-usable memcol column.Factory.
type Factory struct{}

// New returns a ready-to-use Factory.
func New() *Factory { return &Factory{} }

type stringDict struct{ values []string }

func (d *stringDict) Len() int          { return len(d.values) }
func (d *stringDict) At(i int) string   { return d.values[i] }

type uint64Dict struct{ values []uint64 }

func (d *uint64Dict) Len() int          { return len(d.values) }
func (d *uint64Dict) At(i int) uint64   { return d.values[i] }

// NewStringDictionary implements column.Factory.
func (*Factory) NewStringDictionary(values []string) column.StringDictionary {
	cp := make([]string, len(values))
	copy(cp, values)
	return &stringDict{values: cp}
}

// NewUint64Dictionary implements column.Factory.
func (*Factory) NewUint64Dictionary(values []uint64) column.Uint64Dictionary {
	cp := make([]uint64, len(values))
	copy(cp, values)
	return &uint64Dict{values: cp}
}

// Uint64Column is the finished form of a Uint64Builder.
type Uint64Column []uint64

type uint64Builder struct{ vals Uint64Column }

func (*Factory) NewUint64Builder() column.Uint64Builder { return &uint64Builder{} }
func (b *uint64Builder) Append(v uint64)                { b.vals = append(b.vals, v) }
func (b *uint64Builder) Finish() column.Column           { return b.vals }

// Uint32Column is the finished form of a Uint32Builder.
type Uint32Column []uint32

type uint32Builder struct{ vals Uint32Column }

func (*Factory) NewUint32Builder() column.Uint32Builder { return &uint32Builder{} }
func (b *uint32Builder) Append(v uint32)                { b.vals = append(b.vals, v) }
func (b *uint32Builder) Finish() column.Column           { return b.vals }

// StringColumn is the finished form of a StringBuilder.
type StringColumn []string

type stringBuilder struct{ vals StringColumn }

func (*Factory) NewStringBuilder() column.StringBuilder { return &stringBuilder{} }
func (b *stringBuilder) Append(s string)                { b.vals = append(b.vals, s) }
func (b *stringBuilder) Finish() column.Column           { return b.vals }

// DictColumn is the finished form of a DictIndexBuilder: a shared Dictionary
// plus the per-row indices into it.
type DictColumn struct {
	Dict    column.Dictionary
	Indices []uint32
}

type dictIndexBuilder struct {
	dict    column.Dictionary
	indices []uint32
}

func (*Factory) NewDictIndexBuilder(dict column.Dictionary) column.DictIndexBuilder {
	return &dictIndexBuilder{dict: dict}
}
func (b *dictIndexBuilder) AppendIndex(idx uint32) { b.indices = append(b.indices, idx) }
func (b *dictIndexBuilder) Finish() column.Column {
	return DictColumn{Dict: b.dict, Indices: b.indices}
}

// OffsetsColumn is the finished cumulative-length boundary vector.
type OffsetsColumn []uint64

func (o OffsetsColumn) Len() int { return len(o) }

type offsetsBuilder struct{ vals OffsetsColumn }

func (*Factory) NewOffsetsBuilder() column.OffsetsBuilder { return &offsetsBuilder{} }
func (b *offsetsBuilder) Append(n uint64)                 { b.vals = append(b.vals, n) }
func (b *offsetsBuilder) Finish() column.Offsets           { return b.vals }

// ArrayColumn pairs a finished value Column with the Offsets vector slicing
// it into one array per row.
type ArrayColumn struct {
	Values  column.Column
	Offsets column.Offsets
}

// NewArray implements column.Factory.
func (*Factory) NewArray(values column.Column, offsets column.Offsets) column.Column {
	return ArrayColumn{Values: values, Offsets: offsets}
}
