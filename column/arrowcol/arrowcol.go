// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package arrowcol implements column.Factory on top of Apache Arrow, the way
// a real host query engine would. It is grounded on the teacher repo's own
// Arrow usage in comp/observer/impl/parquet_writer.go and
// comp/anomalydetection/recorder/impl/parquet_writer.go: the same
// memory.NewGoAllocator, array.NewStringBuilder/NewUint64Builder, and
// array.NewRecord calls appear there.
//
// One simplification versus a production adapter: dictionary-encoded
// columns are flattened to their resolved values rather than represented as
// arrow.Dictionary arrays, and array (ancestor_*/attr_*) columns are handed
// back as a lightweight values+offsets pair rather than a true nested
// arrow.List, so that NewRecord only needs to stitch together flat arrays.
// A production engine wiring arrow.Dictionary/arrow.List is a straightforward
// extension of this adapter; it is not needed to exercise the decoding core.
package arrowcol

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/DataDog/dwarfcols/column"
)

// Factory is the Arrow-backed column.Factory.
type Factory struct {
	mem memory.Allocator
}

// New returns a Factory backed by a fresh Go-heap Arrow allocator.
func New() *Factory { return &Factory{mem: memory.NewGoAllocator()} }

type stringDict struct{ values []string }

func (d *stringDict) Len() int        { return len(d.values) }
func (d *stringDict) At(i int) string { return d.values[i] }

type uint64Dict struct{ values []uint64 }

func (d *uint64Dict) Len() int        { return len(d.values) }
func (d *uint64Dict) At(i int) uint64 { return d.values[i] }

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

type uint64Builder struct{ b *array.Uint64Builder }

// NewUint64Builder implements column.Factory.
func (f *Factory) NewUint64Builder() column.Uint64Builder {
	return &uint64Builder{b: array.NewUint64Builder(f.mem)}
}
func (u *uint64Builder) Append(v uint64) { u.b.Append(v) }
func (u *uint64Builder) Finish() column.Column {
	defer u.b.Release()
	return u.b.NewUint64Array()
}

type uint32Builder struct{ b *array.Uint32Builder }

// NewUint32Builder implements column.Factory.
func (f *Factory) NewUint32Builder() column.Uint32Builder {
	return &uint32Builder{b: array.NewUint32Builder(f.mem)}
}
func (u *uint32Builder) Append(v uint32) { u.b.Append(v) }
func (u *uint32Builder) Finish() column.Column {
	defer u.b.Release()
	return u.b.NewUint32Array()
}

type stringBuilder struct{ b *array.StringBuilder }

// NewStringBuilder implements column.Factory.
func (f *Factory) NewStringBuilder() column.StringBuilder {
	return &stringBuilder{b: array.NewStringBuilder(f.mem)}
}
func (s *stringBuilder) Append(v string) { s.b.Append(v) }
func (s *stringBuilder) Finish() column.Column {
	defer s.b.Release()
	return s.b.NewStringArray()
}

// dictIndexBuilder resolves each appended index against the bound
// Dictionary immediately, writing the resolved value into a plain Arrow
// builder (see package doc: dictionary encoding is flattened here).
type dictIndexBuilder struct {
	strDict  column.StringDictionary
	u64Dict  column.Uint64Dictionary
	strB     *array.StringBuilder
	u64B     *array.Uint64Builder
}

// NewDictIndexBuilder implements column.Factory.
func (f *Factory) NewDictIndexBuilder(dict column.Dictionary) column.DictIndexBuilder {
	switch d := dict.(type) {
	case column.StringDictionary:
		return &dictIndexBuilder{strDict: d, strB: array.NewStringBuilder(f.mem)}
	case column.Uint64Dictionary:
		return &dictIndexBuilder{u64Dict: d, u64B: array.NewUint64Builder(f.mem)}
	default:
		panic(fmt.Sprintf("arrowcol: unsupported dictionary kind %T", dict))
	}
}

func (b *dictIndexBuilder) AppendIndex(idx uint32) {
	if b.strB != nil {
		b.strB.Append(b.strDict.At(int(idx)))
		return
	}
	b.u64B.Append(b.u64Dict.At(int(idx)))
}

func (b *dictIndexBuilder) Finish() column.Column {
	if b.strB != nil {
		defer b.strB.Release()
		return b.strB.NewStringArray()
	}
	defer b.u64B.Release()
	return b.u64B.NewUint64Array()
}

// Offsets is the finished cumulative-length boundary vector.
type Offsets []uint64

// Len implements column.Offsets.
func (o Offsets) Len() int { return len(o) }

type offsetsBuilder struct{ vals Offsets }

// NewOffsetsBuilder implements column.Factory.
func (*Factory) NewOffsetsBuilder() column.OffsetsBuilder { return &offsetsBuilder{} }
func (b *offsetsBuilder) Append(n uint64)                 { b.vals = append(b.vals, n) }
func (b *offsetsBuilder) Finish() column.Offsets          { return b.vals }

// ArrayColumn pairs a finished flat Arrow array with the Offsets vector that
// slices it into one array value per row. See the package doc for why this
// is not a true nested arrow.List.
type ArrayColumn struct {
	Values  arrow.Array
	Offsets Offsets
}

// NewArray implements column.Factory.
func (*Factory) NewArray(values column.Column, offsets column.Offsets) column.Column {
	arr, _ := values.(arrow.Array)
	off, _ := offsets.(Offsets)
	return ArrayColumn{Values: arr, Offsets: off}
}

// NewRecord stitches the flat (non-array) columns of a finished chunk into a
// genuine arrow.Record, in the declared column order. Array columns
// (ancestor_*, attr_*) are skipped; see the package doc.
func (f *Factory) NewRecord(columnOrder []string, chunk column.Chunk) arrow.Record {
	var fields []arrow.Field
	var arrs []arrow.Array
	for _, name := range columnOrder {
		col, ok := chunk.Columns[name]
		if !ok {
			continue
		}
		arr, ok := col.(arrow.Array)
		if !ok {
			continue // array-typed column; not flattened into this record
		}
		fields = append(fields, arrow.Field{Name: name, Type: arr.DataType()})
		arrs = append(arrs, arr)
	}
	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, arrs, int64(chunk.NumRows))
}
