// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func le16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func le32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func le64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }

func TestReadInitialLength32(t *testing.T) {
	buf := le32(0x1234)
	length, is64, next, err := readInitialLength(buf, 0)
	require.NoError(t, err)
	require.False(t, is64)
	require.Equal(t, uint64(0x1234), length)
	require.Equal(t, uint64(4), next)
}

func TestReadInitialLength64(t *testing.T) {
	buf := append(le32(0xffffffff), le64(0xdeadbeef)...)
	length, is64, next, err := readInitialLength(buf, 0)
	require.NoError(t, err)
	require.True(t, is64)
	require.Equal(t, uint64(0xdeadbeef), length)
	require.Equal(t, uint64(12), next)
}

func TestReadInitialLengthReservedValue(t *testing.T) {
	buf := le32(0xfffffff0)
	_, _, _, err := readInitialLength(buf, 0)
	require.Error(t, err)
}

// TestParseUnitHeaderV4 builds a minimal DWARF4 compile-unit header (32-bit
// DWARF format: version, 32-bit abbrev_offset, then address_size) followed by
// a single sibling-terminator DIE byte, and checks every decoded field.
func TestParseUnitHeaderV4(t *testing.T) {
	var buf []byte
	buf = append(buf, 0, 0, 0, 0) // unit_length placeholder
	buf = append(buf, le16(4)...) // version
	buf = append(buf, le32(0)...) // abbrev_offset
	buf = append(buf, 8)          // address_size
	buf = append(buf, 0)          // DIE: abbrev code 0 (terminator)
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)-4))

	ctx := &dwarfCtx{info: buf}
	h, err := ctx.parseUnitHeader(0)
	require.NoError(t, err)
	require.Equal(t, uint16(4), h.Version)
	require.False(t, h.Is64)
	require.Equal(t, uint64(0), h.AbbrevOffset)
	require.Equal(t, uint8(8), h.AddrSize)
	require.Equal(t, uint64(11), h.DIEOffset)
	require.Equal(t, uint64(len(buf)), h.NextOffset)
	require.Equal(t, uint8(0), h.UnitType)
}

// TestParseUnitHeaderV5 builds a minimal DWARF5 header, which inserts
// unit_type and address_size ahead of abbrev_offset (DWARF5 §7.5.1.1).
func TestParseUnitHeaderV5(t *testing.T) {
	var buf []byte
	buf = append(buf, 0, 0, 0, 0) // unit_length placeholder
	buf = append(buf, le16(5)...) // version
	buf = append(buf, 1)          // unit_type: DW_UT_compile
	buf = append(buf, 8)          // address_size
	buf = append(buf, le32(0)...) // abbrev_offset
	buf = append(buf, 0)          // DIE: abbrev code 0
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)-4))

	ctx := &dwarfCtx{info: buf}
	h, err := ctx.parseUnitHeader(0)
	require.NoError(t, err)
	require.Equal(t, uint16(5), h.Version)
	require.Equal(t, uint8(1), h.UnitType)
	require.Equal(t, uint8(8), h.AddrSize)
	require.Equal(t, uint64(0), h.AbbrevOffset)
	require.Equal(t, uint64(12), h.DIEOffset)
	require.Equal(t, uint64(len(buf)), h.NextOffset)
}

func TestEnumerateUnitsMultiple(t *testing.T) {
	mk := func(version uint16) []byte {
		var u []byte
		u = append(u, 0, 0, 0, 0)
		u = append(u, le16(version)...)
		u = append(u, le32(0)...)
		u = append(u, 8)
		u = append(u, 0)
		binary.LittleEndian.PutUint32(u, uint32(len(u)-4))
		return u
	}
	buf := append(mk(4), mk(4)...)
	ctx := &dwarfCtx{info: buf}
	units, err := ctx.enumerateUnits()
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, uint64(0), units[0].Offset)
	require.Equal(t, uint64(12), units[1].Offset)
}

// TestParseAbbrevTable builds one abbreviation declaring DW_TAG_compile_unit
// with children and two attributes (DW_AT_name/DW_FORM_string,
// DW_AT_stmt_list/DW_FORM_sec_offset), terminated per DWARF5 §7.5.3.
func TestParseAbbrevTable(t *testing.T) {
	var buf []byte
	buf = append(buf, 1)    // abbrev code 1 (ULEB128)
	buf = append(buf, 0x11) // DW_TAG_compile_unit (ULEB128)
	buf = append(buf, 1)    // has_children = true
	buf = append(buf, 0x03, 0x08) // DW_AT_name, DW_FORM_string
	buf = append(buf, 0x10, 0x17) // DW_AT_stmt_list, DW_FORM_sec_offset
	buf = append(buf, 0, 0)       // attribute list terminator
	buf = append(buf, 0)          // table terminator (abbrev code 0)

	ctx := &dwarfCtx{abbrev: buf}
	table, err := ctx.parseAbbrevTable(0)
	require.NoError(t, err)
	require.Len(t, table, 1)
	require.Equal(t, uint64(1), table[0].Code)
	require.Equal(t, uint16(0x11), table[0].Tag)
	require.True(t, table[0].HasChildren)
	require.Len(t, table[0].Attrs, 2)
	require.Equal(t, abbrevAttr{Attr: 0x03, Form: 0x08}, table[0].Attrs[0])
	require.Equal(t, abbrevAttr{Attr: 0x10, Form: 0x17}, table[0].Attrs[1])
}

func TestAbbrevTableMemoizes(t *testing.T) {
	var buf []byte
	buf = append(buf, 1, 0x11, 0, 0x03, 0x08, 0, 0, 0)
	ctx, err := newDwarfCtxForTest(buf)
	require.NoError(t, err)
	t1, err := ctx.abbrevTable(0)
	require.NoError(t, err)
	t2, err := ctx.abbrevTable(0)
	require.NoError(t, err)
	require.Same(t, &t1[0], &t2[0])
}

// newDwarfCtxForTest builds a dwarfCtx directly from in-memory sections,
// bypassing elfsrc entirely — most of this package's tests exercise the
// decoding layer below the ELF boundary (elfsrc has its own smaller test).
func newDwarfCtxForTest(abbrev []byte) (*dwarfCtx, error) {
	ctx := &dwarfCtx{
		abbrev:      abbrev,
		abbrevMu:    make(chan struct{}, 1),
		abbrevCache: make(map[uint64][]abbrevDecl),
	}
	ctx.abbrevMu <- struct{}{}
	return ctx, nil
}

func TestFindAbbrevMissing(t *testing.T) {
	_, ok := findAbbrev([]abbrevDecl{{Code: 1}}, 2)
	require.False(t, ok)
}

func TestExtractFormStrp(t *testing.T) {
	ctx := &dwarfCtx{str: append([]byte("foo"), 0), info: le32(0)}
	h := unitHeader{Is64: false}
	val, next, err := ctx.extractForm(h, 0x0e /* strp */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classStr, val.Class)
	require.Equal(t, "foo", val.Str)
	require.Equal(t, uint64(4), next)
}

func TestExtractFormBlock1(t *testing.T) {
	ctx := &dwarfCtx{info: append([]byte{3}, []byte("abc")...)}
	h := unitHeader{}
	val, next, err := ctx.extractForm(h, 0x0a /* block1 */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classBlock, val.Class)
	require.Equal(t, "abc", val.Str)
	require.Equal(t, uint64(4), next)
}

func TestExtractFormAddr(t *testing.T) {
	ctx := &dwarfCtx{info: le64(0x1000)}
	h := unitHeader{AddrSize: 8}
	val, next, err := ctx.extractForm(h, 0x01 /* addr */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classAddr, val.Class)
	require.Equal(t, int64(0x1000), val.Int)
	require.Equal(t, uint64(8), next)
}

func TestExtractFormRef4(t *testing.T) {
	ctx := &dwarfCtx{info: le32(0x50)}
	h := unitHeader{Offset: 0x20}
	val, next, err := ctx.extractForm(h, 0x13 /* ref4 */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classRef, val.Class)
	require.True(t, val.IsRef)
	require.Equal(t, int64(0x70), val.Int)
	require.Equal(t, uint64(4), next)
}

func TestExtractFormSdataNegative(t *testing.T) {
	ctx := &dwarfCtx{info: []byte{0x7f}} // SLEB128 -1
	h := unitHeader{}
	val, next, err := ctx.extractForm(h, 0x0d /* sdata */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classInt, val.Class)
	require.Equal(t, int64(-1), val.Int)
	require.Equal(t, uint64(1), next)
}

func TestExtractFormFlagPresent(t *testing.T) {
	ctx := &dwarfCtx{info: []byte{}}
	h := unitHeader{}
	val, next, err := ctx.extractForm(h, 0x19 /* flag_present */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classInt, val.Class)
	require.Equal(t, int64(1), val.Int)
	require.Equal(t, uint64(0), next)
}

func TestExtractFormImplicitConst(t *testing.T) {
	ctx := &dwarfCtx{info: []byte{}}
	h := unitHeader{}
	val, next, err := ctx.extractForm(h, 0x21 /* implicit_const */, 42, 0)
	require.NoError(t, err)
	require.Equal(t, classInt, val.Class)
	require.Equal(t, int64(42), val.Int)
	require.Equal(t, uint64(0), next)
}

func TestExtractFormStrx(t *testing.T) {
	// .debug_str_offsets: 8-byte header, then one 4-byte entry pointing at
	// "bar" in .debug_str.
	strOffsets := append(make([]byte, 8), le32(0)...)
	ctx := &dwarfCtx{
		info:       []byte{0}, // strx index 0 (ULEB128)
		str:        append([]byte("bar"), 0),
		strOffsets: strOffsets,
	}
	h := unitHeader{}
	val, _, err := ctx.extractForm(h, 0x1a /* strx */, 0, 0)
	require.NoError(t, err)
	require.Equal(t, classStr, val.Class)
	require.Equal(t, "bar", val.Str)
}
