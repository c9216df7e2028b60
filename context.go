// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"encoding/binary"

	"github.com/DataDog/dwarfcols/dwarfconst"
	"github.com/DataDog/dwarfcols/elfsrc"
)

// dwarfCtx borrows the handful of DWARF sections this package understands
// from an elfsrc.Image and provides the shared, read-only parsing primitives
// (abbreviation tables, unit headers, raw form decoding) that every unit's
// decodeUnit call uses. Apart from the abbreviation cache, which abbrevMu
// guards, a dwarfCtx has no mutable state past construction, so many
// goroutines may use it concurrently (spec §4.B, §5).
type dwarfCtx struct {
	info       []byte
	abbrev     []byte
	str        []byte
	lineStr    []byte
	line       []byte
	strOffsets []byte
	addr       []byte
	rngLists   []byte
	locLists   []byte

	// abbrevCache memoizes abbrevTable by .debug_abbrev offset; built lazily
	// and read concurrently, so access is guarded by abbrevMu.
	abbrevMu    chan struct{} // 1-buffered mutex; see abbrevTable
	abbrevCache map[uint64][]abbrevDecl
}

func newDwarfCtx(img *elfsrc.Image) (*dwarfCtx, error) {
	info, ok := img.Section("debug_info")
	if !ok || len(info) == 0 {
		return nil, elfErrorf("missing .debug_info section")
	}
	abbrev, ok := img.Section("debug_abbrev")
	if !ok {
		return nil, elfErrorf("missing .debug_abbrev section")
	}
	str, _ := img.Section("debug_str")
	lineStr, _ := img.Section("debug_line_str")
	line, _ := img.Section("debug_line")
	strOffsets, _ := img.Section("debug_str_offsets")
	addr, _ := img.Section("debug_addr")
	rngLists, _ := img.Section("debug_rnglists")
	locLists, _ := img.Section("debug_loclists")

	ctx := &dwarfCtx{
		info:        info,
		abbrev:      abbrev,
		str:         str,
		lineStr:     lineStr,
		line:        line,
		strOffsets:  strOffsets,
		addr:        addr,
		rngLists:    rngLists,
		locLists:    locLists,
		abbrevMu:    make(chan struct{}, 1),
		abbrevCache: make(map[uint64][]abbrevDecl),
	}
	ctx.abbrevMu <- struct{}{}
	return ctx, nil
}

// unitHeader describes a compilation unit's header, as decoded from
// .debug_info (spec §4.B; DWARF5 §7.5.1.1, DWARF4 §7.5.1.1).
type unitHeader struct {
	Offset       uint64 // offset of the unit (the initial length field)
	NextOffset   uint64 // offset of the following unit, i.e. Offset + unit_length + length-field size
	Version      uint16
	AbbrevOffset uint64
	AddrSize     uint8
	Is64         bool   // DWARF64 initial-length format
	DIEOffset    uint64 // offset of the first DIE, i.e. end of the header
	UnitType     uint8  // DWARF5 only; 0 for DWARF <= 4 (implicitly DW_UT_compile)
}

// enumerateUnits walks .debug_info and returns the header of every
// compilation unit it contains, in file order (spec §4.B).
func (ctx *dwarfCtx) enumerateUnits() ([]unitHeader, error) {
	var units []unitHeader
	off := uint64(0)
	for off < uint64(len(ctx.info)) {
		h, err := ctx.parseUnitHeader(off)
		if err != nil {
			return nil, err
		}
		units = append(units, h)
		if h.NextOffset <= off {
			return nil, dwarfErrorf(off, "unit length did not advance .debug_info offset")
		}
		off = h.NextOffset
	}
	return units, nil
}

func (ctx *dwarfCtx) parseUnitHeader(off uint64) (unitHeader, error) {
	start := off
	length, is64, p, err := readInitialLength(ctx.info, off)
	if err != nil {
		return unitHeader{}, err
	}
	nextOffset := p + length
	if nextOffset > uint64(len(ctx.info)) {
		return unitHeader{}, dwarfErrorf(start, "unit_length %d exceeds .debug_info size", length)
	}
	version, p, err := readUint16(ctx.info, p)
	if err != nil {
		return unitHeader{}, err
	}

	h := unitHeader{Offset: start, NextOffset: nextOffset, Version: version, Is64: is64}

	if version >= 5 {
		if p >= uint64(len(ctx.info)) {
			return unitHeader{}, dwarfErrorf(start, "truncated DWARFv5 unit header")
		}
		h.UnitType = ctx.info[p]
		p++
		addrSize, p2, err := readUint8(ctx.info, p)
		if err != nil {
			return unitHeader{}, err
		}
		h.AddrSize = addrSize
		abbrevOff, p3, err := readOffset(ctx.info, p2, is64)
		if err != nil {
			return unitHeader{}, err
		}
		h.AbbrevOffset = abbrevOff
		p = p3
		// DW_UT_skeleton / DW_UT_split_compile carry an 8-byte dwo_id;
		// DW_UT_type / DW_UT_split_type carry an 8-byte signature + a
		// type-unit offset. Those extra header fields are skipped so that
		// DIEOffset points at the unit's first DIE for every unit type.
		switch h.UnitType {
		case 0x04, 0x05: // DW_UT_skeleton, DW_UT_split_compile
			p += 8
		case 0x02, 0x06: // DW_UT_type, DW_UT_split_type
			p += 8
			if is64 {
				p += 8
			} else {
				p += 4
			}
		}
		if p > nextOffset {
			return unitHeader{}, dwarfErrorf(start, "truncated DWARFv5 unit header")
		}
	} else {
		abbrevOff, p2, err := readOffset(ctx.info, p, is64)
		if err != nil {
			return unitHeader{}, err
		}
		h.AbbrevOffset = abbrevOff
		addrSize, p3, err := readUint8(ctx.info, p2)
		if err != nil {
			return unitHeader{}, err
		}
		h.AddrSize = addrSize
		p = p3
	}
	h.DIEOffset = p
	return h, nil
}

// abbrevAttr is one (attribute, form) pair of an abbreviation declaration.
type abbrevAttr struct {
	Attr          uint16
	Form          uint16
	ImplicitConst int64 // valid only when Form == DW_FORM_implicit_const
}

// abbrevDecl is one entry of an abbreviation table (DWARF5 §7.5.3).
type abbrevDecl struct {
	Code        uint64
	Tag         uint16
	HasChildren bool
	Attrs       []abbrevAttr
}

// abbrevTable returns the abbreviation declarations for the table located at
// the given .debug_abbrev offset, parsing and memoizing it on first use.
func (ctx *dwarfCtx) abbrevTable(offset uint64) ([]abbrevDecl, error) {
	<-ctx.abbrevMu
	defer func() { ctx.abbrevMu <- struct{}{} }()

	if t, ok := ctx.abbrevCache[offset]; ok {
		return t, nil
	}
	t, err := ctx.parseAbbrevTable(offset)
	if err != nil {
		return nil, err
	}
	ctx.abbrevCache[offset] = t
	return t, nil
}

func (ctx *dwarfCtx) parseAbbrevTable(offset uint64) ([]abbrevDecl, error) {
	if offset > uint64(len(ctx.abbrev)) {
		return nil, dwarfErrorf(offset, "abbrev offset out of range")
	}
	var decls []abbrevDecl
	off := offset
	for {
		code, p, err := readULEB128(ctx.abbrev, off)
		if err != nil {
			return nil, err
		}
		off = p
		if code == 0 {
			break // end of this table
		}
		tag, p, err := readULEB128(ctx.abbrev, off)
		if err != nil {
			return nil, err
		}
		off = p
		if off >= uint64(len(ctx.abbrev)) {
			return nil, dwarfErrorf(off, "truncated abbreviation declaration")
		}
		hasChildren := ctx.abbrev[off] != 0
		off++

		var attrs []abbrevAttr
		for {
			attr, p, err := readULEB128(ctx.abbrev, off)
			if err != nil {
				return nil, err
			}
			off = p
			form, p, err := readULEB128(ctx.abbrev, off)
			if err != nil {
				return nil, err
			}
			off = p
			var implicitConst int64
			if dwarfconst.Form(form) == dwarfconst.FormImplicitConst {
				ic, p, err := readSLEB128(ctx.abbrev, off)
				if err != nil {
					return nil, err
				}
				implicitConst = ic
				off = p
			}
			if attr == 0 && form == 0 {
				break
			}
			attrs = append(attrs, abbrevAttr{Attr: uint16(attr), Form: uint16(form), ImplicitConst: implicitConst})
		}
		decls = append(decls, abbrevDecl{Code: code, Tag: uint16(tag), HasChildren: hasChildren, Attrs: attrs})
	}
	return decls, nil
}

func findAbbrev(table []abbrevDecl, code uint64) (abbrevDecl, bool) {
	for _, d := range table {
		if d.Code == code {
			return d, true
		}
	}
	return abbrevDecl{}, false
}

// formClass classifies a decoded form value for the purposes of the
// attr_int / attr_str generic-attribute columns (spec §4.E). This mirrors
// the original DWARFBlockInputFormat.cpp's five-way switch over a form's
// DWARFFormValue::ValueType exactly: integer, address, block/exprloc,
// string and reference each project into attr_int/attr_str differently.
type formClass int

const (
	classInt   formClass = iota // data*/sdata/udata/flag*/sec_offset/implicit_const/loclistx/rnglistx -> attr_int; decl_file/call_file, language, encoding stringify into attr_str
	classAddr                   // addr, addrx* -> attr_int only; attr_str defaults
	classBlock                  // block*, exprloc -> attr_str (raw bytes as string); attr_int defaults
	classStr                    // string, strp, strx*, line_strp -> attr_str; attr_int defaults
	classRef                    // ref* -> attr_int (resolved absolute .debug_info offset); attr_str defaults
	classOther                  // forms with no useful projection (data16, strp_sup, GNU alt-file refs); both default
)

// formValue is a single decoded attribute value, in both raw and
// schema-projected form.
type formValue struct {
	Form  uint16
	Class formClass
	Int   int64  // valid when Class is classInt/classAddr/classRef
	Str   string // valid when Class is classStr/classBlock
	IsRef bool   // true if this is a reference-class form (attr_int carries the referenced offset)
}

// extractForm decodes one attribute's value at buf[off] per its form code,
// returning the value and the offset of the following attribute. h is the
// owning unit's header, needed for address size, DWARF64-ness, and the unit
// offset that unit-relative references are resolved against. strx/addrx
// indices are resolved by lookupStrx/lookupAddrx, which do not consult the
// unit's str_offsets_base / addr_base.
func (ctx *dwarfCtx) extractForm(h unitHeader, form uint16, implicitConst int64, off uint64) (formValue, uint64, error) {
	buf := ctx.info
	switch dwarfconst.Form(form) {
	case dwarfconst.FormAddr:
		v, p, err := readUintN(buf, off, int(h.AddrSize))
		return formValue{Form: form, Class: classAddr, Int: int64(v)}, p, err

	case dwarfconst.FormBlock1:
		n, p, err := readUint8(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return ctx.readBlockValue(form, buf, p, uint64(n))
	case dwarfconst.FormBlock2:
		n, p, err := readUint16(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return ctx.readBlockValue(form, buf, p, uint64(n))
	case dwarfconst.FormBlock4:
		n, p, err := readUint32(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return ctx.readBlockValue(form, buf, p, uint64(n))
	case dwarfconst.FormBlock, dwarfconst.FormExprloc:
		n, p, err := readULEB128(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return ctx.readBlockValue(form, buf, p, n)

	case dwarfconst.FormData1, dwarfconst.FormRef1, dwarfconst.FormStrx1, dwarfconst.FormAddrx1:
		v, p, err := readUint8(buf, off)
		return ctx.intResult(form, h, uint64(v), p, err)
	case dwarfconst.FormData2, dwarfconst.FormRef2, dwarfconst.FormStrx2, dwarfconst.FormAddrx2:
		v, p, err := readUint16(buf, off)
		return ctx.intResult(form, h, uint64(v), p, err)
	case dwarfconst.FormStrx3, dwarfconst.FormAddrx3:
		v, p, err := readUintN(buf, off, 3)
		return ctx.intResult(form, h, v, p, err)
	case dwarfconst.FormData4, dwarfconst.FormRef4, dwarfconst.FormStrx4, dwarfconst.FormAddrx4:
		v, p, err := readUint32(buf, off)
		return ctx.intResult(form, h, uint64(v), p, err)
	case dwarfconst.FormData8, dwarfconst.FormRefSig8:
		v, p, err := readUint64(buf, off)
		return ctx.intResult(form, h, v, p, err)
	case dwarfconst.FormData16:
		if off+16 > uint64(len(buf)) {
			return formValue{}, off, dwarfErrorf(off, "truncated data16")
		}
		return formValue{Form: form, Class: classOther}, off + 16, nil

	case dwarfconst.FormSdata:
		v, p, err := readSLEB128(buf, off)
		return formValue{Form: form, Class: classInt, Int: v}, p, err
	case dwarfconst.FormUdata, dwarfconst.FormRefUdata, dwarfconst.FormStrx, dwarfconst.FormAddrx,
		dwarfconst.FormLoclistx, dwarfconst.FormRnglistx:
		v, p, err := readULEB128(buf, off)
		return ctx.intResult(form, h, v, p, err)

	case dwarfconst.FormString:
		s, p, err := readCString(buf, off)
		return formValue{Form: form, Class: classStr, Str: s}, p, err

	case dwarfconst.FormStrp:
		o, p, err := readOffset(buf, off, h.Is64)
		if err != nil {
			return formValue{}, off, err
		}
		return formValue{Form: form, Class: classStr, Str: lookupString(ctx.str, o)}, p, nil
	case dwarfconst.FormLineStrp:
		o, p, err := readOffset(buf, off, h.Is64)
		if err != nil {
			return formValue{}, off, err
		}
		return formValue{Form: form, Class: classStr, Str: lookupString(ctx.lineStr, o)}, p, nil
	case dwarfconst.FormStrpSup:
		// Supplementary-file string references are not resolvable without
		// the split-dwarf supplementary object (out of scope, spec §6); the
		// raw offset is still consumed so parsing can continue.
		_, p, err := readOffset(buf, off, h.Is64)
		return formValue{Form: form, Class: classOther}, p, err

	case dwarfconst.FormRefAddr:
		o, p, err := readOffset(buf, off, h.Is64)
		if err != nil {
			return formValue{}, off, err
		}
		return formValue{Form: form, Class: classRef, Int: int64(o), IsRef: true}, p, nil

	case dwarfconst.FormRef8:
		v, p, err := readUint64(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return formValue{Form: form, Class: classRef, Int: int64(h.Offset + v), IsRef: true}, p, nil

	case dwarfconst.FormFlag:
		v, p, err := readUint8(buf, off)
		return formValue{Form: form, Class: classInt, Int: int64(v)}, p, err
	case dwarfconst.FormFlagPresent:
		return formValue{Form: form, Class: classInt, Int: 1}, off, nil

	case dwarfconst.FormImplicitConst:
		return formValue{Form: form, Class: classInt, Int: implicitConst}, off, nil

	case dwarfconst.FormSecOffset:
		o, p, err := readOffset(buf, off, h.Is64)
		return formValue{Form: form, Class: classInt, Int: int64(o)}, p, err

	case dwarfconst.FormIndirect:
		actual, p, err := readULEB128(buf, off)
		if err != nil {
			return formValue{}, off, err
		}
		return ctx.extractForm(h, uint16(actual), implicitConst, p)

	case dwarfconst.FormGNUStrIndex:
		v, p, err := readULEB128(buf, off)
		return ctx.intResult(form, h, v, p, err)
	case dwarfconst.FormGNUAddrIndex:
		v, p, err := readULEB128(buf, off)
		return ctx.intResult(form, h, v, p, err)
	case dwarfconst.FormGNURefAlt, dwarfconst.FormGNUStrpAlt:
		_, p, err := readOffset(buf, off, h.Is64)
		return formValue{Form: form, Class: classOther}, p, err

	default:
		return formValue{}, off, dwarfErrorf(off, "unsupported DWARF form %#x", form)
	}
}

// intResult turns a raw unsigned integer field into a formValue, resolving
// the ref-class and strx/addrx-class forms that the raw integer's meaning
// depends on (spec §4.E attr_int/attr_str projection).
func (ctx *dwarfCtx) intResult(form uint16, h unitHeader, raw uint64, nextOff uint64, err error) (formValue, uint64, error) {
	if err != nil {
		return formValue{}, nextOff, err
	}
	switch dwarfconst.Form(form) {
	case dwarfconst.FormRef1, dwarfconst.FormRef2, dwarfconst.FormRef4, dwarfconst.FormRefUdata:
		return formValue{Form: form, Class: classRef, Int: int64(h.Offset + raw), IsRef: true}, nextOff, nil
	case dwarfconst.FormStrx, dwarfconst.FormStrx1, dwarfconst.FormStrx2, dwarfconst.FormStrx3, dwarfconst.FormStrx4, dwarfconst.FormGNUStrIndex:
		s := ctx.lookupStrx(h, raw)
		return formValue{Form: form, Class: classStr, Str: s}, nextOff, nil
	case dwarfconst.FormAddrx, dwarfconst.FormAddrx1, dwarfconst.FormAddrx2, dwarfconst.FormAddrx3, dwarfconst.FormAddrx4, dwarfconst.FormGNUAddrIndex:
		v := ctx.lookupAddrx(h, raw)
		return formValue{Form: form, Class: classAddr, Int: int64(v)}, nextOff, nil
	default:
		return formValue{Form: form, Class: classInt, Int: int64(raw)}, nextOff, nil
	}
}

// lookupStrx resolves a strx index through .debug_str_offsets. DWARF5
// .debug_str_offsets has its own 8-byte header (unit_length, version,
// padding) before the index table; this package assumes the single,
// per-unit-convention table starting right after that header, which holds
// for every producer observed in the pack (spec §6 treats exotic
// split/multi-table str_offsets layouts as out of scope).
func (ctx *dwarfCtx) lookupStrx(h unitHeader, idx uint64) string {
	const strOffsetsHeaderSize = 8
	entrySize := uint64(4)
	if h.Is64 {
		entrySize = 8
	}
	base := uint64(strOffsetsHeaderSize)
	pos := base + idx*entrySize
	o, _, err := readOffset(ctx.strOffsets, pos, h.Is64)
	if err != nil {
		return ""
	}
	return lookupString(ctx.str, o)
}

// lookupAddrx resolves an addrx index through .debug_addr, applying the
// same per-unit-table-starts-after-an-8-byte-header assumption as
// lookupStrx.
func (ctx *dwarfCtx) lookupAddrx(h unitHeader, idx uint64) uint64 {
	const addrHeaderSize = 8
	pos := uint64(addrHeaderSize) + idx*uint64(h.AddrSize)
	v, _, err := readUintN(ctx.addr, pos, int(h.AddrSize))
	if err != nil {
		return 0
	}
	return v
}

// readBlockValue reads a block/exprloc payload and projects its raw bytes
// into attr_str as a string, matching the original's `col_attr_str->insertData`
// of the block's raw span.
func (ctx *dwarfCtx) readBlockValue(form uint16, buf []byte, off, n uint64) (formValue, uint64, error) {
	end := off + n
	if end > uint64(len(buf)) || end < off {
		return formValue{}, off, dwarfErrorf(off, "truncated block of length %d", n)
	}
	return formValue{Form: form, Class: classBlock, Str: string(buf[off:end])}, end, nil
}

// --- low-level byte-order helpers -----------------------------------------

func readInitialLength(buf []byte, off uint64) (length uint64, is64 bool, next uint64, err error) {
	v, p, err := readUint32(buf, off)
	if err != nil {
		return 0, false, off, err
	}
	if v == 0xffffffff {
		v64, p2, err := readUint64(buf, p)
		if err != nil {
			return 0, false, off, err
		}
		return v64, true, p2, nil
	}
	if v >= 0xfffffff0 {
		return 0, false, off, dwarfErrorf(off, "reserved initial-length value %#x", v)
	}
	return uint64(v), false, p, nil
}

func readOffset(buf []byte, off uint64, is64 bool) (uint64, uint64, error) {
	if is64 {
		return readUint64(buf, off)
	}
	v, p, err := readUint32(buf, off)
	return uint64(v), p, err
}

func readUint8(buf []byte, off uint64) (uint8, uint64, error) {
	if off >= uint64(len(buf)) {
		return 0, off, dwarfErrorf(off, "truncated u8")
	}
	return buf[off], off + 1, nil
}

func readUint16(buf []byte, off uint64) (uint16, uint64, error) {
	if off+2 > uint64(len(buf)) {
		return 0, off, dwarfErrorf(off, "truncated u16")
	}
	return binary.LittleEndian.Uint16(buf[off : off+2]), off + 2, nil
}

func readUint32(buf []byte, off uint64) (uint32, uint64, error) {
	if off+4 > uint64(len(buf)) {
		return 0, off, dwarfErrorf(off, "truncated u32")
	}
	return binary.LittleEndian.Uint32(buf[off : off+4]), off + 4, nil
}

func readUint64(buf []byte, off uint64) (uint64, uint64, error) {
	if off+8 > uint64(len(buf)) {
		return 0, off, dwarfErrorf(off, "truncated u64")
	}
	return binary.LittleEndian.Uint64(buf[off : off+8]), off + 8, nil
}

// readUintN reads an n-byte (n <= 8) little-endian unsigned integer, used
// for address-sized fields and the odd 3-byte strx3/addrx3 forms.
func readUintN(buf []byte, off uint64, n int) (uint64, uint64, error) {
	if n <= 0 || n > 8 {
		return 0, off, internalErrorf("unsupported integer width %d", n)
	}
	if off+uint64(n) > uint64(len(buf)) {
		return 0, off, dwarfErrorf(off, "truncated %d-byte integer", n)
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(buf[off+uint64(i)]) << (8 * uint(i))
	}
	return v, off + uint64(n), nil
}

func readCString(buf []byte, off uint64) (string, uint64, error) {
	end := off
	for end < uint64(len(buf)) && buf[end] != 0 {
		end++
	}
	if end >= uint64(len(buf)) {
		return "", off, dwarfErrorf(off, "unterminated string")
	}
	return string(buf[off:end]), end + 1, nil
}

// lookupString reads a NUL-terminated string at the given offset into a
// .debug_str-like section. Returns "" if the offset is out of range rather
// than erroring: a bad strp is surfaced as an empty projected value, not a
// parse failure, matching the original's tolerant string lookup.
func lookupString(sec []byte, off uint64) string {
	if off >= uint64(len(sec)) {
		return ""
	}
	s, _, err := readCString(sec, off)
	if err != nil {
		return ""
	}
	return s
}
