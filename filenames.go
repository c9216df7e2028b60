// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import "github.com/DataDog/dwarfcols/dwarfconst"

// DW_LNCT_* content type codes used by the DWARF5 .debug_line file/directory
// entry format descriptions (DWARF5 §6.2.4.1).
const (
	lnctPath           = 0x1
	lnctDirectoryIndex = 0x2
	lnctTimestamp      = 0x3
	lnctSize           = 0x4
	lnctMD5            = 0x5
)

type lineEntryFormat struct {
	ContentType uint64
	Form        uint64
}

// parseFilenameTable builds a unit's file-name table by reading the
// .debug_line program header located at stmtListOffset (spec §4.D/§4.E).
//
// The returned table is already padded per spec §4.E "Filename table": index
// 0 is always empty; for DWARF <= 4 index 1 is also reserved empty (matching
// that format's 1-based file numbering), and the producer's FileNames
// entries follow starting at index 1 (v5) or 2 (v4 and earlier). A
// DW_AT_decl_file raw value is looked up via lookupFilename, which applies
// the "+1" spec.md normatively requires.
func (ctx *dwarfCtx) parseFilenameTable(h unitHeader, stmtListOffset uint64) ([]string, error) {
	buf := ctx.line
	if stmtListOffset >= uint64(len(buf)) {
		return nil, dwarfErrorf(stmtListOffset, "DW_AT_stmt_list offset out of range")
	}
	off := stmtListOffset
	unitLength, is64, p, err := readInitialLength(buf, off)
	if err != nil {
		return nil, err
	}
	progEnd := p + unitLength
	if progEnd > uint64(len(buf)) {
		return nil, dwarfErrorf(off, "line program length exceeds .debug_line size")
	}

	version, p, err := readUint16(buf, p)
	if err != nil {
		return nil, err
	}
	if version >= 5 {
		if _, p, err = readUint8(buf, p); err != nil { // address_size
			return nil, err
		}
		if _, p, err = readUint8(buf, p); err != nil { // segment_selector_size
			return nil, err
		}
	}
	// header_length (consumed but unused: the program body itself is never
	// decoded, only the file/directory tables preceding it).
	_, p, err = readOffset(buf, p, is64)
	if err != nil {
		return nil, err
	}

	var entries []string
	var perr error
	if version >= 5 {
		// Fixed fields before directory_entry_format_count, per DWARF5
		// §6.2.4: five ubytes (minimum_instruction_length,
		// maximum_operations_per_instruction, default_is_stmt, line_base,
		// line_range), opcode_base, then opcode_base-1 standard_opcode_lengths.
		if p+6 > uint64(len(buf)) {
			return nil, dwarfErrorf(p, "truncated line program header")
		}
		opcodeBase := buf[p+5]
		p += 6
		if opcodeBase == 0 || p+uint64(opcodeBase)-1 > uint64(len(buf)) {
			return nil, dwarfErrorf(p, "truncated standard_opcode_lengths")
		}
		p += uint64(opcodeBase) - 1
		entries, perr = ctx.parseFileTableV5(buf, p, is64)
	} else {
		entries, perr = ctx.parseFileTableLegacy(buf, p, version)
	}
	if perr != nil {
		// A failure here is structural: the directory/file table shape
		// itself (format descriptions, entry counts, include_directories)
		// couldn't be walked, so the remainder of the prologue is
		// unrecoverable. This stays a hard error (spec §4.E); only
		// individual FileNames entries get the "<error>" sentinel, below.
		return nil, perr
	}

	table := make([]string, 0, len(entries)+2)
	table = append(table, "")
	if version <= 4 {
		table = append(table, "")
	}
	table = append(table, entries...)
	return table, nil
}

// lookupFilename resolves a DW_AT_decl_file / DW_AT_call_file raw value
// against an already-padded filename table, applying the "raw + 1" indexing
// spec §4.E and §8 normatively require.
func lookupFilename(table []string, raw uint64) string {
	return fileNameAt(table, raw+1)
}

func (ctx *dwarfCtx) parseFileTableLegacy(buf []byte, p uint64, version uint16) ([]string, error) {
	// Fixed fields before include_directories, per DWARF2-4 §6.2.4:
	//   minimum_instruction_length (ubyte)
	//   [maximum_operations_per_instruction (ubyte)]   -- version 4 only
	//   default_is_stmt (ubyte)
	//   line_base (sbyte)
	//   line_range (ubyte)
	//   opcode_base (ubyte)
	//   standard_opcode_lengths (opcode_base-1 ubytes)
	var err error
	if _, p, err = readUint8(buf, p); err != nil { // minimum_instruction_length
		return nil, err
	}
	if version >= 4 {
		if _, p, err = readUint8(buf, p); err != nil { // maximum_operations_per_instruction
			return nil, err
		}
	}
	if _, p, err = readUint8(buf, p); err != nil { // default_is_stmt
		return nil, err
	}
	if _, p, err = readUint8(buf, p); err != nil { // line_base
		return nil, err
	}
	if _, p, err = readUint8(buf, p); err != nil { // line_range
		return nil, err
	}
	opcodeBase, p, err := readUint8(buf, p)
	if err != nil {
		return nil, err
	}
	if p+uint64(opcodeBase)-1 > uint64(len(buf)) {
		return nil, dwarfErrorf(p, "truncated standard_opcode_lengths")
	}
	p += uint64(opcodeBase) - 1

	// include_directories: a sequence of non-empty NUL-terminated strings,
	// terminated by an empty one. Directory paths are not projected into
	// decl_file, so only the byte cursor needs to track them.
	for {
		s, next, err := readCString(buf, p)
		if err != nil {
			return nil, err
		}
		p = next
		if s == "" {
			break
		}
	}

	var files []string
	for {
		name, next, err := readCString(buf, p)
		if err != nil {
			// A failing entry past this point is a single FileNames row
			// (spec §4.E): insert the literal "<error>" sentinel and
			// discard the error rather than failing the whole unit. The
			// byte position past a truncated entry is unrecoverable, so
			// this row is the last one enumerated.
			files = append(files, "<error>")
			break
		}
		p = next
		if name == "" {
			break
		}
		var dirOK bool
		if _, p, err = readULEB128(buf, p); err == nil { // directory_index
			if _, p, err = readULEB128(buf, p); err == nil { // mtime
				if _, p, err = readULEB128(buf, p); err == nil { // length
					dirOK = true
				}
			}
		}
		if !dirOK {
			files = append(files, "<error>")
			break
		}
		files = append(files, name)
	}
	return files, nil
}

func (ctx *dwarfCtx) parseFileTableV5(buf []byte, p uint64, is64 bool) ([]string, error) {
	// directory table (its entries are not projected into decl_file, but
	// must still be walked to find the file table that follows it): a
	// directory row that fails to decode leaves the file table's start
	// position unrecoverable, so this stays a hard, table-level error.
	_, p, err := ctx.readV5EntryTable(buf, p, is64, false)
	if err != nil {
		return nil, err
	}
	// The file table itself is where spec §4.E's "<error>" sentinel
	// applies: a single FileNames row failing to decode is recoverable,
	// since nothing downstream depends on locating a table beyond it.
	fileRows, _, err := ctx.readV5EntryTable(buf, p, is64, true)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(fileRows))
	for i, row := range fileRows {
		files[i] = row
	}
	return files, nil
}

// readV5EntryTable reads one DWARF5 {directory,file}_entry_format-described
// table: a format description followed by a ULEB128 count and that many
// rows, and returns each row's lnctPath value (the only content type this
// package projects; directory_index/timestamp/size/MD5 are parsed to stay
// in sync but discarded).
//
// The format description and row count are always structural preamble: a
// failure there leaves the table's shape unknown and is a hard error
// regardless of tolerant. When tolerant is set (the FileNames table, not
// the directory table), a single row's decode failure instead inserts the
// literal "<error>" sentinel for that row and stops enumerating further
// rows (their position is unrecoverable), without failing the call (spec
// §4.E).
func (ctx *dwarfCtx) readV5EntryTable(buf []byte, p uint64, is64 bool, tolerant bool) ([]string, uint64, error) {
	formatCount, p, err := readUint8(buf, p)
	if err != nil {
		return nil, p, err
	}
	formats := make([]lineEntryFormat, formatCount)
	for i := range formats {
		ct, next, err := readULEB128(buf, p)
		if err != nil {
			return nil, p, err
		}
		p = next
		form, next, err := readULEB128(buf, p)
		if err != nil {
			return nil, p, err
		}
		p = next
		formats[i] = lineEntryFormat{ContentType: ct, Form: form}
	}

	count, p, err := readULEB128(buf, p)
	if err != nil {
		return nil, p, err
	}
	rows := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		var path string
		failed := false
		for _, f := range formats {
			val, isStr, next, err := ctx.decodeLineForm(buf, f.Form, p, is64)
			if err != nil {
				if !tolerant {
					return nil, p, err
				}
				failed = true
				break
			}
			p = next
			if f.ContentType == lnctPath && isStr {
				path = val
			}
		}
		if failed {
			rows = append(rows, "<error>")
			break
		}
		rows = append(rows, path)
	}
	return rows, p, nil
}

// decodeLineForm decodes one attribute of a .debug_line v5 directory/file
// entry. Only the handful of forms producers actually use for path,
// directory_index, timestamp, size and MD5 content need support here: this
// is a deliberately narrower decoder than extractForm, since .debug_line
// entries never carry DIE references.
func (ctx *dwarfCtx) decodeLineForm(buf []byte, form uint64, off uint64, is64 bool) (str string, isStr bool, next uint64, err error) {
	switch dwarfconst.Form(form) {
	case dwarfconst.FormString:
		s, p, err := readCString(buf, off)
		return s, true, p, err
	case dwarfconst.FormStrp:
		o, p, err := readOffset(buf, off, is64)
		if err != nil {
			return "", false, off, err
		}
		return lookupString(ctx.str, o), true, p, nil
	case dwarfconst.FormLineStrp:
		o, p, err := readOffset(buf, off, is64)
		if err != nil {
			return "", false, off, err
		}
		return lookupString(ctx.lineStr, o), true, p, nil
	case dwarfconst.FormStrpSup:
		_, p, err := readOffset(buf, off, is64)
		return "", false, p, err
	case dwarfconst.FormUdata:
		_, p, err := readULEB128(buf, off)
		return "", false, p, err
	case dwarfconst.FormData1:
		_, p, err := readUint8(buf, off)
		return "", false, p, err
	case dwarfconst.FormData2:
		_, p, err := readUint16(buf, off)
		return "", false, p, err
	case dwarfconst.FormData4:
		_, p, err := readUint32(buf, off)
		return "", false, p, err
	case dwarfconst.FormData8:
		_, p, err := readUint64(buf, off)
		return "", false, p, err
	case dwarfconst.FormData16:
		if off+16 > uint64(len(buf)) {
			return "", false, off, dwarfErrorf(off, "truncated data16 in line table")
		}
		return "", false, off + 16, nil
	case dwarfconst.FormBlock:
		n, p, err := readULEB128(buf, off)
		if err != nil {
			return "", false, off, err
		}
		if p+n > uint64(len(buf)) {
			return "", false, off, dwarfErrorf(off, "truncated block in line table")
		}
		return "", false, p + n, nil
	default:
		return "", false, off, dwarfErrorf(off, "unsupported line-table form %#x", form)
	}
}

// fileNameAt returns the file name at decl_file index idx, or "" if idx is
// out of range for this unit's table.
func fileNameAt(files []string, idx uint64) string {
	if idx >= uint64(len(files)) {
		return ""
	}
	return files[idx]
}
