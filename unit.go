// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import "github.com/DataDog/dwarfcols/column"

// stackEntry records one still-open ancestor DIE while walking a unit's DIE
// tree depth-first (spec §4.D: ancestor_tags / ancestor_offsets).
type stackEntry struct {
	Offset uint64
	Tag    uint16
}

// unitState is the per-compilation-unit cursor driving decodeUnit (component
// D, spec §4.D). Exactly one goroutine owns a unitState at a time: the
// scheduler hands a unit to a worker, the worker calls decodeUnit
// (potentially more than once, across several chunks, if the unit produces
// more DIEs than fit in one chunk), and the unit is only returned to the
// scheduler's queue — never touched concurrently.
type unitState struct {
	header  unitHeader
	abbrevs []abbrevDecl

	offset    uint64 // next byte to read in .debug_info
	endOffset uint64 // header.NextOffset; offset must never exceed this

	stack []stackEntry // open ancestors, outermost first

	unitName string // DW_AT_name of the unit's root DIE, filled in once seen

	filenames      []string // 0-indexed; already padded per spec §4.E (index 0, and for DWARF<=4 index 1, are reserved empty)
	filenamesBuilt bool
	filenameCount  int                     // len(filenames)-1; the decl_file/call_file in-range bound (mirrors the original's filename_table_size)
	filenameDictV  column.StringDictionary // cached dictionary wrapping filenames, built lazily and reused across this unit's chunks

	warnCount int // recoverable parse warnings emitted so far, capped at maxWarningsPerUnit
}

func newUnitState(h unitHeader, abbrevs []abbrevDecl) *unitState {
	return &unitState{
		header:    h,
		abbrevs:   abbrevs,
		offset:    h.DIEOffset,
		endOffset: h.NextOffset,
	}
}

// eof reports whether the unit's cursor has reached the unit's end offset
// (spec §4.D). It does not look at the ancestor stack; done does.
func (u *unitState) eof() bool {
	return u.offset >= u.endOffset
}

// done reports whether decoding finished cleanly: at EOF with a fully
// unwound ancestor stack.
func (u *unitState) done() bool {
	return u.eof() && len(u.stack) == 0
}

func (u *unitState) pushAncestor(offset uint64, tag uint16) {
	u.stack = append(u.stack, stackEntry{Offset: offset, Tag: tag})
}

func (u *unitState) popAncestor() error {
	if len(u.stack) == 0 {
		return dwarfErrorf(u.offset, "DIE sibling-terminator with no open parent")
	}
	u.stack = u.stack[:len(u.stack)-1]
	return nil
}

// ancestorColumns returns the current ancestor chain's tags and offsets, in
// innermost-to-outermost order (spec §4.E step 1: "iterate the unit stack
// from top (innermost) to bottom"), for the ancestor_tags/ancestor_offsets
// columns. Called before the row's own abbrev code is read, so for a
// sibling-terminator row it still reflects whatever ancestors are open at
// that point in the walk.
func (u *unitState) ancestorColumns() (tags []uint16, offsets []uint64) {
	if len(u.stack) == 0 {
		return nil, nil
	}
	n := len(u.stack)
	tags = make([]uint16, n)
	offsets = make([]uint64, n)
	for i, e := range u.stack {
		tags[n-1-i] = e.Tag
		offsets[n-1-i] = e.Offset
	}
	return tags, offsets
}

// defaultFilenameTable returns the minimal, index-only-padded filename table
// used for a unit whose decoded DIEs carried no DW_AT_stmt_list (so
// buildFilenameTable never ran): every decl_file entry then resolves to "".
func (u *unitState) defaultFilenameTable() []string {
	if u.header.Version <= 4 {
		return []string{"", ""}
	}
	return []string{""}
}

// filenameDict lazily builds and caches the column.StringDictionary wrapping
// this unit's filename table, so a unit spanning multiple chunks reuses one
// dictionary instance instead of rebuilding it per chunk.
func (u *unitState) filenameDict(f column.Factory) column.StringDictionary {
	if u.filenameDictV == nil {
		if u.filenames == nil {
			u.filenames = u.defaultFilenameTable()
			u.filenameCount = len(u.filenames) - 1
		}
		u.filenameDictV = f.NewStringDictionary(u.filenames)
	}
	return u.filenameDictV
}
