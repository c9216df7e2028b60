// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/DataDog/dwarfcols/column"
	"github.com/DataDog/dwarfcols/dwarfconst"
)

// decoderEnv bundles the read-only collaborators decodeUnit needs beyond the
// unit itself: the shared DWARF context, the registry dictionaries, the
// host's column factory, and the handful of ambient-stack knobs (row cap,
// logger, warning throttle) spec.md leaves as configuration (component E,
// spec §4.E).
type decoderEnv struct {
	ctx      *dwarfCtx
	reg      *dictRegistry
	factory  column.Factory
	rowCap   int
	logger   *slog.Logger
	warnRate *rate.Limiter
}

// decodeUnit drains u's DIE stream into one chunk of up to env.rowCap rows,
// implementing the per-DIE algorithm of spec §4.E. It mutates only u and
// returns the chunk, the number of .debug_info bytes the unit's cursor
// advanced during this call, and any error. A non-nil error leaves u in a
// defined but unusable state; the caller must not call decodeUnit on it
// again.
func decodeUnit(env *decoderEnv, u *unitState, need columnSet) (column.Chunk, uint64, error) {
	if u.done() {
		return column.Chunk{NumRows: 0, Columns: map[string]column.Column{}}, 0, nil
	}
	startOffset := u.offset
	f := env.factory
	reg := env.reg

	needOffset := need.has(ColOffset)
	needSize := need.has(ColSize)
	needTag := need.has(ColTag)
	needUnitName := need.has(ColUnitName)
	needUnitOffset := need.has(ColUnitOffset)
	needAncestorTags := need.has(ColAncestorTags)
	needAncestorOffsets := need.has(ColAncestorOffsets)
	needName := need.has(ColName)
	needLinkageName := need.has(ColLinkageName)
	needDeclFile := need.has(ColDeclFile)
	needDeclLine := need.has(ColDeclLine)
	needAttrName := need.has(ColAttrName)
	needAttrForm := need.has(ColAttrForm)
	needAttrInt := need.has(ColAttrInt)
	needAttrStr := need.has(ColAttrStr)

	var offsetB column.Uint64Builder
	if needOffset {
		offsetB = f.NewUint64Builder()
	}
	var sizeB column.Uint32Builder
	if needSize {
		sizeB = f.NewUint32Builder()
	}
	var tagB column.DictIndexBuilder
	if needTag {
		tagB = f.NewDictIndexBuilder(reg.tagDict)
	}
	var ancTagB column.DictIndexBuilder
	var ancOffB column.Uint64Builder
	var ancOffsetsB column.OffsetsBuilder
	if needAncestorTags {
		ancTagB = f.NewDictIndexBuilder(reg.tagDict)
		ancOffsetsB = f.NewOffsetsBuilder()
		if needAncestorOffsets {
			ancOffB = f.NewUint64Builder()
		}
	}
	var nameB, linkageB column.StringBuilder
	if needName {
		nameB = f.NewStringBuilder()
	}
	if needLinkageName {
		linkageB = f.NewStringBuilder()
	}
	var declLineB column.Uint32Builder
	if needDeclLine {
		declLineB = f.NewUint32Builder()
	}
	var attrNameB, attrFormB column.DictIndexBuilder
	var attrIntB column.Uint64Builder
	var attrOffsetsB column.OffsetsBuilder
	if needAttrName {
		attrNameB = f.NewDictIndexBuilder(reg.attrDict)
		attrOffsetsB = f.NewOffsetsBuilder()
	}
	if needAttrForm {
		attrFormB = f.NewDictIndexBuilder(reg.formDict)
	}
	if needAttrInt {
		attrIntB = f.NewUint64Builder()
	}

	// decl_file and attr_str are both dict-encoded but against dictionaries
	// not known in full until the loop finishes (decl_file's per-unit
	// filename table may not exist yet at the first row; attr_str's values
	// are arbitrary strings with no a-priori dictionary). Both are
	// accumulated as plain indices/values during the loop and wrapped into
	// real dict-encoded columns at chunk-assembly time (spec §4.E "Chunk
	// assembly"), mirroring how the original builds col_decl_file's
	// positions and col_attr_str's ColumnUnique incrementally and only
	// finalizes the wrapping column afterward.
	var declFilePos []uint64
	if needDeclFile {
		declFilePos = make([]uint64, 0, 64)
	}
	var attrStrVals []string
	if needAttrStr {
		attrStrVals = make([]string, 0, 64)
	}
	var attrTotal uint64 // cumulative attribute count across this chunk's rows, for the attr_* shared offsets vector

	numRows := 0
	for numRows < env.rowCap {
		numRows++
		dieOffset := u.offset

		if needOffset {
			offsetB.Append(dieOffset)
		}
		if needAncestorTags {
			tags, offsets := u.ancestorColumns()
			for i, t := range tags {
				ancTagB.AppendIndex(reg.tagDictIndex(t))
				if needAncestorOffsets {
					ancOffB.Append(offsets[i])
				}
			}
			ancOffsetsB.Append(uint64(len(tags)))
		}

		abbrevCode, next, err := readULEB128(env.ctx.info, u.offset)
		if err != nil {
			return column.Chunk{}, u.offset - startOffset, err
		}
		u.offset = next

		if abbrevCode == 0 {
			if needSize {
				sizeB.Append(uint32(u.offset - dieOffset))
			}
			if needTag {
				tagB.AppendIndex(reg.tagDictIndex(0))
			}
			if needName {
				nameB.Append("")
			}
			if needLinkageName {
				linkageB.Append("")
			}
			if needDeclFile {
				declFilePos = append(declFilePos, 0)
			}
			if needDeclLine {
				declLineB.Append(0)
			}
			if needAttrName {
				attrOffsetsB.Append(attrTotal)
			}

			if err := u.popAncestor(); err != nil {
				return column.Chunk{}, u.offset - startOffset, err
			}
		} else {
			decl, ok := findAbbrev(u.abbrevs, abbrevCode)
			if !ok {
				return column.Chunk{}, u.offset - startOffset, dwarfErrorf(u.offset, "abbrev code %d out of bounds", abbrevCode)
			}
			tag := decl.Tag
			if needTag {
				tagB.AppendIndex(reg.tagDictIndex(tag))
			}

			rowNeedName := needName
			rowNeedLinkage := needLinkageName
			rowNeedDeclFile := needDeclFile
			rowNeedDeclLine := needDeclLine

			for _, a := range decl.Attrs {
				val, next, err := env.ctx.extractForm(u.header, a.Form, a.ImplicitConst, u.offset)
				if err != nil {
					return column.Chunk{}, u.offset - startOffset, dwarfErrorf(u.offset,
						"attribute %s (form %s): %s", dwarfconst.AttrName(a.Attr), dwarfconst.FormName(a.Form), err)
				}
				u.offset = next
				if needAttrName {
					attrTotal++
					attrNameB.AppendIndex(reg.attrDictIndex(a.Attr))
				}
				if needAttrForm {
					// The declared form, not the indirected runtime form
					// (spec §4.E, §9 normative freeze).
					attrFormB.AppendIndex(reg.formDictIndex(a.Form))
				}

				if dwarfconst.Attr(a.Attr) == dwarfconst.AttrStmtList && !u.filenamesBuilt {
					if err := env.buildFilenameTable(u, uint64(val.Int)); err != nil {
						return column.Chunk{}, u.offset - startOffset, err
					}
				}

				switch val.Class {
				case classInt:
					if needAttrInt {
						attrIntB.Append(uint64(val.Int))
					}
					if dwarfconst.Attr(a.Attr) == dwarfconst.AttrDeclLine && rowNeedDeclLine {
						declLineB.Append(uint32(uint64(val.Int)))
						rowNeedDeclLine = false
					}

					isFileAttr := dwarfconst.Attr(a.Attr) == dwarfconst.AttrDeclFile || dwarfconst.Attr(a.Attr) == dwarfconst.AttrCallFile
					if isFileAttr && uint64(val.Int) < uint64(u.filenameCount) {
						if dwarfconst.Attr(a.Attr) == dwarfconst.AttrDeclFile && rowNeedDeclFile {
							declFilePos = append(declFilePos, uint64(val.Int)+1)
							rowNeedDeclFile = false
						}
						if needAttrStr {
							attrStrVals = append(attrStrVals, lookupFilename(u.filenames, uint64(val.Int)))
						}
					} else if needAttrStr {
						attrStrVals = append(attrStrVals, stringifyAttr(a.Attr, uint64(val.Int)))
					}

				case classAddr:
					if needAttrInt {
						attrIntB.Append(uint64(val.Int))
					}
					if needAttrStr {
						attrStrVals = append(attrStrVals, "")
					}

				case classBlock:
					if needAttrStr {
						attrStrVals = append(attrStrVals, val.Str)
					}
					if needAttrInt {
						attrIntB.Append(0)
					}

				case classStr:
					if dwarfconst.Attr(a.Attr) == dwarfconst.AttrNameCode {
						if rowNeedName {
							nameB.Append(val.Str)
							rowNeedName = false
						}
						if tag == uint16(dwarfconst.TagCompileUnit) {
							u.unitName = val.Str
						}
					}
					if dwarfconst.Attr(a.Attr) == dwarfconst.AttrLinkageName && rowNeedLinkage {
						linkageB.Append(val.Str)
						rowNeedLinkage = false
					}
					if needAttrStr {
						attrStrVals = append(attrStrVals, val.Str)
					}
					if needAttrInt {
						attrIntB.Append(0)
					}

				case classRef:
					if needAttrInt {
						attrIntB.Append(uint64(val.Int))
					}
					if needAttrStr {
						attrStrVals = append(attrStrVals, "")
					}

				default:
					if needAttrInt {
						attrIntB.Append(0)
					}
					if needAttrStr {
						attrStrVals = append(attrStrVals, "")
					}
				}
			}

			if needSize {
				sizeB.Append(uint32(u.offset - dieOffset))
			}
			if needAttrName {
				attrOffsetsB.Append(attrTotal)
			}
			if rowNeedName && needName {
				nameB.Append("")
			}
			if rowNeedLinkage && needLinkageName {
				linkageB.Append("")
			}
			if rowNeedDeclFile && needDeclFile {
				declFilePos = append(declFilePos, 0)
			}
			if rowNeedDeclLine && needDeclLine {
				declLineB.Append(0)
			}

			if decl.HasChildren {
				u.pushAncestor(dieOffset, tag)
			}
		}

		if len(u.stack) == 0 {
			if !u.eof() {
				return column.Chunk{}, u.offset - startOffset, dwarfErrorf(u.offset, "unexpected end of DIE tree: offset %d != end offset %d", u.offset, u.endOffset)
			}
			break
		}
	}

	cols := make(map[string]column.Column, numColumns)
	if needOffset {
		cols[ColOffset.String()] = offsetB.Finish()
	}
	if needSize {
		cols[ColSize.String()] = sizeB.Finish()
	}
	if needTag {
		cols[ColTag.String()] = tagB.Finish()
	}
	if needUnitName {
		dict := f.NewStringDictionary([]string{"", u.unitName})
		b := f.NewDictIndexBuilder(dict)
		for i := 0; i < numRows; i++ {
			b.AppendIndex(1)
		}
		cols[ColUnitName.String()] = b.Finish()
	}
	if needUnitOffset {
		dict := f.NewUint64Dictionary([]uint64{0, u.header.Offset})
		b := f.NewDictIndexBuilder(dict)
		for i := 0; i < numRows; i++ {
			b.AppendIndex(1)
		}
		cols[ColUnitOffset.String()] = b.Finish()
	}
	if needAncestorTags {
		offs := ancOffsetsB.Finish()
		cols[ColAncestorTags.String()] = f.NewArray(ancTagB.Finish(), offs)
		if needAncestorOffsets {
			cols[ColAncestorOffsets.String()] = f.NewArray(ancOffB.Finish(), offs)
		}
	}
	if needName {
		cols[ColName.String()] = nameB.Finish()
	}
	if needLinkageName {
		cols[ColLinkageName.String()] = linkageB.Finish()
	}
	if needDeclFile {
		dict := u.filenameDict(f)
		b := f.NewDictIndexBuilder(dict)
		for _, idx := range declFilePos {
			b.AppendIndex(uint32(idx))
		}
		cols[ColDeclFile.String()] = b.Finish()
	}
	if needDeclLine {
		cols[ColDeclLine.String()] = declLineB.Finish()
	}
	if needAttrName {
		offs := attrOffsetsB.Finish()
		cols[ColAttrName.String()] = f.NewArray(attrNameB.Finish(), offs)
		if needAttrForm {
			cols[ColAttrForm.String()] = f.NewArray(attrFormB.Finish(), offs)
		}
		if needAttrInt {
			cols[ColAttrInt.String()] = f.NewArray(attrIntB.Finish(), offs)
		}
		if needAttrStr {
			// attr_str's dictionary is built dynamically per chunk (spec
			// §4.E): every recorded value, deduplicated, becomes the
			// dictionary, mirroring the original's incrementally-deduping
			// ColumnUnique<ColumnString>.
			dedup := make(map[string]uint32, len(attrStrVals))
			values := make([]string, 0, len(attrStrVals))
			indices := make([]uint32, len(attrStrVals))
			for i, v := range attrStrVals {
				idx, ok := dedup[v]
				if !ok {
					idx = uint32(len(values))
					values = append(values, v)
					dedup[v] = idx
				}
				indices[i] = idx
			}
			strDict := f.NewStringDictionary(values)
			sb := f.NewDictIndexBuilder(strDict)
			for _, idx := range indices {
				sb.AppendIndex(idx)
			}
			cols[ColAttrStr.String()] = f.NewArray(sb.Finish(), offs)
		}
	}

	return column.Chunk{
		NumRows:             numRows,
		Columns:             cols,
		ApproxBytesConsumed: u.offset - startOffset,
	}, u.offset - startOffset, nil
}

// stringifyAttr implements the two integer-form stringifications beyond
// decl_file/call_file: DW_AT_language via DW_LANG_* and DW_AT_encoding via
// DW_ATE_* (spec §4.C, §4.E).
func stringifyAttr(attr uint16, raw uint64) string {
	switch dwarfconst.Attr(attr) {
	case dwarfconst.AttrLanguage:
		return dwarfconst.LangName(raw)
	case dwarfconst.AttrEncoding:
		return dwarfconst.ATEName(raw)
	default:
		return ""
	}
}

// buildFilenameTable parses the .debug_line prologue at stmtListOffset and
// installs the result on u. A DW_AT_stmt_list attribute with no
// .debug_line section at all, or a prologue whose header/table shape
// cannot be walked, is a hard CannotParseDwarf condition (spec §4.E "Absent
// .debug_line section ⇒ CannotParseDwarf", §6), matching the original's
// unconditional throw (DWARFBlockInputFormat.cpp parseFilenameTable). Only
// individual FileNames entries within an otherwise well-formed prologue are
// tolerated, via the "<error>" sentinel in filenames.go.
func (env *decoderEnv) buildFilenameTable(u *unitState, stmtListOffset uint64) error {
	u.filenamesBuilt = true
	if len(env.ctx.line) == 0 {
		return dwarfErrorf(u.header.Offset, "DW_AT_stmt_list present but .debug_line section is missing")
	}
	table, err := env.ctx.parseFilenameTable(u.header, stmtListOffset)
	if err != nil {
		return dwarfErrorf(u.header.Offset, "malformed .debug_line prologue at stmt_list %#x: %s", stmtListOffset, err)
	}
	if n := countErrorSentinels(table); n > 0 {
		env.warn(u, "malformed FileNames entries replaced with \"<error>\"",
			slog.Uint64("unit_offset", u.header.Offset), slog.Int("count", n))
	}
	u.filenames = table
	u.filenameCount = len(table) - 1
	return nil
}

func countErrorSentinels(table []string) int {
	n := 0
	for _, s := range table {
		if s == "<error>" {
			n++
		}
	}
	return n
}

const maxWarningsPerUnit = 10

// warn logs one recoverable parse warning, subject to both the per-unit cap
// (spec §4.E) and the package-wide rate limiter (spec §2.1) that bounds the
// total volume across all units.
func (env *decoderEnv) warn(u *unitState, msg string, attrs ...slog.Attr) {
	if u.warnCount >= maxWarningsPerUnit {
		return
	}
	u.warnCount++
	if env.warnRate != nil && !env.warnRate.Allow() {
		return
	}
	if env.logger != nil {
		env.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	}
}
