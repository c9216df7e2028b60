// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"github.com/DataDog/dwarfcols/column"
	"github.com/DataDog/dwarfcols/dwarfconst"
)

// dictRegistry owns the low-cardinality string dictionaries shared by every
// unit's chunks: the tag, attribute-name and attribute-form dictionaries are
// each built exactly once, up front, from the complete DWARF name tables
// (component C, spec §4.C), rather than discovered incrementally from
// observed DIEs. This keeps dictionary indices stable across chunks and
// across concurrently-decoding units without any synchronization beyond the
// registry's own construction.
type dictRegistry struct {
	tagDict  column.StringDictionary
	attrDict column.StringDictionary
	formDict column.StringDictionary

	// tagIndex/attrIndex/formIndex map a DWARF code directly to its
	// dictionary index, so decodeUnit never needs to re-resolve a name.
	tagIndex  [dwarfconst.MaxCode + 1]uint32
	attrIndex [dwarfconst.MaxCode + 1]uint32
	formIndex map[uint16]uint32 // forms are sparse (standard codes plus a few vendor codes from 0x1f01 up), so a map rather than a dense array
}

// newDictRegistry builds the three code-name dictionaries via f, covering
// every 16-bit code DWARF defines (spec §4.C: "built once, from the full
// DWARF name tables, independent of what appears in the input").
func newDictRegistry(f column.Factory) *dictRegistry {
	r := &dictRegistry{
		formIndex: make(map[uint16]uint32),
	}

	tagNames := make([]string, dwarfconst.MaxCode+1)
	for code := 0; code <= dwarfconst.MaxCode; code++ {
		tagNames[code] = dwarfconst.TagName(uint16(code))
		r.tagIndex[code] = uint32(code)
	}
	r.tagDict = f.NewStringDictionary(tagNames)

	attrNames := make([]string, dwarfconst.MaxCode+1)
	for code := 0; code <= dwarfconst.MaxCode; code++ {
		attrNames[code] = dwarfconst.AttrName(uint16(code))
		r.attrIndex[code] = uint32(code)
	}
	r.attrDict = f.NewStringDictionary(attrNames)

	codes := knownFormCodes()
	formNames := make([]string, len(codes))
	for i, code := range codes {
		formNames[i] = dwarfconst.FormName(code)
		r.formIndex[code] = uint32(i)
	}
	r.formDict = f.NewStringDictionary(formNames)

	return r
}

func (r *dictRegistry) tagDictIndex(tag uint16) uint32   { return r.tagIndex[tag] }
func (r *dictRegistry) attrDictIndex(attr uint16) uint32 { return r.attrIndex[attr] }

func (r *dictRegistry) formDictIndex(form uint16) uint32 {
	if idx, ok := r.formIndex[form]; ok {
		return idx
	}
	return 0
}

// knownFormCodes lists every DW_FORM_* and vendor-extension code this
// package recognizes, in ascending order, for the form dictionary's fixed
// layout. Unlike tags and attributes, forms don't densely occupy a 16-bit
// space, so the dictionary is built from the explicit list rather than by
// scanning 0..MaxCode.
func knownFormCodes() []uint16 {
	return []uint16{
		0x01, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d,
		0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
		0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25,
		0x26, 0x27, 0x28, 0x29, 0x2a, 0x2b, 0x2c,
		uint16(dwarfconst.FormGNUAddrIndex), uint16(dwarfconst.FormGNUStrIndex),
		uint16(dwarfconst.FormGNURefAlt), uint16(dwarfconst.FormGNUStrpAlt),
		uint16(dwarfconst.FormLLVMAddrxOffset),
	}
}
