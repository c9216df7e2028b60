// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dwarfconst holds the DWARF tag/attribute/form/language/encoding
// name tables used to populate the dictionary registry (spec §4.C). Names
// are kept exactly as DWARF defines them, with their well-known prefix
// (DW_TAG_, DW_AT_, DW_FORM_, DW_LANG_, DW_ATE_) already stripped, since that
// is the only form these tables are ever consulted in.
package dwarfconst

// Tag is a DWARF DW_TAG_* code.
type Tag uint16

// Attr is a DWARF DW_AT_* code.
type Attr uint16

// Form is a DWARF DW_FORM_* code.
type Form uint16

// Well-known attributes referenced by name elsewhere in this module.
const (
	AttrSibling       Attr = 0x01
	AttrLocation      Attr = 0x02
	AttrNameCode      Attr = 0x03
	AttrStmtList      Attr = 0x10
	AttrLowPC         Attr = 0x11
	AttrHighPC        Attr = 0x12
	AttrLanguage      Attr = 0x13
	AttrCompDir       Attr = 0x1b
	AttrConstValue    Attr = 0x1c
	AttrDeclFile      Attr = 0x3a
	AttrDeclLine      Attr = 0x3b
	AttrDeclColumn    Attr = 0x39
	AttrEncoding      Attr = 0x3e
	AttrCallFile      Attr = 0x58
	AttrCallLine      Attr = 0x59
	AttrLinkageName   Attr = 0x6e
	AttrStrOffsetsBase Attr = 0x72
	AttrAddrBase      Attr = 0x73
	AttrRnglistsBase  Attr = 0x74
	AttrLoclistsBase  Attr = 0x8c
)

// Well-known tags.
const (
	TagCompileUnit Tag = 0x11
	TagSubprogram  Tag = 0x2e
)

// Well-known forms.
const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormRefSig8       Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c

	// GNU extensions predating the standardization of strx/addrx.
	FormGNUAddrIndex Form = 0x1f01
	FormGNUStrIndex  Form = 0x1f02
	FormGNURefAlt    Form = 0x1f20
	FormGNUStrpAlt   Form = 0x1f21

	// LLVM vendor extension: like addrx, but with an extra offset added to
	// the resolved address. Not part of the standard; value chosen to match
	// LLVM's Dwarf.def.
	FormLLVMAddrxOffset Form = 0x2001
)

var tagNames = map[Tag]string{
	0x01: "array_type", 0x02: "class_type", 0x03: "entry_point", 0x04: "enumeration_type",
	0x05: "formal_parameter", 0x08: "imported_declaration", 0x0a: "label", 0x0b: "lexical_block",
	0x0d: "member", 0x0f: "pointer_type", 0x10: "reference_type", 0x11: "compile_unit",
	0x12: "string_type", 0x13: "structure_type", 0x15: "subroutine_type", 0x16: "typedef",
	0x17: "union_type", 0x18: "unspecified_parameters", 0x19: "variant", 0x1a: "common_block",
	0x1b: "common_inclusion", 0x1c: "inheritance", 0x1d: "inlined_subroutine", 0x1e: "module",
	0x1f: "ptr_to_member_type", 0x20: "set_type", 0x21: "subrange_type", 0x22: "with_stmt",
	0x23: "access_declaration", 0x24: "base_type", 0x25: "catch_block", 0x26: "const_type",
	0x27: "constant", 0x28: "enumerator", 0x29: "file_type", 0x2a: "friend", 0x2b: "namelist",
	0x2c: "namelist_item", 0x2d: "packed_type", 0x2e: "subprogram", 0x2f: "template_type_parameter",
	0x30: "template_value_parameter", 0x31: "thrown_type", 0x32: "try_block", 0x33: "variant_part",
	0x34: "variable", 0x35: "volatile_type", 0x36: "dwarf_procedure", 0x37: "restrict_type",
	0x38: "interface_type", 0x39: "namespace", 0x3a: "imported_module", 0x3b: "unspecified_type",
	0x3c: "partial_unit", 0x3d: "imported_unit", 0x3f: "condition", 0x40: "shared_type",
	0x41: "type_unit", 0x42: "rvalue_reference_type", 0x43: "template_alias", 0x44: "coarray_type",
	0x45: "generic_subrange", 0x46: "dynamic_type", 0x47: "atomic_type", 0x48: "call_site",
	0x49: "call_site_parameter", 0x4a: "skeleton_unit", 0x4b: "immutable_type",
}

var attrNames = map[Attr]string{
	0x01: "sibling", 0x02: "location", 0x03: "name", 0x09: "ordering", 0x0b: "byte_size",
	0x0c: "bit_offset", 0x0d: "bit_size", 0x10: "stmt_list", 0x11: "low_pc", 0x12: "high_pc",
	0x13: "language", 0x15: "discr", 0x16: "discr_value", 0x17: "visibility", 0x18: "import",
	0x19: "string_length", 0x1a: "common_reference", 0x1b: "comp_dir", 0x1c: "const_value",
	0x1d: "containing_type", 0x1e: "default_value", 0x20: "inline", 0x21: "is_optional",
	0x22: "lower_bound", 0x25: "producer", 0x27: "prototyped", 0x2a: "return_addr",
	0x2c: "start_scope", 0x2e: "bit_stride", 0x2f: "upper_bound", 0x31: "abstract_origin",
	0x32: "accessibility", 0x33: "address_class", 0x34: "artificial", 0x35: "base_types",
	0x36: "calling_convention", 0x37: "count", 0x38: "data_member_location", 0x39: "decl_column",
	0x3a: "decl_file", 0x3b: "decl_line", 0x3c: "declaration", 0x3d: "discr_list",
	0x3e: "encoding", 0x3f: "external", 0x40: "frame_base", 0x41: "friend",
	0x42: "identifier_case", 0x43: "macro_info", 0x44: "namelist_item", 0x45: "priority",
	0x46: "segment", 0x47: "specification", 0x48: "static_link", 0x49: "type",
	0x4a: "use_location", 0x4b: "variable_parameter", 0x4c: "virtuality",
	0x4d: "vtable_elem_location", 0x4e: "allocated", 0x4f: "associated",
	0x50: "data_location", 0x51: "byte_stride", 0x52: "entry_pc", 0x53: "use_UTF8",
	0x54: "extension", 0x55: "ranges", 0x56: "trampoline", 0x57: "call_column",
	0x58: "call_file", 0x59: "call_line", 0x5a: "description", 0x5b: "binary_scale",
	0x5c: "decimal_scale", 0x5d: "small", 0x5e: "decimal_sign", 0x5f: "digit_count",
	0x60: "picture_string", 0x61: "mutable", 0x62: "threads_scaled", 0x63: "explicit",
	0x64: "object_pointer", 0x65: "endianity", 0x66: "elemental", 0x67: "pure",
	0x68: "recursive", 0x69: "signature", 0x6a: "main_subprogram", 0x6b: "data_bit_offset",
	0x6c: "const_expr", 0x6d: "enum_class", 0x6e: "linkage_name",
	0x6f: "string_length_bit_size", 0x70: "string_length_byte_size", 0x71: "rank",
	0x72: "str_offsets_base", 0x73: "addr_base", 0x74: "rnglists_base", 0x76: "dwo_name",
	0x77: "reference", 0x78: "rvalue_reference", 0x79: "macros", 0x7a: "call_all_calls",
	0x7b: "call_all_source_calls", 0x7c: "call_all_tail_calls", 0x7d: "call_return_pc",
	0x7e: "call_value", 0x7f: "call_origin", 0x80: "call_parameter", 0x81: "call_pc",
	0x82: "call_tail_call", 0x83: "call_target", 0x84: "call_target_clobbered",
	0x85: "call_data_location", 0x86: "call_data_value", 0x87: "noreturn",
	0x88: "alignment", 0x89: "export_symbols", 0x8a: "deleted", 0x8b: "defaulted",
	0x8c: "loclists_base",
}

var formNames = map[Form]string{
	0x01: "addr", 0x03: "block2", 0x04: "block4", 0x05: "data2", 0x06: "data4", 0x07: "data8",
	0x08: "string", 0x09: "block", 0x0a: "block1", 0x0b: "data1", 0x0c: "flag", 0x0d: "sdata",
	0x0e: "strp", 0x0f: "udata", 0x10: "ref_addr", 0x11: "ref1", 0x12: "ref2", 0x13: "ref4",
	0x14: "ref8", 0x15: "ref_udata", 0x16: "indirect", 0x17: "sec_offset", 0x18: "exprloc",
	0x19: "flag_present", 0x1a: "strx", 0x1b: "addrx", 0x1c: "ref_sup4", 0x1d: "strp_sup",
	0x1e: "data16", 0x1f: "line_strp", 0x20: "ref_sig8", 0x21: "implicit_const",
	0x22: "loclistx", 0x23: "rnglistx", 0x24: "ref_sup8", 0x25: "strx1", 0x26: "strx2",
	0x27: "strx3", 0x28: "strx4", 0x29: "addrx1", 0x2a: "addrx2", 0x2b: "addrx3", 0x2c: "addrx4",
	0x1f01: "GNU_addr_index", 0x1f02: "GNU_str_index", 0x1f20: "GNU_ref_alt",
	0x1f21: "GNU_strp_alt", 0x2001: "LLVM_addrx_offset",
}

var langNames = map[uint32]string{
	0x0001: "C89", 0x0002: "C", 0x0003: "Ada83", 0x0004: "C_plus_plus", 0x0005: "Cobol74",
	0x0006: "Cobol85", 0x0007: "Fortran77", 0x0008: "Fortran90", 0x0009: "Pascal83",
	0x000a: "Modula2", 0x000b: "Java", 0x000c: "C99", 0x000d: "Ada95", 0x000e: "Fortran95",
	0x000f: "PLI", 0x0010: "ObjC", 0x0011: "ObjC_plus_plus", 0x0012: "UPC", 0x0013: "D",
	0x0014: "Python", 0x0015: "OpenCL", 0x0016: "Go", 0x0017: "Modula3", 0x0018: "Haskell",
	0x0019: "C_plus_plus_03", 0x001a: "C_plus_plus_11", 0x001b: "OCaml", 0x001c: "Rust",
	0x001d: "C11", 0x001e: "Swift", 0x001f: "Julia", 0x0020: "Dylan",
	0x0021: "C_plus_plus_14", 0x0022: "Fortran03", 0x0023: "Fortran08",
	0x0024: "RenderScript", 0x0025: "BLISS",
}

var ateNames = map[uint32]string{
	0x01: "address", 0x02: "boolean", 0x03: "complex_float", 0x04: "float", 0x05: "signed",
	0x06: "signed_char", 0x07: "unsigned", 0x08: "unsigned_char", 0x09: "imaginary_float",
	0x0a: "packed_decimal", 0x0b: "numeric_string", 0x0c: "edited", 0x0d: "signed_fixed",
	0x0e: "unsigned_fixed", 0x0f: "decimal_float", 0x10: "UTF", 0x11: "UCS", 0x12: "ASCII",
}

// TagName returns the stripped DW_TAG_ name for code, or "" if unassigned.
// Code 0 is always unassigned: it is reserved as the DIE-tree terminator.
func TagName(code uint16) string { return tagNames[Tag(code)] }

// AttrName returns the stripped DW_AT_ name for code, or "" if unassigned.
func AttrName(code uint16) string { return attrNames[Attr(code)] }

// FormName returns the stripped DW_FORM_ name for code, or "" if unassigned.
func FormName(code uint16) string { return formNames[Form(code)] }

// LangName returns the stripped DW_LANG_ name for a DW_AT_language value.
func LangName(v uint64) string { return langNames[uint32(v)] }

// ATEName returns the stripped DW_ATE_ name for a DW_AT_encoding value.
func ATEName(v uint64) string { return ateNames[uint32(v)] }

// MaxCode is the largest code representable by the 16-bit enumerations the
// dictionary registry densifies (spec §4.C: "for every 16-bit code").
const MaxCode = 0xffff
