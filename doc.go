// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dwarfcols streams the Debugging Information Entries (DIEs) of an
// ELF object file's DWARF debug info as a sequence of fixed-schema,
// column-oriented row batches ("chunks").
//
// A Reader decodes compilation units concurrently, in a bounded worker pool,
// and projects each DIE into the 14-column schema described by Schema:
// offset, size, tag, unit_name, unit_offset, ancestor_tags, ancestor_offsets,
// name, linkage_name, decl_file, decl_line, attr_name, attr_form, attr_int,
// and attr_str. Callers request any subset of those columns; only the
// requested (plus a small set of propagated) columns are materialized.
//
// The host's column container — the thing that actually owns array buffers,
// dictionaries, and offset vectors — is external to this package: callers
// supply a column.Factory (see package column and its memcol/arrowcol
// reference adapters).
package dwarfcols
