// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

// readULEB128 decodes an unsigned LEB128 integer starting at buf[off] and
// returns its value and the offset of the byte following it.
func readULEB128(buf []byte, off uint64) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for {
		if off >= uint64(len(buf)) {
			return 0, off, dwarfErrorf(off, "truncated ULEB128")
		}
		b := buf[off]
		off++
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return result, off, nil
}

// readSLEB128 decodes a signed LEB128 integer starting at buf[off] and
// returns its value and the offset of the byte following it.
func readSLEB128(buf []byte, off uint64) (int64, uint64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		if off >= uint64(len(buf)) {
			return 0, off, dwarfErrorf(off, "truncated SLEB128")
		}
		b = buf[off]
		off++
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, off, nil
}
