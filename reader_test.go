// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DataDog/dwarfcols/column/memcol"
)

// buildOneUnitELF assembles a minimal ELF64 object whose .debug_info holds
// exactly one DWARF4 compile unit (compile_unit -> subprogram -> terminator,
// the same three-row shape decode_test.go exercises directly), with a real
// .debug_abbrev table and a minimal legacy .debug_line program, for
// end-to-end Reader tests.
func buildOneUnitELF(t *testing.T) []byte {
	t.Helper()

	abbrev := []byte{
		1, 0x11, 1, 0x03, 0x08, 0x10, 0x17, 0, 0, // code1: compile_unit, has_children, name/string + stmt_list/sec_offset
		2, 0x2e, 0, 0, 0, // code2: subprogram, no children, no attrs
		0, // table terminator
	}

	var die []byte
	die = append(die, 1) // abbrev code 1
	die = append(die, []byte("main.c")...)
	die = append(die, 0)          // name terminator
	die = append(die, le32(0)...) // stmt_list -> .debug_line offset 0
	die = append(die, 2)          // abbrev code 2
	die = append(die, 0)          // sibling terminator

	var info []byte
	info = append(info, 0, 0, 0, 0) // unit_length placeholder
	info = append(info, le16(4)...) // version
	info = append(info, le32(0)...) // abbrev_offset
	info = append(info, 8)          // address_size
	info = append(info, die...)
	binary.LittleEndian.PutUint32(info, uint32(len(info)-4))

	line := buildLegacyLineProgram(t, 4)

	return buildTestELF(t, map[string][]byte{
		"debug_info":   info,
		"debug_abbrev": abbrev,
		"debug_line":   line,
	})
}

// buildTestELF is a minimal ELF64 object builder, duplicated (deliberately
// small) from elfsrc's own test helper since that one lives in a different
// package: a null section, the caller's named PROGBITS sections, and a
// trailing .shstrtab.
func buildTestELF(t *testing.T, sections map[string][]byte) []byte {
	t.Helper()
	var names []string
	for n := range sections {
		names = append(names, n)
	}

	const ehsize = 64
	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize))

	type secInfo struct {
		nameOff   uint32
		off, size uint64
	}
	infos := make(map[string]secInfo, len(names))
	for _, name := range names {
		data := sections[name]
		infos[name] = secInfo{off: uint64(buf.Len()), size: uint64(len(data))}
		buf.Write(data)
	}

	shstrtabOff := uint64(buf.Len())
	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	for _, name := range names {
		info := infos[name]
		info.nameOff = uint32(shstrtab.Len())
		infos[name] = info
		shstrtab.WriteString(name)
		shstrtab.WriteByte(0)
	}
	shstrtabNameOff := uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab")
	shstrtab.WriteByte(0)
	buf.Write(shstrtab.Bytes())
	shstrtabSize := uint64(shstrtab.Len())

	shoff := uint64(buf.Len())
	shnum := len(names) + 2

	writeShdr := func(nameOff, typ uint32, offset, size uint64) {
		var hdr [64]byte
		binary.LittleEndian.PutUint32(hdr[0:4], nameOff)
		binary.LittleEndian.PutUint32(hdr[4:8], typ)
		binary.LittleEndian.PutUint64(hdr[24:32], offset)
		binary.LittleEndian.PutUint64(hdr[32:40], size)
		buf.Write(hdr[:])
	}
	writeShdr(0, 0, 0, 0)
	for _, name := range names {
		writeShdr(infos[name].nameOff, 1, infos[name].off, infos[name].size)
	}
	writeShdr(shstrtabNameOff, 3, shstrtabOff, shstrtabSize)

	out := buf.Bytes()
	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4], out[5], out[6] = 2, 1, 1
	binary.LittleEndian.PutUint16(out[16:18], 1)
	binary.LittleEndian.PutUint16(out[18:20], 62)
	binary.LittleEndian.PutUint32(out[20:24], 1)
	binary.LittleEndian.PutUint64(out[40:48], shoff)
	binary.LittleEndian.PutUint16(out[52:54], ehsize)
	binary.LittleEndian.PutUint16(out[58:60], 64)
	binary.LittleEndian.PutUint16(out[60:62], uint16(shnum))
	binary.LittleEndian.PutUint16(out[62:64], uint16(shnum-1))
	return out
}

func writeTempELFFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "reader-*.o")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReaderStreamsAllRows(t *testing.T) {
	f := writeTempELFFile(t, buildOneUnitELF(t))
	r, err := Open(f, memcol.New(), Schema())
	require.NoError(t, err)
	defer r.Close()

	var total int
	chunks := 0
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total += chunk.NumRows
		chunks++
		require.Greater(t, chunk.ApproxBytesConsumed, uint64(0))
	}
	require.Equal(t, 1, chunks)
	require.Equal(t, 3, total)
}

func TestReaderChunkRowLimitSplitsUnit(t *testing.T) {
	f := writeTempELFFile(t, buildOneUnitELF(t))
	r, err := Open(f, memcol.New(), Schema(), WithChunkRowLimit(2))
	require.NoError(t, err)
	defer r.Close()

	var rowCounts []int
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rowCounts = append(rowCounts, chunk.NumRows)
	}
	require.Equal(t, []int{2, 1}, rowCounts)
}

func TestReaderContextAlreadyCanceled(t *testing.T) {
	f := writeTempELFFile(t, buildOneUnitELF(t))
	r, err := Open(f, memcol.New(), Schema())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReaderCloseBeforeUse(t *testing.T) {
	f := writeTempELFFile(t, buildOneUnitELF(t))
	r, err := Open(f, memcol.New(), Schema())
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestReaderMultiChunkUnitPreservesOrder(t *testing.T) {
	one := buildOneUnitELF(t)
	// Concatenate a second copy of the same unit's .debug_info bytes isn't
	// meaningful at the ELF level (sections aren't addressable twice), so
	// this test instead verifies a single unit's rows arrive in file order,
	// which is what the scheduler's front-of-queue re-enqueue rule protects
	// once a unit spans multiple chunks (see TestReaderChunkRowLimitSplitsUnit).
	f := writeTempELFFile(t, one)
	r, err := Open(f, memcol.New(), Schema(), WithChunkRowLimit(1))
	require.NoError(t, err)
	defer r.Close()

	var offsets []uint64
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		col := chunk.Columns[ColOffset.String()].(memcol.Uint64Column)
		offsets = append(offsets, col...)
	}
	require.Len(t, offsets, 3)
	require.True(t, offsets[0] < offsets[1])
	require.True(t, offsets[1] < offsets[2])
}
