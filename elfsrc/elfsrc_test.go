// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package elfsrc

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMinimalELF assembles a minimal little-endian ELF64 relocatable object
// containing the given named sections, readable by debug/elf.NewFile: an
// ELF64 file header, each section's raw bytes, a .shstrtab, and the section
// header table, in that order.
func buildMinimalELF(t *testing.T, sections map[string][]byte) []byte {
	t.Helper()

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}

	const ehsize = 64
	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize)) // placeholder for the file header

	type secInfo struct {
		name      string
		nameOff   uint32
		off, size uint64
	}
	var infos []secInfo
	for _, name := range names {
		data := sections[name]
		infos = append(infos, secInfo{name: name, off: uint64(buf.Len()), size: uint64(len(data))})
		buf.Write(data)
	}

	// .shstrtab: leading NUL, then each section name (including ".shstrtab"
	// itself), NUL-terminated.
	shstrtabOff := uint64(buf.Len())
	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	for i := range infos {
		infos[i].nameOff = uint32(shstrtab.Len())
		shstrtab.WriteString(infos[i].name)
		shstrtab.WriteByte(0)
	}
	shstrtabNameOff := uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab")
	shstrtab.WriteByte(0)
	buf.Write(shstrtab.Bytes())
	shstrtabSize := uint64(shstrtab.Len())

	shoff := uint64(buf.Len())
	shnum := len(infos) + 2 // NULL + sections + .shstrtab

	writeShdr := func(nameOff uint32, typ uint32, offset, size uint64) {
		var hdr [64]byte
		binary.LittleEndian.PutUint32(hdr[0:4], nameOff)
		binary.LittleEndian.PutUint32(hdr[4:8], typ)
		// sh_flags, sh_addr left zero
		binary.LittleEndian.PutUint64(hdr[24:32], offset)
		binary.LittleEndian.PutUint64(hdr[32:40], size)
		// sh_link, sh_info, sh_addralign, sh_entsize left zero
		buf.Write(hdr[:])
	}
	writeShdr(0, 0, 0, 0) // SHT_NULL
	for _, info := range infos {
		writeShdr(info.nameOff, 1 /* SHT_PROGBITS */, info.off, info.size)
	}
	writeShdr(shstrtabNameOff, 3 /* SHT_STRTAB */, shstrtabOff, shstrtabSize)

	out := buf.Bytes()

	// ELF64 file header.
	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 2 // ELFCLASS64
	out[5] = 1 // ELFDATA2LSB
	out[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(out[16:18], 1)  // e_type: ET_REL
	binary.LittleEndian.PutUint16(out[18:20], 62) // e_machine: EM_X86_64
	binary.LittleEndian.PutUint32(out[20:24], 1)  // e_version
	binary.LittleEndian.PutUint64(out[40:48], shoff)
	binary.LittleEndian.PutUint16(out[52:54], ehsize)
	binary.LittleEndian.PutUint16(out[58:60], 64) // e_shentsize
	binary.LittleEndian.PutUint16(out[60:62], uint16(shnum))
	binary.LittleEndian.PutUint16(out[62:64], uint16(shnum-1)) // e_shstrndx: last section

	return out
}

func writeTempELF(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "elfsrc-*.o")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestOpenAndSection(t *testing.T) {
	data := buildMinimalELF(t, map[string][]byte{
		"debug_info":   {1, 2, 3, 4},
		"debug_abbrev": {5, 6},
	})
	f := writeTempELF(t, data)

	img, err := Open(f)
	require.NoError(t, err)
	defer img.Close()

	info, ok := img.Section("debug_info")
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, info)

	// Leading-dot-insensitive lookup, either direction.
	abbrev, ok := img.Section(".debug_abbrev")
	require.True(t, ok)
	require.Equal(t, []byte{5, 6}, abbrev)

	_, ok = img.Section("debug_line")
	require.False(t, ok)
}

func TestOpenReaderMaterializesFully(t *testing.T) {
	data := buildMinimalELF(t, map[string][]byte{"debug_info": {9, 9}})
	img, err := OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer img.Close()

	info, ok := img.Section("debug_info")
	require.True(t, ok)
	require.Equal(t, []byte{9, 9}, info)
}

func TestOpenRejectsGarbage(t *testing.T) {
	f := writeTempELF(t, []byte("not an elf file"))
	_, err := Open(f)
	require.Error(t, err)
}

func TestOpenMmapPathForRegularFileAtOffsetZero(t *testing.T) {
	data := buildMinimalELF(t, map[string][]byte{"debug_info": {1}})
	f := writeTempELF(t, data)

	img, err := Open(f)
	require.NoError(t, err)
	defer img.Close()
	require.NotNil(t, img.mmapped)
}
