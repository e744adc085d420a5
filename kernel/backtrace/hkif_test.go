package backtrace

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
)

// buildHKIF mirrors tools/gluon's HKIF serializer: a 64-byte header, a
// section directory, then the section data blobs, with a CRC-32 computed
// over the whole buffer after zeroing the checksum field.
func buildHKIF(t *testing.T, virtBase, imageSize, entry uint64, sections [][2]interface{}) []byte {
	t.Helper()

	type dirEntry struct {
		secType, offset, size uint32
	}

	dataStart := hkifHeaderSize + len(sections)*dirEntrySize
	cur := dataStart
	var dirs []dirEntry
	var blobs [][]byte
	for _, s := range sections {
		secType := uint32(s[0].(int))
		blob := s[1].([]byte)
		dirs = append(dirs, dirEntry{secType, uint32(cur), uint32(len(blob))})
		blobs = append(blobs, blob)
		cur += len(blob)
	}
	totalSize := cur

	buf := make([]byte, 0, totalSize)
	put16 := func(v uint16) { buf = binary.LittleEndian.AppendUint16(buf, v) }
	put32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	put64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }

	buf = append(buf, 'H', 'K', 'I', 'F')
	put16(1) // version
	if len(sections) > 0 {
		put16(flagHasBacktrace)
	} else {
		put16(0)
	}
	put32(uint32(len(sections)))
	put32(hkifHeaderSize)
	put64(virtBase)
	put64(imageSize)
	put64(entry)
	buf = append(buf, make([]byte, 16)...) // reserved
	put32(uint32(totalSize))
	put32(0) // checksum placeholder

	for _, d := range dirs {
		put32(d.secType)
		put32(d.offset)
		put32(d.size)
		put32(0)
	}
	for _, b := range blobs {
		buf = append(buf, b...)
	}

	crc := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], crc)
	return buf
}

func TestParseHKIFHeaderAndSections(t *testing.T) {
	symBlob := make([]byte, symEntrySize)
	binary.LittleEndian.PutUint64(symBlob, 0x1000)
	binary.LittleEndian.PutUint32(symBlob[8:], 0x100)
	binary.LittleEndian.PutUint32(symBlob[12:], 0)

	strBlob := append([]byte("test_fn"), 0)

	data := buildHKIF(t, 0xffff_ffff_8000_0000, 0x10000, 0xffff_ffff_8000_1000, [][2]interface{}{
		{sectionSymbols, symBlob},
		{sectionStrings, strBlob},
	})

	img, err := ParseHKIF(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.KernelVirtBase != 0xffff_ffff_8000_0000 {
		t.Fatalf("unexpected virt base: %#x", img.KernelVirtBase)
	}
	if !img.HasBacktrace {
		t.Fatal("expected FLAG_HAS_BACKTRACE to be set")
	}
	name, off, ok := img.Table.LookupSymbol(0x1000)
	if !ok || name != "test_fn" || off != 0 {
		t.Fatalf("got %q, %d, %v", name, off, ok)
	}
}

func TestParseHKIFRejectsCorruptedChecksum(t *testing.T) {
	data := buildHKIF(t, 0, 0, 0, nil)
	data[len(data)-1] ^= 0xff
	if _, err := ParseHKIF(data); err != errHKIFBadCRC {
		t.Fatalf("expected errHKIFBadCRC; got %v", err)
	}
}

func TestParseHKIFEmptySections(t *testing.T) {
	data := buildHKIF(t, 0x1000, 0x2000, 0x1000, nil)
	img, err := ParseHKIF(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.HasBacktrace {
		t.Fatal("expected no backtrace flag with no symbols or lines")
	}
	if _, _, ok := img.Table.LookupSymbol(0x1000); ok {
		t.Fatal("expected no symbols in an empty image")
	}
}

func TestParseHKIFRejectsBadMagic(t *testing.T) {
	data := buildHKIF(t, 0, 0, 0, nil)
	data[0] = 'X'
	if _, err := ParseHKIF(data); err != errBadMagic {
		t.Fatalf("expected errBadMagic; got %v", err)
	}
}
