package zipfs

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/fs"
	"testing"
)

// buildZip hand-assembles a minimal ZIP archive (no zip64, no data
// descriptors) containing the given entries, so internal/zipfs can be
// exercised against a method-9 (Deflate64) entry without needing a
// fixture file: archive/zip can only write methods 0 and 8, never 9.
type zipEntry struct {
	name       string
	method     uint16
	compressed []byte
	uncompSize uint32
	crc        uint32
}

func buildZip(entries []zipEntry) []byte {
	var buf bytes.Buffer
	type centralRecord struct {
		entry  zipEntry
		offset uint32
	}
	var central []centralRecord

	for _, e := range entries {
		offset := uint32(buf.Len())

		var hdr bytes.Buffer
		binary.Write(&hdr, binary.LittleEndian, uint32(0x04034b50))
		binary.Write(&hdr, binary.LittleEndian, uint16(20)) // version needed
		binary.Write(&hdr, binary.LittleEndian, uint16(0))  // flags
		binary.Write(&hdr, binary.LittleEndian, e.method)
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // mod time
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // mod date
		binary.Write(&hdr, binary.LittleEndian, e.crc)
		binary.Write(&hdr, binary.LittleEndian, uint32(len(e.compressed)))
		binary.Write(&hdr, binary.LittleEndian, e.uncompSize)
		binary.Write(&hdr, binary.LittleEndian, uint16(len(e.name)))
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // extra len

		buf.Write(hdr.Bytes())
		buf.WriteString(e.name)
		buf.Write(e.compressed)

		central = append(central, centralRecord{entry: e, offset: offset})
	}

	centralStart := uint32(buf.Len())
	for _, c := range central {
		e := c.entry
		var hdr bytes.Buffer
		binary.Write(&hdr, binary.LittleEndian, uint32(0x02014b50))
		binary.Write(&hdr, binary.LittleEndian, uint16(20)) // version made by
		binary.Write(&hdr, binary.LittleEndian, uint16(20)) // version needed
		binary.Write(&hdr, binary.LittleEndian, uint16(0))  // flags
		binary.Write(&hdr, binary.LittleEndian, e.method)
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // mod time
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // mod date
		binary.Write(&hdr, binary.LittleEndian, e.crc)
		binary.Write(&hdr, binary.LittleEndian, uint32(len(e.compressed)))
		binary.Write(&hdr, binary.LittleEndian, e.uncompSize)
		binary.Write(&hdr, binary.LittleEndian, uint16(len(e.name)))
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // extra len
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // comment len
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // disk number
		binary.Write(&hdr, binary.LittleEndian, uint16(0)) // internal attrs
		binary.Write(&hdr, binary.LittleEndian, uint32(0)) // external attrs
		binary.Write(&hdr, binary.LittleEndian, c.offset)

		buf.Write(hdr.Bytes())
		buf.WriteString(e.name)
	}
	centralSize := uint32(buf.Len()) - centralStart

	var eocd bytes.Buffer
	binary.Write(&eocd, binary.LittleEndian, uint32(0x06054b50))
	binary.Write(&eocd, binary.LittleEndian, uint16(0)) // disk number
	binary.Write(&eocd, binary.LittleEndian, uint16(0)) // disk with central dir
	binary.Write(&eocd, binary.LittleEndian, uint16(len(entries)))
	binary.Write(&eocd, binary.LittleEndian, uint16(len(entries)))
	binary.Write(&eocd, binary.LittleEndian, centralSize)
	binary.Write(&eocd, binary.LittleEndian, centralStart)
	binary.Write(&eocd, binary.LittleEndian, uint16(0)) // comment len
	buf.Write(eocd.Bytes())

	return buf.Bytes()
}

func TestFSStoreAndDeflate64(t *testing.T) {
	stored := []byte("hello, zipfs")
	// Scenario-3 vector from the decoder's own test suite: a single
	// Deflate64 block expanding to 131072 zero bytes via two
	// length/distance-1 back-references.
	deflate64Bytes := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	zeros := make([]byte, 131072)

	data := buildZip([]zipEntry{
		{
			name:       "hello.txt",
			method:     methodStore,
			compressed: stored,
			uncompSize: uint32(len(stored)),
			crc:        crc32.ChecksumIEEE(stored),
		},
		{
			name:       "zeros.bin",
			method:     methodDeflate64,
			compressed: deflate64Bytes,
			uncompSize: uint32(len(zeros)),
			crc:        crc32.ChecksumIEEE(zeros),
		},
	})

	fsys, err := New(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f, err := fsys.Open("hello.txt")
	if err != nil {
		t.Fatalf("Open(hello.txt): %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("reading hello.txt: %v", err)
	}
	if !bytes.Equal(got, stored) {
		t.Fatalf("hello.txt = %q, want %q", got, stored)
	}
	f.Close()

	zf, err := fsys.Open("zeros.bin")
	if err != nil {
		t.Fatalf("Open(zeros.bin): %v", err)
	}
	zgot, err := io.ReadAll(zf)
	if err != nil {
		t.Fatalf("reading zeros.bin: %v", err)
	}
	if !bytes.Equal(zgot, zeros) {
		t.Fatalf("zeros.bin: got %d bytes, want %d", len(zgot), len(zeros))
	}
	zf.Close()

	entries, err := fsys.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir(.): %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadDir(.) = %d entries, want 2", len(entries))
	}
}

func TestFSWalk(t *testing.T) {
	content := []byte("x")
	data := buildZip([]zipEntry{
		{name: "a.txt", method: methodStore, compressed: content, uncompSize: 1, crc: crc32.ChecksumIEEE(content)},
		{name: "dir/", method: methodStore, compressed: nil, uncompSize: 0, crc: 0},
		{name: "dir/b.txt", method: methodStore, compressed: content, uncompSize: 1, crc: crc32.ChecksumIEEE(content)},
	})

	fsys, err := New(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var seen []string
	if err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != "." {
			seen = append(seen, p)
		}
		return nil
	}); err != nil {
		t.Fatalf("WalkDir: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("WalkDir visited %v, want 3 entries (a.txt, dir, dir/b.txt)", seen)
	}
}
