// Copyright 2023 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package zipfs exposes a ZIP archive as an fs.FS without requiring the
// whole archive to be decompressed up front. Unlike archive/zip's own
// Open, it does not hand decompression off to a package-registered
// decompressor table: every entry's raw bytes are read directly off the
// backing io.ReaderAt and routed to a decompressor chosen by this package,
// which is what lets it serve Deflate64 (method 9) entries that the
// standard library has no decompressor for at all.
package zipfs

import (
	"archive/zip"
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jonjohnsonjr/deflate64"
	"github.com/jonjohnsonjr/deflate64/sgzip/internal/flate"
)

// Compression methods this package knows how to decode directly. zip.Store
// and zip.Deflate are the constants archive/zip exports; methodDeflate64 is
// APPNOTE.TXT method 9, which archive/zip has no decompressor for.
const (
	methodStore     = zip.Store
	methodDeflate   = zip.Deflate
	methodDeflate64 = 9
)

// Entry describes one file or directory inside the archive, including
// enough of its header to decompress it without re-reading the central
// directory.
type Entry struct {
	Header zip.FileHeader
	Offset int64 // start of the entry's raw (still compressed) data

	Filename string
	dir      string
	fi       fs.FileInfo
}

func (e Entry) Name() string      { return e.fi.Name() }
func (e Entry) Size() int64       { return e.fi.Size() }
func (e Entry) Type() fs.FileMode { return e.fi.Mode().Type() }
func (e Entry) Info() (fs.FileInfo, error) {
	return e.fi, nil
}
func (e Entry) IsDir() bool { return e.fi.IsDir() }

// File is an open handle onto an Entry, decompressing lazily as Read is
// called.
type File struct {
	Entry *Entry

	fsys *FS
	r    io.Reader
	c    io.Closer

	cursor int
}

func (f *File) Stat() (fs.FileInfo, error) {
	return f.Entry.fi, nil
}

func (f *File) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *File) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if n == 0 {
		return nil, nil
	}

	dir, err := f.fsys.ReadDir(f.Entry.Filename)
	if err != nil {
		return nil, err
	}

	if f.cursor >= len(dir) {
		if n < 0 {
			return nil, nil
		}
		return nil, io.EOF
	}

	if n > 0 && len(dir)-f.cursor > n {
		ret := dir[f.cursor : f.cursor+n]
		f.cursor += n
		return ret, nil
	}

	ret := dir[f.cursor:]
	f.cursor = len(dir)
	return ret, nil
}

// FS is a read-only view over a ZIP archive, including entries compressed
// with Deflate64 that archive/zip itself cannot open.
type FS struct {
	ra    io.ReaderAt
	size  int64
	files []*Entry
	index map[string]int
	dirs  map[string][]fs.DirEntry
}

func normalize(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(strings.TrimSuffix(s, "/"), "/"), "./")
}

// New parses the archive's central directory (via archive/zip, which reads
// from the end of the stream) and indexes every entry by normalized path.
// Decompression is deferred until Open.
func New(ra io.ReaderAt, size int64) (*FS, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("zipfs: reading central directory: %w", err)
	}

	fsys := &FS{
		ra:    ra,
		size:  size,
		files: make([]*Entry, 0, len(zr.File)),
		index: make(map[string]int, len(zr.File)),
		dirs:  map[string][]fs.DirEntry{},
	}

	dirCount := map[string]int{}

	for _, zf := range zr.File {
		offset, err := zf.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("zipfs: locating data for %q: %w", zf.Name, err)
		}

		normalized := normalize(zf.Name)
		dir := path.Dir(normalized)

		e := &Entry{
			Header:   zf.FileHeader,
			Offset:   offset,
			Filename: normalized,
			dir:      dir,
			fi:       zf.FileInfo(),
		}

		fsys.index[normalized] = len(fsys.files)
		fsys.files = append(fsys.files, e)
		dirCount[dir]++
	}

	for dir, count := range dirCount {
		fsys.dirs[dir] = make([]fs.DirEntry, 0, count)
	}
	for _, f := range fsys.files {
		fsys.dirs[f.dir] = append(fsys.dirs[f.dir], f)
	}
	for _, files := range fsys.dirs {
		slices.SortFunc(files, func(a, b fs.DirEntry) int {
			return cmp.Compare(a.Name(), b.Name())
		})
	}

	return fsys, nil
}

func (fsys *FS) Entry(name string) (*Entry, error) {
	i, ok := fsys.index[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return fsys.files[i], nil
}

// RandomAccessReader returns an io.ReaderAt over the decompressed bytes of
// a Deflate64 entry, letting a caller seek into the middle of it without
// decompressing everything before the target offset on every call. It
// accepts Deflate64 entries only; store and classic Deflate entries are read
// sequentially through Open.
func (fsys *FS) RandomAccessReader(name string) (*RandomAccessReader, error) {
	e, err := fsys.Entry(name)
	if err != nil {
		return nil, err
	}
	return NewRandomAccessReader(fsys.ra, e)
}

func (fsys *FS) Readlink(name string) (string, error) {
	e, err := fsys.Entry(name)
	if err != nil {
		return "", err
	}
	if e.fi.Mode()&fs.ModeSymlink == 0 {
		return "", fmt.Errorf("Readlink(%q): file is not a link", name)
	}

	r, err := fsys.openEntry(e)
	if err != nil {
		return "", err
	}
	defer r.Close()

	target, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("Readlink(%q): reading target: %w", name, err)
	}
	return string(target), nil
}

const maxHops = 255

func (fsys *FS) open(name string, hops int) (fs.File, error) {
	if hops > maxHops {
		return nil, fmt.Errorf("opening %s: chased too many (%d) symlinks", name, maxHops)
	}

	e, err := fsys.Entry(name)
	if err != nil {
		return nil, err
	}

	if e.fi.Mode()&fs.ModeSymlink != 0 {
		link, err := fsys.Readlink(name)
		if err != nil {
			return nil, err
		}
		if path.IsAbs(link) {
			return fsys.open(normalize(link), hops+1)
		}
		return fsys.open(path.Join(e.dir, link), hops+1)
	}

	r, err := fsys.openEntry(e)
	if err != nil {
		return nil, err
	}

	f := &File{Entry: e, fsys: fsys, r: r}
	if c, ok := r.(io.Closer); ok {
		f.c = c
	}
	return f, nil
}

// Open implements fs.FS.
func (fsys *FS) Open(name string) (fs.File, error) {
	if name == "." {
		return &File{
			Entry: &Entry{Filename: ".", dir: ".", fi: root{}},
			fsys:  fsys,
			r:     strings.NewReader(""),
		}, nil
	}
	return fsys.open(name, 0)
}

// openEntry returns a reader over an entry's decompressed bytes, routing
// it through the decompressor that matches its stored method.
func (fsys *FS) openEntry(e *Entry) (io.ReadCloser, error) {
	if e.fi.IsDir() {
		return io.NopCloser(strings.NewReader("")), nil
	}

	sr := io.NewSectionReader(fsys.ra, e.Offset, int64(e.Header.CompressedSize64))

	switch e.Header.Method {
	case methodStore:
		return io.NopCloser(sr), nil
	case methodDeflate:
		return flate.NewReader(sr), nil
	case methodDeflate64:
		return newDeflate64Reader(sr), nil
	default:
		return nil, fmt.Errorf("zipfs: unsupported compression method %d for %q", e.Header.Method, e.Filename)
	}
}

type root struct{}

func (r root) Name() string       { return "." }
func (r root) Size() int64        { return 0 }
func (r root) Mode() fs.FileMode  { return fs.ModeDir }
func (r root) ModTime() time.Time { return time.Unix(0, 0) }
func (r root) IsDir() bool        { return true }
func (r root) Sys() any           { return nil }

func (fsys *FS) Stat(name string) (fs.FileInfo, error) {
	if i, ok := fsys.index[name]; ok {
		return fsys.files[i].fi, nil
	}
	if name == "." {
		return root{}, nil
	}
	return nil, fs.ErrNotExist
}

func (fsys *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	dirs, ok := fsys.dirs[name]
	if !ok {
		return []fs.DirEntry{}, nil
	}
	return dirs, nil
}

// deflate64Reader adapts deflate64.Inflater's pull-style Inflate(input,
// output) method to io.Reader, feeding it compressed bytes from src in
// fixed-size chunks and returning decompressed bytes as they become
// available.
type deflate64Reader struct {
	src        io.Reader
	f          *deflate64.Inflater
	readBuf    [32 * 1024]byte
	unconsumed []byte
	srcDone    bool
}

func newDeflate64Reader(src io.Reader) io.ReadCloser {
	return &deflate64Reader{src: src, f: deflate64.New()}
}

func (r *deflate64Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if r.f.Errored() {
			return 0, fmt.Errorf("zipfs: deflate64: %w", r.f.Err())
		}

		res := r.f.Inflate(r.unconsumed, p)
		r.unconsumed = r.unconsumed[res.BytesConsumed:]

		if res.DataError {
			return res.BytesWritten, fmt.Errorf("zipfs: deflate64: %w", r.f.Err())
		}
		if res.BytesWritten > 0 {
			return res.BytesWritten, nil
		}
		if r.f.Finished() {
			return 0, io.EOF
		}
		if r.srcDone {
			return 0, io.ErrUnexpectedEOF
		}

		n, err := r.src.Read(r.readBuf[:])
		if n > 0 {
			r.unconsumed = append(r.unconsumed, r.readBuf[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return 0, err
			}
			r.srcDone = true
		}
	}
}

func (r *deflate64Reader) Close() error {
	return nil
}
