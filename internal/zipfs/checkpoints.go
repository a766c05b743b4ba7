package zipfs

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonjohnsonjr/deflate64"
)

// checkpointEntry records one resumable point inside a Deflate64 entry's
// stream: Blob is a deflate64.Checkpoint blob (nil for the very start of
// the stream), Start is the absolute decompressed-output offset it
// resumes from, and InputOffset is the matching absolute offset into the
// entry's compressed bytes.
type checkpointEntry struct {
	Start       int64
	InputOffset int64
	Blob        []byte
}

// CheckpointIndex is the on-disk form of a RandomAccessReader's
// checkpoints, suitable for caching alongside a ZIP archive so that a
// later process can seek into a Deflate64 entry without replaying it from
// the beginning. The layout will change and break you if you depend on it.
type CheckpointIndex struct {
	Checkpoints []checkpointEntry
}

// RandomAccessReader provides io.ReaderAt semantics over a single
// Deflate64-compressed ZIP entry. Deflate64 has no native seek support, so
// arbitrary offsets are served by resuming decompression from the nearest
// earlier checkpoint and discarding forward to the target, same as gzip.gsip
// did for classic gzip streams; this is the analogous reader for entries
// this package's own Inflater (rather than the standard library's flate)
// is decoding.
type RandomAccessReader struct {
	ra io.ReaderAt
	e  *Entry

	interval int64 // bytes of output between recorded checkpoints

	mu          sync.Mutex
	checkpoints []checkpointEntry // sorted ascending by Start

	group singleflight.Group
}

// defaultCheckpointInterval is how often, in decompressed bytes, a fresh
// checkpoint is recorded while indexing a stream for the first time.
const defaultCheckpointInterval = 1 << 20

// NewRandomAccessReader builds a reader for a Deflate64 entry with no
// checkpoints yet recorded; the first ReadAt call will decode from the
// start of the entry and record checkpoints as it goes.
func NewRandomAccessReader(ra io.ReaderAt, e *Entry) (*RandomAccessReader, error) {
	if e.Header.Method != methodDeflate64 {
		return nil, fmt.Errorf("zipfs: %q is not a Deflate64 entry", e.Filename)
	}
	return &RandomAccessReader{
		ra:       ra,
		e:        e,
		interval: defaultCheckpointInterval,
	}, nil
}

// Encode writes the reader's current checkpoint index as JSON.
func (r *RandomAccessReader) Encode(w io.Writer) error {
	r.mu.Lock()
	idx := CheckpointIndex{Checkpoints: append([]checkpointEntry(nil), r.checkpoints...)}
	r.mu.Unlock()

	return json.NewEncoder(w).Encode(&idx)
}

// DecodeRandomAccessReader builds a reader for a Deflate64 entry, seeded
// with a previously Encoded checkpoint index so that ReadAt calls can skip
// straight to the nearest recorded checkpoint instead of the start of the
// stream.
func DecodeRandomAccessReader(ra io.ReaderAt, e *Entry, index io.Reader) (*RandomAccessReader, error) {
	if e.Header.Method != methodDeflate64 {
		return nil, fmt.Errorf("zipfs: %q is not a Deflate64 entry", e.Filename)
	}

	var idx CheckpointIndex
	if err := json.NewDecoder(index).Decode(&idx); err != nil {
		return nil, err
	}

	return &RandomAccessReader{
		ra:          ra,
		e:           e,
		interval:    defaultCheckpointInterval,
		checkpoints: idx.Checkpoints,
	}, nil
}

// bestCheckpoint returns the latest recorded checkpoint at or before off,
// or the zero-value checkpoint (decode from the start of the entry) if
// none qualifies.
func (r *RandomAccessReader) bestCheckpoint(off int64) checkpointEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best checkpointEntry
	for _, cp := range r.checkpoints {
		if cp.Start > off {
			break
		}
		best = cp
	}
	return best
}

func (r *RandomAccessReader) recordCheckpoint(cp checkpointEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Keep r.checkpoints sorted by Start: concurrent decodes resumed from
	// different checkpoints can record their entries out of order.
	i := 0
	for i < len(r.checkpoints) && r.checkpoints[i].Start < cp.Start {
		i++
	}
	if i < len(r.checkpoints) && r.checkpoints[i].Start == cp.Start {
		return
	}
	r.checkpoints = append(r.checkpoints, checkpointEntry{})
	copy(r.checkpoints[i+1:], r.checkpoints[i:])
	r.checkpoints[i] = cp
}

type decodedRange struct {
	// data holds decompressed bytes starting at the checkpoint's output
	// offset, through at least `want` total output bytes (or end of stream).
	base int64
	data []byte
}

// ReadAt implements io.ReaderAt by resuming decompression from the
// nearest earlier checkpoint and discarding output until off is reached.
// Concurrent ReadAt calls that resolve to the same (checkpoint, target)
// pair share one decode via singleflight instead of racing independent
// Inflaters over the same bytes.
func (r *RandomAccessReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("zipfs: ReadAt with negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}

	want := off + int64(len(p))
	cp := r.bestCheckpoint(off)
	key := fmt.Sprintf("%d:%d", cp.Start, want)

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.decodeRange(cp, want)
	})
	if err != nil {
		return 0, err
	}

	dr := v.(*decodedRange)
	rel := off - dr.base
	if rel < 0 || rel > int64(len(dr.data)) {
		return 0, fmt.Errorf("zipfs: decoded range does not cover offset %d", off)
	}

	n := copy(p, dr.data[rel:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// decodeRange resumes from cp (or the start of the entry, if cp is the
// zero value) and decodes through at least `want` output bytes, recording
// a fresh checkpoint every r.interval bytes crossed along the way.
func (r *RandomAccessReader) decodeRange(cp checkpointEntry, want int64) (*decodedRange, error) {
	f := deflate64.New()

	if cp.Blob != nil {
		if _, ok := f.RestoreFromCheckpoint(cp.Blob); !ok {
			return nil, fmt.Errorf("zipfs: corrupt checkpoint for %q at output offset %d", r.e.Filename, cp.Start)
		}
	}

	span := int64(r.e.Header.CompressedSize64) - cp.InputOffset
	if span < 0 {
		span = 0
	}
	sr := io.NewSectionReader(r.ra, r.e.Offset+cp.InputOffset, span)

	out := make([]byte, 0, want-cp.Start)
	var inbuf [32 * 1024]byte
	var unconsumed []byte
	outbuf := make([]byte, 32*1024)
	nextCheckpointAt := cp.Start + r.interval

	for cp.Start+int64(len(out)) < want {
		if f.Errored() {
			return nil, fmt.Errorf("zipfs: decoding %q: %w", r.e.Filename, f.Err())
		}

		res := f.Inflate(unconsumed, outbuf)
		unconsumed = unconsumed[res.BytesConsumed:]
		if res.DataError {
			return nil, fmt.Errorf("zipfs: decoding %q: %w", r.e.Filename, f.Err())
		}
		out = append(out, outbuf[:res.BytesWritten]...)

		if cp.Start+int64(len(out)) >= nextCheckpointAt {
			if blob, positions, ok := f.Checkpoint(); ok {
				r.recordCheckpoint(checkpointEntry{
					Start:       int64(positions.OutputBytesAlreadyReturned),
					InputOffset: int64(positions.InputBytesToSkip),
					Blob:        blob,
				})
			}
			nextCheckpointAt += r.interval
		}

		if f.Finished() {
			break
		}
		if len(unconsumed) == 0 {
			n, err := sr.Read(inbuf[:])
			if n > 0 {
				unconsumed = append(unconsumed, inbuf[:n]...)
			}
			if err != nil && err != io.EOF {
				return nil, err
			}
			if n == 0 && err == io.EOF && res.BytesWritten == 0 {
				break
			}
		}
	}

	return &decodedRange{base: cp.Start, data: out}, nil
}
