package deflate64

import (
	"bytes"
	"testing"
)

// bitWriter builds a Deflate64 bitstream bit by bit, LSB-first within each
// byte, matching bitBuffer's read convention: writeBits writes a field's
// value as-is (its own bit 0 transmitted first); writeCode writes a
// Huffman code given in its canonical MSB-first numeric form, reversing it
// the same way huffmanCanonicalCodes does so it lands correctly for a
// decoder reading LSB-first.
type bitWriter struct {
	buf   []byte
	cur   uint32
	nbits uint
}

func (w *bitWriter) writeBits(value uint32, n uint) {
	w.cur |= value << w.nbits
	w.nbits += n
	for w.nbits >= 8 {
		w.buf = append(w.buf, byte(w.cur))
		w.cur >>= 8
		w.nbits -= 8
	}
}

func (w *bitWriter) writeCode(code uint32, length int) {
	w.writeBits(reverseBits(code, length), uint(length))
}

func (w *bitWriter) bytes() []byte {
	if w.nbits > 0 {
		return append(append([]byte(nil), w.buf...), byte(w.cur))
	}
	return append([]byte(nil), w.buf...)
}

func TestScenarioEmptyStream(t *testing.T) {
	f := New()
	out := make([]byte, 16)
	res := f.Inflate([]byte{0x03, 0x00}, out)
	if res.DataError {
		t.Fatalf("data error decoding empty stream")
	}
	if res.BytesWritten != 0 {
		t.Fatalf("BytesWritten = %d, want 0", res.BytesWritten)
	}
	if !f.Finished() {
		t.Fatal("Finished() = false after draining empty stream")
	}
}

func TestScenarioSingleLiteral(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1) // bfinal
	w.writeBits(1, 2) // btype = static
	w.writeCode(0x30, 8)
	w.writeCode(0, 7) // EOB
	input := w.bytes()

	f := New()
	out := make([]byte, 16)
	res := f.Inflate(input, out)
	if res.DataError {
		t.Fatalf("data error: %v", f.Err())
	}
	if res.BytesWritten != 1 || out[0] != 0 {
		t.Fatalf("got %v, want [0x00]", out[:res.BytesWritten])
	}
	if !f.Finished() {
		t.Fatal("Finished() = false")
	}
}

func TestScenarioLongRLEDistanceOne(t *testing.T) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	f := New()
	out := make([]byte, 131072)
	res := f.Inflate(input, out)
	if res.DataError {
		t.Fatalf("data error: %v", f.Err())
	}
	if res.BytesWritten != 131072 {
		t.Fatalf("BytesWritten = %d, want 131072", res.BytesWritten)
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("out[%d] = %#x, want 0", i, b)
		}
	}
	if !f.Finished() {
		t.Fatal("Finished() = false")
	}
}

func TestScenarioTruncatedStream(t *testing.T) {
	full := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	half := full[:len(full)/2]

	f := New()
	out := make([]byte, 131072)
	res := f.Inflate(half, out)
	if res.DataError {
		t.Fatalf("data error on truncated input: %v", f.Err())
	}
	if f.Finished() {
		t.Fatal("Finished() = true on truncated input")
	}
	if !f.InputFinished() {
		t.Fatal("InputFinished() = false, want true (nothing left to consume)")
	}
}

func TestScenarioMalformedDynamicTree(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1) // bfinal
	w.writeBits(2, 2) // btype = dynamic
	w.writeBits(0, 5) // hlit = 257
	w.writeBits(0, 5) // hdist = 1
	w.writeBits(0, 4) // hclen = 4
	// codeOrder[0..3] = 16, 17, 18, 0; four length-1 codes over-subscribe
	// the 1-bit code space.
	w.writeBits(1, 3)
	w.writeBits(1, 3)
	w.writeBits(1, 3)
	w.writeBits(1, 3)
	input := w.bytes()

	f := New()
	out := make([]byte, 16)
	res := f.Inflate(input, out)
	if !res.DataError || !f.Errored() {
		t.Fatal("expected data error for over-subscribed code-length tree")
	}
}

func TestErrorIsSticky(t *testing.T) {
	var w bitWriter
	w.writeBits(1, 1)
	w.writeBits(3, 2) // btype = 11, reserved
	input := w.bytes()

	f := New()
	out := make([]byte, 16)
	f.Inflate(input, out)
	if !f.Errored() {
		t.Fatal("expected error for reserved block type")
	}
	res := f.Inflate([]byte{0xFF}, out)
	if res.BytesConsumed != 0 || res.BytesWritten != 0 || !res.DataError {
		t.Fatalf("post-error call should no-op: %+v", res)
	}
}

func TestTerminationStability(t *testing.T) {
	f := New()
	out := make([]byte, 16)
	f.Inflate([]byte{0x03, 0x00}, out)
	if !f.Finished() {
		t.Fatal("expected Finished() after empty stream")
	}
	res := f.Inflate([]byte{0x01, 0x02, 0x03}, out)
	if res.BytesConsumed != 0 || res.BytesWritten != 0 || res.DataError {
		t.Fatalf("call after Finished should no-op: %+v", res)
	}
}

func TestChunkInvariance(t *testing.T) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}

	var want bytes.Buffer
	single := New()
	outAll := make([]byte, 131072)
	single.Inflate(input, outAll)
	want.Write(outAll)

	for _, chunkSize := range []int{1, 3, 7} {
		f := New()
		var got bytes.Buffer
		consumedTotal := 0
		out := make([]byte, 4096)
		for pos := 0; pos < len(input); {
			end := pos + chunkSize
			if end > len(input) {
				end = len(input)
			}
			chunk := input[pos:end]
			for {
				res := f.Inflate(chunk, out)
				got.Write(out[:res.BytesWritten])
				consumedTotal += res.BytesConsumed
				chunk = chunk[res.BytesConsumed:]
				if res.DataError {
					t.Fatalf("chunkSize=%d: data error: %v", chunkSize, f.Err())
				}
				if len(chunk) == 0 {
					break
				}
			}
			pos = end
		}
		// Drain remaining output with empty input until finished.
		for !f.Finished() {
			res := f.Inflate(nil, out)
			got.Write(out[:res.BytesWritten])
			if res.BytesWritten == 0 {
				break
			}
		}
		if consumedTotal != len(input) {
			t.Errorf("chunkSize=%d: consumed %d, want %d", chunkSize, consumedTotal, len(input))
		}
		if !bytes.Equal(got.Bytes(), want.Bytes()) {
			t.Errorf("chunkSize=%d: output mismatch, got %d bytes want %d", chunkSize, got.Len(), want.Len())
		}
	}
}

func TestNotFinishedUntilDrained(t *testing.T) {
	// literal 0, static block [ match 65535 dist 1, match 65536 dist 1, end ]
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	const wantLen = 1 + 65535 + 65536
	f := New()

	out := make([]byte, wantLen-1)
	res := f.Inflate(input, out)
	if res.DataError {
		t.Fatalf("data error: %v", f.Err())
	}
	if res.BytesConsumed != len(input) {
		t.Fatalf("BytesConsumed = %d, want %d", res.BytesConsumed, len(input))
	}
	if res.BytesWritten != wantLen-1 {
		t.Fatalf("BytesWritten = %d, want %d", res.BytesWritten, wantLen-1)
	}
	if f.Finished() {
		t.Fatal("Finished() = true before all output drained")
	}

	rest := make([]byte, 1)
	res2 := f.Inflate(nil, rest)
	if res2.BytesWritten != 1 {
		t.Fatalf("second call wrote %d, want 1", res2.BytesWritten)
	}
	if !f.Finished() {
		t.Fatal("Finished() = false after draining all output")
	}
	if res.DataError || res2.DataError {
		t.Fatal("DataError set on a well-formed stream")
	}
}

func TestSizeLimitEnforcement(t *testing.T) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}

	f := NewWithUncompressedSize(131072)
	out := make([]byte, 131072)
	res := f.Inflate(input, out)
	if res.DataError || !f.Finished() {
		t.Fatalf("exact-size stream should succeed: dataError=%v finished=%v", res.DataError, f.Finished())
	}

	f2 := NewWithUncompressedSize(131071)
	out2 := make([]byte, 131072)
	res2 := f2.Inflate(input, out2)
	if !res2.DataError {
		t.Fatal("stream exceeding limit should set data_error")
	}
}

func TestDeflate64LongLengthAndDistance(t *testing.T) {
	// Same scenario 3 vector, re-verified for the specific Deflate64
	// extension properties: length symbol 285 (16 extra bits) and the
	// maximal distance-1 back-reference.
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	f := New()
	out := make([]byte, 131072)
	res := f.Inflate(input, out)
	if res.DataError {
		t.Fatalf("data error: %v", f.Err())
	}
	if res.BytesWritten != 131072 {
		t.Fatalf("wrote %d bytes, want 131072 (1 + 65535 + 65536)", res.BytesWritten)
	}
}
