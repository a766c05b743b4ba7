package deflate64

import (
	"bytes"
	"testing"
)

func TestOutputWindowWriteAndDrain(t *testing.T) {
	var w outputWindow
	for _, b := range []byte("hello") {
		w.write(b)
	}
	dst := make([]byte, 5)
	n := w.drainTo(dst)
	if n != 5 || string(dst) != "hello" {
		t.Fatalf("drainTo = %d, %q", n, dst)
	}
	if w.availableBytes() != 0 {
		t.Fatalf("availableBytes after full drain = %d", w.availableBytes())
	}
}

func TestOutputWindowWriteLengthDistanceRLE(t *testing.T) {
	var w outputWindow
	w.write(0xAB)
	w.writeLengthDistance(10, 1) // distance 1 replicates the last byte
	if w.availableBytes() != 11 {
		t.Fatalf("availableBytes = %d, want 11", w.availableBytes())
	}
	dst := make([]byte, 11)
	w.drainTo(dst)
	for i, b := range dst {
		if b != 0xAB {
			t.Fatalf("dst[%d] = %#x, want 0xAB", i, b)
		}
	}
}

func TestOutputWindowWriteLengthDistanceOverlap(t *testing.T) {
	var w outputWindow
	for _, b := range []byte("ab") {
		w.write(b)
	}
	// distance 2, length 6 starting from "ab" produces "ababab".
	w.writeLengthDistance(6, 2)
	dst := make([]byte, 8)
	w.drainTo(dst)
	if string(dst) != "abababab" {
		t.Fatalf("dst = %q, want %q", dst, "abababab")
	}
}

func TestOutputWindowDrainPartial(t *testing.T) {
	var w outputWindow
	for i := 0; i < 10; i++ {
		w.write(byte(i))
	}
	dst := make([]byte, 4)
	n := w.drainTo(dst)
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
	if w.availableBytes() != 6 {
		t.Fatalf("availableBytes = %d, want 6", w.availableBytes())
	}
	rest := make([]byte, 6)
	w.drainTo(rest)
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !bytes.Equal(append(dst, rest...), want) {
		t.Fatalf("got %v, want %v", append(dst, rest...), want)
	}
}

func TestOutputWindowWrapsAround(t *testing.T) {
	var w outputWindow
	// Fill past the wrap point and confirm FIFO order survives it.
	chunk := bytes.Repeat([]byte{0xFF}, windowSize-3)
	for _, b := range chunk {
		w.write(b)
	}
	drained := make([]byte, windowSize-3)
	w.drainTo(drained)

	tail := []byte{1, 2, 3, 4, 5}
	for _, b := range tail {
		w.write(b)
	}
	dst := make([]byte, len(tail))
	w.drainTo(dst)
	if !bytes.Equal(dst, tail) {
		t.Fatalf("after wrap, got %v, want %v", dst, tail)
	}
}

func TestOutputWindowCheckpointRoundTrip(t *testing.T) {
	var w outputWindow
	data := bytes.Repeat([]byte{0x42}, 1000)
	for _, b := range data {
		w.write(b)
	}
	drained := make([]byte, 500)
	w.drainTo(drained) // 500 undrained bytes remain

	a, b := w.checkpointData(1000)
	combined := append(append([]byte(nil), a...), b...)

	var w2 outputWindow
	w2.restoreFromCheckpoint(combined, w.availableBytes())
	if w2.availableBytes() != w.availableBytes() {
		t.Fatalf("availableBytes after restore = %d, want %d", w2.availableBytes(), w.availableBytes())
	}
	dst := make([]byte, w2.availableBytes())
	w2.drainTo(dst)
	for i, b := range dst {
		if b != 0x42 {
			t.Fatalf("dst[%d] = %#x, want 0x42", i, b)
		}
	}
}
