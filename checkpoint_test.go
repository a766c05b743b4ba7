package deflate64

import (
	"bytes"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}

	var want bytes.Buffer
	ref := New()
	refOut := make([]byte, 131072)
	ref.Inflate(input, refOut)
	want.Write(refOut)

	f := New()
	out := make([]byte, 4096)
	res := f.Inflate(input, out)
	if res.DataError {
		t.Fatalf("data error: %v", f.Err())
	}

	blob, positions, ok := f.Checkpoint()
	if !ok {
		t.Fatal("Checkpoint() reported not ok at a mid-stream drain boundary")
	}

	restored := New()
	gotPositions, ok := restored.RestoreFromCheckpoint(blob)
	if !ok {
		t.Fatal("RestoreFromCheckpoint() failed on a freshly produced blob")
	}
	if gotPositions != positions {
		t.Fatalf("positions = %+v, want %+v", gotPositions, positions)
	}

	var got bytes.Buffer
	got.Write(out[:res.BytesWritten])

	remainingInput := input[positions.InputBytesToSkip:]
	rest := make([]byte, 131072)
	for {
		r := restored.Inflate(remainingInput, rest)
		got.Write(rest[:r.BytesWritten])
		remainingInput = remainingInput[r.BytesConsumed:]
		if r.DataError {
			t.Fatalf("data error resuming from checkpoint: %v", restored.Err())
		}
		if restored.Finished() {
			break
		}
		if len(remainingInput) == 0 && r.BytesConsumed == 0 && r.BytesWritten == 0 {
			break
		}
	}

	if !bytes.Equal(got.Bytes(), want.Bytes()) {
		t.Fatalf("resumed output mismatch: got %d bytes, want %d bytes", got.Len(), want.Len())
	}
}

func TestCheckpointIntegrityBitFlip(t *testing.T) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	f := New()
	out := make([]byte, 4096)
	f.Inflate(input, out)

	blob, _, ok := f.Checkpoint()
	if !ok {
		t.Fatal("Checkpoint() failed")
	}

	for i := range blob {
		corrupt := append([]byte(nil), blob...)
		corrupt[i] ^= 0x01
		restored := New()
		if _, ok := restored.RestoreFromCheckpoint(corrupt); ok {
			t.Fatalf("RestoreFromCheckpoint accepted a blob with bit %d flipped", i*8)
		}
	}
}

func TestCheckpointNoneBeforeFirstWrite(t *testing.T) {
	f := New()
	if _, _, ok := f.Checkpoint(); ok {
		t.Fatal("Checkpoint() should report not-ok before any checkpointable moment")
	}
}

func TestCheckpointNoneWhenFinished(t *testing.T) {
	f := New()
	out := make([]byte, 16)
	f.Inflate([]byte{0x03, 0x00}, out)
	if !f.Finished() {
		t.Fatal("expected Finished()")
	}
	if _, _, ok := f.Checkpoint(); ok {
		t.Fatal("Checkpoint() should report not-ok once Finished")
	}
}

func TestCheckpointTruncatedBlobRejected(t *testing.T) {
	f := New()
	if _, ok := f.RestoreFromCheckpoint([]byte{1, 2, 3}); ok {
		t.Fatal("RestoreFromCheckpoint accepted a too-short blob")
	}
}
