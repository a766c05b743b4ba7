package deflate64

import "testing"

func TestBitBufferLoadAndSkip(t *testing.T) {
	var bb bitBuffer
	bb.attach([]byte{0xAC, 0x01}, 0, 0) // 0x01AC = 0b0000000110101100, read LSB-first

	bb.tryLoad16()
	if got, want := bb.availableBits(), uint(16); got != want {
		t.Fatalf("availableBits = %d, want %d", got, want)
	}

	if got, want := bb.peekBits()&1, uint32(0); got != want {
		t.Fatalf("bit 0 = %d, want %d (LSB of 0xAC is 0)", got, want)
	}

	bb.skipBits(4)
	if got, want := bb.availableBits(), uint(12); got != want {
		t.Fatalf("availableBits after skip = %d, want %d", got, want)
	}
	if got, want := bb.peekBits()&0xF, uint32(0xA); got != want {
		t.Fatalf("next nibble = %#x, want %#x", got, want)
	}
}

func TestBitBufferSuspendsOnShortInput(t *testing.T) {
	var bb bitBuffer
	bb.attach([]byte{0x01}, 0, 0)
	bb.tryLoad16()
	if got, want := bb.availableBits(), uint(8); got != want {
		t.Fatalf("availableBits = %d, want %d", got, want)
	}
	if bb.pos != 1 {
		t.Fatalf("pos = %d, want 1 (byte folded into reservoir even though short)", bb.pos)
	}
}

func TestBitBufferSkipToByteBoundary(t *testing.T) {
	var bb bitBuffer
	bb.attach([]byte{0xFF, 0xFF}, 0, 0)
	bb.tryLoad16()
	bb.skipBits(3)
	bb.skipToByteBoundary()
	if got, want := bb.availableBits(), uint(8); got != want {
		t.Fatalf("availableBits = %d, want %d", got, want)
	}
}

func TestBitBufferCopyTo(t *testing.T) {
	var bb bitBuffer
	bb.attach([]byte{1, 2, 3, 4, 5}, 0, 0)
	dst := make([]byte, 3)
	n := bb.copyTo(dst)
	if n != 3 || dst[0] != 1 || dst[1] != 2 || dst[2] != 3 {
		t.Fatalf("copyTo = %d, %v", n, dst)
	}
	if bb.pos != 3 {
		t.Fatalf("pos = %d, want 3", bb.pos)
	}

	dst2 := make([]byte, 10)
	n = bb.copyTo(dst2)
	if n != 2 {
		t.Fatalf("copyTo at end = %d, want 2", n)
	}
}

func TestBitBufferReservoirCarriesAcrossCalls(t *testing.T) {
	var bb bitBuffer
	bb.attach([]byte{0x01}, 0, 0)
	bb.tryLoad16()
	bb.skipBits(1)
	reservoir, nbits := bb.reservoir, bb.nbits

	var bb2 bitBuffer
	bb2.attach([]byte{0x00}, reservoir, nbits)
	bb2.tryLoad16()
	if got, want := bb2.availableBits(), uint(15); got != want {
		t.Fatalf("availableBits after reattach = %d, want %d", got, want)
	}
}
