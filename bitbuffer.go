package deflate64

// bitBuffer is the bit-level cursor over a single call's input slice. It is
// re-created at the top of every Inflate call from the Inflater's persisted
// reservoir (see Inflater.reservoir / Inflater.nbits) rather than retaining
// any bytes beyond the slice handed to it for that call — this is what lets
// callers feed input in arbitrarily small, non-contiguous chunks without
// deflate64 copying unconsumed bytes back into an internal buffer.
//
// Bits are consumed in DEFLATE order: the least-significant bit of each
// input byte first. Multi-bit fields (block headers, extra-bit lengths and
// distances) are therefore little-endian with respect to bit position
// within the reservoir: reservoir bit 0 is the next bit the stream emits.
//
// Invariant: nbits is always in [0, 32], and the bits above position nbits
// in reservoir are zero. Callers that want the buffered bits alone
// (peekBits) may rely on that without an explicit mask.
type bitBuffer struct {
	input []byte // remaining bytes for this call, not yet folded into reservoir
	pos   int    // bytes of input consumed into reservoir so far this call

	reservoir uint32 // cached bits, LSB = next bit to be consumed
	nbits     uint   // number of valid bits in reservoir, 0..32
}

// attach begins a call with the given input slice and the reservoir carried
// over from the previous suspension point.
func (b *bitBuffer) attach(input []byte, reservoir uint32, nbits uint) {
	b.input = input
	b.pos = 0
	b.reservoir = reservoir
	b.nbits = nbits
}

// tryLoad16 ensures at least 16 bits are buffered if the remaining input can
// supply them, and returns the reservoir value (valid low bits first). It
// never blocks and never errors: if input runs out early, the caller sees
// fewer than 16 valid bits via availableBits and must treat that as
// "need more input".
func (b *bitBuffer) tryLoad16() uint32 {
	for b.nbits < 16 && b.pos < len(b.input) {
		b.reservoir |= uint32(b.input[b.pos]) << b.nbits
		b.pos++
		b.nbits += 8
	}
	return b.reservoir
}

// load16AssumeInput is the unchecked counterpart of tryLoad16, for a caller
// that has already verified enough bytes remain in the slice to guarantee
// 16 bits are available. Its only caller is nextSymbolAssumeInput.
func (b *bitBuffer) load16AssumeInput() uint32 {
	for b.nbits < 16 {
		b.reservoir |= uint32(b.input[b.pos]) << b.nbits
		b.pos++
		b.nbits += 8
	}
	return b.reservoir
}

// availableBits reports how many valid bits remain in the reservoir.
func (b *bitBuffer) availableBits() uint {
	return b.nbits
}

// peekBits returns the reservoir masked to its valid bit count. Because the
// reservoir's unused high bits are always zero, this is just the reservoir
// value itself; it exists as a named operation because callers (checkpoint
// serialization in particular) care about it as a distinct concept from the
// raw field.
func (b *bitBuffer) peekBits() uint32 {
	return b.reservoir
}

// skipBits discards the low n bits of the reservoir. 1 <= n <= 16 in
// practice (the widest single field deflate64 ever consumes in one step).
func (b *bitBuffer) skipBits(n uint) {
	b.reservoir >>= n
	b.nbits -= n
}

// skipToByteBoundary discards whatever partial bits remain so the next read
// starts at a byte boundary, as required before an uncompressed block.
func (b *bitBuffer) skipToByteBoundary() {
	extra := b.nbits % 8
	if extra != 0 {
		b.skipBits(extra)
	}
}

// availableBytes reports the number of whole bytes still unread in the
// current call's slice, not counting anything already folded into the bit
// reservoir.
func (b *bitBuffer) availableBytes() int {
	return len(b.input) - b.pos
}

// copyTo copies whole bytes directly out of the underlying slice into dst,
// bypassing the bit reservoir. The caller must be byte-aligned (nbits == 0)
// before calling this — it is used only for uncompressed block bodies,
// which always begin on a byte boundary.
func (b *bitBuffer) copyTo(dst []byte) int {
	n := len(dst)
	if avail := b.availableBytes(); n > avail {
		n = avail
	}
	copy(dst, b.input[b.pos:b.pos+n])
	b.pos += n
	return n
}
