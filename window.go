package deflate64

// With Deflate64 a match can be up to 65538 bytes long at a distance of up
// to 65536 bytes. windowSize is a power of two so that (cursor +/- n) &
// windowMask always wraps correctly. It is 2 bytes smaller than
// maxMatchDistance+maxMatchLength (131074), yet a single match copy still
// never corrupts its own source: the per-byte forward copy reads each source
// byte before the write cursor can wrap around onto it.
const (
	windowSize = 131072
	windowMask = windowSize - 1

	// maxHistoryDistance bounds how much of the window a checkpoint needs
	// to carry to make every legal back-reference resolvable after restore.
	maxHistoryDistance = 65538
)

// outputWindow is a fixed circular buffer for decompressed output. Literals
// and length/distance back-references are written into it; callers drain
// decoded bytes out of it in FIFO order.
type outputWindow struct {
	buf       [windowSize]byte
	end       int // next write position, 0..windowSize-1
	bytesUsed int // decoded bytes not yet drained
}

// write appends a single literal byte. The caller must have checked
// freeBytes() > 0.
func (w *outputWindow) write(b byte) {
	w.buf[w.end] = b
	w.end = (w.end + 1) & windowMask
	w.bytesUsed++
}

// writeLengthDistance copies length bytes from distance bytes before the
// current write cursor forward to the cursor, one byte at a time. The
// per-byte forward copy is required, not an optimization: when
// distance < length this produces the standard run-length behavior (e.g.
// distance 1 replicates the preceding byte length times). The caller must
// have checked length <= freeBytes() and 1 <= distance <= maxMatchDistance.
func (w *outputWindow) writeLengthDistance(length, distance int) {
	w.bytesUsed += length

	from := (w.end - distance) & windowMask
	to := w.end
	for i := 0; i < length; i++ {
		w.buf[to] = w.buf[from]
		to = (to + 1) & windowMask
		from = (from + 1) & windowMask
	}
	w.end = to
}

// copyFrom copies up to min(length, freeBytes, input.availableBytes) raw
// bytes from the input byte stream directly into the window, for
// uncompressed blocks. It returns the number of bytes actually copied.
func (w *outputWindow) copyFrom(in *bitBuffer, length int) int {
	if free := w.freeBytes(); length > free {
		length = free
	}
	if avail := in.availableBytes(); length > avail {
		length = avail
	}

	tailLen := windowSize - w.end
	var copied int
	if length > tailLen {
		copied = in.copyTo(w.buf[w.end:][:tailLen])
		if copied == tailLen {
			copied += in.copyTo(w.buf[:length-tailLen])
		}
	} else {
		copied = in.copyTo(w.buf[w.end:][:length])
	}

	w.end = (w.end + copied) & windowMask
	w.bytesUsed += copied
	return copied
}

// freeBytes reports how much room remains for new decoded bytes.
func (w *outputWindow) freeBytes() int {
	return windowSize - w.bytesUsed
}

// availableBytes reports how many decoded bytes are waiting to be drained.
func (w *outputWindow) availableBytes() int {
	return w.bytesUsed
}

// drainTo copies up to len(dst) decoded bytes out of the window into dst,
// oldest-first, and reports how many bytes were copied.
func (w *outputWindow) drainTo(dst []byte) int {
	n := len(dst)
	if n > w.bytesUsed {
		n = w.bytesUsed
	}
	if n == 0 {
		return 0
	}

	start := (w.end - w.bytesUsed) & windowMask
	tailLen := windowSize - start
	if n > tailLen {
		copy(dst[:tailLen], w.buf[start:])
		copy(dst[tailLen:n], w.buf[:n-tailLen])
	} else {
		copy(dst[:n], w.buf[start:start+n])
	}

	w.bytesUsed -= n
	return n
}

// checkpointData returns the window bytes a checkpoint must retain: at
// least enough history for any legal back-reference after totalWritten
// bytes, plus whatever is still undrained. The result may be split across
// the wrap point, in which case both slices are non-empty and must be
// concatenated in order.
func (w *outputWindow) checkpointData(totalWritten int64) (a, b []byte) {
	historyNeeded := int(totalWritten)
	if historyNeeded > maxHistoryDistance {
		historyNeeded = maxHistoryDistance
	}
	dataLen := historyNeeded
	if w.bytesUsed > dataLen {
		dataLen = w.bytesUsed
	}

	start := (w.end - dataLen) & windowMask
	if dataLen <= windowSize-start {
		return w.buf[start : start+dataLen], nil
	}
	return w.buf[start:], w.buf[:w.end]
}

// restoreFromCheckpoint installs data as the most recent window history
// (data becomes the bytes immediately preceding the write cursor) and marks
// bytesUsed of it as not yet drained.
func (w *outputWindow) restoreFromCheckpoint(data []byte, bytesUsed int) {
	copy(w.buf[:len(data)], data)
	w.end = len(data) & windowMask
	w.bytesUsed = bytesUsed
}
