package deflate64

// Inflate feeds input to the decoder and drains decoded bytes into output,
// returning as soon as either is exhausted, the stream finishes, or a data
// error is hit. When output fills up with nothing left undelivered in the
// window, it decodes one more round into the window before returning, so an
// exactly-sized output buffer sees the end of the stream in the same call.
// It never blocks: a stream that needs more input than input contains
// simply suspends, to be resumed by a later call with more bytes.
//
// Once Errored reports true, every subsequent call returns a zero Result
// with DataError set, touching neither slice. Once Finished reports true,
// calls return a zero Result and are otherwise no-ops.
func (f *Inflater) Inflate(input, output []byte) Result {
	if f.dataErr {
		return Result{DataError: true}
	}
	if f.state == stateDone && f.win.availableBytes() == 0 {
		return Result{}
	}

	var bb bitBuffer
	bb.attach(input, f.reservoir, f.nbits)

	outPos, blockedOnInput := f.runLoop(&bb, output)
	f.inputFinished = blockedOnInput

	consumed := bb.pos
	f.totalInputLoaded += uint64(consumed)
	f.reservoir = bb.reservoir
	f.nbits = bb.nbits

	return Result{BytesConsumed: consumed, BytesWritten: outPos, DataError: f.dataErr}
}

// runLoop alternates between decoding into the window and draining the
// window into output, stopping when no further progress can be made this
// call. Decoding only proceeds while the window has room for a worst-case
// symbol (maxMatchLength bytes): every write performed by step is therefore
// guaranteed to fit without ever needing to check mid-write.
func (f *Inflater) runLoop(bb *bitBuffer, output []byte) (outPos int, blockedOnInput bool) {
	for {
		suspended := false
		for f.state != stateDone && f.win.freeBytes() >= maxMatchLength {
			if !f.step(bb) {
				suspended = true
				break
			}
		}

		if outPos < len(output) {
			// Account for drained bytes right away: later steps in this same
			// call check back-references and the size limit against
			// totalOutputConsumed plus what is still in the window.
			n := f.win.drainTo(output[outPos:])
			outPos += n
			f.totalOutputConsumed += uint64(n)
		}

		if f.dataErr {
			return outPos, false
		}
		if f.state == stateDone && f.win.availableBytes() == 0 {
			return outPos, true
		}
		if outPos >= len(output) {
			// Output is full. If everything decoded so far has been
			// delivered, decode once more into the empty window, so that a
			// stream whose output exactly fills the buffer reaches Done (and
			// Finished) in this call.
			if suspended || f.state == stateDone || f.win.availableBytes() != 0 {
				return outPos, false
			}
			continue
		}
		if suspended {
			return outPos, true
		}
	}
}

// step advances the state machine by one unit of work: a bit-field read, a
// symbol decode, or a write. The code-length-code and tree-code states may
// read several fields or symbols in one call. It returns false when it
// needs more input bits than bb currently has buffered, keeping in the
// Inflater whatever progress it made before running out (fields already
// read stay read); the caller must check Errored to distinguish that from
// having hit a data error.
func (f *Inflater) step(bb *bitBuffer) bool {
	switch f.state {
	case stateReadingBFinal:
		bb.tryLoad16()
		if bb.availableBits() < 1 {
			return false
		}
		f.bfinal = bb.peekBits()&1 != 0
		bb.skipBits(1)
		f.state = stateReadingBType
		return true

	case stateReadingBType:
		bb.tryLoad16()
		if bb.availableBits() < 2 {
			return false
		}
		t := bb.peekBits() & 3
		bb.skipBits(2)
		switch t {
		case 0:
			f.blockType = blockUncompressed
			f.haveLen = false
			f.state = stateReadingUncompressedHeader
		case 1:
			f.blockType = blockStatic
			f.litTree.build(staticLiteralLengthTreeLengths())
			f.distTree.build(staticDistanceTreeLengths())
			f.state = stateDecodeTop
		case 2:
			f.blockType = blockDynamic
			f.dyn = dynamicHeader{pendingSymbol: -1}
			f.state = stateReadingDynamicHeaderCounts
		default:
			f.fail(ErrInvalidBlockType)
			return false
		}
		return true

	case stateReadingUncompressedHeader:
		return f.stepUncompressedHeader(bb)

	case stateDecodingUncompressed:
		return f.stepUncompressedBody(bb)

	case stateReadingDynamicHeaderCounts:
		return f.stepDynamicHeaderCounts(bb)

	case stateReadingCodeLengthCodes:
		return f.stepCodeLengthCodes(bb)

	case stateReadingTreeCodesBefore:
		return f.stepTreeCodesBefore(bb)

	case stateReadingTreeCodesAfter:
		return f.stepTreeCodesAfter(bb)

	case stateDecodeTop:
		return f.stepDecodeTop(bb)

	case stateHaveInitialLength:
		return f.stepHaveInitialLength(bb)

	case stateHaveFullLength:
		return f.stepHaveFullLength(bb)

	case stateHaveDistCode:
		return f.stepHaveDistCode(bb)

	default:
		f.dataErr = true
		f.err = InternalError("inflate: unhandled state")
		return false
	}
}

func (f *Inflater) stepUncompressedHeader(bb *bitBuffer) bool {
	bb.skipToByteBoundary()

	if !f.haveLen {
		bb.tryLoad16()
		if bb.availableBits() < 16 {
			return false
		}
		f.pendingLen = uint16(bb.peekBits())
		bb.skipBits(16)
		f.haveLen = true
	}

	bb.tryLoad16()
	if bb.availableBits() < 16 {
		return false
	}
	nlen := uint16(bb.peekBits())
	bb.skipBits(16)
	f.haveLen = false

	if f.pendingLen != ^nlen {
		f.fail(ErrInvalidBlockLength)
		return false
	}

	f.blockLength = int(f.pendingLen)
	if f.blockLength == 0 {
		f.recordCheckpoint(bb, true)
		if f.bfinal {
			f.state = stateDone
		} else {
			f.state = stateReadingBFinal
		}
	} else {
		f.state = stateDecodingUncompressed
	}
	return true
}

func (f *Inflater) stepUncompressedBody(bb *bitBuffer) bool {
	toCopy := f.blockLength
	if f.haveSizeLimit {
		total := f.totalOutputConsumed + uint64(f.win.availableBytes())
		if total >= f.uncompressedSizeLimit {
			f.fail(ErrExceedsUncompressedSize)
			return false
		}
		if allowed := f.uncompressedSizeLimit - total; uint64(toCopy) > allowed {
			toCopy = int(allowed)
		}
	}

	copied := f.win.copyFrom(bb, toCopy)
	if copied == 0 {
		return false
	}
	f.blockLength -= copied

	if f.blockLength == 0 {
		f.recordCheckpoint(bb, true)
		if f.bfinal {
			f.state = stateDone
		} else {
			f.state = stateReadingBFinal
		}
	} else {
		f.recordCheckpoint(bb, false)
	}
	return true
}

func (f *Inflater) stepDynamicHeaderCounts(bb *bitBuffer) bool {
	bb.tryLoad16()
	if bb.availableBits() < 14 {
		return false
	}

	hlit := int(bb.peekBits()&0x1F) + 257
	bb.skipBits(5)
	hdist := int(bb.peekBits()&0x1F) + 1
	bb.skipBits(5)
	hclen := int(bb.peekBits()&0xF) + 4
	bb.skipBits(4)

	if hlit > maxLiteralTreeElements || hdist > maxDistTreeElements {
		f.fail(ErrBadDynamicHeader)
		return false
	}

	f.dyn.nlit = hlit
	f.dyn.ndist = hdist
	f.dyn.nclen = hclen
	f.dyn.clIndex = 0
	f.state = stateReadingCodeLengthCodes
	return true
}

func (f *Inflater) stepCodeLengthCodes(bb *bitBuffer) bool {
	for f.dyn.clIndex < f.dyn.nclen {
		bb.tryLoad16()
		if bb.availableBits() < 3 {
			return false
		}
		f.dyn.clLengths[codeOrder[f.dyn.clIndex]] = uint8(bb.peekBits() & 0x7)
		bb.skipBits(3)
		f.dyn.clIndex++
	}
	for i := f.dyn.nclen; i < numCodeLengthCodes; i++ {
		f.dyn.clLengths[codeOrder[i]] = 0
	}

	if f.dyn.clTree.build(f.dyn.clLengths[:]) != ErrNone {
		f.fail(ErrInvalidHuffmanData)
		return false
	}

	f.dyn.combinedIdx = 0
	f.dyn.combinedTotal = f.dyn.nlit + f.dyn.ndist
	f.dyn.pendingSymbol = -1
	f.state = stateReadingTreeCodesBefore
	return true
}

func (f *Inflater) stepTreeCodesBefore(bb *bitBuffer) bool {
	for f.dyn.combinedIdx < f.dyn.combinedTotal {
		sym, err, ok := f.dyn.clTree.nextSymbol(bb)
		if err != nil {
			f.fail(ErrInvalidHuffmanData)
			return false
		}
		if !ok {
			return false
		}
		if sym >= 16 {
			f.dyn.pendingSymbol = int(sym)
			f.state = stateReadingTreeCodesAfter
			return true
		}
		f.dyn.combined[f.dyn.combinedIdx] = uint8(sym)
		f.dyn.lastLen = uint8(sym)
		f.dyn.combinedIdx++
	}
	f.finishDynamicHeader()
	return true
}

func (f *Inflater) stepTreeCodesAfter(bb *bitBuffer) bool {
	var rep int
	var nb uint
	var val uint8

	switch f.dyn.pendingSymbol {
	case 16:
		if f.dyn.combinedIdx == 0 {
			f.fail(ErrInvalidHuffmanData)
			return false
		}
		rep, nb, val = 3, 2, f.dyn.lastLen
	case 17:
		rep, nb, val = 3, 3, 0
	case 18:
		rep, nb, val = 11, 7, 0
	default:
		f.fail(ErrInvalidHuffmanData)
		return false
	}

	bb.tryLoad16()
	if bb.availableBits() < nb {
		return false
	}
	rep += int(bb.peekBits() & (1<<nb - 1))
	bb.skipBits(nb)

	if f.dyn.combinedIdx+rep > f.dyn.combinedTotal {
		f.fail(ErrInvalidHuffmanData)
		return false
	}
	for i := 0; i < rep; i++ {
		f.dyn.combined[f.dyn.combinedIdx] = val
		f.dyn.combinedIdx++
	}
	f.dyn.pendingSymbol = -1

	if f.dyn.combinedIdx >= f.dyn.combinedTotal {
		f.finishDynamicHeader()
	} else {
		f.state = stateReadingTreeCodesBefore
	}
	return true
}

func (f *Inflater) finishDynamicHeader() {
	var litLens [maxLiteralTreeElements]uint8
	var distLens [maxDistTreeElements]uint8
	copy(litLens[:], f.dyn.combined[:f.dyn.nlit])
	copy(distLens[:], f.dyn.combined[f.dyn.nlit:f.dyn.nlit+f.dyn.ndist])

	if f.litTree.build(litLens[:]) != ErrNone || f.distTree.build(distLens[:]) != ErrNone {
		f.fail(ErrInvalidHuffmanData)
		return
	}
	f.state = stateDecodeTop
}

func (f *Inflater) stepDecodeTop(bb *bitBuffer) bool {
	sym, err, ok := f.litTree.nextSymbol(bb)
	if err != nil {
		f.fail(ErrInvalidHuffmanData)
		return false
	}
	if !ok {
		return false
	}

	switch {
	case sym < 256:
		if f.wouldExceedLimit(1) {
			f.fail(ErrExceedsUncompressedSize)
			return false
		}
		f.win.write(byte(sym))
		f.recordCheckpoint(bb, false)
		return true

	case sym == endOfBlockCode:
		f.recordCheckpoint(bb, true)
		if f.bfinal {
			f.state = stateDone
		} else {
			f.state = stateReadingBFinal
		}
		return true

	case int(sym)-257 < len(lengthBase):
		idx := int(sym) - 257
		f.length = lengthBase[idx]
		if extra := lengthExtraBits[idx]; extra == 0 {
			f.state = stateHaveFullLength
		} else {
			f.pendingLengthExtra = extra
			f.state = stateHaveInitialLength
		}
		return true

	default:
		f.fail(ErrInvalidHuffmanData)
		return false
	}
}

func (f *Inflater) stepHaveInitialLength(bb *bitBuffer) bool {
	extra := f.pendingLengthExtra
	bb.tryLoad16()
	if bb.availableBits() < extra {
		return false
	}
	f.length += int(bb.peekBits() & (1<<extra - 1))
	bb.skipBits(extra)
	f.state = stateHaveFullLength
	return true
}

func (f *Inflater) stepHaveFullLength(bb *bitBuffer) bool {
	sym, err, ok := f.distTree.nextSymbol(bb)
	if err != nil {
		f.fail(ErrInvalidHuffmanData)
		return false
	}
	if !ok {
		return false
	}
	if int(sym) >= len(distBase) {
		f.fail(ErrInvalidDistanceOrLength)
		return false
	}
	f.distance = distBase[sym]
	f.pendingDistExtra = distExtraBits[sym]
	f.state = stateHaveDistCode
	return true
}

func (f *Inflater) stepHaveDistCode(bb *bitBuffer) bool {
	if extra := f.pendingDistExtra; extra > 0 {
		bb.tryLoad16()
		if bb.availableBits() < extra {
			return false
		}
		f.distance += int(bb.peekBits() & (1<<extra - 1))
		bb.skipBits(extra)
		f.pendingDistExtra = 0
	}

	if f.distance < 1 || f.distance > maxMatchDistance || f.length > maxMatchLength {
		f.fail(ErrInvalidDistanceOrLength)
		return false
	}
	produced := f.totalOutputConsumed + uint64(f.win.availableBytes())
	if uint64(f.distance) > produced {
		f.fail(ErrInvalidDistanceOrLength)
		return false
	}
	if f.wouldExceedLimit(f.length) {
		f.fail(ErrExceedsUncompressedSize)
		return false
	}

	f.win.writeLengthDistance(f.length, f.distance)
	f.recordCheckpoint(bb, false)
	f.state = stateDecodeTop
	return true
}
