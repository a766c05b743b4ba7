package deflate64

import "encoding/binary"

// checkpointVersion is written into every checkpoint blob and checked on
// restore, so a future incompatible layout change can be rejected instead
// of silently misread.
const checkpointVersion = 0x1001

// checkpointHeaderSize is the length of the fixed-size portion of a
// checkpoint blob, before the variable-length window history and the
// trailing 4-byte checksum.
const checkpointHeaderSize = 2 + 8 + 1 + 1 + 2 + maxLiteralTreeElements + maxDistTreeElements + 8 + 4

// CheckpointPositions reports where a checkpoint sits relative to the
// original input and output streams, so a caller resuming from the blob
// knows how much of each to skip.
type CheckpointPositions struct {
	// InputBytesToSkip is how many bytes of the original compressed input
	// the checkpoint has already consumed.
	InputBytesToSkip uint64
	// OutputBytesAlreadyReturned is how many decoded bytes have already
	// been drained to a caller and must not be produced again.
	OutputBytesAlreadyReturned uint64
}

// Checkpoint serializes the decoder's entire state into a self-contained,
// checksummed blob that RestoreFromCheckpoint can later use to resume
// decoding without reprocessing any input. It reports ok=false before the
// first checkpointable position has been reached (e.g. immediately after
// construction), once Errored, or once Finished.
//
// A checkpoint position lies between symbols (DecodeTop), between
// uncompressed-block byte copies, or between blocks — never mid-header or
// mid-symbol; those finer suspension points are resumable within a single
// process but are not serializable. If the decoder is parked at one of
// them, the blob describes the most recent checkpoint position it passed.
func (f *Inflater) Checkpoint() ([]byte, CheckpointPositions, bool) {
	if f.dataErr || f.checkpointInputBits == 0 {
		return nil, CheckpointPositions{}, false
	}
	if f.state == stateDone && f.win.availableBytes() == 0 {
		return nil, CheckpointPositions{}, false
	}

	bt := blockType(f.checkpointBFinalBlockType & 0x7F)

	var uncompressedRemaining uint16
	var litCodes [maxLiteralTreeElements]uint8
	var distCodes [maxDistTreeElements]uint8
	switch bt {
	case blockUncompressed:
		uncompressedRemaining = uint16(f.blockLength)
	case blockDynamic:
		copy(litCodes[:], f.litTree.codeLengthSlice())
		copy(distCodes[:], f.distTree.codeLengthSlice())
	}

	outputBytesWritten := f.totalOutputConsumed + uint64(f.win.availableBytes())
	bytesUnread := uint32(f.win.availableBytes())
	winA, winB := f.win.checkpointData(int64(outputBytesWritten))

	numBufferedBits := (8 - f.checkpointInputBits&7) & 7
	bufferedValue := f.checkpointBitBuffer & uint8(1<<numBufferedBits-1)

	buf := make([]byte, 0, checkpointHeaderSize+len(winA)+len(winB)+4)
	buf = binary.LittleEndian.AppendUint16(buf, checkpointVersion)
	buf = binary.LittleEndian.AppendUint64(buf, f.checkpointInputBits)
	buf = append(buf, bufferedValue)
	buf = append(buf, f.checkpointBFinalBlockType)
	buf = binary.LittleEndian.AppendUint16(buf, uncompressedRemaining)
	buf = append(buf, litCodes[:]...)
	buf = append(buf, distCodes[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, outputBytesWritten)
	buf = binary.LittleEndian.AppendUint32(buf, bytesUnread)
	buf = append(buf, winA...)
	buf = append(buf, winB...)

	checksum := fletcher32(buf)
	buf = binary.LittleEndian.AppendUint32(buf, checksum)

	positions := CheckpointPositions{
		InputBytesToSkip:           (f.checkpointInputBits + 7) / 8,
		OutputBytesAlreadyReturned: outputBytesWritten - uint64(bytesUnread),
	}
	return buf, positions, true
}

// RestoreFromCheckpoint replaces the decoder's entire state with the one
// serialized in data, as produced by a prior call to Checkpoint. It
// validates the checksum, version, and every field's internal consistency
// before committing anything; on any validation failure it reports
// ok=false and leaves the Inflater untouched.
func (f *Inflater) RestoreFromCheckpoint(data []byte) (CheckpointPositions, bool) {
	if len(data) < checkpointHeaderSize+4 {
		return CheckpointPositions{}, false
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if fletcher32(body) != binary.LittleEndian.Uint32(trailer) {
		return CheckpointPositions{}, false
	}

	cur := body
	take := func(n int) []byte {
		s := cur[:n]
		cur = cur[n:]
		return s
	}

	if binary.LittleEndian.Uint16(take(2)) != checkpointVersion {
		return CheckpointPositions{}, false
	}
	inputBits := binary.LittleEndian.Uint64(take(8))
	bufferedValue := take(1)[0]
	bfinalBlockType := take(1)[0]
	remainingUncompressed := binary.LittleEndian.Uint16(take(2))
	litCodes := append([]uint8(nil), take(maxLiteralTreeElements)...)
	distCodes := append([]uint8(nil), take(maxDistTreeElements)...)
	outputBytesWritten := binary.LittleEndian.Uint64(take(8))
	outputBytesUnread := binary.LittleEndian.Uint32(take(4))
	windowData := cur

	if bfinalBlockType&0x7F > uint8(blockDynamic) {
		return CheckpointPositions{}, false
	}
	bt := blockType(bfinalBlockType & 0x7F)
	bfinal := bfinalBlockType&0x80 != 0

	numBufferedBits := (8 - inputBits&7) & 7
	bufferedValue &= uint8(1<<numBufferedBits - 1)

	historyNeeded := int(outputBytesWritten)
	if historyNeeded > maxHistoryDistance {
		historyNeeded = maxHistoryDistance
	}
	wantWindowLen := historyNeeded
	if int(outputBytesUnread) > wantWindowLen {
		wantWindowLen = int(outputBytesUnread)
	}
	if len(windowData) != wantWindowLen || len(windowData) > windowSize {
		return CheckpointPositions{}, false
	}

	outputAlreadyReturned := outputBytesWritten - uint64(outputBytesUnread)
	if f.haveSizeLimit && outputAlreadyReturned > f.uncompressedSizeLimit {
		return CheckpointPositions{}, false
	}

	var litTree, distTree huffmanTree
	switch bt {
	case blockDynamic:
		for _, v := range litCodes {
			if v > maxCodeLength {
				return CheckpointPositions{}, false
			}
		}
		for _, v := range distCodes {
			if v > maxCodeLength {
				return CheckpointPositions{}, false
			}
		}
		if litTree.build(litCodes) != ErrNone || distTree.build(distCodes) != ErrNone {
			return CheckpointPositions{}, false
		}
	case blockUncompressed:
		if remainingUncompressed > 0 && numBufferedBits != 0 {
			return CheckpointPositions{}, false
		}
	}

	f.reservoir = uint32(bufferedValue)
	f.nbits = uint(numBufferedBits)
	f.checkpointInputBits = inputBits
	f.checkpointBitBuffer = bufferedValue
	f.checkpointBFinalBlockType = bfinalBlockType
	f.totalInputLoaded = (inputBits + 7) / 8
	f.totalOutputConsumed = outputAlreadyReturned

	f.win = outputWindow{}
	f.win.restoreFromCheckpoint(windowData, int(outputBytesUnread))

	f.bfinal = bfinal
	f.blockType = bt
	f.dataErr = false
	f.err = nil

	switch bt {
	case blockUncompressed:
		f.blockLength = int(remainingUncompressed)
		f.haveLen = false
		switch {
		case remainingUncompressed > 0:
			f.state = stateDecodingUncompressed
		case !bfinal:
			f.state = stateReadingBFinal
		default:
			f.state = stateDone
		}
	case blockStatic:
		f.litTree.build(staticLiteralLengthTreeLengths())
		f.distTree.build(staticDistanceTreeLengths())
		f.state = stateDecodeTop
	case blockDynamic:
		f.litTree = litTree
		f.distTree = distTree
		f.state = stateDecodeTop
	}

	return CheckpointPositions{
		InputBytesToSkip:           (inputBits + 7) / 8,
		OutputBytesAlreadyReturned: outputAlreadyReturned,
	}, true
}

// fletcher32 is the classic two-accumulator checksum used to guard
// checkpoint blobs against corruption or misuse (e.g. restoring with a
// truncated or concatenated buffer).
func fletcher32(data []byte) uint32 {
	var a, b uint32
	for _, x := range data {
		a += uint32(x)
		b += a
	}
	return b<<16 | a&0xFFFF
}
