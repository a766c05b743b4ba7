package deflate64

// inflateState names every suspension point the state machine can be
// parked at between calls to Inflate. Three of spec's named sub-states
// (ReadingNumLitCodes/ReadingNumDistCodes/ReadingNumCodeLengthCodes) are
// folded into one Go state, stateReadingDynamicHeaderCounts: all three
// fields together are 14 bits, always fit in a single bit-buffer load, and
// nothing is consumed from the reservoir until all three have been read —
// so collapsing them loses no suspension granularity, and mirrors the
// teacher's own combined `for f.nb < 5+5+4 { moreBits() }` read in
// readHuffman.
type inflateState int

const (
	stateReadingBFinal inflateState = iota
	stateReadingBType
	stateReadingUncompressedHeader
	stateDecodingUncompressed
	stateReadingDynamicHeaderCounts
	stateReadingCodeLengthCodes
	stateReadingTreeCodesBefore
	stateReadingTreeCodesAfter
	stateDecodeTop
	stateHaveInitialLength
	stateHaveFullLength
	stateHaveDistCode
	stateDone
)

// blockType is encoded directly into the checkpoint's bfinal_block_type
// byte (low 7 bits), so its numeric values are part of the wire format.
type blockType uint8

const (
	blockUncompressed blockType = 0
	blockStatic       blockType = 1
	blockDynamic      blockType = 2
)

// dynamicHeader is scratch state for parsing a dynamic block's Huffman
// header (RFC 1951 §3.2.7). It is reset whenever a dynamic block begins
// and exists so a suspension between decoding a run-length symbol (16/17/18)
// and reading its extra bits, or mid-way through the combined length
// vector, is resumable without re-decoding anything already consumed.
type dynamicHeader struct {
	nlit, ndist, nclen int

	clLengths [numCodeLengthCodes]uint8
	clIndex   int
	clTree    huffmanTree

	combined      [maxLiteralTreeElements + maxDistTreeElements]uint8
	combinedIdx   int
	combinedTotal int
	lastLen       uint8

	// pendingSymbol is the run-length code (16, 17 or 18) whose extra
	// bits have not yet been read, or -1 if none is pending.
	pendingSymbol int
}

// Inflater is an incremental Deflate64 decompressor. It consumes compressed
// bytes handed to it in arbitrarily small chunks across calls to Inflate,
// and writes decoded bytes into a caller-supplied buffer of arbitrary size.
// The zero value is not usable; construct one with New or
// NewWithUncompressedSize.
type Inflater struct {
	state     inflateState
	blockType blockType
	bfinal    bool

	// Uncompressed block state.
	blockLength int // remaining bytes in the current uncompressed block
	haveLen     bool
	pendingLen  uint16

	litTree  huffmanTree
	distTree huffmanTree
	dyn      dynamicHeader

	// Length/distance symbol decode scratch.
	pendingLengthExtra uint
	pendingDistExtra   uint
	length             int
	distance           int

	win outputWindow

	// Persisted bit reservoir, carried across Inflate calls.
	reservoir uint32
	nbits     uint

	totalInputLoaded    uint64
	totalOutputConsumed uint64
	inputFinished       bool

	haveSizeLimit         bool
	uncompressedSizeLimit uint64

	dataErr bool
	err     error

	checkpointInputBits       uint64
	checkpointBitBuffer       uint8
	checkpointBFinalBlockType uint8
}

// New returns an Inflater ready to decode a Deflate64 bitstream from its
// first bit, with no limit on the total uncompressed size.
func New() *Inflater {
	return &Inflater{state: stateReadingBFinal, dyn: dynamicHeader{pendingSymbol: -1}}
}

// NewWithUncompressedSize is like New, but rejects a stream that would
// produce more than n bytes of output with ErrExceedsUncompressedSize
// instead of decoding past it. A stream producing fewer than n bytes still
// reaches Finished normally; n is only an upper bound.
func NewWithUncompressedSize(n uint64) *Inflater {
	f := New()
	f.haveSizeLimit = true
	f.uncompressedSizeLimit = n
	return f
}

// Result reports the outcome of a single Inflate call.
type Result struct {
	BytesConsumed int
	BytesWritten  int
	DataError     bool
}

// Finished reports whether no more output is forthcoming: the final
// block's end-of-block marker has been consumed and the window has
// nothing left to drain.
func (f *Inflater) Finished() bool {
	return f.state == stateDone && f.win.availableBytes() == 0
}

// InputFinished reports whether the most recent Inflate call consumed
// everything it was given and is now blocked purely on the absence of
// further input (as opposed to a full output buffer or an error). It does
// not imply the logical stream is complete — see Finished for that.
func (f *Inflater) InputFinished() bool {
	return f.inputFinished
}

// Errored reports whether the sticky data_error condition has been set.
// Once true, it remains true and every subsequent Inflate call returns
// without doing any further work.
func (f *Inflater) Errored() bool {
	return f.dataErr
}

// Err returns the error that set Errored, or nil.
func (f *Inflater) Err() error {
	return f.err
}

func (f *Inflater) fail(kind ErrKind) {
	f.dataErr = true
	f.err = kindError{kind}
}

// wouldExceedLimit reports whether writing n more decoded bytes would push
// total output past the configured uncompressed size limit, if any.
func (f *Inflater) wouldExceedLimit(n int) bool {
	if !f.haveSizeLimit {
		return false
	}
	total := f.totalOutputConsumed + uint64(f.win.availableBytes()) + uint64(n)
	return total > f.uncompressedSizeLimit
}

// recordCheckpoint updates the checkpoint bookkeeping fields after a write
// that leaves the decoder in a checkpointable state: DecodeTop,
// DecodingUncompressed (with bytes still remaining), or an inter-block
// state (ReadingBFinal/Done), the latter passed as endOfBlock.
func (f *Inflater) recordCheckpoint(bb *bitBuffer, endOfBlock bool) {
	f.checkpointInputBits = (f.totalInputLoaded+uint64(bb.pos))*8 - uint64(bb.availableBits())
	f.checkpointBitBuffer = uint8(bb.peekBits())

	var bfinalFlag uint8
	if f.bfinal {
		bfinalFlag = 0x80
	}
	if endOfBlock {
		f.checkpointBFinalBlockType = uint8(blockUncompressed) | bfinalFlag
	} else {
		f.checkpointBFinalBlockType = uint8(f.blockType) | bfinalFlag
	}
}
