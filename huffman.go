package deflate64

import "math/bits"

// The data structure for decoding Huffman tables packs each table/node
// entry into a single int16 with two encodings, matching the layout used
// throughout the deflate64 reference implementation this package ports:
//
//   - leaf:    a non-negative value. Low tableSymbolBits bits hold the
//     symbol (0..287); the remaining bits hold the code length (1..16).
//   - pointer: a strictly negative value. Its magnitude is an even index
//     into the node pool: the left child lives at that index, the right
//     child at index+1.
//
// Zero means "not yet assigned" during construction; it can never be a
// valid leaf or pointer (leaves are non-negative but the all-zero leaf
// would mean symbol 0 at length 0, which build() never emits, and
// pointers are always negative).
const (
	tableBits       = 9
	tableSize       = 1 << tableBits
	tableMask       = tableSize - 1
	tableSymbolBits = 10
	symbolMask      = 1<<tableSymbolBits - 1

	maxCodeLength          = 16
	maxLiteralTreeElements = 288
	maxDistTreeElements    = 32
	numCodeLengthCodes     = 19
	endOfBlockCode         = 256

	// The node pool is sized so that the worst-case length vector for any
	// of the three alphabets this package builds trees for (19, 32, 288
	// symbols) cannot overflow it.
	maxNodes = maxLiteralTreeElements * 4
)

func pack(symbol uint16, codeLen uint8) int16 {
	return int16(symbol) | int16(codeLen)<<tableSymbolBits
}

func unpack(entry int16) (symbol uint16, codeLen int) {
	return uint16(entry) & symbolMask, int(entry) >> tableSymbolBits
}

// huffmanTree is a canonical Huffman decoder built from a vector of code
// lengths. Trees are rebuilt at every dynamic block header and reused for
// the block body; the static trees are rebuilt from the fixed length tables
// at the start of every static block.
type huffmanTree struct {
	table [tableSize]int16
	nodes [maxNodes]int16

	codeLengths    [maxLiteralTreeElements]uint8
	numCodeLengths int
}

// reset clears a tree for reuse in place, avoiding an allocation per
// dynamic block header.
func (h *huffmanTree) reset() {
	h.table = [tableSize]int16{}
	h.nodes = [maxNodes]int16{}
	h.numCodeLengths = 0
}

// codeLengthSlice returns the code lengths used to build this tree, for
// checkpoint serialization.
func (h *huffmanTree) codeLengthSlice() []uint8 {
	return h.codeLengths[:h.numCodeLengths]
}

// build constructs the canonical Huffman code table from lengths (a vector
// of size numCodeLengthCodes, maxDistTreeElements, or maxLiteralTreeElements;
// a zero entry means the symbol is absent). It reports ErrInvalidHuffmanData
// if the length vector does not describe a valid prefix code.
func (h *huffmanTree) build(lengths []uint8) ErrKind {
	h.reset()
	h.numCodeLengths = len(lengths)
	copy(h.codeLengths[:], lengths)

	codes := huffmanCanonicalCodes(lengths)

	avail := int16(1) // skip 0: -0 == 0, indistinguishable from "unassigned"

	for ch, length := range lengths {
		if length == 0 {
			continue
		}
		start := int(codes[ch])

		if length <= tableBits {
			// A code shorter than the table width is replicated into
			// every table slot whose low `length` bits match it.
			increment := 1 << length
			if start >= increment {
				return ErrInvalidHuffmanData
			}
			locs := 1 << (tableBits - length)
			for i := 0; i < locs; i++ {
				if h.table[start] != 0 {
					return ErrInvalidHuffmanData // slot already claimed by another code
				}
				h.table[start] = pack(uint16(ch), length)
				start += increment
			}
			continue
		}

		// Codes longer than the table width descend into the node pool,
		// allocating internal nodes on demand. Each allocation claims two
		// consecutive slots (left at index, right at index+1) and is
		// referenced from its parent by a negative index.
		overflowBits := int(length) - tableBits
		codeBitMask := 1 << tableBits
		index := start & tableMask
		inTable := true

		for {
			var value *int16
			if inTable {
				value = &h.table[index]
			} else {
				value = &h.nodes[index]
			}

			if *value == 0 {
				*value = -(avail * 2)
				avail++
			}
			if *value > 0 {
				return ErrInvalidHuffmanData // descent would overwrite a leaf
			}

			leftIndex := int(-*value)
			bit := 0
			if start&codeBitMask != 0 {
				bit = 1
			}
			index = leftIndex + bit
			inTable = false

			if index >= len(h.nodes) {
				return ErrInvalidHuffmanData
			}

			codeBitMask <<= 1
			overflowBits--
			if overflowBits == 0 {
				break
			}
		}

		if h.nodes[index] != 0 {
			return ErrInvalidHuffmanData // node already claimed by another code
		}
		h.nodes[index] = pack(uint16(ch), uint8(length))
	}

	return ErrNone
}

// huffmanCanonicalCodes computes, for each symbol with a non-zero length,
// its canonical Huffman code bit-reversed to the code's length — codes are
// assigned numerically MSB-first but the bitstream is read LSB-first, so
// reversing here lets the decoder index directly with the next bits of
// input.
func huffmanCanonicalCodes(lengths []uint8) []uint32 {
	var count [maxCodeLength + 1]uint32
	for _, l := range lengths {
		if l > 0 {
			count[l]++
		}
	}

	var nextCode [maxCodeLength + 1]uint32
	var code uint32
	for l := 1; l <= maxCodeLength; l++ {
		code = (code + count[l-1]) << 1
		nextCode[l] = code
	}

	codes := make([]uint32, len(lengths))
	for i, l := range lengths {
		if l > 0 {
			codes[i] = reverseBits(nextCode[l], int(l))
			nextCode[l]++
		}
	}
	return codes
}

func reverseBits(code uint32, length int) uint32 {
	return bits.Reverse32(code) >> (32 - length)
}

// nextSymbol decodes one symbol from the bit buffer. It returns ok=false
// without consuming any bits when fewer than the code's length bits are
// available, signaling the caller to suspend for more input.
func (h *huffmanTree) nextSymbol(in *bitBuffer) (symbol uint16, err error, ok bool) {
	buf := in.tryLoad16()
	if in.availableBits() == 0 {
		return 0, nil, false
	}

	entry := h.table[buf&tableMask]
	rest := buf >> tableBits
	for entry < 0 {
		childIndex := int(-entry) + int(rest&1)
		entry = h.nodes[childIndex]
		rest >>= 1
	}

	sym, codeLen := unpack(entry)
	if codeLen <= 0 || codeLen > maxCodeLength {
		return 0, kindError{ErrInvalidHuffmanData}, true
	}
	if uint(codeLen) > in.availableBits() {
		// The table/tree lookup may have hit an entry for another symbol
		// that happens to share our prefix; its length simply won't fit
		// in what's left, meaning we are out of input, not corrupt.
		return 0, nil, false
	}

	in.skipBits(uint(codeLen))
	return sym, nil, true
}

// nextSymbolAssumeInput is the fast-path variant of nextSymbol for a caller
// that has pre-checked that enough input bytes remain. The decode loop in
// inflate.go does not call it; stepDecodeTop uses nextSymbol.
func (h *huffmanTree) nextSymbolAssumeInput(in *bitBuffer) (uint16, error) {
	buf := in.load16AssumeInput()
	entry := h.table[buf&tableMask]
	rest := buf >> tableBits
	for entry < 0 {
		childIndex := int(-entry) + int(rest&1)
		entry = h.nodes[childIndex]
		rest >>= 1
	}
	sym, codeLen := unpack(entry)
	if codeLen == 0 {
		return 0, kindError{ErrInvalidHuffmanData}
	}
	in.skipBits(uint(codeLen))
	return sym, nil
}

// kindError adapts an ErrKind to the error interface for use as a sticky
// Inflater.err value.
type kindError struct{ kind ErrKind }

func (e kindError) Error() string { return "deflate64: " + e.kind.String() }
