package deflate64

// codeOrder is the fixed permutation RFC 1951 §3.2.7 uses to place the
// hclen+4 code-length-code lengths read from a dynamic block header.
var codeOrder = [numCodeLengthCodes]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// staticLiteralLengthTreeLengths is the fixed literal/length code assigned
// to every static (btype=01) block, per RFC 1951 §3.2.6.
func staticLiteralLengthTreeLengths() []uint8 {
	var l [maxLiteralTreeElements]uint8
	for i := 0; i < 144; i++ {
		l[i] = 8
	}
	for i := 144; i < 256; i++ {
		l[i] = 9
	}
	for i := 256; i < 280; i++ {
		l[i] = 7
	}
	for i := 280; i < 288; i++ {
		l[i] = 8
	}
	return l[:]
}

// staticDistanceTreeLengths is the fixed distance code for static blocks.
func staticDistanceTreeLengths() []uint8 {
	var l [maxDistTreeElements]uint8
	for i := range l {
		l[i] = 5
	}
	return l[:]
}

// lengthBase and lengthExtraBits give the base length and number of extra
// bits for length symbols 257..285, per RFC 1951 §3.2.5 extended by
// Deflate64: symbol 285 takes 16 extra bits (base 3) instead of the fixed
// 258 of classic Deflate, raising the maximum match length to 65538.
// Symbols 286 and 287 have no entry; stepDecodeTop rejects them as invalid
// Huffman data.
var lengthBase = [...]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13,
	15, 17, 19, 23, 27, 31, 35, 43, 51, 59,
	67, 83, 99, 115, 131, 163, 195, 227, 3,
}

var lengthExtraBits = [...]uint{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
	1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
	4, 4, 4, 4, 5, 5, 5, 5, 16,
}

// distBase and distExtraBits give the base distance and number of extra
// bits for distance symbols 0..31. Symbols 0..29 are classic Deflate;
// Deflate64 adds symbols 30 and 31 with 14 extra bits each, raising the
// maximum match distance to 65536.
var distBase = [...]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
	33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
	1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	32769, 49153,
}

var distExtraBits = [...]uint{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
	4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	14, 14,
}

const (
	maxMatchLength  = 3 + 65535 // 65538, symbol 285 with all 16 extra bits set
	maxMatchDistance = 65536    // symbols 30/31 with all 14 extra bits set
)
