package deflate64

import "testing"

// BenchmarkInflate measures throughput on the long-RLE scenario (a single
// byte expanding to 128KiB via two Deflate64-extended back-references),
// reporting MB/s the way a throughput-sensitive decoder benchmark should.
func BenchmarkInflate(b *testing.B) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	out := make([]byte, 131072)

	b.SetBytes(131072)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := New()
		if res := f.Inflate(input, out); res.DataError {
			b.Fatalf("data error: %v", f.Err())
		}
		if !f.Finished() {
			b.Fatal("not finished after single-shot decode")
		}
	}
}

// BenchmarkInflateShredded measures the overhead of feeding input one byte
// at a time, the worst case for chunk-invariance.
func BenchmarkInflateShredded(b *testing.B) {
	input := []byte{0x63, 0x18, 0xe5, 0xff, 0x07, 0xa3, 0xfd, 0xff, 0x00, 0x00}
	out := make([]byte, 131072)

	b.SetBytes(131072)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := New()
		written := 0
		for _, by := range input {
			res := f.Inflate([]byte{by}, out[written:])
			written += res.BytesWritten
		}
		for !f.Finished() {
			res := f.Inflate(nil, out[written:])
			written += res.BytesWritten
			if res.BytesWritten == 0 {
				break
			}
		}
		if f.Errored() {
			b.Fatalf("data error: %v", f.Err())
		}
	}
}
