package bitfield

import (
	"encoding/binary"
	"fmt"
)

// DecodeWords converts data into words using the given byte order and
// appends them to dst. len(data) must be a multiple of the word size.
func DecodeWords[W Word](dst []W, data []byte, order binary.ByteOrder) ([]W, error) {
	size := WordBits[W]() / 8
	if len(data)%size != 0 {
		return dst, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrShortWords, len(data), size)
	}
	n := len(data) / size
	if cap(dst)-len(dst) < n {
		grown := make([]W, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	for off := 0; off < len(data); off += size {
		if size == 8 {
			dst = append(dst, W(order.Uint64(data[off:])))
		} else {
			dst = append(dst, W(order.Uint32(data[off:])))
		}
	}
	return dst, nil
}

// AppendWords appends the encoded form of words to dst.
func AppendWords[W Word](dst []byte, words []W, order binary.AppendByteOrder) []byte {
	wide := WordBits[W]() == 64
	for _, w := range words {
		if wide {
			dst = order.AppendUint64(dst, uint64(w))
		} else {
			dst = order.AppendUint32(dst, uint32(w))
		}
	}
	return dst
}

// EncodeWords writes words into dst, which must hold len(words) words.
func EncodeWords[W Word](dst []byte, words []W, order binary.ByteOrder) (int, error) {
	size := WordBits[W]() / 8
	need := len(words) * size
	if len(dst) < need {
		return 0, fmt.Errorf("%w: buffer %d bytes, need %d", ErrShortWords, len(dst), need)
	}
	for i, w := range words {
		if size == 8 {
			order.PutUint64(dst[i*8:], uint64(w))
		} else {
			order.PutUint32(dst[i*4:], uint32(w))
		}
	}
	return need, nil
}
