// Package bitfield packs and unpacks fixed-width unsigned samples inside
// arrays of 32 or 64-bit words.
//
// Sample i of a Layout occupies bits [Width*i, Width*i+Width) of the word
// stream, counting from the least significant bit of word 0. A sample may
// straddle two adjacent words when Width does not divide the word size; the
// low part then lives in the high bits of the first word and the remainder in
// the low bits of the next one.
//
// All functions operate on caller-owned slices and never resize them.
package bitfield

import (
	"fmt"
	"math"
)

// Word is the storage unit of a packed stream.
type Word interface {
	~uint32 | ~uint64
}

// Layout describes an array of Count samples of Width bits each.
type Layout struct {
	Width int
	Count int
}

// WordBits reports the bit size of W.
func WordBits[W Word]() int {
	if uint64(^W(0)) > math.MaxUint32 {
		return 64
	}
	return 32
}

// Mask returns a value with the low n bits set. n is clamped to [0,64].
func Mask(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return math.MaxUint64
	}
	return 1<<uint(n) - 1
}

// Max returns the largest value representable in the layout's width.
func (l Layout) Max() uint64 { return Mask(l.Width) }

// Bits returns the total number of bits used by the layout.
func (l Layout) Bits() int { return l.Width * l.Count }

// Validate checks the layout against a word size.
func (l Layout) Validate(wordBits int) error {
	if l.Width < 1 || l.Width > wordBits {
		return fmt.Errorf("%w: width %d for %d-bit words", ErrInvalidWidth, l.Width, wordBits)
	}
	if l.Count < 0 || l.Count > math.MaxInt/l.Width {
		return fmt.Errorf("%w: count %d", ErrIndexOutOfRange, l.Count)
	}
	return nil
}

// WordsFor returns the number of W words needed to hold every sample of l.
func WordsFor[W Word](l Layout) int {
	wb := WordBits[W]()
	bits := l.Bits()
	return (bits + wb - 1) / wb
}

func check[W Word](words []W, l Layout, i int) error {
	if err := l.Validate(WordBits[W]()); err != nil {
		return err
	}
	if i < 0 || i >= l.Count {
		return fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, i, l.Count)
	}
	if need := WordsFor[W](l); len(words) < need {
		return fmt.Errorf("%w: have %d words, need %d", ErrShortWords, len(words), need)
	}
	return nil
}

// Get returns sample i of the layout.
func Get[W Word](words []W, l Layout, i int) (uint64, error) {
	if err := check(words, l, i); err != nil {
		return 0, err
	}
	return get(words, WordBits[W](), l.Width, i), nil
}

// Set stores v as sample i of the layout. Bits outside the sample are left
// untouched. Nothing is written when an error is returned.
func Set[W Word](words []W, l Layout, i int, v uint64) error {
	if err := check(words, l, i); err != nil {
		return err
	}
	if v > l.Max() {
		return fmt.Errorf("%w: %d does not fit in %d bits", ErrValueOutOfRange, v, l.Width)
	}
	set(words, WordBits[W](), l.Width, i, v)
	return nil
}

func get[W Word](words []W, wb, width, i int) uint64 {
	pos := width * i
	idx, off := pos/wb, pos%wb
	first := min(width, wb-off)

	v := uint64(words[idx]) >> uint(off) & Mask(first)
	if first < width {
		v |= (uint64(words[idx+1]) & Mask(width-first)) << uint(first)
	}
	return v
}

func set[W Word](words []W, wb, width, i int, v uint64) {
	pos := width * i
	idx, off := pos/wb, pos%wb
	first := min(width, wb-off)

	m := Mask(first) << uint(off)
	words[idx] = words[idx]&^W(m) | W(v<<uint(off)&m)
	if first < width {
		rest := Mask(width - first)
		words[idx+1] = words[idx+1]&^W(rest) | W(v>>uint(first)&rest)
	}
}

// Unpack appends every sample of the layout to dst and returns the result.
func Unpack[W Word](words []W, l Layout, dst []uint64) ([]uint64, error) {
	if l.Count == 0 {
		return dst, nil
	}
	if err := check(words, l, 0); err != nil {
		return dst, err
	}
	wb := WordBits[W]()
	dst = growUint64(dst, l.Count)
	for i := range l.Count {
		dst = append(dst, get(words, wb, l.Width, i))
	}
	return dst, nil
}

// Pack stores values as samples 0..len(values)-1. It validates every value
// before writing any of them.
func Pack[W Word](words []W, l Layout, values []uint64) error {
	if len(values) == 0 {
		return nil
	}
	if len(values) > l.Count {
		return fmt.Errorf("%w: %d values, count %d", ErrIndexOutOfRange, len(values), l.Count)
	}
	if err := check(words, l, 0); err != nil {
		return err
	}
	limit := l.Max()
	for i, v := range values {
		if v > limit {
			return fmt.Errorf("%w: value %d at index %d does not fit in %d bits", ErrValueOutOfRange, v, i, l.Width)
		}
	}
	wb := WordBits[W]()
	for i, v := range values {
		set(words, wb, l.Width, i, v)
	}
	return nil
}

func growUint64(s []uint64, n int) []uint64 {
	if cap(s)-len(s) >= n {
		return s
	}
	out := make([]uint64, len(s), len(s)+n)
	copy(out, s)
	return out
}
