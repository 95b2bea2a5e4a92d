package bitfield

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"
)

func TestRoundTripWidths(t *testing.T) {
	t.Parallel()

	for _, width := range []int{12, 14, 16} {
		for _, count := range []int{1, 7, 64, 256} {
			l := Layout{Width: width, Count: count}
			words := make([]uint32, WordsFor[uint32](l))
			values := []uint64{0, 1, l.Max(), l.Max() >> 1, 0x555 & l.Max()}
			for i := range count {
				v := values[i%len(values)]
				if err := Set(words, l, i, v); err != nil {
					t.Fatalf("set width=%d count=%d i=%d: %v", width, count, i, err)
				}
			}
			for i := range count {
				want := values[i%len(values)]
				got, err := Get(words, l, i)
				if err != nil {
					t.Fatalf("get width=%d count=%d i=%d: %v", width, count, i, err)
				}
				if got != want {
					t.Fatalf("width=%d count=%d i=%d: got %#x want %#x", width, count, i, got, want)
				}
			}
		}
	}
}

func TestRoundTrip64BitWords(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 14, Count: 64}
	words := make([]uint64, WordsFor[uint64](l))
	if len(words) != 14 {
		t.Fatalf("words for 64x14 in uint64: got %d want 14", len(words))
	}
	for i := range l.Count {
		if err := Set(words, l, i, uint64(i*251)&l.Max()); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	for i := range l.Count {
		got, _ := Get(words, l, i)
		if want := uint64(i*251) & l.Max(); got != want {
			t.Fatalf("sample %d: got %#x want %#x", i, got, want)
		}
	}
}

func TestWordBoundaryCrossing(t *testing.T) {
	t.Parallel()

	// Index 2 of a 14-bit array starts at bit 28 and spills 10 bits into word 1.
	l := Layout{Width: 14, Count: 4}
	words := []uint32{0, 0}
	if err := Set(words, l, 2, 0x3FFF); err != nil {
		t.Fatalf("set: %v", err)
	}
	if words[0] != 0xF0000000 {
		t.Fatalf("word 0: got %#x want 0xf0000000", words[0])
	}
	if words[1] != 0x000003FF {
		t.Fatalf("word 1: got %#x want 0x3ff", words[1])
	}
	for _, i := range []int{0, 1, 3} {
		if v, _ := Get(words, l, i); v != 0 {
			t.Fatalf("neighbour %d modified: %#x", i, v)
		}
	}
	if v, _ := Get(words, l, 2); v != 0x3FFF {
		t.Fatalf("sample 2: got %#x", v)
	}
}

func TestSetPreservesNeighbours(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 14, Count: 4}
	words := []uint32{math.MaxUint32, math.MaxUint32}
	if err := Set(words, l, 2, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if words[0] != 0x0FFFFFFF {
		t.Fatalf("word 0: got %#x want 0x0fffffff", words[0])
	}
	if words[1] != 0xFFFFFC00 {
		t.Fatalf("word 1: got %#x want 0xfffffc00", words[1])
	}
	for _, i := range []int{0, 1, 3} {
		if v, _ := Get(words, l, i); v != l.Max() {
			t.Fatalf("neighbour %d: got %#x want %#x", i, v, l.Max())
		}
	}
}

func TestOutOfRange(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 12, Count: 8}
	words := make([]uint32, WordsFor[uint32](l))
	before := slices.Clone(words)

	cases := []struct {
		name  string
		index int
		value uint64
		want  error
	}{
		{"index past count", 8, 0, ErrIndexOutOfRange},
		{"negative index", -1, 0, ErrIndexOutOfRange},
		{"value too wide", 0, 1 << 12, ErrValueOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Set(words, l, tc.index, tc.value)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
			if !slices.Equal(words, before) {
				t.Fatalf("words modified on error: %v", words)
			}
		})
	}

	if _, err := Get(words, l, 8); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("get past count: got %v", err)
	}
}

func TestInvalidLayout(t *testing.T) {
	t.Parallel()

	if _, err := Get(make([]uint32, 4), Layout{Width: 33, Count: 1}, 0); !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("width > word: got %v", err)
	}
	if _, err := Get(make([]uint32, 4), Layout{Width: 0, Count: 1}, 0); !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("zero width: got %v", err)
	}
	if _, err := Get(make([]uint32, 2), Layout{Width: 14, Count: 8}, 0); !errors.Is(err, ErrShortWords) {
		t.Fatalf("short words: got %v", err)
	}
}

func TestGetIsIdempotent(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 14, Count: 16}
	words := []uint32{0xDEADBEEF, 0x01234567, 0x89ABCDEF, 0xFEDCBA98, 0x76543210, 0xCAFEBABE, 0x0BADF00D}
	snapshot := slices.Clone(words)
	for i := range l.Count {
		a, _ := Get(words, l, i)
		b, _ := Get(words, l, i)
		if a != b {
			t.Fatalf("sample %d: %#x then %#x", i, a, b)
		}
	}
	if !slices.Equal(words, snapshot) {
		t.Fatalf("get mutated words")
	}
}

func TestPackUnpack(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 12, Count: 10}
	words := make([]uint32, WordsFor[uint32](l))
	in := []uint64{0, 1, 2, 0xFFF, 0x800, 0x7FF, 3, 4, 5, 6}
	if err := Pack(words, l, in); err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := Unpack(words, l, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !slices.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}

	bad := slices.Clone(in)
	bad[5] = 0x1000
	snapshot := slices.Clone(words)
	if err := Pack(words, l, bad); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("pack bad value: got %v", err)
	}
	if !slices.Equal(words, snapshot) {
		t.Fatalf("pack wrote before rejecting")
	}
}

func TestExtractDepositSpanning(t *testing.T) {
	t.Parallel()

	words := []uint32{math.MaxUint32, math.MaxUint32, math.MaxUint32}
	if err := Deposit(words, 16, 64, 0x0123456789ABCDEF); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	got, err := Extract(words, 16, 64)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != 0x0123456789ABCDEF {
		t.Fatalf("got %#x", got)
	}
	if words[0]&0xFFFF != 0xFFFF || words[2]>>16 != 0xFFFF {
		t.Fatalf("surrounding bits clobbered: %#x", words)
	}

	if _, err := Extract(words, 90, 8); !errors.Is(err, ErrShortWords) {
		t.Fatalf("extract past end: got %v", err)
	}
	if err := Deposit(words, 0, 4, 16); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("deposit too wide: got %v", err)
	}
}

func TestWordsEncoding(t *testing.T) {
	t.Parallel()

	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	w32, err := DecodeWords[uint32](nil, data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode32: %v", err)
	}
	if !slices.Equal(w32, []uint32{0x04030201, 0x08070605}) {
		t.Fatalf("decode32: got %#x", w32)
	}
	w64, err := DecodeWords[uint64](nil, data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode64: %v", err)
	}
	if w64[0] != 0x0807060504030201 {
		t.Fatalf("decode64: got %#x", w64[0])
	}
	if got := AppendWords(nil, w32, binary.LittleEndian); !slices.Equal(got, data) {
		t.Fatalf("append: got %x", got)
	}
	out := make([]byte, 8)
	if _, err := EncodeWords(out, w64, binary.LittleEndian); err != nil || !slices.Equal(out, data) {
		t.Fatalf("encode64: got %x err %v", out, err)
	}
	if _, err := DecodeWords[uint32](nil, data[:5], binary.LittleEndian); !errors.Is(err, ErrShortWords) {
		t.Fatalf("odd length: got %v", err)
	}
}
