package overlay

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"
)

type testHeader struct {
	Version uint16
	_       [6]byte
	Start   uint64
	Tag     int32
	_       [4]byte
}

type testChild struct {
	Channel int32
	ADC     uint16
	Flag    uint16
	Time    uint64
}

func makeChildren(n int) []testChild {
	out := make([]testChild, n)
	for i := range out {
		out[i] = testChild{Channel: int32(i - 3), ADC: uint16(i * 7), Flag: uint16(i % 2), Time: uint64(i) << 40}
	}
	return out
}

func TestSizeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		header, count int
		child         int
		want          int
		err           error
	}{
		{"empty", 24, 0, 16, 32, nil},
		{"five", 24, 5, 16, 112, nil},
		{"overflow", 24, math.MaxInt / 8, 16, 0, ErrSizeOverflow},
		{"header overflow", math.MaxInt - 4, 0, 16, 0, ErrSizeOverflow},
		{"negative count", 24, -1, 16, 0, ErrSizeOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SizeFor(tc.header, tc.count, tc.child)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("got err %v want %v", err, tc.err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %d, %v want %d", got, err, tc.want)
			}
		})
	}
}

func TestLayoutSizes(t *testing.T) {
	t.Parallel()

	hs, cs, err := LittleEndian[testHeader, testChild]().Sizes()
	if err != nil {
		t.Fatalf("sizes: %v", err)
	}
	if hs != 24 || cs != 16 {
		t.Fatalf("sizes: got header %d child %d want 24 16", hs, cs)
	}
	if _, err := Size[testHeader, []byte](1); !errors.Is(err, ErrNotFixedSize) {
		t.Fatalf("variable child: got %v", err)
	}
	if _, err := Size[testHeader, struct{}](1); !errors.Is(err, ErrNotFixedSize) {
		t.Fatalf("zero-size child: got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 5, 1000} {
		h := testHeader{Version: 1, Start: 0xAABBCCDD00112233, Tag: -9}
		children := makeChildren(n)

		size, err := Size[testHeader, testChild](n)
		if err != nil {
			t.Fatalf("size(%d): %v", n, err)
		}
		buf := make([]byte, size)
		written, err := Write(buf, h, children)
		if err != nil {
			t.Fatalf("write(%d): %v", n, err)
		}
		if written != size {
			t.Fatalf("write(%d): wrote %d want %d", n, written, size)
		}
		if got := binary.LittleEndian.Uint64(buf[24:]); got != uint64(n) {
			t.Fatalf("stored count: got %d want %d", got, n)
		}

		gotH, gotC, err := Read[testHeader, testChild](buf)
		if err != nil {
			t.Fatalf("read(%d): %v", n, err)
		}
		if gotH != h {
			t.Fatalf("header: got %+v want %+v", gotH, h)
		}
		if !slices.Equal(gotC, children) {
			t.Fatalf("children mismatch for n=%d", n)
		}
	}
}

func TestWriteShortBuffer(t *testing.T) {
	t.Parallel()

	children := makeChildren(3)
	size, _ := Size[testHeader, testChild](3)
	buf := make([]byte, size-1)
	for i := range buf {
		buf[i] = 0xEE
	}
	if _, err := Write(buf, testHeader{Version: 1}, children); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("got %v want ErrBufferTooShort", err)
	}
	for i, b := range buf {
		if b != 0xEE {
			t.Fatalf("byte %d written despite error", i)
		}
	}
}

func TestReadMalformedCount(t *testing.T) {
	t.Parallel()

	full, err := Marshal(testHeader{Version: 1}, makeChildren(5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	truncated := full[:len(full)-16]
	if _, _, err := Read[testHeader, testChild](truncated); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("truncated: got %v want ErrBufferTooShort", err)
	}

	huge := slices.Clone(full)
	binary.LittleEndian.PutUint64(huge[24:], math.MaxUint64)
	if _, _, err := Read[testHeader, testChild](huge); !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("max count: got %v want ErrSizeOverflow", err)
	}

	binary.LittleEndian.PutUint64(huge[24:], 1<<40)
	if _, _, err := Read[testHeader, testChild](huge); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("large count: got %v want ErrBufferTooShort", err)
	}

	if _, _, err := Read[testHeader, testChild](full[:10]); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("short header: got %v", err)
	}
}

func TestNextWalksStream(t *testing.T) {
	t.Parallel()

	var stream []byte
	var err error
	for n := range 4 {
		stream, err = Append(stream, testHeader{Version: uint16(n)}, makeChildren(n))
		if err != nil {
			t.Fatalf("append %d: %v", n, err)
		}
	}
	stream = append(stream, 0x01) // trailing junk shorter than a header

	for n := range 4 {
		var h testHeader
		var c []testChild
		h, c, stream, err = Next[testHeader, testChild](stream)
		if err != nil {
			t.Fatalf("next %d: %v", n, err)
		}
		if int(h.Version) != n || len(c) != n {
			t.Fatalf("record %d: version %d children %d", n, h.Version, len(c))
		}
	}
	if len(stream) != 1 {
		t.Fatalf("remainder: got %d bytes want 1", len(stream))
	}
	if _, _, _, err := Next[testHeader, testChild](stream); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("junk: got %v", err)
	}
}

func TestBigEndianLayout(t *testing.T) {
	t.Parallel()

	l := Layout[testHeader, testChild]{Order: binary.BigEndian}
	buf, err := l.Marshal(testHeader{Version: 0x0102}, makeChildren(2))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if buf[0] != 0x01 || buf[1] != 0x02 {
		t.Fatalf("version not big-endian: %x", buf[:2])
	}
	if n, err := l.Count(buf); err != nil || n != 2 {
		t.Fatalf("count: got %d err %v", n, err)
	}
	h, c, err := l.Read(buf)
	if err != nil || h.Version != 0x0102 || !slices.Equal(c, makeChildren(2)) {
		t.Fatalf("read: %+v %v %v", h, c, err)
	}
}

func TestReadIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	buf, _ := Marshal(testHeader{Version: 3}, makeChildren(2))
	buf = append(buf, 0xFF, 0xFF, 0xFF)
	h, c, err := Read[testHeader, testChild](buf)
	if err != nil || h.Version != 3 || len(c) != 2 {
		t.Fatalf("read with trailing bytes: %+v %d %v", h, len(c), err)
	}
}
