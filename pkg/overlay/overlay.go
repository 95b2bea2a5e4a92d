// Package overlay serializes variable-arity records: a fixed-size header, a
// 64-bit child count and a trailing array of fixed-size children.
//
//	| Header | uint64 count | Child 0 | ... | Child count-1 |
//
// The three regions are contiguous. Header and child types must have a fixed
// encoded size as defined by encoding/binary; explicit blank fields carry any
// padding the wire layout needs. The stored count is the only source of truth
// for the trailing array length and is validated against the buffer before a
// single child is read.
package overlay

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CountSize is the encoded size of the child count.
const CountSize = 8

// SizeFor returns headerSize + CountSize + count*childSize, failing instead of
// wrapping when the result does not fit in an int.
func SizeFor(headerSize, count, childSize int) (int, error) {
	if headerSize < 0 || count < 0 || childSize < 0 {
		return 0, fmt.Errorf("%w: negative size (header %d, count %d, child %d)", ErrSizeOverflow, headerSize, count, childSize)
	}
	if headerSize > math.MaxInt-CountSize {
		return 0, fmt.Errorf("%w: header %d bytes", ErrSizeOverflow, headerSize)
	}
	fixed := headerSize + CountSize
	if childSize > 0 && count > (math.MaxInt-fixed)/childSize {
		return 0, fmt.Errorf("%w: %d children of %d bytes", ErrSizeOverflow, count, childSize)
	}
	return fixed + count*childSize, nil
}

// Layout binds a header type and a child type to a byte order.
type Layout[H, C any] struct {
	Order binary.ByteOrder
}

// LittleEndian returns the layout used by every record this module produces.
func LittleEndian[H, C any]() Layout[H, C] {
	return Layout[H, C]{Order: binary.LittleEndian}
}

func (l Layout[H, C]) order() binary.ByteOrder {
	if l.Order == nil {
		return binary.LittleEndian
	}
	return l.Order
}

// Sizes returns the encoded header and child sizes.
func (l Layout[H, C]) Sizes() (header, child int, err error) {
	var h H
	var c C
	header = binary.Size(h)
	if header < 0 {
		return 0, 0, fmt.Errorf("%w: header %T", ErrNotFixedSize, h)
	}
	child = binary.Size(c)
	if child <= 0 {
		return 0, 0, fmt.Errorf("%w: child %T", ErrNotFixedSize, c)
	}
	return header, child, nil
}

// Size returns the encoded length of a record with count children.
func (l Layout[H, C]) Size(count int) (int, error) {
	hs, cs, err := l.Sizes()
	if err != nil {
		return 0, err
	}
	return SizeFor(hs, count, cs)
}

// Write encodes h and children into buf and returns the number of bytes
// written. buf must hold at least Size(len(children)) bytes; nothing is
// written otherwise.
func (l Layout[H, C]) Write(buf []byte, h H, children []C) (int, error) {
	hs, cs, err := l.Sizes()
	if err != nil {
		return 0, err
	}
	total, err := SizeFor(hs, len(children), cs)
	if err != nil {
		return 0, err
	}
	if len(buf) < total {
		return 0, fmt.Errorf("%w: buffer %d bytes, need %d", ErrBufferTooShort, len(buf), total)
	}

	order := l.order()
	if _, err := binary.Encode(buf[:hs], order, h); err != nil {
		return 0, fmt.Errorf("overlay: encode header: %w", err)
	}
	order.PutUint64(buf[hs:], uint64(len(children)))
	if len(children) > 0 {
		if _, err := binary.Encode(buf[hs+CountSize:total], order, children); err != nil {
			return 0, fmt.Errorf("overlay: encode children: %w", err)
		}
	}
	return total, nil
}

// Append encodes the record onto the end of dst.
func (l Layout[H, C]) Append(dst []byte, h H, children []C) ([]byte, error) {
	n, err := l.Size(len(children))
	if err != nil {
		return dst, err
	}
	start := len(dst)
	dst = grow(dst, n)
	if _, err := l.Write(dst[start:start+n], h, children); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

// Marshal returns a freshly allocated, exactly sized encoding of the record.
func (l Layout[H, C]) Marshal(h H, children []C) ([]byte, error) {
	return l.Append(nil, h, children)
}

// Count returns the stored child count without decoding anything else.
func (l Layout[H, C]) Count(buf []byte) (uint64, error) {
	hs, _, err := l.Sizes()
	if err != nil {
		return 0, err
	}
	if len(buf) < hs+CountSize {
		return 0, fmt.Errorf("%w: %d bytes, header needs %d", ErrBufferTooShort, len(buf), hs+CountSize)
	}
	return l.order().Uint64(buf[hs:]), nil
}

// Read decodes one record from the start of buf. Trailing bytes beyond the
// record are ignored; use Next to walk a concatenated stream.
func (l Layout[H, C]) Read(buf []byte) (H, []C, error) {
	h, children, _, err := l.Next(buf)
	return h, children, err
}

// Next decodes one record from the start of buf and returns the bytes that
// follow it.
func (l Layout[H, C]) Next(buf []byte) (H, []C, []byte, error) {
	var h H
	hs, cs, err := l.Sizes()
	if err != nil {
		return h, nil, buf, err
	}
	if len(buf) < hs+CountSize {
		return h, nil, buf, fmt.Errorf("%w: %d bytes, header needs %d", ErrBufferTooShort, len(buf), hs+CountSize)
	}

	order := l.order()
	count := order.Uint64(buf[hs:])
	if count > math.MaxInt {
		return h, nil, buf, fmt.Errorf("%w: count %d", ErrSizeOverflow, count)
	}
	total, err := SizeFor(hs, int(count), cs)
	if err != nil {
		return h, nil, buf, err
	}
	if total > len(buf) {
		return h, nil, buf, fmt.Errorf("%w: count %d needs %d bytes, have %d", ErrBufferTooShort, count, total, len(buf))
	}

	if _, err := binary.Decode(buf[:hs], order, &h); err != nil {
		return h, nil, buf, fmt.Errorf("overlay: decode header: %w", err)
	}
	children := make([]C, count)
	if count > 0 {
		if _, err := binary.Decode(buf[hs+CountSize:total], order, children); err != nil {
			return h, nil, buf, fmt.Errorf("overlay: decode children: %w", err)
		}
	}
	return h, children, buf[total:], nil
}

// Size is Layout.Size for the little-endian layout.
func Size[H, C any](count int) (int, error) {
	return LittleEndian[H, C]().Size(count)
}

// Write is Layout.Write for the little-endian layout.
func Write[H, C any](buf []byte, h H, children []C) (int, error) {
	return LittleEndian[H, C]().Write(buf, h, children)
}

// Append is Layout.Append for the little-endian layout.
func Append[H, C any](dst []byte, h H, children []C) ([]byte, error) {
	return LittleEndian[H, C]().Append(dst, h, children)
}

// Marshal is Layout.Marshal for the little-endian layout.
func Marshal[H, C any](h H, children []C) ([]byte, error) {
	return LittleEndian[H, C]().Marshal(h, children)
}

// Read is Layout.Read for the little-endian layout.
func Read[H, C any](buf []byte) (H, []C, error) {
	return LittleEndian[H, C]().Read(buf)
}

// Next is Layout.Next for the little-endian layout.
func Next[H, C any](buf []byte) (H, []C, []byte, error) {
	return LittleEndian[H, C]().Next(buf)
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) < n {
		out := make([]byte, len(b), len(b)+n)
		copy(out, b)
		b = out
	}
	return b[:len(b)+n]
}
