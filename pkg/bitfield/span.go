package bitfield

import "fmt"

// Extract reads width bits starting at absolute bit offset bitOff. Unlike Get,
// the field may be up to 64 bits wide and may span any number of words.
func Extract[W Word](words []W, bitOff, width int) (uint64, error) {
	wb := WordBits[W]()
	if err := checkSpan(len(words), wb, bitOff, width); err != nil {
		return 0, err
	}
	var v uint64
	for got := 0; got < width; {
		pos := bitOff + got
		idx, off := pos/wb, pos%wb
		n := min(width-got, wb-off)
		v |= (uint64(words[idx]) >> uint(off) & Mask(n)) << uint(got)
		got += n
	}
	return v, nil
}

// Deposit writes the low width bits of v at absolute bit offset bitOff,
// preserving all surrounding bits.
func Deposit[W Word](words []W, bitOff, width int, v uint64) error {
	wb := WordBits[W]()
	if err := checkSpan(len(words), wb, bitOff, width); err != nil {
		return err
	}
	if v > Mask(width) {
		return fmt.Errorf("%w: %d does not fit in %d bits", ErrValueOutOfRange, v, width)
	}
	for put := 0; put < width; {
		pos := bitOff + put
		idx, off := pos/wb, pos%wb
		n := min(width-put, wb-off)
		m := Mask(n) << uint(off)
		words[idx] = words[idx]&^W(m) | W((v>>uint(put))<<uint(off)&m)
		put += n
	}
	return nil
}

func checkSpan(nwords, wb, bitOff, width int) error {
	if width < 1 || width > 64 {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if bitOff < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrIndexOutOfRange, bitOff)
	}
	if bitOff > nwords*wb-width {
		return fmt.Errorf("%w: bits [%d,%d) past %d words", ErrShortWords, bitOff, bitOff+width, nwords)
	}
	return nil
}
