package frame

import "github.com/samcharles93/detframe/pkg/bitfield"

// COLDATA blocks hold 8 ADCs of 8 channels each, spread over 8 segments of
// three 32-bit words. Every segment carries four channels from each of two
// adjacent ADCs, with each 12-bit value split into an 8-bit and a 4-bit piece.
const (
	coldataSegments     = 8
	coldataSegmentWords = 3
	coldataChannels     = 64
	coldataChPerADC     = 8
)

type coldataPiece struct {
	loWidth, loBit int
	hiWidth, hiBit int
}

// Bit positions within a segment for channel c (0..3) of the even ADC; the
// odd ADC sits 8 bits higher in every piece.
var coldataPieces = [4]coldataPiece{
	{8, 0, 4, 16},
	{4, 20, 8, 32},
	{8, 48, 4, 64},
	{4, 68, 8, 80},
}

// coldataBits returns the absolute bit offsets of both pieces of channel i
// (0..63) in a block whose segments start at word base.
func coldataBits(base, i int) (lo, hi int, p coldataPiece) {
	adc, ch := i/coldataChPerADC, i%coldataChPerADC
	seg := (adc/2)*2 + ch/4
	shift := (adc % 2) * 8
	p = coldataPieces[ch%4]
	start := (base + seg*coldataSegmentWords) * 32
	return start + p.loBit + shift, start + p.hiBit + shift, p
}

func coldataGet[W bitfield.Word](words []W, base, i int) (uint64, error) {
	lo, hi, p := coldataBits(base, i)
	l, err := bitfield.Extract(words, lo, p.loWidth)
	if err != nil {
		return 0, err
	}
	h, err := bitfield.Extract(words, hi, p.hiWidth)
	if err != nil {
		return 0, err
	}
	return l | h<<uint(p.loWidth), nil
}

func coldataSet[W bitfield.Word](words []W, base, i int, v uint64) error {
	lo, hi, p := coldataBits(base, i)
	if err := bitfield.Deposit(words, lo, p.loWidth, v&bitfield.Mask(p.loWidth)); err != nil {
		return err
	}
	return bitfield.Deposit(words, hi, p.hiWidth, v>>uint(p.loWidth))
}
