package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/samcharles93/detframe/pkg/bitfield"
	"github.com/samcharles93/detframe/pkg/timestamp"
)

// View is the word-size independent interface to a frame.
type View interface {
	Format() *Format
	Bytes() []byte
	AppendBytes(dst []byte) []byte

	Sample(block, i int) (uint64, error)
	SetSample(block, i int, v uint64) error
	Samples(block int, dst []uint64) ([]uint64, error)
	ChannelSample(ch, tick int) (uint64, error)
	SetChannelSample(ch, tick int, v uint64) error
	PlaneSample(plane string, unit, i int) (uint64, error)

	Field(name string) (uint64, error)
	SetField(name string, v uint64) error

	Timestamp() uint64
	SetTimestamp(ts uint64)
	Counter() (uint16, bool)
	SetCounter(v uint16) bool
}

// Frame is one frame of W-sized words. Frames are not safe for concurrent
// mutation.
type Frame[W bitfield.Word] struct {
	format *Format
	words  []W
}

// New returns a zeroed frame of the given format.
func New[W bitfield.Word](f *Format) (*Frame[W], error) {
	if err := checkWordSize[W](f); err != nil {
		return nil, err
	}
	return &Frame[W]{format: f, words: make([]W, f.FrameWords)}, nil
}

// Parse decodes the first frame in data. Extra bytes are ignored.
func Parse[W bitfield.Word](f *Format, data []byte) (*Frame[W], error) {
	if err := checkWordSize[W](f); err != nil {
		return nil, err
	}
	n := f.FrameBytes()
	if len(data) < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortFrame, f.Name, n, len(data))
	}
	words, err := bitfield.DecodeWords(make([]W, 0, f.FrameWords), data[:n], binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	return &Frame[W]{format: f, words: words}, nil
}

func checkWordSize[W bitfield.Word](f *Format) error {
	if f == nil {
		return fmt.Errorf("%w: nil format", ErrInvalidFormat)
	}
	if !f.valid {
		return fmt.Errorf("%w: %s has not been validated", ErrInvalidFormat, f.Name)
	}
	if wb := bitfield.WordBits[W](); wb != f.WordBits {
		return fmt.Errorf("%w: %s uses %d-bit words, frame type has %d", ErrWordSize, f.Name, f.WordBits, wb)
	}
	return nil
}

func (fr *Frame[W]) Format() *Format { return fr.format }

// Words exposes the underlying words.
func (fr *Frame[W]) Words() []W { return fr.words }

func (fr *Frame[W]) Bytes() []byte {
	return fr.AppendBytes(make([]byte, 0, fr.format.FrameBytes()))
}

func (fr *Frame[W]) AppendBytes(dst []byte) []byte {
	return bitfield.AppendWords(dst, fr.words, binary.LittleEndian)
}

func (fr *Frame[W]) blockBase(block int) (int, error) {
	s := fr.format.Samples
	if block < 0 || block >= s.Blocks {
		return 0, fmt.Errorf("%w: block %d of %d", bitfield.ErrIndexOutOfRange, block, s.Blocks)
	}
	return s.Offset + block*s.Stride, nil
}

// Sample returns sample i of the given block.
func (fr *Frame[W]) Sample(block, i int) (uint64, error) {
	s := fr.format.Samples
	base, err := fr.blockBase(block)
	if err != nil {
		return 0, err
	}
	if s.Layout == LayoutWIBColdata {
		if i < 0 || i >= s.Count {
			return 0, fmt.Errorf("%w: index %d, count %d", bitfield.ErrIndexOutOfRange, i, s.Count)
		}
		return coldataGet(fr.words, base, i)
	}
	v, err := bitfield.Get(fr.words[base:], s.layout(), i)
	if err != nil {
		return 0, err
	}
	return v & bitfield.Mask(s.Bits), nil
}

// SetSample stores v as sample i of the given block. v must fit in the
// format's significant bits.
func (fr *Frame[W]) SetSample(block, i int, v uint64) error {
	s := fr.format.Samples
	base, err := fr.blockBase(block)
	if err != nil {
		return err
	}
	if v > bitfield.Mask(s.Bits) {
		return fmt.Errorf("%w: %d does not fit in %d bits", bitfield.ErrValueOutOfRange, v, s.Bits)
	}
	if s.Layout == LayoutWIBColdata {
		if i < 0 || i >= s.Count {
			return fmt.Errorf("%w: index %d, count %d", bitfield.ErrIndexOutOfRange, i, s.Count)
		}
		return coldataSet(fr.words, base, i, v)
	}
	return bitfield.Set(fr.words[base:], s.layout(), i, v)
}

// Samples appends every sample of block to dst.
func (fr *Frame[W]) Samples(block int, dst []uint64) ([]uint64, error) {
	s := fr.format.Samples
	base, err := fr.blockBase(block)
	if err != nil {
		return dst, err
	}
	if s.Layout == LayoutWIBColdata {
		for i := range s.Count {
			v, err := coldataGet(fr.words, base, i)
			if err != nil {
				return dst, err
			}
			dst = append(dst, v)
		}
		return dst, nil
	}
	start := len(dst)
	dst, err = bitfield.Unpack(fr.words[base:], s.layout(), dst)
	if err != nil {
		return dst, err
	}
	if s.Bits < s.Width {
		m := bitfield.Mask(s.Bits)
		for i := start; i < len(dst); i++ {
			dst[i] &= m
		}
	}
	return dst, nil
}

func (fr *Frame[W]) channelIndex(ch, tick int) (block, i int, err error) {
	s := fr.format.Samples
	if ch < 0 || ch >= s.Channels || tick < 0 || tick >= s.Ticks() {
		return 0, 0, fmt.Errorf("%w: channel %d tick %d (have %d x %d)", bitfield.ErrIndexOutOfRange, ch, tick, s.Channels, s.Ticks())
	}
	g := tick*s.Channels + ch
	return g / s.Count, g % s.Count, nil
}

// ChannelSample returns the value of channel ch at time sample tick.
func (fr *Frame[W]) ChannelSample(ch, tick int) (uint64, error) {
	block, i, err := fr.channelIndex(ch, tick)
	if err != nil {
		return 0, err
	}
	return fr.Sample(block, i)
}

func (fr *Frame[W]) SetChannelSample(ch, tick int, v uint64) error {
	block, i, err := fr.channelIndex(ch, tick)
	if err != nil {
		return err
	}
	return fr.SetSample(block, i, v)
}

// PlaneSample returns channel i of the named plane in readout unit unit.
func (fr *Frame[W]) PlaneSample(plane string, unit, i int) (uint64, error) {
	p, ok := fr.format.Plane(plane)
	if !ok {
		return 0, fmt.Errorf("%w: plane %q", ErrUnknownField, plane)
	}
	if unit < 0 || unit >= p.Units || i < 0 || i >= p.Count {
		return 0, fmt.Errorf("%w: plane %s unit %d channel %d", bitfield.ErrIndexOutOfRange, plane, unit, i)
	}
	g := unit*p.Period + p.Start + i
	s := fr.format.Samples
	return fr.Sample(g/s.Count, g%s.Count)
}

// Field returns a named header field.
func (fr *Frame[W]) Field(name string) (uint64, error) {
	fd, ok := fr.format.Field(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, fr.format.Name, name)
	}
	return bitfield.Extract(fr.words, fd.offset(fr.format.WordBits), fd.Width)
}

// SetField writes a named header field, leaving every other bit untouched.
func (fr *Frame[W]) SetField(name string, v uint64) error {
	fd, ok := fr.format.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, fr.format.Name, name)
	}
	return bitfield.Deposit(fr.words, fd.offset(fr.format.WordBits), fd.Width, v)
}

// Ranges are checked by Format.Validate, so extraction cannot fail here.
func (fr *Frame[W]) get(r BitRange) uint64 {
	v, _ := bitfield.Extract(fr.words, r.offset(fr.format.WordBits), r.Width)
	return v
}

func (fr *Frame[W]) put(r BitRange, v uint64) {
	_ = bitfield.Deposit(fr.words, r.offset(fr.format.WordBits), r.Width, v&bitfield.Mask(r.Width))
}

func (fr *Frame[W]) extended() timestamp.Extended {
	ts := fr.format.Timestamp
	return timestamp.Extended{
		Low:     uint32(fr.get(ts.Low)),
		High:    uint16(fr.get(ts.High)),
		Ext:     uint16(fr.get(*ts.Ext)),
		Enabled: fr.get(*ts.Flag) == fr.format.enabled,
	}
}

func (fr *Frame[W]) storeExtended(e timestamp.Extended) {
	ts := fr.format.Timestamp
	fr.put(ts.Low, uint64(e.Low))
	fr.put(ts.High, uint64(e.High))
	fr.put(*ts.Ext, uint64(e.Ext))
}

// Timestamp returns the frame's 64-bit timestamp.
func (fr *Frame[W]) Timestamp() uint64 {
	ts := fr.format.Timestamp
	if fr.format.variant == timestamp.Extended64 {
		return fr.extended().Timestamp()
	}
	return fr.get(ts.Low) | fr.get(ts.High)<<uint(ts.Low.Width)
}

// SetTimestamp stores ts. The extension flag of extended timestamps is
// never modified.
func (fr *Frame[W]) SetTimestamp(v uint64) {
	ts := fr.format.Timestamp
	if fr.format.variant == timestamp.Extended64 {
		e := fr.extended()
		e.SetTimestamp(v)
		fr.storeExtended(e)
		return
	}
	fr.put(ts.Low, v)
	fr.put(ts.High, v>>uint(ts.Low.Width))
}

// Counter returns the extension counter of an extended timestamp. ok is
// false for formats without one.
func (fr *Frame[W]) Counter() (uint16, bool) {
	if fr.format.variant != timestamp.Extended64 {
		return 0, false
	}
	return fr.extended().Counter(), true
}

// SetCounter writes the extension counter; it reports whether the write
// applied.
func (fr *Frame[W]) SetCounter(v uint16) bool {
	if fr.format.variant != timestamp.Extended64 {
		return false
	}
	e := fr.extended()
	if !e.SetCounter(v) {
		return false
	}
	fr.storeExtended(e)
	return true
}

// Decode parses the first frame of data using the word size the format
// declares.
func Decode(f *Format, data []byte) (View, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil format", ErrInvalidFormat)
	}
	switch f.WordBits {
	case 32:
		fr, err := Parse[uint32](f, data)
		if err != nil {
			return nil, err
		}
		return fr, nil
	case 64:
		fr, err := Parse[uint64](f, data)
		if err != nil {
			return nil, err
		}
		return fr, nil
	}
	return nil, fmt.Errorf("%w: %d-bit words", ErrWordSize, f.WordBits)
}

// NewView returns a zeroed frame of the format.
func NewView(f *Format) (View, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil format", ErrInvalidFormat)
	}
	switch f.WordBits {
	case 32:
		fr, err := New[uint32](f)
		if err != nil {
			return nil, err
		}
		return fr, nil
	case 64:
		fr, err := New[uint64](f)
		if err != nil {
			return nil, err
		}
		return fr, nil
	}
	return nil, fmt.Errorf("%w: %d-bit words", ErrWordSize, f.WordBits)
}

// Split cuts data into whole frames. The returned slices alias data; rest
// holds any trailing partial frame.
func Split(f *Format, data []byte) (frames [][]byte, rest []byte) {
	n := f.FrameBytes()
	if n <= 0 {
		return nil, data
	}
	frames = make([][]byte, 0, len(data)/n)
	for len(data) >= n {
		frames = append(frames, data[:n:n])
		data = data[n:]
	}
	return frames, data
}
