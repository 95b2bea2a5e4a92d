// Package frame decodes and encodes fixed-size detector frames described by
// Format descriptors.
//
// A Format names where every header field, the timestamp and the packed
// sample array live inside a frame of fixed-width words. The per-hardware
// layouts ship as embedded YAML (see formats.yaml); additional layouts can be
// loaded at runtime without code changes.
package frame

import (
	"fmt"

	"github.com/samcharles93/detframe/pkg/bitfield"
	"github.com/samcharles93/detframe/pkg/timestamp"
)

// MaxFrameWords bounds frame_words so that bit offsets within a frame
// always fit in an int.
const MaxFrameWords = 1 << 24

// Sample layouts.
const (
	LayoutPacked     = "packed"
	LayoutWIBColdata = "wib-coldata"
)

// BitRange locates a value of Width bits starting at bit Bit of word Word.
// Ranges may cross word boundaries.
type BitRange struct {
	Word  int `yaml:"word" json:"word"`
	Bit   int `yaml:"bit" json:"bit"`
	Width int `yaml:"width" json:"width"`
}

func (r BitRange) offset(wordBits int) int { return r.Word*wordBits + r.Bit }

func (r BitRange) validate(wordBits, frameWords int) error {
	if r.Width < 1 || r.Width > 64 {
		return fmt.Errorf("width %d outside [1,64]", r.Width)
	}
	if r.Word < 0 || r.Word >= frameWords || r.Bit < 0 || r.Bit >= wordBits {
		return fmt.Errorf("position word %d bit %d invalid", r.Word, r.Bit)
	}
	if end := r.offset(wordBits) + r.Width; end > frameWords*wordBits {
		return fmt.Errorf("bits end at %d, frame has %d", end, frameWords*wordBits)
	}
	return nil
}

// Field is a named header or trailer bit-field.
type Field struct {
	Name     string `yaml:"name" json:"name"`
	BitRange `yaml:",inline"`
	Help     string `yaml:"help,omitempty" json:"help,omitempty"`
}

// Samples describes the packed ADC array.
type Samples struct {
	Layout string `yaml:"layout" json:"layout"`
	// Offset is the first word of block 0.
	Offset int `yaml:"offset" json:"offset"`
	// Width is the storage width per sample; Bits the significant bits.
	Width int `yaml:"width" json:"width"`
	Bits  int `yaml:"bits,omitempty" json:"bits"`
	// Count is the number of samples per block.
	Count  int `yaml:"count" json:"count"`
	Blocks int `yaml:"blocks,omitempty" json:"blocks"`
	// Stride is the distance in words between consecutive blocks.
	Stride int `yaml:"stride,omitempty" json:"stride"`
	// Channels is the number of distinct channels interleaved in the array.
	Channels int `yaml:"channels,omitempty" json:"channels"`
}

// Total returns the number of samples in a frame.
func (s Samples) Total() int { return s.Count * s.Blocks }

// Ticks returns the number of time samples per channel.
func (s Samples) Ticks() int {
	if s.Channels == 0 {
		return 0
	}
	return s.Total() / s.Channels
}

func (s Samples) layout() bitfield.Layout {
	return bitfield.Layout{Width: s.Width, Count: s.Count}
}

// Plane is a named group of channels repeated once per readout unit.
// Channel i of unit u is sample u*Period + Start + i.
type Plane struct {
	Name   string `yaml:"name" json:"name"`
	Start  int    `yaml:"start" json:"start"`
	Count  int    `yaml:"count" json:"count"`
	Units  int    `yaml:"units" json:"units"`
	Period int    `yaml:"period" json:"period"`
}

// TimestampLayout places the frame timestamp.
type TimestampLayout struct {
	Variant string    `yaml:"variant" json:"variant"`
	Low     BitRange  `yaml:"low" json:"low"`
	High    BitRange  `yaml:"high" json:"high"`
	Ext     *BitRange `yaml:"ext,omitempty" json:"ext,omitempty"`
	Flag    *BitRange `yaml:"flag,omitempty" json:"flag,omitempty"`
	// EnabledWhen is the flag value ("set" or "clear") under which the
	// extension field belongs to the timestamp.
	EnabledWhen string `yaml:"enabled_when,omitempty" json:"enabled_when,omitempty"`
}

// Format is a complete frame descriptor.
type Format struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Subdetector string          `yaml:"subdetector,omitempty" json:"subdetector,omitempty"`
	WordBits    int             `yaml:"word_bits" json:"word_bits"`
	FrameWords  int             `yaml:"frame_words" json:"frame_words"`
	Samples     Samples         `yaml:"samples" json:"samples"`
	Planes      []Plane         `yaml:"planes,omitempty" json:"planes,omitempty"`
	Timestamp   TimestampLayout `yaml:"timestamp" json:"timestamp"`
	Fields      []Field         `yaml:"fields" json:"fields"`

	variant  timestamp.Variant
	enabled  uint64
	fieldIdx map[string]int
	planeIdx map[string]int
	valid    bool
}

// FrameBytes is the encoded size of one frame.
func (f *Format) FrameBytes() int { return f.FrameWords * f.WordBits / 8 }

// Variant returns the parsed timestamp variant.
func (f *Format) Variant() timestamp.Variant { return f.variant }

// Field looks up a field descriptor by name.
func (f *Format) Field(name string) (Field, bool) {
	i, ok := f.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return f.Fields[i], true
}

// Plane looks up a plane by name.
func (f *Format) Plane(name string) (Plane, bool) {
	i, ok := f.planeIdx[name]
	if !ok {
		return Plane{}, false
	}
	return f.Planes[i], true
}

// Validate checks the descriptor for internal consistency, fills defaults
// and builds the lookup indexes. It must be called once, before the format
// is shared; frames refuse formats that have not passed it.
func (f *Format) Validate() error {
	f.valid = false
	if err := f.validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidFormat, f.Name, err)
	}
	f.valid = true
	return nil
}

func (f *Format) validate() error {
	if f.Name == "" {
		return fmt.Errorf("missing name")
	}
	if f.WordBits != 32 && f.WordBits != 64 {
		return fmt.Errorf("word_bits must be 32 or 64, got %d", f.WordBits)
	}
	if f.FrameWords < 1 || f.FrameWords > MaxFrameWords {
		return fmt.Errorf("frame_words %d outside [1,%d]", f.FrameWords, MaxFrameWords)
	}

	if err := f.validateSamples(); err != nil {
		return err
	}

	f.fieldIdx = make(map[string]int, len(f.Fields))
	for i, fd := range f.Fields {
		if fd.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if _, dup := f.fieldIdx[fd.Name]; dup {
			return fmt.Errorf("duplicate field %q", fd.Name)
		}
		if err := fd.validate(f.WordBits, f.FrameWords); err != nil {
			return fmt.Errorf("field %q: %v", fd.Name, err)
		}
		f.fieldIdx[fd.Name] = i
	}

	f.planeIdx = make(map[string]int, len(f.Planes))
	for i, p := range f.Planes {
		if p.Units < 1 {
			f.Planes[i].Units = 1
			p.Units = 1
		}
		total := f.Samples.Total()
		if p.Count < 1 || p.Start < 0 || p.Period < 0 || p.Count > total || p.Start > total-p.Count {
			return fmt.Errorf("plane %q: start %d count %d outside %d samples", p.Name, p.Start, p.Count, total)
		}
		// (Units-1)*Period + Start + Count <= total, without the product.
		if p.Units > total || (p.Units > 1 && p.Period > (total-p.Start-p.Count)/(p.Units-1)) {
			return fmt.Errorf("plane %q: %d units of period %d overrun %d samples", p.Name, p.Units, p.Period, total)
		}
		f.planeIdx[p.Name] = i
	}

	return f.validateTimestamp()
}

func (f *Format) validateSamples() error {
	s := &f.Samples
	if s.Layout == "" {
		s.Layout = LayoutPacked
	}
	if s.Count == 0 {
		s.Blocks = 0
		return nil
	}
	if s.Blocks == 0 {
		s.Blocks = 1
	}
	if s.Bits == 0 {
		s.Bits = s.Width
	}
	if s.Channels == 0 {
		s.Channels = s.Count
	}
	if s.Bits < 0 || s.Bits > s.Width {
		return fmt.Errorf("samples: bits %d exceed width %d", s.Bits, s.Width)
	}
	// Every operand is bounded by the frame before any offset arithmetic.
	frameBits := f.FrameWords * f.WordBits
	if s.Offset < 0 || s.Offset >= f.FrameWords {
		return fmt.Errorf("samples: offset %d outside frame of %d words", s.Offset, f.FrameWords)
	}
	if s.Count < 0 || s.Count > frameBits {
		return fmt.Errorf("samples: count %d cannot fit in %d bits", s.Count, frameBits)
	}
	if s.Blocks < 0 || s.Blocks > f.FrameWords {
		return fmt.Errorf("samples: %d blocks in a %d-word frame", s.Blocks, f.FrameWords)
	}
	if s.Stride < 0 || s.Stride > f.FrameWords {
		return fmt.Errorf("samples: stride %d outside frame of %d words", s.Stride, f.FrameWords)
	}
	if s.Channels < 1 || s.Channels > s.Total() {
		return fmt.Errorf("samples: %d channels for %d samples", s.Channels, s.Total())
	}
	if s.Total()%s.Channels != 0 {
		return fmt.Errorf("samples: %d samples do not divide into %d channels", s.Total(), s.Channels)
	}

	switch s.Layout {
	case LayoutPacked:
		if err := s.layout().Validate(f.WordBits); err != nil {
			return fmt.Errorf("samples: %v", err)
		}
		words := (s.Width*s.Count + f.WordBits - 1) / f.WordBits
		if s.Stride == 0 {
			s.Stride = words
		}
		if s.Stride < words {
			return fmt.Errorf("samples: stride %d shorter than block (%d words)", s.Stride, words)
		}
		if end := s.Offset + (s.Blocks-1)*s.Stride + words; end > f.FrameWords {
			return fmt.Errorf("samples: end at word %d, frame has %d", end, f.FrameWords)
		}
	case LayoutWIBColdata:
		if f.WordBits != 32 || s.Width != 12 || s.Count != coldataChannels {
			return fmt.Errorf("samples: %s needs 32-bit words, width 12 and count %d", LayoutWIBColdata, coldataChannels)
		}
		if s.Stride == 0 {
			s.Stride = coldataSegmentWords * coldataSegments
		}
		if end := s.Offset + (s.Blocks-1)*s.Stride + coldataSegmentWords*coldataSegments; end > f.FrameWords {
			return fmt.Errorf("samples: end at word %d, frame has %d", end, f.FrameWords)
		}
	default:
		return fmt.Errorf("samples: unknown layout %q", s.Layout)
	}
	return nil
}

func (f *Format) validateTimestamp() error {
	ts := &f.Timestamp
	v, err := timestamp.ParseVariant(ts.Variant)
	if err != nil {
		return err
	}
	f.variant = v
	if err := ts.Low.validate(f.WordBits, f.FrameWords); err != nil {
		return fmt.Errorf("timestamp low: %v", err)
	}
	if err := ts.High.validate(f.WordBits, f.FrameWords); err != nil {
		return fmt.Errorf("timestamp high: %v", err)
	}

	switch v {
	case timestamp.Plain64:
		if ts.Low.Width+ts.High.Width > 64 {
			return fmt.Errorf("timestamp halves exceed 64 bits")
		}
	case timestamp.Extended64:
		if ts.Low.Width != 32 || ts.High.Width != 16 {
			return fmt.Errorf("extended64 needs a 32-bit low and 16-bit high part")
		}
		if ts.Ext == nil || ts.Flag == nil {
			return fmt.Errorf("extended64 needs ext and flag ranges")
		}
		if ts.Ext.Width != timestamp.ExtensionBits || ts.Flag.Width != 1 {
			return fmt.Errorf("extended64 needs a %d-bit ext and 1-bit flag", timestamp.ExtensionBits)
		}
		if err := ts.Ext.validate(f.WordBits, f.FrameWords); err != nil {
			return fmt.Errorf("timestamp ext: %v", err)
		}
		if err := ts.Flag.validate(f.WordBits, f.FrameWords); err != nil {
			return fmt.Errorf("timestamp flag: %v", err)
		}
		switch ts.EnabledWhen {
		case "", "set":
			f.enabled = 1
		case "clear":
			f.enabled = 0
		default:
			return fmt.Errorf("enabled_when must be set or clear, got %q", ts.EnabledWhen)
		}
	}
	return nil
}
