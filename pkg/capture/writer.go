package capture

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

const padBufSize = 4096

var (
	errFinalised     = errors.New("capture: writer already finalised")
	errSectionOpen   = errors.New("capture: section write in progress")
	errSectionEnded  = errors.New("capture: section writer ended")
	errSectionIdle   = errors.New("capture: section writer not active")
	errDuplicateType = errors.New("capture: duplicate section type")
)

// Writer builds a capture file in a single forward pass. Space for the header
// is reserved up front and patched by Finalise.
type Writer struct {
	mu sync.Mutex

	f        *os.File
	sections []Section
	seen     map[SectionType]struct{}
	open     *SectionWriter
	closed   bool
	flags    uint64
	pad      []byte
}

// SectionWriter streams one section payload straight to the file. It must be
// ended before another section is started.
type SectionWriter struct {
	w       *Writer
	typ     SectionType
	version uint32
	start   int64
	ended   bool
}

// NewWriter truncates f and reserves the header.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("capture: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	w := &Writer{
		f:    f,
		seen: make(map[SectionType]struct{}),
		pad:  make([]byte, padBufSize),
	}
	if err := w.writeZeros(headerSize); err != nil {
		return nil, err
	}
	return w, nil
}

// begin checks that a new section of typ may start and returns its aligned
// offset. w.mu must be held.
func (w *Writer) begin(typ SectionType) (int64, error) {
	if w.closed {
		return 0, errFinalised
	}
	if w.open != nil {
		return 0, errSectionOpen
	}
	if _, ok := w.seen[typ]; ok {
		return 0, fmt.Errorf("%w: %s", errDuplicateType, typ)
	}
	if err := w.alignTo(align); err != nil {
		return 0, err
	}
	return w.f.Seek(0, io.SeekCurrent)
}

// WriteSection writes a whole section payload. Each type may be written once.
func (w *Writer) WriteSection(typ SectionType, version uint32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.begin(typ)
	if err != nil {
		return err
	}
	if err := writeFull(w.f, data); err != nil {
		return err
	}
	w.sections = append(w.sections, Section{
		Type:    uint32(typ),
		Version: version,
		Offset:  uint64(offset),
		Size:    uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return nil
}

func (w *Writer) AddFlags(flags uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errFinalised
	}
	w.flags |= flags
	return nil
}

// BeginSection starts streaming a section. The type is consumed immediately,
// even if the section is never ended.
func (w *Writer) BeginSection(typ SectionType, version uint32) (*SectionWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start, err := w.begin(typ)
	if err != nil {
		return nil, err
	}
	sw := &SectionWriter{w: w, typ: typ, version: version, start: start}
	w.open = sw
	w.seen[typ] = struct{}{}
	return sw, nil
}

// active reports whether sw may still write. sw.w.mu must be held.
func (sw *SectionWriter) active() error {
	if sw.ended {
		return errSectionEnded
	}
	if sw.w.open != sw {
		return errSectionIdle
	}
	return nil
}

// BytesWritten returns the payload length so far, including padding.
func (sw *SectionWriter) BytesWritten() (uint64, error) {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return 0, err
	}
	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(pos - sw.start), nil
}

// Align pads the section with zeros up to an n-byte file offset.
func (sw *SectionWriter) Align(n int) error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return err
	}
	return sw.w.alignTo(int64(n))
}

func (sw *SectionWriter) Write(p []byte) (int, error) {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return 0, err
	}
	if err := writeFull(sw.w.f, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// End records the section in the directory.
func (sw *SectionWriter) End() error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return err
	}
	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos < sw.start {
		return fmt.Errorf("%w: file position moved before section start", ErrCorruptFile)
	}
	sw.w.sections = append(sw.w.sections, Section{
		Type:    uint32(sw.typ),
		Version: sw.version,
		Offset:  uint64(sw.start),
		Size:    uint64(pos - sw.start),
	})
	sw.w.open = nil
	sw.ended = true
	return nil
}

// Close is End for use with defer.
func (sw *SectionWriter) Close() error { return sw.End() }

// Finalise writes the section directory, patches the header and syncs the
// file. The writer is unusable afterwards.
func (w *Writer) Finalise() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errFinalised
	}
	if w.open != nil {
		return errSectionOpen
	}
	w.closed = true

	slices.SortFunc(w.sections, func(a, b Section) int {
		return cmp.Compare(a.Type, b.Type)
	})

	if err := w.alignTo(align); err != nil {
		return err
	}
	dirOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	var secBuf [sectionSize]byte
	for _, s := range w.sections {
		encodeSection(secBuf[:], s)
		if err := writeFull(w.f, secBuf[:]); err != nil {
			return err
		}
	}

	fileSize, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.f.Truncate(fileSize); err != nil {
		return err
	}

	h := Header{
		Major:            CurrentMajor,
		Minor:            CurrentMinor,
		HeaderSize:       headerSize,
		SectionCount:     uint32(len(w.sections)),
		SectionDirOffset: uint64(dirOffset),
		FileSize:         uint64(fileSize),
		Flags:            w.flags,
	}
	copy(h.Magic[:], Magic)
	var hdrBuf [headerSize]byte
	encodeHeader(hdrBuf[:], h)
	if _, err := w.f.WriteAt(hdrBuf[:], 0); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) alignTo(n int64) error {
	if n <= 1 {
		return nil
	}
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if mod := pos % n; mod != 0 {
		return w.writeZeros(int(n - mod))
	}
	return nil
}

func (w *Writer) writeZeros(n int) error {
	for n > 0 {
		k := min(n, len(w.pad))
		if err := writeFull(w.f, w.pad[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}
