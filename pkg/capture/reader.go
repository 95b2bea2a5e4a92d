package capture

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/detframe/pkg/trigger"
)

// File is an opened capture. Section slices alias Data and must not be
// retained after Close.
type File struct {
	Data     []byte
	Header   *Header
	Sections []Section
	mmapped  bool
}

// Open maps a capture read-only and validates its structure, falling back to
// ReadAt when mmap is unavailable.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := st.Size()
	if size64 < headerSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptFile, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		cf, perr := parseFileData(data, true)
		if perr != nil {
			_ = unix.Munmap(data)
			return nil, perr
		}
		return cf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenReaderAt loads and validates a capture without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenBytes validates a capture already held in memory. data is not copied.
func OpenBytes(data []byte) (*File, error) {
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int
	for off < size {
		n, err := r.ReadAt(out[off:], int64(off))
		off += n
		if err == nil {
			continue
		}
		if err == io.EOF && off == size {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, fmt.Errorf("%w: short header", ErrCorruptFile)
	}
	if !hdr.Valid() {
		return nil, ErrInvalidMagic
	}
	if !hdr.Compatible() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMajor, hdr.Major)
	}
	size := uint64(len(data))
	if hdr.FileSize != size {
		return nil, fmt.Errorf("%w: header says %d bytes, have %d", ErrCorruptFile, hdr.FileSize, size)
	}
	if uint64(hdr.HeaderSize) > size {
		return nil, fmt.Errorf("%w: header size %d", ErrCorruptFile, hdr.HeaderSize)
	}

	dirStart := hdr.SectionDirOffset
	dirEnd := dirStart + uint64(hdr.SectionCount)*sectionSize
	if dirStart < uint64(hdr.HeaderSize) || dirEnd < dirStart || dirEnd > size {
		return nil, fmt.Errorf("%w: section directory out of bounds", ErrCorruptFile)
	}

	sections := make([]Section, hdr.SectionCount)
	for i := range sections {
		start := int(dirStart) + i*sectionSize
		sections[i], _ = decodeSection(data[start : start+sectionSize])
	}

	seen := make(map[uint32]struct{}, len(sections))
	for i := range sections {
		s := &sections[i]
		end := s.End()
		if end < s.Offset || end > size {
			return nil, fmt.Errorf("%w: section %d out of bounds", ErrCorruptFile, i)
		}
		if s.Offset < uint64(hdr.HeaderSize) {
			return nil, fmt.Errorf("%w: section %d overlaps header", ErrCorruptFile, i)
		}
		if rangesOverlap(s.Offset, end, dirStart, dirEnd) {
			return nil, fmt.Errorf("%w: section %d overlaps section directory", ErrCorruptFile, i)
		}
		if s.Offset%align != 0 {
			return nil, fmt.Errorf("%w: section %d offset not %d-byte aligned", ErrCorruptFile, i, align)
		}
		if _, dup := seen[s.Type]; dup {
			return nil, fmt.Errorf("%w: section type %d repeated", ErrCorruptFile, s.Type)
		}
		seen[s.Type] = struct{}{}
	}

	return &File{Data: data, Header: &hdr, Sections: sections, mmapped: mmapped}, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	var err error
	if f.Data != nil && f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.Header = nil
	f.Sections = nil
	f.mmapped = false
	return err
}

// Section returns the section of type t, or nil.
func (f *File) Section(t SectionType) *Section {
	for i := range f.Sections {
		if SectionType(f.Sections[i].Type) == t {
			return &f.Sections[i]
		}
	}
	return nil
}

// SectionData returns a zero-copy slice of the section payload.
func (f *File) SectionData(s *Section) []byte {
	if f == nil || s == nil || f.Data == nil {
		return nil
	}
	end := s.End()
	if end < s.Offset || end > uint64(len(f.Data)) {
		return nil
	}
	return f.Data[s.Offset:end]
}

func (f *File) sectionBytes(t SectionType) ([]byte, bool) {
	s := f.Section(t)
	if s == nil {
		return nil, false
	}
	return f.SectionData(s), true
}

// Info decodes the info section.
func (f *File) Info() (Info, error) {
	data, ok := f.sectionBytes(SectionInfo)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrMissingSection, SectionInfo)
	}
	return decodeInfo(data)
}

// Frames calls fn for every frame in the capture, in order. Frame slices
// alias the file data.
func (f *File) Frames(fn func(i int, frame []byte) error) error {
	info, err := f.Info()
	if err != nil {
		return err
	}
	data, ok := f.sectionBytes(SectionFrames)
	if !ok {
		return nil
	}
	if info.FrameBytes <= 0 {
		return fmt.Errorf("%w: frame size %d", ErrCorruptFile, info.FrameBytes)
	}
	if len(data)%info.FrameBytes != 0 {
		return fmt.Errorf("%w: frames section is %d bytes, not a multiple of %d", ErrCorruptFile, len(data), info.FrameBytes)
	}
	n := info.FrameBytes
	for i := 0; len(data) > 0; i++ {
		if err := fn(i, data[:n:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Activities decodes every trigger activity overlay in the capture.
func (f *File) Activities(fn func(*trigger.Activity) error) error {
	data, ok := f.sectionBytes(SectionActivities)
	if !ok {
		return nil
	}
	return trigger.DecodeStream(trigger.KindActivity, data, func(r trigger.Record) error {
		return fn(r.(*trigger.Activity))
	})
}

// Candidates decodes every trigger candidate overlay in the capture.
func (f *File) Candidates(fn func(*trigger.Candidate) error) error {
	data, ok := f.sectionBytes(SectionCandidates)
	if !ok {
		return nil
	}
	return trigger.DecodeStream(trigger.KindCandidate, data, func(r trigger.Record) error {
		return fn(r.(*trigger.Candidate))
	})
}
