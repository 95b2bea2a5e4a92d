// Package capture implements the detector capture file (DCF).
//
// A DCF is a single-file, memory-mappable container holding a run of raw
// frames of one format plus any trigger overlays recorded alongside them.
// Payloads are stored exactly as they appear on the wire so a mapped section
// can be handed straight to the frame and trigger decoders.
package capture

import (
	"encoding/binary"
	"os"
)

const (
	// Magic is encoded as "DCF\0".
	Magic = "DCF\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0

	// FlagFramesAligned is set when every frame starts on an 8-byte boundary
	// within the frames section.
	FlagFramesAligned uint64 = 1 << 0

	headerSize  = 40
	sectionSize = 24
	align       = 8
)

type SectionType uint32

const (
	SectionInfo       SectionType = 0x0001
	SectionFrames     SectionType = 0x0002
	SectionActivities SectionType = 0x0003
	SectionCandidates SectionType = 0x0004
)

func (t SectionType) String() string {
	switch t {
	case SectionInfo:
		return "info"
	case SectionFrames:
		return "frames"
	case SectionActivities:
		return "activities"
	case SectionCandidates:
		return "candidates"
	}
	return "unknown"
}

type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic && h.HeaderSize >= headerSize
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}

type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s *Section) End() uint64 {
	return s.Offset + s.Size
}

func encodeHeader(buf []byte, h Header) bool {
	if len(buf) < headerSize {
		return false
	}
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:], h.Major)
	binary.LittleEndian.PutUint16(buf[6:], h.Minor)
	binary.LittleEndian.PutUint32(buf[8:], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[12:], h.SectionCount)
	binary.LittleEndian.PutUint64(buf[16:], h.SectionDirOffset)
	binary.LittleEndian.PutUint64(buf[24:], h.FileSize)
	binary.LittleEndian.PutUint64(buf[32:], h.Flags)
	return true
}

func decodeHeader(buf []byte) (Header, bool) {
	var h Header
	if len(buf) < headerSize {
		return h, false
	}
	copy(h.Magic[:], buf[0:4])
	h.Major = binary.LittleEndian.Uint16(buf[4:])
	h.Minor = binary.LittleEndian.Uint16(buf[6:])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[8:])
	h.SectionCount = binary.LittleEndian.Uint32(buf[12:])
	h.SectionDirOffset = binary.LittleEndian.Uint64(buf[16:])
	h.FileSize = binary.LittleEndian.Uint64(buf[24:])
	h.Flags = binary.LittleEndian.Uint64(buf[32:])
	return h, true
}

func encodeSection(buf []byte, s Section) bool {
	if len(buf) < sectionSize {
		return false
	}
	binary.LittleEndian.PutUint32(buf[0:], s.Type)
	binary.LittleEndian.PutUint32(buf[4:], s.Version)
	binary.LittleEndian.PutUint64(buf[8:], s.Offset)
	binary.LittleEndian.PutUint64(buf[16:], s.Size)
	return true
}

func decodeSection(buf []byte) (Section, bool) {
	if len(buf) < sectionSize {
		return Section{}, false
	}
	return Section{
		Type:    binary.LittleEndian.Uint32(buf[0:]),
		Version: binary.LittleEndian.Uint32(buf[4:]),
		Offset:  binary.LittleEndian.Uint64(buf[8:]),
		Size:    binary.LittleEndian.Uint64(buf[16:]),
	}, true
}

// half-open ranges [a0,a1) and [b0,b1)
func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	return a0 < b1 && b0 < a1
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
