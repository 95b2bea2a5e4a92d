package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

func wib2(t *testing.T) *frame.Format {
	t.Helper()
	reg, err := frame.Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	f, err := reg.Lookup("wib2")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return f
}

func writeSections(t *testing.T, path string, sections map[SectionType][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for typ, data := range sections {
		if err := w.WriteSection(typ, 1, data); err != nil {
			t.Fatalf("write %s: %v", typ, err)
		}
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
}

func TestOpenReaderAtRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.dcf")
	writeSections(t, path, map[SectionType][]byte{
		SectionInfo:   []byte(`{"format":"wib2"}`),
		SectionFrames: {1, 2, 3, 4, 5, 6},
	})

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = rf.Close() }()
	st, err := rf.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	cf, err := OpenReaderAt(rf, st.Size())
	if err != nil {
		t.Fatalf("open readerat: %v", err)
	}
	defer func() {
		if cerr := cf.Close(); cerr != nil {
			t.Fatalf("close: %v", cerr)
		}
	}()

	if cf.mmapped {
		t.Fatalf("OpenReaderAt should not mmap")
	}
	if cf.Header.HeaderSize != headerSize {
		t.Fatalf("header size: got %d want %d", cf.Header.HeaderSize, headerSize)
	}
	if cf.Sections[0].Type != uint32(SectionInfo) || cf.Sections[1].Type != uint32(SectionFrames) {
		t.Fatalf("directory not sorted: %+v", cf.Sections)
	}
	got := cf.SectionData(cf.Section(SectionFrames))
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("frames: got %v", got)
	}
	for _, s := range cf.Sections {
		if s.Offset%align != 0 {
			t.Fatalf("section %d at unaligned offset %d", s.Type, s.Offset)
		}
	}
	if cf.Section(SectionCandidates) != nil {
		t.Fatalf("unexpected candidates section")
	}
}

func TestHeaderAndSectionEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	h := Header{
		Magic:            [4]byte{'D', 'C', 'F', 0},
		Major:            0x1122,
		Minor:            0x3344,
		HeaderSize:       headerSize,
		SectionCount:     7,
		SectionDirOffset: 0x0102030405060708,
		FileSize:         0x1112131415161718,
		Flags:            0x2122232425262728,
	}
	var raw [headerSize]byte
	if !encodeHeader(raw[:], h) {
		t.Fatalf("encode header failed")
	}
	if raw[4] != 0x22 || raw[5] != 0x11 {
		t.Fatalf("major is not little-endian: %x", raw[4:6])
	}
	if raw[16] != 0x08 || raw[23] != 0x01 {
		t.Fatalf("directory offset is not little-endian: %x", raw[16:24])
	}
	back, ok := decodeHeader(raw[:])
	if !ok || back != h {
		t.Fatalf("header round-trip: got %+v want %+v", back, h)
	}
	if _, ok := decodeHeader(raw[:headerSize-1]); ok {
		t.Fatalf("short header decoded")
	}

	s := Section{Type: 0x11223344, Version: 0x55667788, Offset: 0x0102030405060708, Size: 0x1112131415161718}
	var sec [sectionSize]byte
	if !encodeSection(sec[:], s) {
		t.Fatalf("encode section failed")
	}
	if sec[0] != 0x44 || sec[3] != 0x11 || sec[8] != 0x08 || sec[15] != 0x01 {
		t.Fatalf("section is not little-endian: %x", sec)
	}
	if got, ok := decodeSection(sec[:]); !ok || got != s {
		t.Fatalf("section round-trip: got %+v want %+v", got, s)
	}
}

func TestWriterMisuse(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "x.dcf"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	sw, err := w.BeginSection(SectionFrames, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.WriteSection(SectionInfo, 1, nil); !errors.Is(err, errSectionOpen) {
		t.Fatalf("write while streaming: got %v", err)
	}
	if err := w.Finalise(); !errors.Is(err, errSectionOpen) {
		t.Fatalf("finalise while streaming: got %v", err)
	}
	if _, err := sw.Write([]byte("abc")); err != nil {
		t.Fatalf("stream write: %v", err)
	}
	if n, err := sw.BytesWritten(); err != nil || n != 3 {
		t.Fatalf("bytes written: %d %v", n, err)
	}
	if err := sw.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := sw.Write([]byte("x")); !errors.Is(err, errSectionEnded) {
		t.Fatalf("write after end: got %v", err)
	}
	if err := w.WriteSection(SectionFrames, 1, nil); !errors.Is(err, errDuplicateType) {
		t.Fatalf("duplicate: got %v", err)
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if err := w.AddFlags(1); !errors.Is(err, errFinalised) {
		t.Fatalf("flags after finalise: got %v", err)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	t.Parallel()

	format := wib2(t)
	path := filepath.Join(t.TempDir(), "run.dcf")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := NewRecorder(out, format, "test")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}

	const frames = 5
	for i := range frames {
		v, err := frame.NewView(format)
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		v.SetTimestamp(uint64(1000 + i*32))
		if err := v.SetSample(0, 0, uint64(i)); err != nil {
			t.Fatalf("sample: %v", err)
		}
		if err := rec.AddView(v); err != nil {
			t.Fatalf("add frame %d: %v", i, err)
		}
	}
	if err := rec.AddFrame(make([]byte, 10)); !errors.Is(err, frame.ErrShortFrame) {
		t.Fatalf("wrong-size frame: got %v", err)
	}

	a := &trigger.Activity{Data: trigger.NewActivityData(), Inputs: []trigger.Primitive{trigger.NewPrimitive()}}
	a.Data.TimeStart = 1000
	c := &trigger.Candidate{Data: trigger.NewCandidateData(), Inputs: []trigger.ActivityData{a.Data, a.Data}}
	if err := rec.AddActivity(a); err != nil {
		t.Fatalf("activity: %v", err)
	}
	if err := rec.AddActivity(a); err != nil {
		t.Fatalf("activity: %v", err)
	}
	if err := rec.AddCandidate(c); err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}
	if err := rec.Close(); !errors.Is(err, errFinalised) {
		t.Fatalf("double close: got %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	cf, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = cf.Close() }()

	info, err := cf.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Format != "wib2" || info.FrameCount != frames || info.FrameBytes != format.FrameBytes() {
		t.Fatalf("info: %+v", info)
	}
	if info.Activities != 2 || info.Candidates != 1 || info.Tool != "test" {
		t.Fatalf("info counts: %+v", info)
	}
	if cf.Header.Flags&FlagFramesAligned == 0 {
		t.Fatalf("472-byte frames should be flagged aligned")
	}

	var seen int
	err = cf.Frames(func(i int, data []byte) error {
		v, err := frame.Decode(format, data)
		if err != nil {
			return err
		}
		if v.Timestamp() != uint64(1000+i*32) {
			t.Fatalf("frame %d timestamp: %d", i, v.Timestamp())
		}
		if s, _ := v.Sample(0, 0); s != uint64(i) {
			t.Fatalf("frame %d sample: %d", i, s)
		}
		seen++
		return nil
	})
	if err != nil || seen != frames {
		t.Fatalf("frames: saw %d err %v", seen, err)
	}

	var acts, cands int
	if err := cf.Activities(func(got *trigger.Activity) error {
		if got.Data != a.Data || len(got.Inputs) != 1 {
			t.Fatalf("activity mismatch: %+v", got.Data)
		}
		acts++
		return nil
	}); err != nil {
		t.Fatalf("activities: %v", err)
	}
	if err := cf.Candidates(func(got *trigger.Candidate) error {
		if len(got.Inputs) != 2 || got.Inputs[1] != a.Data {
			t.Fatalf("candidate inputs mismatch")
		}
		cands++
		return nil
	}); err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if acts != 2 || cands != 1 {
		t.Fatalf("decoded %d activities, %d candidates", acts, cands)
	}
}

func validCapture(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v.dcf")
	writeSections(t, path, map[SectionType][]byte{SectionFrames: bytes.Repeat([]byte{0xAB}, 16)})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestOpenRejectsCorruptFiles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidMagic},
		{"major", func(b []byte) []byte { b[4] = 9; return b }, ErrUnsupportedMajor},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }, ErrCorruptFile},
		{"short", func(b []byte) []byte { return b[:10] }, ErrCorruptFile},
		{"directory past end", func(b []byte) []byte { b[16] = 0xFF; b[17] = 0xFF; return b }, ErrCorruptFile},
		{"section count", func(b []byte) []byte { b[12] = 50; return b }, ErrCorruptFile},
		{"section size", func(b []byte) []byte {
			dir := int(b[16]) | int(b[17])<<8
			b[dir+16] = 0xFF
			b[dir+17] = 0xFF
			return b
		}, ErrCorruptFile},
		{"unaligned section", func(b []byte) []byte {
			dir := int(b[16]) | int(b[17])<<8
			b[dir+8]++
			return b
		}, ErrCorruptFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := tc.mutate(validCapture(t))
			if _, err := OpenBytes(data); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestFramesNeedsInfo(t *testing.T) {
	t.Parallel()

	cf, err := OpenBytes(validCapture(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = cf.Frames(func(int, []byte) error { return nil })
	if !errors.Is(err, ErrMissingSection) {
		t.Fatalf("frames without info: got %v", err)
	}
}
