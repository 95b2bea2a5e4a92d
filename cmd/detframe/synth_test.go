package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/detframe/pkg/capture"
	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

func builtinFormat(t *testing.T, name string) (*frame.Registry, *frame.Format) {
	t.Helper()
	reg, err := frame.Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	f, err := reg.Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return reg, f
}

func TestSynthesizerWIBEth(t *testing.T) {
	t.Parallel()

	_, f := builtinFormat(t, "wibeth")
	s := newSynthesizer(f, 1000, 0)
	if s.step != 32*64 {
		t.Fatalf("default step: got %d want %d", s.step, 32*64)
	}
	for i := range 3 {
		v, err := s.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got, want := v.Timestamp(), uint64(1000+i*2048); got != want {
			t.Fatalf("frame %d timestamp: got %d want %d", i, got, want)
		}
		if seq, _ := v.Field("seq_id"); seq != uint64(i) {
			t.Fatalf("frame %d seq_id: got %d", i, seq)
		}
		if det, _ := v.Field("det_id"); det != 3 {
			t.Fatalf("det_id: got %d want 3", det)
		}
		if got, _ := v.Sample(5, 7); got != uint64(i+12) {
			t.Fatalf("sample: got %d want %d", got, i+12)
		}
	}
}

func TestSynthesizerSeqWraps(t *testing.T) {
	t.Parallel()

	_, f := builtinFormat(t, "wibeth")
	s := newSynthesizer(f, 0, 1)
	s.seq = 4095
	v, err := s.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seq, _ := v.Field("seq_id"); seq != 4095 {
		t.Fatalf("seq_id: got %d", seq)
	}
	v, err = s.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seq, _ := v.Field("seq_id"); seq != 0 {
		t.Fatalf("seq_id after wrap: got %d want 0", seq)
	}
}

func TestSynthesizeEveryBuiltin(t *testing.T) {
	t.Parallel()

	reg, err := frame.Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	for _, f := range reg.Formats() {
		t.Run(f.Name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeSynthetic(&buf, newSynthesizer(f, 0, 0), 2); err != nil {
				t.Fatalf("write: %v", err)
			}
			if buf.Len() != 2*f.FrameBytes() {
				t.Fatalf("bytes: got %d want %d", buf.Len(), 2*f.FrameBytes())
			}
		})
	}
}

func TestInspectRawFrames(t *testing.T) {
	t.Parallel()

	reg, f := builtinFormat(t, "wib2")
	path := filepath.Join(t.TempDir(), "frames.bin")
	var buf bytes.Buffer
	if err := writeSynthetic(&buf, newSynthesizer(f, 500, 10), 3); err != nil {
		t.Fatalf("synth: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	if err := runInspect(&out, reg, path, inspectOptions{format: "wib2", limit: 2, block: -1}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "3 wib2 frames") || !strings.Contains(text, "frame 1  timestamp=510") {
		t.Fatalf("unexpected output:\n%s", text)
	}
	if strings.Contains(text, "frame 2 ") {
		t.Fatalf("limit ignored:\n%s", text)
	}
	if !strings.Contains(text, "(HD_TPC)") {
		t.Fatalf("detector id not rendered:\n%s", text)
	}

	if err := runInspect(&out, reg, path, inspectOptions{block: -1}); err == nil {
		t.Fatalf("raw file without --format: want error")
	}
}

func TestPackThenInspectCapture(t *testing.T) {
	t.Parallel()

	reg, f := builtinFormat(t, "daphne")
	dir := t.TempDir()
	var frames, acts bytes.Buffer
	if err := writeSynthetic(&frames, newSynthesizer(f, 0, 0), 4); err != nil {
		t.Fatalf("synth frames: %v", err)
	}
	if err := writeRecords(&acts, trigger.KindActivity, 100, 2, 3); err != nil {
		t.Fatalf("synth activities: %v", err)
	}
	in := packInput{
		frames:     filepath.Join(dir, "frames.bin"),
		activities: filepath.Join(dir, "ta.bin"),
	}
	if err := os.WriteFile(in.frames, frames.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(in.activities, acts.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := filepath.Join(dir, "run.dcf")
	info, err := packCapture(out, f, in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if info.FrameCount != 4 || info.Activities != 2 || info.Candidates != 0 {
		t.Fatalf("info: %+v", info)
	}

	cf, err := capture.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = cf.Close()

	var buf bytes.Buffer
	if err := runInspect(&buf, reg, out, inspectOptions{asJSON: true, triggers: true, block: 0}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+4+2 {
		t.Fatalf("lines: got %d want 7\n%s", len(lines), buf.String())
	}
	var got capture.Info
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil || got.Format != "daphne" {
		t.Fatalf("info line: %v %s", err, lines[0])
	}
	var fr struct {
		Index   int      `json:"index"`
		Samples []uint64 `json:"samples"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &fr); err != nil || fr.Index != 1 || len(fr.Samples) != 320 {
		t.Fatalf("frame line: %v %s", err, lines[2])
	}
	if !strings.Contains(lines[5], `"kind":"activity"`) {
		t.Fatalf("activity line: %s", lines[5])
	}
}

func TestPackRejectsPartialFrame(t *testing.T) {
	t.Parallel()

	_, f := builtinFormat(t, "hsi")
	dir := t.TempDir()
	in := packInput{frames: filepath.Join(dir, "frames.bin")}
	if err := os.WriteFile(in.frames, make([]byte, f.FrameBytes()+3), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := packCapture(filepath.Join(dir, "out.dcf"), f, in); err == nil {
		t.Fatalf("pack of partial frame: want error")
	}
}
