package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format string
		want   string
	}{
		{"json", `"format":"wib2"`},
		{"JSON", `"format":"wib2"`},
		{"text", "format=wib2"},
		{"pretty", "format=wib2"},
		{"", "format=wib2"},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log, err := Setup(&buf, tc.format, "info")
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
			log.Info("decoded", "format", "wib2")
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("output %q missing %q", buf.String(), tc.want)
			}
		})
	}

	if _, err := Setup(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("unknown format accepted")
	}
	if _, err := Setup(&bytes.Buffer{}, "json", "loud"); err == nil {
		t.Fatalf("unknown level accepted")
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	log.Warn("dropped packet", "seq_id", 12)
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"seq_id":12`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "receiver").WithGroup("udp")
	log.Info("packet", "bytes", 7200)

	out := buf.String()
	if !strings.Contains(out, `"component":"receiver"`) {
		t.Fatalf("missing component: %s", out)
	}
	if !strings.Contains(out, `"udp":{"bytes":7200}`) {
		t.Fatalf("missing group: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), Text(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
	Discard().Error("nowhere")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseLevel(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q): got %v want %v", tc.input, got, tc.want)
		}
	}
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error disabled at warn level")
	}
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the same handler")
	}

	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("format", "wibeth")}).WithGroup("a").WithGroup("b"))
	log.Warn("bad frame", "msg", "short read", "ts", uint64(0xABC))
	out := buf.String()
	for _, want := range []string{"format=wibeth", `a.b.msg="short read"`, "a.b.ts=0xabc", "WARN "} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"key=value", true},
		{"", false},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.input); got != tc.want {
			t.Fatalf("needsQuoting(%q): got %v want %v", tc.input, got, tc.want)
		}
	}
}

func TestPrettyDomainValues(t *testing.T) {
	t.Parallel()

	frameHead := make([]byte, 40)
	for i := range frameHead {
		frameHead[i] = byte(i)
	}
	cases := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"bytes truncated", slog.Any("head", frameHead), "head=000102030405060708090a0b0c0d0e0f...(+24)"},
		{"short bytes", slog.Any("head", []byte{0xde, 0xad}), "head=dead"},
		{"error quoted", slog.Any("err", errors.New("short frame")), `err="short frame"`},
		{"uint hex", slog.Uint64("ts", 0x1234), "ts=0x1234"},
		{"int decimal", slog.Int("seq_id", 4095), "seq_id=4095"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			slog.New(NewPrettyHandler(&buf, nil)).Info("frame", tc.attr)
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("output %q missing %q", buf.String(), tc.want)
			}
		})
	}
}

func TestPrettyGroupsAndColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	log := slog.New(h.WithGroup("rx").WithAttrs([]slog.Attr{slog.Int("stream", 2)}).WithGroup("frame"))
	log.Info("gap", "seq_id", 7)
	out := buf.String()
	if !strings.Contains(out, "rx.stream=2 rx.frame.seq_id=7") {
		t.Fatalf("group keys: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("colour written to a buffer: %q", out)
	}

	buf.Reset()
	slog.New(h.WithColor(true)).Error("boom")
	if !strings.Contains(buf.String(), colorRed) || !strings.Contains(buf.String(), colorReset) {
		t.Fatalf("forced colour missing: %q", buf.String())
	}
}
