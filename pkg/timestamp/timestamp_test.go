package timestamp

import (
	"math"
	"testing"
)

var roundTripValues = []uint64{0, 1, math.MaxUint32, 1 << 32, 1<<48 - 1, math.MaxUint64}

func TestPlainRoundTrip(t *testing.T) {
	t.Parallel()

	for _, ts := range roundTripValues {
		lo, hi := Decompose(ts)
		if got := Compose(lo, hi); got != ts {
			t.Fatalf("compose(decompose(%#x)): got %#x", ts, got)
		}
	}
	if lo, hi := Decompose(0x1122334455667788); lo != 0x55667788 || hi != 0x11223344 {
		t.Fatalf("decompose halves: got %#x %#x", lo, hi)
	}
}

func TestExtendedRoundTrip(t *testing.T) {
	t.Parallel()

	for _, enabled := range []bool{true, false} {
		for _, ts := range roundTripValues {
			e := Extended{Enabled: enabled, Ext: 0x1234}
			e.SetTimestamp(ts)
			if e.Enabled != enabled {
				t.Fatalf("SetTimestamp changed flag")
			}
			want := ts & e.Representable()
			if got := e.Timestamp(); got != want {
				t.Fatalf("enabled=%v ts=%#x: got %#x want %#x", enabled, ts, got, want)
			}
			if !enabled && e.Counter() != 0x1234 {
				t.Fatalf("disabled extension overwritten: %#x", e.Counter())
			}
		}
	}
}

func TestExtendedEnabled(t *testing.T) {
	t.Parallel()

	e := Extended{Low: 0x11111111, High: 0x2222, Ext: 0x7FFF, Enabled: true}
	if got := e.Timestamp(); got != 0x7FFF222211111111 {
		t.Fatalf("timestamp: got %#x", got)
	}
	if e.SetCounter(0x3333) {
		t.Fatalf("counter write should be refused while enabled")
	}
	if e.Counter() != 0 || e.Ext != 0x7FFF {
		t.Fatalf("counter: got %#x ext %#x", e.Counter(), e.Ext)
	}

	e.SetTimestamp(0xF333444455555555)
	if got := e.Timestamp(); got != 0x7333444455555555 {
		t.Fatalf("timestamp after set: got %#x", got)
	}
	if e.Ext != 0x7333 || e.Low != 0x55555555 || e.High != 0x4444 {
		t.Fatalf("fields after set: %+v", e)
	}
}

func TestExtendedDisabled(t *testing.T) {
	t.Parallel()

	e := Extended{Low: 0x11111111, High: 0x2222, Ext: 0x7FFF}
	if got := e.Timestamp(); got != 0x222211111111 {
		t.Fatalf("timestamp: got %#x", got)
	}
	if !e.SetCounter(0x7333) || e.Counter() != 0x7333 {
		t.Fatalf("counter: got %#x", e.Counter())
	}
	e.SetTimestamp(0xFFFF444455555555)
	if got := e.Timestamp(); got != 0x444455555555 {
		t.Fatalf("timestamp after set: got %#x", got)
	}
	if e.Counter() != 0x7333 {
		t.Fatalf("counter clobbered: %#x", e.Counter())
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	for _, v := range []Variant{Plain64, Extended64} {
		got, err := ParseVariant(v.String())
		if err != nil || got != v {
			t.Fatalf("parse %q: got %v err %v", v, got, err)
		}
	}
	if _, err := ParseVariant("split"); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}
