// Package timestamp composes 64-bit timestamps from the narrower words that
// frame headers store them in.
package timestamp

import (
	"fmt"
	"math"
)

// Variant identifies how a frame stores its timestamp.
type Variant uint8

const (
	// Plain64 stores the timestamp as two 32-bit halves, low half first.
	Plain64 Variant = iota
	// Extended64 stores 48 bits in a 32/16 split plus a 15-bit extension
	// field gated by a one-bit flag.
	Extended64
)

const (
	ExtensionShift = 48
	ExtensionBits  = 15

	extensionMask = 1<<ExtensionBits - 1
)

func (v Variant) String() string {
	switch v {
	case Plain64:
		return "plain64"
	case Extended64:
		return "extended64"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// ParseVariant maps a descriptor name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "plain64":
		return Plain64, nil
	case "extended64":
		return Extended64, nil
	}
	return 0, fmt.Errorf("timestamp: unknown variant %q", s)
}

// Compose joins two 32-bit halves.
func Compose(low, high uint32) uint64 {
	return uint64(low) | uint64(high)<<32
}

// Decompose splits ts into its 32-bit halves.
func Decompose(ts uint64) (low, high uint32) {
	return uint32(ts), uint32(ts >> 32)
}

// Extended is the decoded form of an Extended64 timestamp.
//
// When Enabled is set the extension field supplies bits 48-62 of the
// timestamp. Otherwise those bits read as zero and Ext is an independent
// counter that SetTimestamp leaves alone. SetTimestamp never changes Enabled.
type Extended struct {
	Low     uint32
	High    uint16
	Ext     uint16
	Enabled bool
}

// Timestamp returns the composed 64-bit value.
func (e Extended) Timestamp() uint64 {
	ts := uint64(e.Low) | uint64(e.High)<<32
	if e.Enabled {
		ts |= uint64(e.Ext&extensionMask) << ExtensionShift
	}
	return ts
}

// SetTimestamp stores the representable bits of ts.
func (e *Extended) SetTimestamp(ts uint64) {
	e.Low = uint32(ts)
	e.High = uint16(ts >> 32)
	if e.Enabled {
		e.Ext = uint16(ts>>ExtensionShift) & extensionMask
	}
}

// Counter returns the extension field when it acts as a counter, and zero
// while it belongs to the timestamp.
func (e Extended) Counter() uint16 {
	if e.Enabled {
		return 0
	}
	return e.Ext & extensionMask
}

// SetCounter writes the extension field directly. It only applies while the
// extension is disabled, since otherwise the field belongs to the timestamp.
func (e *Extended) SetCounter(v uint16) bool {
	if e.Enabled {
		return false
	}
	e.Ext = v & extensionMask
	return true
}

// Representable returns the mask of timestamp bits that survive a
// SetTimestamp/Timestamp round trip.
func (e Extended) Representable() uint64 {
	if e.Enabled {
		return 1<<(ExtensionShift+ExtensionBits) - 1
	}
	return 1<<ExtensionShift - 1
}

// Representable returns the round-trip mask for v. Extended64 reports the
// enabled domain; use Extended.Representable for the flag-specific mask.
func (v Variant) Representable() uint64 {
	if v == Extended64 {
		return 1<<(ExtensionShift+ExtensionBits) - 1
	}
	return math.MaxUint64
}
