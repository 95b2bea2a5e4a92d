// Package detid identifies the subdetector a frame or record came from.
package detid

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Version of the DetID layout.
const Version uint16 = 1

// Size is the encoded size of a DetID.
const Size = 4

type Subdetector uint16

const (
	Unknown       Subdetector = 0
	DAQ           Subdetector = 1
	HDPDS         Subdetector = 2
	HDTPC         Subdetector = 3
	HDCRT         Subdetector = 4
	VDCathodePDS  Subdetector = 8
	VDMembranePDS Subdetector = 9
	VDBottomTPC   Subdetector = 10
	VDTopTPC      Subdetector = 11
	NDLArTPC      Subdetector = 32
	NDLArPDS      Subdetector = 33
	NDGAr         Subdetector = 34
)

var names = map[Subdetector]string{
	DAQ:           "DAQ",
	HDPDS:         "HD_PDS",
	HDTPC:         "HD_TPC",
	HDCRT:         "HD_CRT",
	VDCathodePDS:  "VD_Cathode_PDS",
	VDMembranePDS: "VD_Membrane_PDS",
	VDBottomTPC:   "VD_Bottom_TPC",
	VDTopTPC:      "VD_Top_TPC",
	NDLArTPC:      "NDLAr_TPC",
	NDLArPDS:      "NDLAr_PDS",
	NDGAr:         "ND_GAr",
}

func (s Subdetector) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "Unknown"
}

// ParseSubdetector is the inverse of String. Unrecognised names map to
// Unknown, matching how the subdetector is read back from text elsewhere in
// the DAQ.
func ParseSubdetector(s string) Subdetector {
	for sd, n := range names {
		if strings.EqualFold(n, s) {
			return sd
		}
	}
	return Unknown
}

// All returns every named subdetector in ascending order.
func All() []Subdetector {
	return []Subdetector{DAQ, HDPDS, HDTPC, HDCRT, VDCathodePDS, VDMembranePDS, VDBottomTPC, VDTopTPC, NDLArTPC, NDLArPDS, NDGAr}
}

// DetID is the versioned subdetector identifier.
type DetID struct {
	Version     uint16
	Subdetector Subdetector
}

func New(s Subdetector) DetID { return DetID{Version: Version, Subdetector: s} }

// Valid reports whether the subdetector is known.
func (d DetID) Valid() bool { return d.Subdetector != Unknown }

func (d DetID) String() string { return "subdetector: " + d.Subdetector.String() }

func (d DetID) MarshalBinary() ([]byte, error) {
	var b [Size]byte
	binary.LittleEndian.PutUint16(b[0:], d.Version)
	binary.LittleEndian.PutUint16(b[2:], uint16(d.Subdetector))
	return b[:], nil
}

func (d *DetID) UnmarshalBinary(b []byte) error {
	if len(b) < Size {
		return fmt.Errorf("detid: need %d bytes, have %d", Size, len(b))
	}
	d.Version = binary.LittleEndian.Uint16(b[0:])
	d.Subdetector = Subdetector(binary.LittleEndian.Uint16(b[2:]))
	return nil
}

func (s Subdetector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Subdetector) UnmarshalText(b []byte) error {
	*s = ParseSubdetector(string(b))
	return nil
}
