// Package trigger defines the fixed-size trigger records exchanged between
// DAQ processes and their overlay encodings.
//
// Every record type has a fixed little-endian layout with explicit padding,
// so that a record can be copied to and from a buffer without a parse pass.
package trigger

import (
	"fmt"
	"math"
)

const (
	InvalidTimestamp uint64 = math.MaxUint64
	InvalidDetID     uint16 = math.MaxUint16
	WholeDetector    uint16 = InvalidDetID - 1
	InvalidChannel   int32  = math.MaxInt32
	InvalidVersion   uint16 = math.MaxUint16

	PrimitiveVersion uint16 = 1
	ActivityVersion  uint16 = 1
	CandidateVersion uint16 = 1
)

// Fixed encoded sizes.
const (
	PrimitiveSize     = 56
	ActivityDataSize  = 72
	CandidateDataSize = 48
)

// PrimitiveType is the source of a trigger primitive.
type PrimitiveType int32

const (
	PrimitiveUnknown PrimitiveType = iota
	PrimitiveTPC
	PrimitivePDS
)

func (t PrimitiveType) String() string {
	switch t {
	case PrimitiveUnknown:
		return "unknown"
	case PrimitiveTPC:
		return "tpc"
	case PrimitivePDS:
		return "pds"
	}
	return fmt.Sprintf("PrimitiveType(%d)", int32(t))
}

// PrimitiveAlgorithm is the algorithm that formed a trigger primitive.
type PrimitiveAlgorithm int32

const (
	PrimitiveAlgorithmUnknown PrimitiveAlgorithm = iota
	PrimitiveAlgorithmTPCDefault
)

func (a PrimitiveAlgorithm) String() string {
	switch a {
	case PrimitiveAlgorithmUnknown:
		return "unknown"
	case PrimitiveAlgorithmTPCDefault:
		return "tpc_default"
	}
	return fmt.Sprintf("PrimitiveAlgorithm(%d)", int32(a))
}

// PrimitiveFlags is a bitmask of per-primitive condition flags.
type PrimitiveFlags uint16

const (
	FlagSomehowBad PrimitiveFlags = 1 << iota
)

func (f PrimitiveFlags) Has(bit PrimitiveFlags) bool { return f&bit != 0 }

// ActivityType is the source of a trigger activity.
type ActivityType uint32

const (
	ActivityUnknown ActivityType = iota
	ActivityTPC
	ActivityPDS
)

func (t ActivityType) String() string {
	switch t {
	case ActivityUnknown:
		return "unknown"
	case ActivityTPC:
		return "tpc"
	case ActivityPDS:
		return "pds"
	}
	return fmt.Sprintf("ActivityType(%d)", uint32(t))
}

// ActivityAlgorithm is the algorithm that formed a trigger activity.
type ActivityAlgorithm uint32

const (
	ActivityAlgorithmUnknown ActivityAlgorithm = iota
	ActivityAlgorithmSupernova
	ActivityAlgorithmPrescale
	ActivityAlgorithmADCSimpleWindow
)

func (a ActivityAlgorithm) String() string {
	switch a {
	case ActivityAlgorithmUnknown:
		return "unknown"
	case ActivityAlgorithmSupernova:
		return "supernova"
	case ActivityAlgorithmPrescale:
		return "prescale"
	case ActivityAlgorithmADCSimpleWindow:
		return "adc_simple_window"
	}
	return fmt.Sprintf("ActivityAlgorithm(%d)", uint32(a))
}

// CandidateType classifies a trigger candidate.
type CandidateType int32

const (
	CandidateUnknown CandidateType = iota
	CandidateTiming
	CandidateTPCLowE
	CandidateSupernova
	CandidateRandom
	CandidatePrescale
	CandidateADCSimpleWindow
	CandidateHorizontalMuon
	CandidateMichelElectron
	CandidatePlaneCoincidence
)

var candidateTypeNames = [...]string{
	"unknown", "timing", "tpc_low_e", "supernova", "random", "prescale",
	"adc_simple_window", "horizontal_muon", "michel_electron", "plane_coincidence",
}

func (t CandidateType) String() string {
	if t >= 0 && int(t) < len(candidateTypeNames) {
		return candidateTypeNames[t]
	}
	return fmt.Sprintf("CandidateType(%d)", int32(t))
}

// CandidateAlgorithm is the algorithm that formed a trigger candidate.
type CandidateAlgorithm int32

const (
	CandidateAlgorithmUnknown CandidateAlgorithm = iota
	CandidateAlgorithmSupernova
	CandidateAlgorithmHSIEventToTriggerCandidate
	CandidateAlgorithmPrescale
	CandidateAlgorithmADCSimpleWindow
	CandidateAlgorithmHorizontalMuon
	CandidateAlgorithmMichelElectron
	CandidateAlgorithmPlaneCoincidence
	CandidateAlgorithmCustom
)

var candidateAlgorithmNames = [...]string{
	"unknown", "supernova", "hsi_event_to_trigger_candidate", "prescale",
	"adc_simple_window", "horizontal_muon", "michel_electron", "plane_coincidence", "custom",
}

func (a CandidateAlgorithm) String() string {
	if a >= 0 && int(a) < len(candidateAlgorithmNames) {
		return candidateAlgorithmNames[a]
	}
	return fmt.Sprintf("CandidateAlgorithm(%d)", int32(a))
}
