package trigger

// Primitive is a single hit on one channel.
type Primitive struct {
	Version           uint16             `json:"version"`
	_                 [6]byte            `json:"-"`
	TimeStart         uint64             `json:"time_start"`
	TimePeak          uint64             `json:"time_peak"`
	TimeOverThreshold uint64             `json:"time_over_threshold"`
	Channel           int32              `json:"channel"`
	ADCIntegral       uint32             `json:"adc_integral"`
	ADCPeak           uint16             `json:"adc_peak"`
	DetID             uint16             `json:"detid"`
	Type              PrimitiveType      `json:"type"`
	Algorithm         PrimitiveAlgorithm `json:"algorithm"`
	Flag              PrimitiveFlags     `json:"flag"`
	_                 [2]byte            `json:"-"`
}

// NewPrimitive returns a primitive with every field set to its invalid marker.
func NewPrimitive() Primitive {
	return Primitive{
		Version:           PrimitiveVersion,
		TimeStart:         InvalidTimestamp,
		TimePeak:          InvalidTimestamp,
		TimeOverThreshold: InvalidTimestamp,
		Channel:           InvalidChannel,
		DetID:             InvalidDetID,
	}
}

// Reserved markers written into the unused tail of ActivityData.
const (
	ActivityReserved1 uint16 = 0x1e1e
	ActivityReserved2 uint32 = 0x2d2d3c3c
)

// ActivityData is the header of a trigger activity. The layout is packed.
type ActivityData struct {
	Version      uint16            `json:"version"`
	DetID        uint16            `json:"detid"`
	ChannelStart int32             `json:"channel_start"`
	ChannelEnd   int32             `json:"channel_end"`
	ChannelPeak  int32             `json:"channel_peak"`
	TimeStart    uint64            `json:"time_start"`
	TimeEnd      uint64            `json:"time_end"`
	TimePeak     uint64            `json:"time_peak"`
	TimeActivity uint64            `json:"time_activity"`
	Type         ActivityType      `json:"type"`
	Algorithm    ActivityAlgorithm `json:"algorithm"`
	ADCIntegral  uint64            `json:"adc_integral"`
	ADCPeak      uint16            `json:"adc_peak"`
	Reserved1    uint16            `json:"-"`
	Reserved2    uint32            `json:"-"`
}

func NewActivityData() ActivityData {
	return ActivityData{
		Version:      ActivityVersion,
		DetID:        InvalidDetID,
		ChannelStart: InvalidChannel,
		ChannelEnd:   InvalidChannel,
		ChannelPeak:  InvalidChannel,
		TimeStart:    InvalidTimestamp,
		TimeEnd:      InvalidTimestamp,
		TimePeak:     InvalidTimestamp,
		TimeActivity: InvalidTimestamp,
		Reserved1:    ActivityReserved1,
		Reserved2:    ActivityReserved2,
	}
}

// CandidateData is the header of a trigger candidate.
type CandidateData struct {
	Version       uint16             `json:"version"`
	_             [6]byte            `json:"-"`
	TimeStart     uint64             `json:"time_start"`
	TimeEnd       uint64             `json:"time_end"`
	TimeCandidate uint64             `json:"time_candidate"`
	DetID         uint16             `json:"detid"`
	_             [2]byte            `json:"-"`
	Type          CandidateType      `json:"type"`
	Algorithm     CandidateAlgorithm `json:"algorithm"`
	_             [4]byte            `json:"-"`
}

func NewCandidateData() CandidateData {
	return CandidateData{
		Version:       CandidateVersion,
		TimeStart:     InvalidTimestamp,
		TimeEnd:       InvalidTimestamp,
		TimeCandidate: InvalidTimestamp,
		DetID:         InvalidDetID,
	}
}

// Activity is a cluster of primitives.
type Activity struct {
	Data   ActivityData `json:"data"`
	Inputs []Primitive  `json:"inputs"`
}

// Candidate is a set of activities that together warrant a readout decision.
type Candidate struct {
	Data   CandidateData  `json:"data"`
	Inputs []ActivityData `json:"inputs"`
}
