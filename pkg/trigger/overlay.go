package trigger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/samcharles93/detframe/pkg/overlay"
)

var ErrUnknownKind = errors.New("trigger: unknown record kind")

// Kind selects an overlay mapping at runtime.
type Kind uint8

const (
	KindActivity Kind = iota + 1
	KindCandidate
)

func (k Kind) String() string {
	switch k {
	case KindActivity:
		return "activity"
	case KindCandidate:
		return "candidate"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind accepts "activity"/"ta" and "candidate"/"tc".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "activity", "ta":
		return KindActivity, nil
	case "candidate", "tc":
		return KindCandidate, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Record is a decoded overlay of either kind.
type Record interface {
	Kind() Kind
	// StartTime is the header's time_start, used to order stored records.
	StartTime() uint64
	Len() int
	Marshal() ([]byte, error)
}

var (
	activityLayout  = overlay.LittleEndian[ActivityData, Primitive]()
	candidateLayout = overlay.LittleEndian[CandidateData, ActivityData]()
)

func (a *Activity) Kind() Kind        { return KindActivity }
func (a *Activity) StartTime() uint64 { return a.Data.TimeStart }
func (a *Activity) Len() int          { return len(a.Inputs) }

// Marshal encodes the activity as ActivityData, count, Primitive...
func (a *Activity) Marshal() ([]byte, error) {
	return activityLayout.Marshal(a.Data, a.Inputs)
}

func (c *Candidate) Kind() Kind        { return KindCandidate }
func (c *Candidate) StartTime() uint64 { return c.Data.TimeStart }
func (c *Candidate) Len() int          { return len(c.Inputs) }

// Marshal encodes the candidate as CandidateData, count, ActivityData...
func (c *Candidate) Marshal() ([]byte, error) {
	return candidateLayout.Marshal(c.Data, c.Inputs)
}

// ActivitySize returns the overlay size of an activity with n primitives.
func ActivitySize(n int) (int, error) { return activityLayout.Size(n) }

// WriteActivity writes a into buf, which must hold ActivitySize(len(a.Inputs)) bytes.
func WriteActivity(buf []byte, a *Activity) (int, error) {
	return activityLayout.Write(buf, a.Data, a.Inputs)
}

// MarshalActivity returns a newly allocated activity overlay.
func MarshalActivity(a *Activity) ([]byte, error) { return a.Marshal() }

// ReadActivity decodes an activity overlay.
func ReadActivity(buf []byte) (*Activity, error) {
	data, inputs, err := activityLayout.Read(buf)
	if err != nil {
		return nil, err
	}
	return &Activity{Data: data, Inputs: inputs}, nil
}

// CandidateSize returns the overlay size of a candidate with n activities.
func CandidateSize(n int) (int, error) { return candidateLayout.Size(n) }

// WriteCandidate writes c into buf, which must hold CandidateSize(len(c.Inputs)) bytes.
func WriteCandidate(buf []byte, c *Candidate) (int, error) {
	return candidateLayout.Write(buf, c.Data, c.Inputs)
}

func MarshalCandidate(c *Candidate) ([]byte, error) { return c.Marshal() }

// ReadCandidate decodes a candidate overlay.
func ReadCandidate(buf []byte) (*Candidate, error) {
	data, inputs, err := candidateLayout.Read(buf)
	if err != nil {
		return nil, err
	}
	return &Candidate{Data: data, Inputs: inputs}, nil
}

// Decode reads one overlay of the given kind.
func Decode(k Kind, buf []byte) (Record, error) {
	switch k {
	case KindActivity:
		return ReadActivity(buf)
	case KindCandidate:
		return ReadCandidate(buf)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
}

// DecodeStream reads back-to-back overlays of one kind until buf is
// exhausted.
func DecodeStream(k Kind, buf []byte, fn func(Record) error) error {
	for len(buf) > 0 {
		var (
			rec Record
			err error
		)
		switch k {
		case KindActivity:
			var data ActivityData
			var inputs []Primitive
			data, inputs, buf, err = activityLayout.Next(buf)
			rec = &Activity{Data: data, Inputs: inputs}
		case KindCandidate:
			var data CandidateData
			var inputs []ActivityData
			data, inputs, buf, err = candidateLayout.Next(buf)
			rec = &Candidate{Data: data, Inputs: inputs}
		default:
			return fmt.Errorf("%w: %d", ErrUnknownKind, k)
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// MarshalPrimitive encodes a primitive on its own. Primitives carry no
// children, so the encoding is the bare fixed-size record.
func MarshalPrimitive(p Primitive) ([]byte, error) {
	return binary.Append(make([]byte, 0, PrimitiveSize), binary.LittleEndian, p)
}

// ReadPrimitive decodes a lone primitive written by MarshalPrimitive.
func ReadPrimitive(buf []byte) (Primitive, error) {
	var p Primitive
	if len(buf) < PrimitiveSize {
		return p, fmt.Errorf("%w: %d bytes, primitive needs %d", overlay.ErrBufferTooShort, len(buf), PrimitiveSize)
	}
	_, err := binary.Decode(buf[:PrimitiveSize], binary.LittleEndian, &p)
	return p, err
}
