package frame

import "github.com/samcharles93/detframe/pkg/detid"

// FieldValue is one decoded header field. Text holds a symbolic rendering
// where one exists.
type FieldValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
	Text  string `json:"text,omitempty"`
}

// Summary is the printable content of one frame.
type Summary struct {
	Format      string       `json:"format"`
	Subdetector string       `json:"subdetector,omitempty"`
	Timestamp   uint64       `json:"timestamp"`
	Counter     *uint16      `json:"counter,omitempty"`
	Fields      []FieldValue `json:"fields"`
	Block       *int         `json:"block,omitempty"`
	Samples     []uint64     `json:"samples,omitempty"`
}

// Fields holding a subdetector code.
var detIDFields = map[string]bool{"det_id": true, "detector_id": true}

// Summarize reads every field of v in declaration order. When block is
// non-negative the samples of that block are included.
func Summarize(v View, block int) (Summary, error) {
	f := v.Format()
	s := Summary{
		Format:      f.Name,
		Subdetector: f.Subdetector,
		Timestamp:   v.Timestamp(),
		Fields:      make([]FieldValue, 0, len(f.Fields)),
	}
	if c, ok := v.Counter(); ok {
		s.Counter = &c
	}
	for _, fd := range f.Fields {
		val, err := v.Field(fd.Name)
		if err != nil {
			return s, err
		}
		fv := FieldValue{Name: fd.Name, Value: val}
		if detIDFields[fd.Name] {
			fv.Text = detid.Subdetector(val).String()
		}
		s.Fields = append(s.Fields, fv)
	}
	if block >= 0 {
		samples, err := v.Samples(block, nil)
		if err != nil {
			return s, err
		}
		s.Block = &block
		s.Samples = samples
	}
	return s, nil
}
