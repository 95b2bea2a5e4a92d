package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

const sectionVersion uint32 = 1

// Recorder writes a complete capture in one pass: frames stream to disk as
// they arrive, trigger overlays are buffered and written on Close together
// with the info section.
type Recorder struct {
	mu sync.Mutex

	w      *Writer
	frames *SectionWriter
	format *frame.Format
	info   Info

	activities []byte
	candidates []byte
	done       bool
}

// NewRecorder starts a capture of frames of format f.
func NewRecorder(file *os.File, f *frame.Format, tool string) (*Recorder, error) {
	if f == nil {
		return nil, errors.New("capture: nil format")
	}
	w, err := NewWriter(file)
	if err != nil {
		return nil, err
	}
	sw, err := w.BeginSection(SectionFrames, sectionVersion)
	if err != nil {
		return nil, err
	}
	info := NewInfo(f.Name, f.WordBits, f.FrameBytes())
	info.Tool = tool
	info.Description = f.Description
	return &Recorder{w: w, frames: sw, format: f, info: info}, nil
}

// Info returns the capture metadata collected so far.
func (r *Recorder) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// AddFrame appends one raw frame, which must be exactly one frame long.
func (r *Recorder) AddFrame(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return errFinalised
	}
	if len(data) != r.info.FrameBytes {
		return fmt.Errorf("%w: got %d bytes, %s frames are %d", frame.ErrShortFrame, len(data), r.format.Name, r.info.FrameBytes)
	}
	if _, err := r.frames.Write(data); err != nil {
		return err
	}
	r.info.FrameCount++
	return nil
}

// AddView appends a decoded frame.
func (r *Recorder) AddView(v frame.View) error {
	if v.Format().Name != r.format.Name {
		return fmt.Errorf("capture: frame format %s, recorder holds %s", v.Format().Name, r.format.Name)
	}
	return r.AddFrame(v.Bytes())
}

func (r *Recorder) AddActivity(a *trigger.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return errFinalised
	}
	b, err := a.Marshal()
	if err != nil {
		return err
	}
	r.activities = append(r.activities, b...)
	r.info.Activities++
	return nil
}

func (r *Recorder) AddCandidate(c *trigger.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return errFinalised
	}
	b, err := c.Marshal()
	if err != nil {
		return err
	}
	r.candidates = append(r.candidates, b...)
	r.info.Candidates++
	return nil
}

// Close writes the remaining sections and finalises the file. The
// underlying *os.File stays open.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return errFinalised
	}
	r.done = true

	if err := r.frames.End(); err != nil {
		return err
	}
	if r.info.FrameBytes%align == 0 {
		if err := r.w.AddFlags(FlagFramesAligned); err != nil {
			return err
		}
	}
	if len(r.activities) > 0 {
		if err := r.w.WriteSection(SectionActivities, sectionVersion, r.activities); err != nil {
			return err
		}
	}
	if len(r.candidates) > 0 {
		if err := r.w.WriteSection(SectionCandidates, sectionVersion, r.candidates); err != nil {
			return err
		}
	}
	info, err := encodeInfo(r.info)
	if err != nil {
		return err
	}
	if err := r.w.WriteSection(SectionInfo, infoVersion, info); err != nil {
		return err
	}
	return r.w.Finalise()
}
