package capture

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const infoVersion uint32 = 1

// Info describes the contents of a capture. It is stored as JSON in the
// info section.
type Info struct {
	ID          uuid.UUID `json:"id"`
	Format      string    `json:"format"`
	WordBits    int       `json:"word_bits"`
	FrameBytes  int       `json:"frame_bytes"`
	FrameCount  uint64    `json:"frame_count"`
	Activities  uint64    `json:"activities"`
	Candidates  uint64    `json:"candidates"`
	Created     time.Time `json:"created"`
	Tool        string    `json:"tool,omitempty"`
	Description string    `json:"description,omitempty"`
}

// NewInfo returns an Info with a fresh random ID.
func NewInfo(format string, wordBits, frameBytes int) Info {
	return Info{
		ID:         uuid.New(),
		Format:     format,
		WordBits:   wordBits,
		FrameBytes: frameBytes,
		Created:    time.Now().UTC(),
	}
}

func encodeInfo(info Info) ([]byte, error) {
	return json.Marshal(info)
}

func decodeInfo(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("%w: info: %v", ErrCorruptFile, err)
	}
	if info.FrameBytes < 0 {
		return info, fmt.Errorf("%w: info: negative frame size", ErrCorruptFile)
	}
	return info, nil
}
