package audio

import (
	"fmt"
	"time"
)

// SourceType tells the capture adapter how to open a device
type SourceType string

const (
	SourceSystemOutput SourceType = "system_output"
	SourceMicrophone   SourceType = "microphone"
	SourceFileImport   SourceType = "file_import"
)

// Canonical mix format. Every source is normalized to this before mixing.
const (
	CanonicalSampleRate = 48000
	CanonicalChannels   = 2
	CanonicalBitDepth   = 16

	FrameDuration = 20 * time.Millisecond

	// frames per 500ms snapshot
	snapshotEveryFrames = 25
)

// samplesPerFrame is the interleaved float count of one 20ms canonical frame.
var samplesPerFrame = CanonicalSampleRate * CanonicalChannels * int(FrameDuration/time.Millisecond) / 1000

// AudioSource identifies one capturable device
type AudioSource struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	IsDefault bool       `json:"is_default"`
}

// DisplayName prefixes the device name with a glyph for its type.
func (s AudioSource) DisplayName() string {
	switch s.Type {
	case SourceSystemOutput:
		return "🔊 " + s.Name
	case SourceMicrophone:
		return "🎤 " + s.Name
	default:
		return s.Name
	}
}

func (s AudioSource) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Type)
}

// StreamFormat describes an interleaved float32 stream
type StreamFormat struct {
	SampleRate  int `json:"sample_rate"`
	NumChannels int `json:"num_channels"`
}

// CanonicalFormat is the format the mixer produces.
var CanonicalFormat = StreamFormat{SampleRate: CanonicalSampleRate, NumChannels: CanonicalChannels}

func (f StreamFormat) valid() bool {
	return f.SampleRate > 0 && f.NumChannels > 0
}
