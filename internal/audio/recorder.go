package audio

import (
	"context"
	"time"
)

// State represents the current state of a recording session
type State string

const (
	StateStopped   State = "STOPPED"
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
)

// RecordingInfo is a point-in-time snapshot of the session
type RecordingInfo struct {
	State         State         `json:"state"`
	Duration      time.Duration `json:"duration"`
	FileSizeBytes int64         `json:"file_size_bytes"`
	Source        *AudioSource  `json:"source,omitempty"`

	// Err is set on the final Stopped snapshot of a session that ended
	// because the container could not be written.
	Err error `json:"-"`
}

// Recorder defines the control surface of the capture engine
type Recorder interface {
	ListSources() []AudioSource

	Start(ctx context.Context, sources []AudioSource, outputPath string) error
	Stop()
	Pause()
	Resume()

	// Status and notifications
	CurrentInfo() RecordingInfo
	OnStateChanged(handler func(RecordingInfo)) (unsubscribe func())
	Subscribe(buffer int) (<-chan RecordingInfo, func())

	// Cleanup
	Close() error
}
