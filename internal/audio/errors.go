package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUsableSource is returned by Start when the request is empty or no
	// requested device could be opened.
	ErrNoUsableSource = errors.New("no usable audio source")

	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("a recording session is already active")
)

// DeviceInitializationError reports a single source that failed to open or start.
type DeviceInitializationError struct {
	Source AudioSource
	Err    error
}

func (e *DeviceInitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Source, e.Err)
}

func (e *DeviceInitializationError) Unwrap() error {
	return e.Err
}

// WriteIOError reports a container write failure. It ends the session.
type WriteIOError struct {
	Path string
	Err  error
}

func (e *WriteIOError) Error() string {
	return fmt.Sprintf("failed to write recording %s: %v", e.Path, e.Err)
}

func (e *WriteIOError) Unwrap() error {
	return e.Err
}
