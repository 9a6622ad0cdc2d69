package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/mixcapture/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMalgo BackendType = "malgo"
	BackendTypeAuto  BackendType = "auto"
)

// SampleSink receives native-format interleaved samples from a device
// callback. Write must never block.
type SampleSink interface {
	Write(samples []float32)
}

// CaptureDevice is one opened capture endpoint.
type CaptureDevice interface {
	Source() AudioSource
	// Format is the native layout of the samples handed to the sink.
	Format() StreamFormat
	// Start begins delivering samples to sink from the driver's thread.
	Start(sink SampleSink) error
	Stop() error
	Close() error
}

// Backend defines the interface for audio backend implementations
type Backend interface {
	// ListSources enumerates active output and input devices. On failure it
	// returns whatever was collected before the error.
	ListSources() ([]AudioSource, error)

	// OpenCapture opens source for capture without starting it.
	OpenCapture(source AudioSource) (CaptureDevice, error)

	GetType() BackendType
	Close() error
}

// NewBackend creates the backend named by the configuration
func NewBackend(name string) (Backend, error) {
	switch determineBackend(name) {
	case BackendTypeMalgo:
		return NewMalgoBackend()
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", name)
	}
}

// NewRecorder creates an engine using the backend and limits from configuration
func NewRecorder(cfg *config.Config) (*Engine, error) {
	backend, err := NewBackend(cfg.Audio.Backend)
	if err != nil {
		return nil, err
	}
	return NewEngine(backend, EngineOptions{
		BufferSeconds: cfg.Audio.BufferSeconds,
		StopTimeout:   time.Duration(cfg.Audio.StopTimeoutMs) * time.Millisecond,
	}), nil
}

// determineBackend determines which backend to use based on configuration
func determineBackend(name string) BackendType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto", "malgo":
		return BackendTypeMalgo
	default:
		return BackendType(name)
	}
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo}
}
