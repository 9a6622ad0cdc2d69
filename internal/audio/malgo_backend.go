package audio

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"
)

// Source ID prefixes keep playback and capture device IDs apart.
const (
	outputIDPrefix = "out:"
	inputIDPrefix  = "in:"
)

var errBackendClosed = errors.New("audio backend is closed")

// MalgoBackend implements Backend on top of miniaudio
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes a miniaudio context for enumeration and capture
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// ListSources returns active playback devices as loopback sources followed by
// capture devices as microphones.
func (b *MalgoBackend) ListSources() ([]AudioSource, error) {
	sources := make([]AudioSource, 0)
	if b.ctx == nil {
		return sources, errBackendClosed
	}

	outputs, err := b.listDevices(malgo.Playback, SourceSystemOutput, outputIDPrefix)
	sources = append(sources, outputs...)
	if err != nil {
		return sources, fmt.Errorf("failed to list playback devices: %w", err)
	}

	inputs, err := b.listDevices(malgo.Capture, SourceMicrophone, inputIDPrefix)
	sources = append(sources, inputs...)
	if err != nil {
		return sources, fmt.Errorf("failed to list capture devices: %w", err)
	}

	return sources, nil
}

func (b *MalgoBackend) listDevices(typ malgo.DeviceType, sourceType SourceType, prefix string) ([]AudioSource, error) {
	devices, err := b.ctx.Devices(typ)
	if err != nil {
		return nil, err
	}

	res := make([]AudioSource, 0, len(devices))
	for _, dev := range devices {
		source := AudioSource{
			ID:   prefix + encodeDeviceID(dev.ID),
			Name: dev.Name(),
			Type: sourceType,
		}

		full, err := b.ctx.DeviceInfo(typ, dev.ID, malgo.Shared)
		if err != nil {
			slog.Warn("Unable to query audio device info, treating as non-default", "device", source.Name, "error", err)
		} else {
			source.IsDefault = full.IsDefault == 1
		}

		res = append(res, source)
	}
	return res, nil
}

// OpenCapture initializes a device for source in the mode its type requires
func (b *MalgoBackend) OpenCapture(source AudioSource) (CaptureDevice, error) {
	if b.ctx == nil {
		return nil, &DeviceInitializationError{Source: source, Err: errBackendClosed}
	}

	mode, err := captureModeFor(source.Type)
	if err != nil {
		return nil, &DeviceInitializationError{Source: source, Err: err}
	}

	id, err := decodeSourceID(source.ID)
	if err != nil {
		return nil, &DeviceInitializationError{Source: source, Err: err}
	}

	dev, err := newMalgoCapture(b.ctx, source, mode, id)
	if err != nil {
		return nil, &DeviceInitializationError{Source: source, Err: err}
	}
	return dev, nil
}

// GetType returns the backend type
func (b *MalgoBackend) GetType() BackendType {
	return BackendTypeMalgo
}

// Close releases the miniaudio context
func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

// encodeDeviceID hex-encodes a device ID without its zero padding.
func encodeDeviceID(id malgo.DeviceID) string {
	return hex.EncodeToString(bytes.TrimRight(id[:], "\x00"))
}

func decodeSourceID(sourceID string) (malgo.DeviceID, error) {
	var id malgo.DeviceID

	raw, ok := strings.CutPrefix(sourceID, outputIDPrefix)
	if !ok {
		raw, ok = strings.CutPrefix(sourceID, inputIDPrefix)
	}
	if !ok {
		return id, fmt.Errorf("malformed source id %q", sourceID)
	}

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return id, fmt.Errorf("invalid device id: %w", err)
	}
	if len(decoded) > len(id) {
		return id, fmt.Errorf("device id too long (%d bytes)", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
