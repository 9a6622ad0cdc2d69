package audio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWaveWriter_EmptyFileIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	w, err := createWaveFile(path)
	if err != nil {
		t.Fatalf("Failed to create wave file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close wave file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read wave file: %v", err)
	}
	if len(data) != waveHeaderSize {
		t.Fatalf("Expected %d bytes, got %d", waveHeaderSize, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("Expected RIFF/WAVE header, got %q %q", data[0:4], data[8:12])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0 {
		t.Errorf("Expected empty data chunk, got %d bytes", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != CanonicalSampleRate {
		t.Errorf("Expected sample rate %d, got %d", CanonicalSampleRate, got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != CanonicalChannels {
		t.Errorf("Expected %d channels, got %d", CanonicalChannels, got)
	}
}

func TestWaveWriter_FramesAndHeaderLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.wav")
	w, err := createWaveFile(path)
	if err != nil {
		t.Fatalf("Failed to create wave file: %v", err)
	}

	frame := make([]float32, samplesPerFrame)
	for i := range frame {
		frame[i] = 0.5
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteFrame(frame); err != nil {
			t.Fatalf("Failed to write frame %d: %v", i, err)
		}
	}

	wantSize := int64(waveHeaderSize + 3*samplesPerFrame*2)
	if w.Size() != wantSize {
		t.Errorf("Expected size %d, got %d", wantSize, w.Size())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close wave file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read wave file: %v", err)
	}
	if int64(len(data)) != wantSize {
		t.Fatalf("Expected %d bytes on disk, got %d", wantSize, len(data))
	}
	checkHeaderLengths(t, data)

	first := int16(binary.LittleEndian.Uint16(data[waveHeaderSize:]))
	if int(first) != pcmValue(0.5) {
		t.Errorf("Expected first sample %d, got %d", pcmValue(0.5), first)
	}
}

func TestWaveWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.wav")
	w, err := createWaveFile(path)
	if err != nil {
		t.Fatalf("Failed to create wave file: %v", err)
	}
	w.Close()

	if err := w.WriteFrame(make([]float32, 4)); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected os.ErrClosed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestCreateWaveFile_BadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.wav")
	if _, err := createWaveFile(path); err == nil {
		t.Error("Expected error for a missing directory")
	}
}

func TestWaveWriter_RefusesFramesPastSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.wav")
	w, err := createWaveFile(path)
	if err != nil {
		t.Fatalf("Failed to create wave file: %v", err)
	}
	if w.limit != maxWaveSize {
		t.Errorf("Expected default limit %d, got %d", maxWaveSize, w.limit)
	}

	frame := make([]float32, samplesPerFrame)
	frameBytes := int64(samplesPerFrame * 2)
	w.limit = waveHeaderSize + 2*frameBytes

	for i := 0; i < 2; i++ {
		if err := w.WriteFrame(frame); err != nil {
			t.Fatalf("Failed to write frame %d: %v", i, err)
		}
	}
	if err := w.WriteFrame(frame); !errors.Is(err, ErrWaveFileFull) {
		t.Fatalf("Expected ErrWaveFileFull, got %v", err)
	}
	if w.Size() != w.limit {
		t.Errorf("Expected size to stay at %d, got %d", w.limit, w.Size())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close wave file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read wave file: %v", err)
	}
	if int64(len(data)) != w.limit {
		t.Errorf("Expected %d bytes on disk, got %d", w.limit, len(data))
	}
	checkHeaderLengths(t, data)
}
