package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// canonical RIFF/WAVE header length written by the encoder
const waveHeaderSize = 44

// maxWaveSize is the largest file whose RIFF and data lengths fit in uint32,
// a little over 6.2 hours of canonical audio.
const maxWaveSize int64 = math.MaxUint32

// ErrWaveFileFull is returned once a frame would push the file past the
// 4 GiB RIFF limit. The file written so far stays valid.
var ErrWaveFileFull = errors.New("recording reached the maximum WAV file size")

// waveWriter appends canonical frames to a 48kHz/16-bit/stereo WAV file.
// The header length fields are patched on Close.
type waveWriter struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer
	size    int64
	limit   int64
	closed  bool
}

// createWaveFile creates path and writes a header so that even a session
// with no frames finalizes to a valid file.
func createWaveFile(path string) (*waveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	w := &waveWriter{
		path:    path,
		file:    f,
		limit:   maxWaveSize,
		encoder: wav.NewEncoder(f, CanonicalSampleRate, CanonicalBitDepth, CanonicalChannels, 1),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  CanonicalSampleRate,
				NumChannels: CanonicalChannels,
			},
			SourceBitDepth: CanonicalBitDepth,
		},
	}

	// An empty buffer makes the encoder emit the RIFF, fmt and data headers.
	if err := w.encoder.Write(w.buf); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}
	w.size = waveHeaderSize
	return w, nil
}

// WriteFrame converts samples to PCM and appends them. A frame that would
// overflow the header length fields is refused with ErrWaveFileFull.
func (w *waveWriter) WriteFrame(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}

	n := int64(len(samples) * CanonicalBitDepth / 8)
	if w.size+n > w.limit {
		slog.Warn("Recording file reached the WAV size limit", "output", w.path, "bytes", w.size, "limit", w.limit)
		return fmt.Errorf("%w: %d of %d bytes", ErrWaveFileFull, w.size, w.limit)
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	floatToPCM16(w.buf.Data, samples)

	if err := w.encoder.Write(w.buf); err != nil {
		return err
	}
	w.size += n
	return nil
}

// Size reports the bytes committed to the file so far, header included.
func (w *waveWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *waveWriter) Path() string {
	return w.path
}

// Close finalizes the header and closes the file. It is safe to call twice.
func (w *waveWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.encoder.Close()
	closeErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav header: %w", encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close recording file: %w", closeErr)
	}
	return nil
}

