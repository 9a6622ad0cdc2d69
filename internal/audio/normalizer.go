package audio

import (
	"log/slog"

	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

// Stream is a pull source of interleaved float32 samples.
type Stream interface {
	// Read fills dst with up to len(dst) samples and returns the count.
	Read(dst []float32) int
}

// Normalizer converts a native-format stream to the canonical format: the
// first two channels are kept (mono is duplicated) and the rate is converted
// to CanonicalSampleRate.
type Normalizer struct {
	src    Stream
	format StreamFormat

	resampler *resampler.Resampler

	raw        []float32
	stereo     []float32
	planarIn   [2][]float32
	planarOut  [2][]float32
	pending    []float32
	pendingOff int
}

// NewNormalizer wraps src, whose samples are laid out as format.
func NewNormalizer(src Stream, format StreamFormat) *Normalizer {
	n := &Normalizer{src: src, format: format}
	if format.SampleRate != CanonicalSampleRate {
		slog.Debug("Adding resampler", "from", format.SampleRate, "to", CanonicalSampleRate)
		n.resampler = resampler.New(CanonicalChannels, format.SampleRate, CanonicalSampleRate, resampleQuality)
	}
	return n
}

// Format returns the native format the normalizer reads.
func (n *Normalizer) Format() StreamFormat {
	return n.format
}

// Read fills dst with canonical interleaved stereo samples. It returns fewer
// than len(dst) samples when the source cannot currently supply more.
func (n *Normalizer) Read(dst []float32) int {
	dst = dst[:len(dst)-len(dst)%CanonicalChannels]
	filled := n.drainPending(dst)

	for filled < len(dst) {
		wantFrames := (len(dst) - filled) / CanonicalChannels
		inFrames := wantFrames
		if n.resampler != nil {
			inFrames = wantFrames*n.format.SampleRate/CanonicalSampleRate + 1
		}

		raw := grow(&n.raw, inFrames*n.format.NumChannels)
		got := n.src.Read(raw) / n.format.NumChannels
		if got == 0 {
			break
		}

		stereo := n.toStereo(raw, got)
		if n.resampler == nil {
			c := copy(dst[filled:], stereo)
			if c < len(stereo) {
				n.pending = append(n.pending, stereo[c:]...)
			}
			filled += c
			continue
		}

		n.resample(stereo, got)
		filled += n.drainPending(dst[filled:])
	}
	return filled
}

// toStereo maps frames native frames from raw into n.stereo.
func (n *Normalizer) toStereo(raw []float32, frames int) []float32 {
	ch := n.format.NumChannels
	if ch == CanonicalChannels {
		return raw[:frames*ch]
	}

	out := grow(&n.stereo, frames*CanonicalChannels)
	if ch == 1 {
		for i := 0; i < frames; i++ {
			out[2*i] = raw[i]
			out[2*i+1] = raw[i]
		}
		return out
	}
	for i := 0; i < frames; i++ {
		out[2*i] = raw[i*ch]
		out[2*i+1] = raw[i*ch+1]
	}
	return out
}

// resample converts frames stereo frames to the canonical rate and appends
// the result to the pending queue.
func (n *Normalizer) resample(stereo []float32, frames int) {
	left := grow(&n.planarIn[0], frames)
	right := grow(&n.planarIn[1], frames)
	for i := 0; i < frames; i++ {
		left[i] = stereo[2*i]
		right[i] = stereo[2*i+1]
	}

	outCap := frames*CanonicalSampleRate/n.format.SampleRate + 64
	outL := grow(&n.planarOut[0], outCap)
	outR := grow(&n.planarOut[1], outCap)

	for len(left) > 0 {
		read, writtenL := n.resampler.ProcessFloat32(0, left, outL)
		_, writtenR := n.resampler.ProcessFloat32(1, right, outR)
		written := min(writtenL, writtenR)
		for i := 0; i < written; i++ {
			n.pending = append(n.pending, outL[i], outR[i])
		}
		if read == 0 && written == 0 {
			break
		}
		left = left[read:]
		right = right[read:]
	}
}

func (n *Normalizer) drainPending(dst []float32) int {
	if n.pendingOff >= len(n.pending) {
		return 0
	}
	c := copy(dst, n.pending[n.pendingOff:])
	n.pendingOff += c
	if n.pendingOff == len(n.pending) {
		n.pending = n.pending[:0]
		n.pendingOff = 0
	}
	return c
}

// grow returns (*buf)[:size], reallocating when the capacity is too small.
func grow(buf *[]float32, size int) []float32 {
	if cap(*buf) < size {
		*buf = make([]float32, size)
	}
	return (*buf)[:size]
}
