package audio

import (
	"math"
	"testing"
)

// sliceStream serves a fixed sample slice.
type sliceStream struct {
	data []float32
}

func (s *sliceStream) Read(dst []float32) int {
	n := copy(dst, s.data)
	s.data = s.data[n:]
	return n
}

func TestNormalizer_PassThrough(t *testing.T) {
	src := &sliceStream{data: []float32{0.1, 0.2, 0.3, 0.4}}
	n := NewNormalizer(src, CanonicalFormat)

	dst := make([]float32, 8)
	got := n.Read(dst)
	if got != 4 {
		t.Fatalf("Expected 4 samples, got %d", got)
	}
	for i, want := range []float32{0.1, 0.2, 0.3, 0.4} {
		if dst[i] != want {
			t.Errorf("Sample %d: expected %v, got %v", i, want, dst[i])
		}
	}
}

func TestNormalizer_MonoIsDuplicated(t *testing.T) {
	src := &sliceStream{data: []float32{0.1, -0.5, 0.7}}
	n := NewNormalizer(src, StreamFormat{SampleRate: CanonicalSampleRate, NumChannels: 1})

	dst := make([]float32, 6)
	if got := n.Read(dst); got != 6 {
		t.Fatalf("Expected 6 samples, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if dst[2*i] != dst[2*i+1] {
			t.Errorf("Frame %d: left %v != right %v", i, dst[2*i], dst[2*i+1])
		}
	}
	if dst[2] != -0.5 {
		t.Errorf("Expected second frame -0.5, got %v", dst[2])
	}
}

func TestNormalizer_TakesFirstTwoChannels(t *testing.T) {
	src := &sliceStream{data: []float32{
		0.1, 0.2, 0.9, 0.9, 0.9, 0.9,
		0.3, 0.4, 0.9, 0.9, 0.9, 0.9,
	}}
	n := NewNormalizer(src, StreamFormat{SampleRate: CanonicalSampleRate, NumChannels: 6})

	dst := make([]float32, 4)
	if got := n.Read(dst); got != 4 {
		t.Fatalf("Expected 4 samples, got %d", got)
	}
	for i, want := range []float32{0.1, 0.2, 0.3, 0.4} {
		if dst[i] != want {
			t.Errorf("Sample %d: expected %v, got %v", i, want, dst[i])
		}
	}
}

func TestNormalizer_ShortReadWhenStarved(t *testing.T) {
	src := &sliceStream{data: []float32{0.1, 0.2}}
	n := NewNormalizer(src, CanonicalFormat)

	dst := make([]float32, 10)
	if got := n.Read(dst); got != 2 {
		t.Errorf("Expected 2 samples from a starved source, got %d", got)
	}
	if got := n.Read(dst); got != 0 {
		t.Errorf("Expected 0 samples from an empty source, got %d", got)
	}
}

func TestNormalizer_ResamplesToCanonicalRate(t *testing.T) {
	const inRate = 44100
	in := make([]float32, inRate) // one second of mono 440 Hz
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/inRate))
	}
	n := NewNormalizer(&sliceStream{data: in}, StreamFormat{SampleRate: inRate, NumChannels: 1})

	total := 0
	dst := make([]float32, samplesPerFrame)
	for {
		got := n.Read(dst)
		for i := 0; i+1 < got; i += 2 {
			if dst[i] != dst[i+1] {
				t.Fatalf("Resampled mono frame differs between channels: %v vs %v", dst[i], dst[i+1])
			}
		}
		total += got
		if got < len(dst) {
			break
		}
	}

	frames := total / CanonicalChannels
	if diff := frames - CanonicalSampleRate; diff > 1000 || diff < -1000 {
		t.Errorf("Expected about %d frames for one second, got %d", CanonicalSampleRate, frames)
	}
}

func TestNormalizer_ReadsOnlyWhatIsNeeded(t *testing.T) {
	src := &sliceStream{data: make([]float32, 44100*2)}
	n := NewNormalizer(src, StreamFormat{SampleRate: 44100, NumChannels: 2})

	dst := make([]float32, samplesPerFrame)
	if got := n.Read(dst); got == 0 {
		t.Fatal("Expected resampled output")
	}
	// One 20ms frame at 48kHz needs roughly 882 input frames.
	consumed := 44100*2 - len(src.data)
	if consumed > 4*882*2 {
		t.Errorf("Expected the normalizer to pull about one frame of input, consumed %d samples", consumed)
	}
}
