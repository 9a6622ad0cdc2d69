package audio

// Mixer sums a fixed set of canonical streams. Read always fills the whole
// request; a stream that runs dry contributes silence for the rest of the block.
// No limiter is applied, out-of-range sums are clipped at PCM conversion.
type Mixer struct {
	inputs  []Stream
	scratch []float32
}

// NewMixer builds a mixer over inputs. The set cannot change afterwards.
func NewMixer(inputs ...Stream) *Mixer {
	return &Mixer{inputs: append([]Stream(nil), inputs...)}
}

// Inputs reports how many streams are mixed.
func (m *Mixer) Inputs() int {
	return len(m.inputs)
}

// Read fills dst with the sum of all inputs and returns len(dst).
func (m *Mixer) Read(dst []float32) int {
	clear(dst)
	scratch := grow(&m.scratch, len(dst))
	for _, in := range m.inputs {
		n := in.Read(scratch)
		for i, v := range scratch[:n] {
			dst[i] += v
		}
	}
	return len(dst)
}
