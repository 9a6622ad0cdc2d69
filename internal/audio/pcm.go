package audio

import "math"

const maxInt16 = float32(math.MaxInt16)

// floatToPCM16 converts samples to signed 16-bit values with hard clipping to
// [-1, 1]. dst must be at least len(src) long.
func floatToPCM16(dst []int, src []float32) {
	for i, v := range src {
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		case v != v: // NaN
			v = 0
		}
		dst[i] = int(v * maxInt16)
	}
}
