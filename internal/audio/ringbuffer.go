package audio

import "sync"

// RingBuffer is a fixed-capacity float32 FIFO of interleaved frames. Writes
// never block: when the buffer is full the oldest unread frames are discarded
// to make room. Reads and discards always move whole frames so channels never
// rotate.
//
// One producer (a device callback) and one consumer (the normalizer) are
// expected. The mutex is held only for copies.
type RingBuffer struct {
	mu        sync.Mutex
	data      []float32
	frameSize int
	head      int // next read position
	size      int
	discarded uint64
}

// NewRingBuffer allocates a buffer holding capacity samples, rounded down to
// whole frames of frameSize samples.
func NewRingBuffer(capacity, frameSize int) *RingBuffer {
	if frameSize < 1 {
		frameSize = 1
	}
	capacity -= capacity % frameSize
	if capacity < frameSize {
		capacity = frameSize
	}
	return &RingBuffer{data: make([]float32, capacity), frameSize: frameSize}
}

// Write appends samples, dropping the oldest frames on overflow. A trailing
// partial frame is ignored.
func (b *RingBuffer) Write(samples []float32) {
	samples = samples[:len(samples)-len(samples)%b.frameSize]
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.data)
	if len(samples) >= capacity {
		// Only the newest capacity samples can survive.
		b.discarded += uint64(b.size + len(samples) - capacity)
		copy(b.data, samples[len(samples)-capacity:])
		b.head = 0
		b.size = capacity
		return
	}

	if overflow := b.size + len(samples) - capacity; overflow > 0 {
		b.head = (b.head + overflow) % capacity
		b.size -= overflow
		b.discarded += uint64(overflow)
	}

	tail := (b.head + b.size) % capacity
	n := copy(b.data[tail:], samples)
	copy(b.data, samples[n:])
	b.size += len(samples)
}

// Read copies up to len(dst) samples, whole frames only, into dst and returns
// how many were copied.
func (b *RingBuffer) Read(dst []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(len(dst), b.size)
	n -= n % b.frameSize
	if n == 0 {
		return 0
	}
	capacity := len(b.data)
	first := copy(dst[:n], b.data[b.head:min(b.head+n, capacity)])
	copy(dst[first:n], b.data[:n-first])
	b.head = (b.head + n) % capacity
	b.size -= n
	return n
}

// Len reports the number of unread samples.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap reports the fixed capacity in samples.
func (b *RingBuffer) Cap() int {
	return len(b.data)
}

// Discarded reports how many samples were dropped on overflow.
func (b *RingBuffer) Discarded() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded
}

// Reset drops all unread samples.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}
