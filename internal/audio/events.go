package audio

import (
	"log/slog"
	"sync"
)

// broadcaster fans RecordingInfo snapshots out to callbacks and bounded
// channels. Callbacks run synchronously on the emitting goroutine, in order.
// Channel subscribers that fall behind lose the newest snapshot; the emitter
// never blocks on them.
type broadcaster struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(RecordingInfo)
	channels map[int]chan RecordingInfo
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		handlers: make(map[int]func(RecordingInfo)),
		channels: make(map[int]chan RecordingInfo),
	}
}

func (b *broadcaster) onStateChanged(handler func(RecordingInfo)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster) subscribe(buffer int) (<-chan RecordingInfo, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan RecordingInfo, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.channels[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.channels, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) emit(info RecordingInfo) {
	b.mu.RLock()
	handlers := make([]func(RecordingInfo), 0, len(b.handlers))
	for id := 0; id < b.nextID; id++ {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	for _, ch := range b.channels {
		select {
		case ch <- info:
		default:
			slog.Debug("Dropping state snapshot for slow subscriber", "state", info.State)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(info)
	}
}
