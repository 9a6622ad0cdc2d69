package service

import (
	"context"
	"os"
	"sync"

	"github.com/audiolibrelab/mixcapture/internal/audio"
)

// fakeRecorder is an in-memory audio.Recorder that creates the output file
// and emits the same transitions as the engine.
type fakeRecorder struct {
	sources  []audio.AudioSource
	startErr error

	mu       sync.Mutex
	info     audio.RecordingInfo
	handlers map[int]func(audio.RecordingInfo)
	nextID   int
	started  [][]audio.AudioSource
	paths    []string
	closed   bool
}

func newFakeRecorder(sources ...audio.AudioSource) *fakeRecorder {
	return &fakeRecorder{
		sources:  sources,
		info:     audio.RecordingInfo{State: audio.StateStopped},
		handlers: make(map[int]func(audio.RecordingInfo)),
	}
}

func (r *fakeRecorder) ListSources() []audio.AudioSource {
	return append([]audio.AudioSource{}, r.sources...)
}

func (r *fakeRecorder) Start(_ context.Context, sources []audio.AudioSource, outputPath string) error {
	if r.startErr != nil {
		return r.startErr
	}
	if err := os.WriteFile(outputPath, nil, 0644); err != nil {
		return &audio.WriteIOError{Path: outputPath, Err: err}
	}

	r.mu.Lock()
	r.started = append(r.started, sources)
	r.paths = append(r.paths, outputPath)
	r.info = audio.RecordingInfo{State: audio.StateRecording, FileSizeBytes: 44}
	r.mu.Unlock()

	r.emit()
	return nil
}

func (r *fakeRecorder) Stop() {
	r.finish(nil)
}

// fail ends the session the way a write failure does.
func (r *fakeRecorder) fail(err error) {
	r.finish(err)
}

func (r *fakeRecorder) finish(err error) {
	r.mu.Lock()
	if r.info.State == audio.StateStopped {
		r.mu.Unlock()
		return
	}
	r.info = audio.RecordingInfo{State: audio.StateStopped, Duration: r.info.Duration, FileSizeBytes: r.info.FileSizeBytes, Err: err}
	r.mu.Unlock()
	r.emit()
}

func (r *fakeRecorder) Pause()  { r.transition(audio.StateRecording, audio.StatePaused) }
func (r *fakeRecorder) Resume() { r.transition(audio.StatePaused, audio.StateRecording) }

func (r *fakeRecorder) transition(from, to audio.State) {
	r.mu.Lock()
	if r.info.State != from {
		r.mu.Unlock()
		return
	}
	r.info.State = to
	r.mu.Unlock()
	r.emit()
}

func (r *fakeRecorder) CurrentInfo() audio.RecordingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

func (r *fakeRecorder) OnStateChanged(handler func(audio.RecordingInfo)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = handler
	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

func (r *fakeRecorder) Subscribe(buffer int) (<-chan audio.RecordingInfo, func()) {
	ch := make(chan audio.RecordingInfo, buffer)
	cancel := r.OnStateChanged(func(info audio.RecordingInfo) {
		select {
		case ch <- info:
		default:
		}
	})
	return ch, cancel
}

func (r *fakeRecorder) Close() error {
	r.Stop()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) emit() {
	r.mu.Lock()
	info := r.info
	handlers := make([]func(audio.RecordingInfo), 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(info)
	}
}

func (r *fakeRecorder) handlerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

var _ audio.Recorder = (*fakeRecorder)(nil)
