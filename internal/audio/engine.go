package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBufferSeconds = 5
	defaultStopTimeout   = 2 * time.Second
)

// EngineOptions tunes per-session resources
type EngineOptions struct {
	// BufferSeconds sizes each per-source ring buffer in seconds of native audio.
	BufferSeconds int
	// StopTimeout bounds how long Stop waits for the recording loop.
	StopTimeout time.Duration
}

// Engine captures the selected sources, mixes them and writes a WAV file.
// Start, Stop, Pause and Resume are serialized by one lock.
type Engine struct {
	backend Backend
	opts    EngineOptions
	events  *broadcaster

	// wrapInput, when set, wraps each normalized stream before mixing.
	wrapInput func(AudioSource, Stream) Stream

	ctrlMu sync.Mutex
	// emitMu orders snapshot delivery. A state change and its snapshot are
	// published under it, so handlers never observe a stale state last.
	emitMu sync.Mutex

	mu      sync.RWMutex
	state   State
	session *session
	last    RecordingInfo
}

// captureContext owns one opened device and its buffer for a session.
type captureContext struct {
	device     CaptureDevice
	buffer     *RingBuffer
	normalizer *Normalizer
	paused     *atomic.Bool
}

// Write drops blocks that arrive while the session is paused.
func (c *captureContext) Write(samples []float32) {
	if c.paused.Load() {
		return
	}
	c.buffer.Write(samples)
}

type session struct {
	id       uuid.UUID
	logger   *slog.Logger
	path     string
	source   *AudioSource
	captures []*captureContext
	mixer    *Mixer
	writer   *waveWriter
	clock    *stopwatch
	paused   atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a stopped engine over backend
func NewEngine(backend Backend, opts EngineOptions) *Engine {
	if opts.BufferSeconds <= 0 {
		opts.BufferSeconds = defaultBufferSeconds
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Engine{
		backend: backend,
		opts:    opts,
		events:  newBroadcaster(),
		state:   StateStopped,
		last:    RecordingInfo{State: StateStopped},
	}
}

// ListSources enumerates devices. Enumeration errors are logged and whatever
// was collected is returned, possibly an empty list.
func (e *Engine) ListSources() []AudioSource {
	sources, err := e.backend.ListSources()
	if err != nil {
		slog.Error("Audio source enumeration failed", "error", err, "collected", len(sources))
	}
	if sources == nil {
		sources = []AudioSource{}
	}
	return sources
}

// Start opens every source, creates outputPath and begins recording.
// Sources that fail to open are logged and skipped. When none survive the
// returned error wraps ErrNoUsableSource and no file is left behind.
func (e *Engine) Start(ctx context.Context, sources []AudioSource, outputPath string) error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	if e.State() != StateStopped {
		return ErrAlreadyRecording
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: no sources selected", ErrNoUsableSource)
	}

	id := uuid.New()
	s := &session{
		id:     id,
		logger: slog.Default().With("session", id),
		path:   outputPath,
		clock:  newStopwatch(nil),
		done:   make(chan struct{}),
	}

	var failures []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			s.releaseCaptures()
			return fmt.Errorf("start cancelled: %w", err)
		}

		cc, err := e.openCapture(s, src)
		if err != nil {
			s.logger.Error("Failed to initialize audio source", "source", src.ID, "name", src.Name, "error", err)
			failures = append(failures, err)
			continue
		}
		s.captures = append(s.captures, cc)
	}

	if len(s.captures) == 0 {
		return fmt.Errorf("%w: %w", ErrNoUsableSource, errors.Join(failures...))
	}

	writer, err := createWaveFile(outputPath)
	if err != nil {
		s.releaseCaptures()
		return &WriteIOError{Path: outputPath, Err: err}
	}
	s.writer = writer

	normalized := make([]Stream, len(s.captures))
	for i, cc := range s.captures {
		normalized[i] = cc.normalizer
		if e.wrapInput != nil {
			normalized[i] = e.wrapInput(cc.device.Source(), cc.normalizer)
		}
	}
	s.mixer = NewMixer(normalized...)
	if len(s.captures) == 1 {
		src := s.captures[0].device.Source()
		s.source = &src
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.clock.Start()

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	e.state = StateRecording
	e.session = s
	e.mu.Unlock()

	go e.run(loopCtx, s)

	s.logger.Info("Recording started", "output", outputPath, "sources", len(s.captures), "failed", len(failures))
	e.events.emit(e.snapshot(s, StateRecording))
	return nil
}

// openCapture opens and starts one source with a buffer sized for its format.
func (e *Engine) openCapture(s *session, src AudioSource) (*captureContext, error) {
	dev, err := e.backend.OpenCapture(src)
	if err != nil {
		var initErr *DeviceInitializationError
		if errors.As(err, &initErr) {
			return nil, err
		}
		return nil, &DeviceInitializationError{Source: src, Err: err}
	}

	format := dev.Format()
	if !format.valid() {
		dev.Close()
		return nil, &DeviceInitializationError{Source: src, Err: fmt.Errorf("unusable native format %+v", format)}
	}

	buffer := NewRingBuffer(e.opts.BufferSeconds*format.SampleRate*format.NumChannels, format.NumChannels)
	cc := &captureContext{
		device:     dev,
		buffer:     buffer,
		normalizer: NewNormalizer(buffer, format),
		paused:     &s.paused,
	}

	if err := dev.Start(cc); err != nil {
		dev.Close()
		return nil, &DeviceInitializationError{Source: src, Err: err}
	}

	s.logger.Debug("Audio source ready",
		"source", src.ID,
		"name", src.Name,
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"buffer_samples", buffer.Cap())
	return cc, nil
}

// run drives the recording loop on a locked OS thread.
func (e *Engine) run(ctx context.Context, s *session) {
	defer close(s.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := s.record(ctx, func() { e.emitProgress(s) })
	if err != nil {
		go e.abort(s, err)
	}
}

// emitProgress publishes a periodic snapshot of s. It is skipped once the
// session has left Recording, since the transition snapshot already went out.
func (e *Engine) emitProgress(s *session) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.RLock()
	current, state := e.session, e.state
	e.mu.RUnlock()
	if current != s || state != StateRecording {
		return
	}
	e.events.emit(e.snapshot(s, state))
}

// Stop ends the session, finalizes the file and releases every device.
// It never fails; cleanup problems are logged.
func (e *Engine) Stop() {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	e.mu.RLock()
	s := e.session
	e.mu.RUnlock()
	if s == nil {
		return
	}

	e.teardown(s, nil)
}

// abort ends a session whose loop hit a fatal write error.
func (e *Engine) abort(s *session, cause error) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	e.mu.RLock()
	current := e.session
	e.mu.RUnlock()
	if current != s {
		return
	}

	s.logger.Error("Recording aborted", "error", cause)
	e.teardown(s, cause)
}

// teardown must be called with ctrlMu held.
func (e *Engine) teardown(s *session, cause error) {
	s.cancel()
	for _, cc := range s.captures {
		if err := cc.device.Stop(); err != nil {
			s.logger.Warn("Failed to stop capture device", "source", cc.device.Source().ID, "error", err)
		}
	}

	select {
	case <-s.done:
	case <-time.After(e.opts.StopTimeout):
		s.logger.Warn("Recording loop did not exit within timeout, forcing release", "timeout", e.opts.StopTimeout)
	}

	s.clock.Stop()
	s.releaseCaptures()
	if err := s.writer.Close(); err != nil {
		s.logger.Error("Failed to finalize recording", "output", s.path, "error", err)
	}

	info := RecordingInfo{
		State:         StateStopped,
		Duration:      s.clock.Elapsed(),
		FileSizeBytes: s.writer.Size(),
		Source:        s.source,
		Err:           cause,
	}

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	e.state = StateStopped
	e.session = nil
	e.last = info
	e.mu.Unlock()

	s.logger.Info("Recording stopped", "output", s.path, "duration", info.Duration, "bytes", info.FileSizeBytes)
	e.events.emit(info)
}

// Pause suspends writing. It is a no-op unless recording.
func (e *Engine) Pause() {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	s := e.session
	if s == nil || e.state != StateRecording {
		e.mu.Unlock()
		return
	}
	s.paused.Store(true)
	s.clock.Stop()
	e.state = StatePaused
	e.mu.Unlock()

	s.logger.Info("Recording paused", "duration", s.clock.Elapsed())
	e.events.emit(e.snapshot(s, StatePaused))
}

// Resume continues a paused session. It is a no-op unless paused.
func (e *Engine) Resume() {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	s := e.session
	if s == nil || e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	s.clock.Start()
	s.paused.Store(false)
	e.state = StateRecording
	e.mu.Unlock()

	s.logger.Info("Recording resumed")
	e.events.emit(e.snapshot(s, StateRecording))
}

// State returns the current session state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// CurrentInfo returns a snapshot of the active session, or of the last one
// once stopped.
func (e *Engine) CurrentInfo() RecordingInfo {
	e.mu.RLock()
	s, state, last := e.session, e.state, e.last
	e.mu.RUnlock()

	if s == nil {
		return last
	}
	return e.snapshot(s, state)
}

func (e *Engine) snapshot(s *session, state State) RecordingInfo {
	return RecordingInfo{
		State:         state,
		Duration:      s.clock.Elapsed(),
		FileSizeBytes: s.writer.Size(),
		Source:        s.source,
	}
}

// OnStateChanged registers handler for every state snapshot. Handlers run on
// the goroutine that produced the snapshot, one snapshot at a time, and must
// not block or call back into the engine.
func (e *Engine) OnStateChanged(handler func(RecordingInfo)) func() {
	return e.events.onStateChanged(handler)
}

// Subscribe returns a bounded channel of state snapshots and a cancel func.
func (e *Engine) Subscribe(buffer int) (<-chan RecordingInfo, func()) {
	return e.events.subscribe(buffer)
}

// Close stops any session and releases the backend
func (e *Engine) Close() error {
	e.Stop()
	return e.backend.Close()
}

func (s *session) releaseCaptures() {
	for _, cc := range s.captures {
		if err := cc.device.Close(); err != nil {
			s.logger.Warn("Failed to release capture device", "source", cc.device.Source().ID, "error", err)
		}
	}
}

var _ Recorder = (*Engine)(nil)
