package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	pausePollInterval = 10 * time.Millisecond
	frameErrorBackoff = 10 * time.Millisecond
)

// record pulls one 20ms frame per iteration from the mixer and appends it to
// the file until ctx is cancelled. Frames are scheduled against the session
// stopwatch so processing jitter does not accumulate. A pause takes effect
// once the file has caught up with the stopwatch. Only a write failure ends
// the loop with an error.
func (s *session) record(ctx context.Context, snapshot func()) error {
	frame := make([]float32, samplesPerFrame)
	var frames int64

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Frames owed for time recorded before the pause are still written.
		if s.paused.Load() && time.Duration(frames+1)*FrameDuration > s.clock.Elapsed() {
			sleepContext(ctx, pausePollInterval)
			continue
		}

		if err := s.processFrame(frame); err != nil {
			var writeErr *WriteIOError
			if errors.As(err, &writeErr) {
				return err
			}
			s.logger.Error("Frame processing failed", "frame", frames, "error", err)
			sleepContext(ctx, frameErrorBackoff)
			continue
		}

		frames++
		if frames%snapshotEveryFrames == 0 {
			snapshot()
		}

		ideal := time.Duration(frames) * FrameDuration
		if wait := ideal - s.clock.Elapsed(); wait > 0 {
			sleepContext(ctx, wait)
		}
	}
}

func (s *session) processFrame(frame []float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while mixing frame: %v", r)
		}
	}()

	s.mixer.Read(frame)
	if err := s.writer.WriteFrame(frame); err != nil {
		return &WriteIOError{Path: s.path, Err: err}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
